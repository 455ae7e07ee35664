// Package natsbridge forwards in-process bus events to NATS so other
// services can react to presence transitions and delivery results.
package natsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"botmon/internal/eventbus"
	logx "botmon/pkg/logx"
)

// Publisher is the part of *nats.Conn the bridge uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Envelope is the JSON payload published for every event.
type Envelope struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

type Bridge struct {
	pub    Publisher
	prefix string
	bus    eventbus.Bus
	log    logx.Logger
}

// Connect dials NATS with reconnects enabled for the life of the process.
func Connect(url string, log logx.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("botmon"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logx.Err(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", logx.String("url", nc.ConnectedUrl()))
		}),
	)
}

// New builds a bridge publishing to "<prefix>.<event type>". prefix
// defaults to "botmon".
func New(pub Publisher, prefix string, bus eventbus.Bus, log logx.Logger) *Bridge {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "botmon"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bridge{pub: pub, prefix: prefix, bus: bus, log: log.With(logx.String("comp", "natsbridge"))}
}

func (b *Bridge) Subject(eventType string) string { return b.prefix + "." + eventType }

// Run forwards events until ctx is cancelled. Publish failures are logged and
// the event is dropped.
func (b *Bridge) Run(ctx context.Context) error {
	ch, unsub := b.bus.Subscribe(256)
	defer unsub()
	b.log.Info("nats bridge started", logx.String("prefix", b.prefix))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := b.forward(ev); err != nil {
				b.log.Warn("nats publish failed", logx.String("type", ev.Type), logx.Err(err))
			}
		}
	}
}

func (b *Bridge) forward(ev eventbus.Event) error {
	payload, err := json.Marshal(Envelope{Type: ev.Type, Time: ev.Time, Data: ev.Data})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Type, err)
	}
	return b.pub.Publish(b.Subject(ev.Type), payload)
}
