// Package monitor routes classified presence transitions to the watchers
// registered for a subject.
package monitor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"botmon/internal/eventbus"
	"botmon/internal/observability/metrics"
	"botmon/internal/presence"
	"botmon/internal/registry"
	logx "botmon/pkg/logx"
)

// Registry is the part of registry.Service the orchestrator needs.
type Registry interface {
	FetchBySubject(ctx context.Context, subjectID string) ([]registry.Entry, error)
}

type Config struct {
	// Fanout bounds concurrent dispatches for one signal. Default 8.
	Fanout int
}

// Outcome is the terminal state of one signal.
type Outcome int

const (
	Skipped Outcome = iota
	Dispatched
)

func (o Outcome) String() string {
	if o == Dispatched {
		return "dispatched"
	}
	return "skipped"
}

// Skip reasons reported in Result.Reason.
const (
	ReasonIrrelevant  = "irrelevant"
	ReasonNoWatchers  = "no_watchers"
	ReasonFetchFailed = "fetch_failed"
)

type Result struct {
	Transition presence.Transition
	Outcome    Outcome
	Reason     string
	Attempted  int
	Failed     int
}

// TransitionEvent is published on the bus for every automated-account
// signal. Irrelevant signals are counted but never published.
type TransitionEvent struct {
	SignalID  string    `json:"signal_id,omitempty"`
	SubjectID string    `json:"subject_id"`
	Class     string    `json:"class"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Watchers  int       `json:"watchers"`
	Failed    int       `json:"failed"`
	At        time.Time `json:"at"`
}

// Orchestrator moves each signal through Received -> Classified ->
// Dispatched|Skipped. It keeps no per-subject state, so concurrent Handle
// calls never wait on each other.
type Orchestrator struct {
	cfg     Config
	reg     Registry
	disp    Dispatcher
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics
}

func New(cfg Config, reg Registry, disp Dispatcher, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Orchestrator {
	if cfg.Fanout <= 0 {
		cfg.Fanout = 8
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{
		cfg:     cfg,
		reg:     reg,
		disp:    disp,
		log:     log.With(logx.String("comp", "monitor")),
		bus:     bus,
		metrics: m,
	}
}

// Handle processes one signal to completion. Dispatch failures are logged and
// counted, never returned.
func (o *Orchestrator) Handle(ctx context.Context, sig presence.Signal) Result {
	tr := sig.Classify()
	o.metrics.ObserveSignal(tr.ClassName)
	res := Result{Transition: tr}
	log := o.log.With(logx.String("sig", sig.ID), logx.String("subject", sig.SubjectID))

	if tr.Class == presence.Irrelevant {
		res.Reason = ReasonIrrelevant
		return o.finish(sig, res)
	}

	entries, err := o.reg.FetchBySubject(ctx, sig.SubjectID)
	if err != nil {
		// Degrade to "nobody is watching" so a store outage never stalls monitoring.
		log.Warn("watcher lookup failed; treating as no watchers",
			logx.String("class", tr.ClassName),
			logx.Err(registry.Cause(err)),
		)
		res.Reason = ReasonFetchFailed
		return o.finish(sig, res)
	}
	if len(entries) == 0 {
		res.Reason = ReasonNoWatchers
		log.Debug("no watchers registered", logx.String("class", tr.ClassName))
		return o.finish(sig, res)
	}

	res.Outcome = Dispatched
	res.Attempted = len(entries)
	res.Failed = o.fanOut(ctx, sig, tr, entries, log)
	log.Info("transition dispatched",
		logx.String("class", tr.ClassName),
		logx.Int("watchers", res.Attempted),
		logx.Int("failed", res.Failed),
	)
	return o.finish(sig, res)
}

func (o *Orchestrator) fanOut(ctx context.Context, sig presence.Signal, tr presence.Transition, entries []registry.Entry, log logx.Logger) int {
	// Delivery is fire-and-forget per watcher: shutdown of the caller does not
	// cut a send that already started.
	dctx := context.WithoutCancel(ctx)

	var (
		g      errgroup.Group
		failed atomic.Int32
	)
	g.SetLimit(o.cfg.Fanout)
	for _, e := range entries {
		n := Notice{WatcherID: e.WatcherID, SubjectID: e.SubjectID, Class: tr.Class, SignalID: sig.ID}
		g.Go(func() error {
			if err := o.dispatchOne(dctx, n); err != nil {
				failed.Add(1)
				log.Warn("notification failed", logx.String("watcher", n.WatcherID), logx.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(failed.Load())
}

func (o *Orchestrator) dispatchOne(ctx context.Context, n Notice) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()
	return o.disp.Dispatch(ctx, n)
}

func (o *Orchestrator) finish(sig presence.Signal, res Result) Result {
	o.metrics.ObserveOutcome(res.Outcome.String())
	if res.Reason == ReasonIrrelevant {
		return res
	}
	eventbus.Publish(o.bus, eventbus.TypeTransition, TransitionEvent{
		SignalID:  sig.ID,
		SubjectID: res.Transition.SubjectID,
		Class:     res.Transition.ClassName,
		Outcome:   res.Outcome.String(),
		Reason:    res.Reason,
		Watchers:  res.Attempted,
		Failed:    res.Failed,
		At:        time.Now(),
	})
	return res
}
