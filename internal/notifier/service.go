package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"botmon/internal/eventbus"
	"botmon/internal/monitor"
	"botmon/internal/observability/metrics"
	"botmon/internal/transport"
	logx "botmon/pkg/logx"
)

var ErrNoMessage = errors.New("notifier: class produces no message")

type Config struct {
	// RatePerSec paces DMs across all watchers. Default 5.
	RatePerSec int
	// SendTimeout bounds the limiter wait plus the send. Default 10s.
	SendTimeout time.Duration
	// HistorySize is the number of recent deliveries kept. Default 50.
	HistorySize int
}

type HistoryItem struct {
	At        time.Time
	WatcherID string
	SubjectID string
	Class     string
	OK        bool
	Error     string
}

// Event is published as notify.sent or notify.failed.
type Event struct {
	SignalID  string `json:"signal_id,omitempty"`
	WatcherID string `json:"watcher_id"`
	SubjectID string `json:"subject_id"`
	Class     string `json:"class"`
	Error     string `json:"error,omitempty"`
}

// Service implements monitor.Dispatcher on top of a platform adapter.
//
// It is safe for concurrent use.
type Service struct {
	dm      transport.DirectMessenger
	dir     transport.Directory
	log     logx.Logger
	bus     eventbus.Bus
	metrics *metrics.Metrics

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

var _ monitor.Dispatcher = (*Service)(nil)

func New(cfg Config, dm transport.DirectMessenger, dir transport.Directory, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		dm:      dm,
		dir:     dir,
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
		metrics: m,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	s.cfg = cfg
	// burst = rate so a handful of watchers on one subject go out together.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) snapshot() (Config, *rate.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.limiter
}

// Dispatch renders the notice and sends it once. Errors are returned to the
// caller unchanged apart from context.
func (s *Service) Dispatch(ctx context.Context, n monitor.Notice) error {
	start := time.Now()
	cfg, lim := s.snapshot()

	ctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()

	name := s.subjectName(ctx, n.SubjectID)
	text, ok := Render(n.Class, n.WatcherID, n.SubjectID, name)
	if !ok {
		return ErrNoMessage
	}

	err := lim.Wait(ctx)
	if err == nil {
		err = s.dm.SendDirect(ctx, n.WatcherID, text)
	}
	if err != nil {
		err = fmt.Errorf("dm %s: %w", n.WatcherID, err)
	}
	s.record(n, err, time.Since(start))
	return err
}

func (s *Service) subjectName(ctx context.Context, subjectID string) string {
	if s.dir == nil {
		return ""
	}
	u, err := s.dir.LookupUser(ctx, subjectID)
	if err != nil {
		s.log.Debug("subject lookup failed", logx.String("subject", subjectID), logx.Err(err))
		return ""
	}
	return u.Name
}

func (s *Service) record(n monitor.Notice, err error, took time.Duration) {
	ev := Event{
		SignalID:  n.SignalID,
		WatcherID: n.WatcherID,
		SubjectID: n.SubjectID,
		Class:     n.Class.String(),
	}
	item := HistoryItem{
		At:        time.Now(),
		WatcherID: n.WatcherID,
		SubjectID: n.SubjectID,
		Class:     ev.Class,
		OK:        err == nil,
	}
	if err != nil {
		ev.Error = err.Error()
		item.Error = ev.Error
		s.metrics.ObserveDispatch("error", took)
		eventbus.Publish(s.bus, eventbus.TypeNotifyFailed, ev)
	} else {
		s.metrics.ObserveDispatch("ok", took)
		eventbus.Publish(s.bus, eventbus.TypeNotifySent, ev)
		s.log.Debug("notice delivered",
			logx.String("watcher", n.WatcherID),
			logx.String("subject", n.SubjectID),
			logx.String("class", ev.Class),
			logx.Duration("took", took),
		)
	}
	s.appendHistory(item)
}

func (s *Service) appendHistory(it HistoryItem) {
	cfg, _ := s.snapshot()
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, it)
	if over := len(s.history) - cfg.HistorySize; over > 0 {
		s.history = append([]HistoryItem(nil), s.history[over:]...)
	}
}

// History returns recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}
