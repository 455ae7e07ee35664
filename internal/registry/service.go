package registry

import (
	"context"
	"time"

	"botmon/internal/observability/metrics"
	logx "botmon/pkg/logx"
)

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Compactor is implemented by stores that keep an append-only journal.
type Compactor interface {
	Compact(ctx context.Context) error
}

// Service is the typed façade over a Store.
//
// It adds no business rules. Every store failure is logged with its cause and
// returned as one of ErrCreationFailed, ErrFetchFailed or ErrRemoveFailed.
// Service owns no state besides its collaborators.
type Service struct {
	store   Store
	log     logx.Logger
	metrics *metrics.Metrics
}

func NewService(store Store, log logx.Logger, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:   store,
		log:     log.With(logx.String("comp", "registry")),
		metrics: m,
	}
}

func (s *Service) Add(ctx context.Context, e Entry) error {
	start := time.Now()
	err := e.validate()
	if err == nil {
		err = s.store.Add(ctx, e)
	}
	if err != nil {
		return s.fail(ErrCreationFailed, "add", e, err, start)
	}
	s.ok("add", start)
	s.log.Debug("entry added", logx.String("subject", e.SubjectID), logx.String("watcher", e.WatcherID))
	return nil
}

func (s *Service) Remove(ctx context.Context, e Entry) error {
	start := time.Now()
	err := e.validate()
	if err == nil {
		err = s.store.Remove(ctx, e)
	}
	if err != nil {
		return s.fail(ErrRemoveFailed, "remove", e, err, start)
	}
	s.ok("remove", start)
	s.log.Debug("entry removed", logx.String("subject", e.SubjectID), logx.String("watcher", e.WatcherID))
	return nil
}

// FetchBySubject returns every watcher registered for subjectID.
// An unknown subject yields an empty slice and a nil error.
func (s *Service) FetchBySubject(ctx context.Context, subjectID string) ([]Entry, error) {
	start := time.Now()
	out, err := s.store.FetchBySubject(ctx, subjectID)
	if err != nil {
		return nil, s.fail(ErrFetchFailed, "fetch_by_subject", Entry{SubjectID: subjectID}, err, start)
	}
	s.ok("fetch_by_subject", start)
	return out, nil
}

func (s *Service) FetchByWatcher(ctx context.Context, watcherID string) ([]Entry, error) {
	start := time.Now()
	out, err := s.store.FetchByWatcher(ctx, watcherID)
	if err != nil {
		return nil, s.fail(ErrFetchFailed, "fetch_by_watcher", Entry{WatcherID: watcherID}, err, start)
	}
	s.ok("fetch_by_watcher", start)
	return out, nil
}

// Ping reports whether the backend is reachable. Stores without a notion of
// reachability are always healthy.
func (s *Service) Ping(ctx context.Context) error {
	p, ok := s.store.(Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}

// Compact folds the store journal into its snapshot, if the store keeps one.
// It reports false when the store has nothing to compact.
func (s *Service) Compact(ctx context.Context) (bool, error) {
	c, ok := s.store.(Compactor)
	if !ok {
		return false, nil
	}
	return true, c.Compact(ctx)
}

func (s *Service) ok(op string, start time.Time) {
	s.metrics.ObserveRegistryOp(op, "ok", time.Since(start))
}

func (s *Service) fail(kind error, op string, e Entry, cause error, start time.Time) error {
	s.metrics.ObserveRegistryOp(op, "error", time.Since(start))
	s.log.Warn("registry operation failed",
		logx.String("op", op),
		logx.String("subject", e.SubjectID),
		logx.String("watcher", e.WatcherID),
		logx.Err(cause),
	)
	return &Error{Kind: kind, Op: op, Entry: e, Cause: cause}
}
