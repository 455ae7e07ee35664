package monitor

import (
	"context"

	"botmon/internal/presence"
)

//go:generate mockgen -source=dispatcher.go -destination=mocks/dispatcher_mock.go -package=mocks

// Notice is one (watcher, subject, class) delivery request.
type Notice struct {
	WatcherID string
	SubjectID string
	Class     presence.Class
	SignalID  string
}

// Dispatcher delivers a notice to its watcher. An error means this one watcher
// was not reached; the orchestrator logs it and moves on.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notice) error
}
