package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"botmon/internal/task/engine"
	logx "botmon/pkg/logx"
)

type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Berlin". Empty means local.
}

// Enqueuer is the part of the task engine the scheduler needs.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

type scheduleDef struct {
	name    string
	spec    string // cron expression or "@every <d>"
	every   time.Duration
	timeout time.Duration
	job     func(ctx context.Context) error
	entryID cron.EntryID
	busy    *atomic.Bool
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	engine Enqueuer

	parser cron.Parser
	c      *cron.Cron
	defs   map[string]*scheduleDef

	skipped atomic.Uint64
	failed  atomic.Uint64
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Skipped   uint64
	Failed    uint64
	Schedules []ScheduleInfo
}
