package registry

import "context"

//go:generate mockgen -source=store.go -destination=mocks/store_mock.go -package=mocks

// Store is the durable home of registry entries.
//
// Implementations must be safe for concurrent use. Add is overwrite-idempotent
// and Remove of an absent pair succeeds. Fetch methods return an empty slice
// (not an error) when nothing matches; an error means the backend could not
// be read.
type Store interface {
	Add(ctx context.Context, e Entry) error
	Remove(ctx context.Context, e Entry) error
	FetchBySubject(ctx context.Context, subjectID string) ([]Entry, error)
	FetchByWatcher(ctx context.Context, watcherID string) ([]Entry, error)
	Close() error
}
