package registry

import (
	"errors"
	"strings"
)

var ErrEmptyID = errors.New("subject and watcher ids are required")

// Entry says that WatcherID wants to hear about presence changes of SubjectID.
//
// Both ids are opaque platform identifiers. An entry has no identity beyond
// the pair and is never mutated.
type Entry struct {
	SubjectID string `json:"subject_id"`
	WatcherID string `json:"watcher_id"`
}

// Key is a stable string form of the pair.
func (e Entry) Key() string { return e.SubjectID + "/" + e.WatcherID }

func (e Entry) validate() error {
	if strings.TrimSpace(e.SubjectID) == "" || strings.TrimSpace(e.WatcherID) == "" {
		return ErrEmptyID
	}
	return nil
}
