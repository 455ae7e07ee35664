package storage

import (
	"sort"

	"botmon/internal/registry"
)

// index keeps entries keyed by subject plus a secondary index by watcher.
// Callers provide locking.
type index struct {
	bySubject map[string]map[string]struct{}
	byWatcher map[string]map[string]struct{}
}

func newIndex() index {
	return index{
		bySubject: map[string]map[string]struct{}{},
		byWatcher: map[string]map[string]struct{}{},
	}
}

func (ix index) add(e registry.Entry) {
	link(ix.bySubject, e.SubjectID, e.WatcherID)
	link(ix.byWatcher, e.WatcherID, e.SubjectID)
}

func (ix index) remove(e registry.Entry) {
	unlink(ix.bySubject, e.SubjectID, e.WatcherID)
	unlink(ix.byWatcher, e.WatcherID, e.SubjectID)
}

func (ix index) subject(subjectID string) []registry.Entry {
	ws := ix.bySubject[subjectID]
	out := make([]registry.Entry, 0, len(ws))
	for w := range ws {
		out = append(out, registry.Entry{SubjectID: subjectID, WatcherID: w})
	}
	sortEntries(out)
	return out
}

func (ix index) watcher(watcherID string) []registry.Entry {
	ss := ix.byWatcher[watcherID]
	out := make([]registry.Entry, 0, len(ss))
	for s := range ss {
		out = append(out, registry.Entry{SubjectID: s, WatcherID: watcherID})
	}
	sortEntries(out)
	return out
}

func (ix index) all() []registry.Entry {
	out := make([]registry.Entry, 0, len(ix.bySubject))
	for s, ws := range ix.bySubject {
		for w := range ws {
			out = append(out, registry.Entry{SubjectID: s, WatcherID: w})
		}
	}
	sortEntries(out)
	return out
}

func (ix index) len() int {
	n := 0
	for _, ws := range ix.bySubject {
		n += len(ws)
	}
	return n
}

func link(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		set = map[string]struct{}{}
		m[k] = set
	}
	set[v] = struct{}{}
}

func unlink(m map[string]map[string]struct{}, k, v string) {
	set, ok := m[k]
	if !ok {
		return
	}
	delete(set, v)
	if len(set) == 0 {
		delete(m, k)
	}
}

func sortEntries(es []registry.Entry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].SubjectID != es[j].SubjectID {
			return es[i].SubjectID < es[j].SubjectID
		}
		return es[i].WatcherID < es[j].WatcherID
	})
}
