package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"botmon/internal/registry"
	logx "botmon/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot, JSON array of entries)
//   - <prefix>.journal.jsonl (append-only journal of add/remove ops)
//
// The full index lives in memory; the journal is replayed on open and
// compacted into the snapshot every CompactEvery writes or on Compact.
type fileStore struct {
	log logx.Logger

	mu sync.RWMutex
	ix index

	snapshotPath string
	journal      *os.File

	writes       int
	compactEvery int
}

type journalRecord struct {
	Op        string `json:"op"`
	SubjectID string `json:"subject_id"`
	WatcherID string `json:"watcher_id"`
	At        int64  `json:"at"`
}

const (
	opAdd    = "add"
	opRemove = "remove"
)

func openFile(cfg Config, log logx.Logger) (*fileStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	ix := newIndex()
	if err := loadSnapshot(snapPath, ix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	replayed, end, err := replayJournal(journalPath, ix)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	// Drop a torn tail so the next append starts on its own line.
	if fi, err := jf.Stat(); err == nil && fi.Size() > end {
		log.Warn("truncating torn journal tail", logx.Int64("from", fi.Size()), logx.Int64("to", end))
		if err := jf.Truncate(end); err != nil {
			_ = jf.Close()
			return nil, err
		}
	}

	every := cfg.CompactEvery
	if every <= 0 {
		every = 500
	}
	log.Debug("file store loaded",
		logx.String("prefix", prefix),
		logx.Int("entries", ix.len()),
		logx.Int("journal_records", replayed),
	)
	return &fileStore{
		log:          log,
		ix:           ix,
		snapshotPath: snapPath,
		journal:      jf,
		writes:       replayed,
		compactEvery: every,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) Add(ctx context.Context, e registry.Entry) error {
	return s.write(ctx, opAdd, e)
}

func (s *fileStore) Remove(ctx context.Context, e registry.Entry) error {
	return s.write(ctx, opRemove, e)
}

func (s *fileStore) write(_ context.Context, op string, e registry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}

	rec := journalRecord{Op: op, SubjectID: e.SubjectID, WatcherID: e.WatcherID, At: time.Now().UnixMilli()}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	fi, err := s.journal.Stat()
	if err != nil {
		return err
	}
	if _, err := s.journal.Write(append(line, '\n')); err != nil {
		// Roll back a partial append; it would otherwise merge with the next record.
		if terr := s.journal.Truncate(fi.Size()); terr != nil {
			return errors.Join(err, terr)
		}
		return err
	}
	// Journal first, then memory, so a failed append leaves no phantom entry.
	switch op {
	case opAdd:
		s.ix.add(e)
	case opRemove:
		s.ix.remove(e)
	}

	s.writes++
	if s.writes >= s.compactEvery {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) FetchBySubject(_ context.Context, subjectID string) ([]registry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return s.ix.subject(subjectID), nil
}

func (s *fileStore) FetchByWatcher(_ context.Context, watcherID string) ([]registry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return s.ix.watcher(watcherID), nil
}

// Compact writes a fresh snapshot and truncates the journal.
func (s *fileStore) Compact(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	return s.compactLocked()
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.ix.all()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	if _, err := s.journal.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	s.log.Debug("journal compacted", logx.Int("entries", s.ix.len()), logx.Int("writes", s.writes))
	s.writes = 0
	return nil
}

func loadSnapshot(path string, ix index) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var es []registry.Entry
	if err := json.NewDecoder(f).Decode(&es); err != nil {
		return err
	}
	for _, e := range es {
		ix.add(e)
	}
	return nil
}

// replayJournal applies journal records in order and returns the offset just
// past the last complete line. Unknown lines are skipped and a line without a
// trailing newline is a torn append, so neither blocks startup.
func replayJournal(path string, ix index) (int, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	var (
		n   int
		end int64
	)
	rd := bufio.NewReader(f)
	for {
		line, err := rd.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, end, nil
			}
			return n, end, err
		}
		end += int64(len(line))

		var r journalRecord
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		if r.SubjectID == "" || r.WatcherID == "" {
			continue
		}
		e := registry.Entry{SubjectID: r.SubjectID, WatcherID: r.WatcherID}
		switch r.Op {
		case opAdd:
			ix.add(e)
		case opRemove:
			ix.remove(e)
		default:
			continue
		}
		n++
	}
}
