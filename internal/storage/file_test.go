package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"botmon/internal/registry"
	logx "botmon/pkg/logx"
)

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "register.db")

	st, err := openFile(Config{Path: path, CompactEvery: 3}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, e := range []registry.Entry{
		{SubjectID: "bot_1", WatcherID: "u1"},
		{SubjectID: "bot_2", WatcherID: "u1"},
		{SubjectID: "bot_3", WatcherID: "u2"},
		{SubjectID: "bot_4", WatcherID: "u2"},
	} {
		if err := st.Add(ctx, e); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	// The fourth write lands in a fresh journal after compaction.
	if err := st.Remove(ctx, registry.Entry{SubjectID: "bot_2", WatcherID: "u1"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(path), "register.snapshot.json")); err != nil {
		t.Fatalf("expected snapshot after compaction: %v", err)
	}

	st2, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	got, err := st2.FetchByWatcher(ctx, "u1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].SubjectID != "bot_1" {
		t.Fatalf("unexpected entries after reopen: %+v", got)
	}
	got, err = st2.FetchByWatcher(ctx, "u2")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for u2, got %+v", got)
	}
}

func TestFileStoreSkipsTornJournalLine(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "register.journal.jsonl")
	data := `{"op":"add","subject_id":"bot_1","watcher_id":"u1","at":1}
{"op":"add","subject_id":"bot_2","watch`
	if err := os.WriteFile(journal, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	st, err := openFile(Config{Path: filepath.Join(dir, "register.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	got, _ := st.FetchBySubject(context.Background(), "bot_1")
	if len(got) != 1 {
		t.Fatalf("expected replayed entry, got %+v", got)
	}
}

func TestFileStoreCompact(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "register.db")
	st, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	if err := st.Add(ctx, registry.Entry{SubjectID: "bot_1", WatcherID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if err := st.Compact(ctx); err != nil {
		t.Fatalf("compact: %v", err)
	}
	fi, err := os.Stat(filepath.Join(filepath.Dir(path), "register.journal.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 0 {
		t.Fatalf("journal should be empty after compaction, size=%d", fi.Size())
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	m := NewMemory()
	_ = m.Close()
	if err := m.Add(context.Background(), registry.Entry{SubjectID: "a", WatcherID: "b"}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestFileStoreAppendAfterTornLineSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "register.db")
	journal := filepath.Join(dir, "register.journal.jsonl")
	data := `{"op":"add","subject_id":"bot_1","watcher_id":"u1","at":1}
{"op":"add","subject_id":"bot_1"`
	if err := os.WriteFile(journal, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	st, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Add(ctx, registry.Entry{SubjectID: "bot_42", WatcherID: "user_7"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(journal)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), `"bot_1"{`) {
		t.Fatalf("append merged with torn line: %q", raw)
	}

	st2, err := openFile(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	got, err := st2.FetchBySubject(ctx, "bot_42")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].WatcherID != "user_7" {
		t.Fatalf("acknowledged add lost after reopen: %+v", got)
	}
	if got, _ := st2.FetchBySubject(ctx, "bot_1"); len(got) != 1 {
		t.Fatalf("expected earlier entry kept, got %+v", got)
	}
}
