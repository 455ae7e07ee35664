package logx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
	got  chan struct{}
}

func (r *recordingSink) Send(_ context.Context, text string) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, text)
	r.mu.Unlock()
	select {
	case r.got <- struct{}{}:
	default:
	}
	return nil
}

func TestFormatOpsJSON(t *testing.T) {
	line := []byte(`{"level":"error","time":"x","message":"dispatch failed","watcher":"7","comp":"monitor"}` + "\n")
	got := formatOpsJSON(line)
	want := "[ERROR] dispatch failed\n- comp=monitor\n- watcher=7"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFormatOpsJSONNotJSON(t *testing.T) {
	if got := formatOpsJSON([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("got %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in, zerolog.InfoLevel); got != want {
			t.Fatalf("parseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestOpsSinkReceivesWarnings(t *testing.T) {
	sink := &recordingSink{got: make(chan struct{}, 4)}
	svc, log := New(Config{Level: "debug", Ops: OpsConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10}}, sink)
	defer svc.Close()

	log.Info("not forwarded")
	log.With(String("comp", "test")).Warn("forwarded", Int("n", 1))

	select {
	case <-sink.got:
	case <-time.After(2 * time.Second):
		t.Fatalf("ops sink did not receive a message")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.msgs) != 1 {
		t.Fatalf("expected 1 forwarded message, got %d: %v", len(sink.msgs), sink.msgs)
	}
	if !strings.HasPrefix(sink.msgs[0], "[WARN] forwarded") {
		t.Fatalf("unexpected message %q", sink.msgs[0])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Info("nothing happens")
	if Nop().IsZero() {
		t.Fatalf("Nop logger should not be zero")
	}
}

func TestOpsWriterGatesByLevel(t *testing.T) {
	sink := &recordingSink{got: make(chan struct{}, 4)}
	svc, _ := New(Config{Ops: OpsConfig{Enabled: true, MinLevel: "error", RatePerSec: 10}}, sink)
	defer svc.Close()

	w := &opsWriter{svc: svc}
	line := []byte(`{"level":"warn","message":"slow"}`)
	if _, err := w.WriteLevel(zerolog.WarnLevel, line); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(line); err != nil {
		t.Fatal(err)
	}
	if len(svc.queue) != 0 {
		t.Fatalf("below-threshold lines were queued: %d", len(svc.queue))
	}
}

func TestNewConsoleIsUsable(t *testing.T) {
	l := NewConsole("error")
	if l.IsZero() {
		t.Fatalf("console logger should not be zero")
	}
	l.With(String("comp", "test")).Debug("filtered out")
}
