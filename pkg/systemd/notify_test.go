package systemd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "botmon/pkg/logx"
)

func TestNotifierStates(t *testing.T) {
	var got []string
	n := New(logx.Nop())
	n.notify = func(_ bool, state string) (bool, error) {
		got = append(got, state)
		return true, nil
	}

	n.Ready()
	n.Status("watching 3 bots")
	n.Stopping()

	want := []string{daemon.SdNotifyReady, "STATUS=watching 3 bots", daemon.SdNotifyStopping}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("state %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNotifierErrorIsSwallowed(t *testing.T) {
	n := New(logx.Nop())
	n.notify = func(bool, string) (bool, error) { return false, errors.New("socket gone") }
	n.Ready()
}

func TestWatchdogPingsWithoutGate(t *testing.T) {
	pings := make(chan string, 8)
	n := New(logx.Nop())
	n.watchdog = func(bool) (time.Duration, error) { return 20 * time.Millisecond, nil }
	n.notify = func(_ bool, state string) (bool, error) {
		select {
		case pings <- state:
		default:
		}
		return true, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Watchdog(ctx, nil) }()

	for range 2 {
		select {
		case got := <-pings:
			if got != daemon.SdNotifyWatchdog {
				t.Fatalf("got %q, want %q", got, daemon.SdNotifyWatchdog)
			}
		case <-time.After(time.Second):
			t.Fatal("no watchdog ping")
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watchdog: %v", err)
	}
}

func TestWatchdogDisabledReturnsAtOnce(t *testing.T) {
	n := New(logx.Nop())
	n.watchdog = func(bool) (time.Duration, error) { return 0, nil }
	n.notify = func(bool, string) (bool, error) {
		t.Fatal("unexpected notify")
		return false, nil
	}
	if err := n.Watchdog(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}
