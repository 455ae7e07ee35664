package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botmon/internal/eventbus"
	"botmon/internal/monitor"
	"botmon/internal/observability/metrics"
	"botmon/internal/presence"
	"botmon/internal/transport"
	logx "botmon/pkg/logx"
)

type fakePlatform struct {
	mu      sync.Mutex
	users   map[string]transport.User
	sent    map[string][]string
	sendErr error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{users: map[string]transport.User{}, sent: map[string][]string{}}
}

func (f *fakePlatform) LookupUser(_ context.Context, id string) (transport.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return transport.User{}, errors.New("unknown user")
	}
	return u, nil
}

func (f *fakePlatform) SendDirect(_ context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent[userID] = append(f.sent[userID], text)
	return nil
}

func TestRender(t *testing.T) {
	tests := []struct {
		name  string
		class presence.Class
		sname string
		want  string
		ok    bool
	}{
		{"offline", presence.WentOffline, "Uptime", "Hello, <@U1> Your bot named 'Uptime': <@B1> has gone offline!", true},
		{"online", presence.CameOnline, "Uptime", "Hurray! <@U1>, your bot 'Uptime': <@B1> is back online!", true},
		{"missing name", presence.WentOffline, "", "Hello, <@U1> Your bot named 'Placeholder Name': <@B1> has gone offline!", true},
		{"irrelevant", presence.Irrelevant, "Uptime", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Render(tt.class, "U1", "B1", tt.sname)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDispatchSendsOnce(t *testing.T) {
	p := newFakePlatform()
	p.users["B1"] = transport.User{ID: "B1", Name: "Uptime", Bot: true}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	m := metrics.New()

	s := New(Config{RatePerSec: 100}, p, p, logx.Nop(), bus, m)
	err := s.Dispatch(context.Background(), monitor.Notice{WatcherID: "U1", SubjectID: "B1", Class: presence.WentOffline, SignalID: "sig-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hello, <@U1> Your bot named 'Uptime': <@B1> has gone offline!"}, p.sent["U1"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("ok")))

	select {
	case ev := <-events:
		assert.Equal(t, eventbus.TypeNotifySent, ev.Type)
		assert.Equal(t, "sig-1", ev.Data.(Event).SignalID)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	h := s.History()
	require.Len(t, h, 1)
	assert.True(t, h[0].OK)
}

func TestDispatchFailureIsNotRetried(t *testing.T) {
	p := newFakePlatform()
	p.sendErr = errors.New("cannot send messages to this user")
	m := metrics.New()
	s := New(Config{RatePerSec: 100}, p, p, logx.Nop(), nil, m)

	err := s.Dispatch(context.Background(), monitor.Notice{WatcherID: "U1", SubjectID: "B1", Class: presence.CameOnline})
	require.Error(t, err)
	assert.ErrorIs(t, err, p.sendErr)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues("error")))
	assert.Empty(t, p.sent)

	h := s.History()
	require.Len(t, h, 1)
	assert.False(t, h[0].OK)
}

func TestDispatchIrrelevant(t *testing.T) {
	p := newFakePlatform()
	s := New(Config{}, p, p, logx.Nop(), nil, nil)
	err := s.Dispatch(context.Background(), monitor.Notice{WatcherID: "U1", SubjectID: "B1", Class: presence.Irrelevant})
	assert.ErrorIs(t, err, ErrNoMessage)
	assert.Empty(t, s.History())
}

func TestHistoryBounded(t *testing.T) {
	p := newFakePlatform()
	s := New(Config{RatePerSec: 1000, HistorySize: 3}, p, nil, logx.Nop(), nil, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Dispatch(context.Background(), monitor.Notice{WatcherID: "U1", SubjectID: "B1", Class: presence.CameOnline}))
	}
	assert.Len(t, s.History(), 3)
	assert.Len(t, p.sent["U1"], 5)
	assert.Contains(t, p.sent["U1"][0], "'Placeholder Name'")
}
