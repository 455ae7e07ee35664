package commands_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"botmon/internal/commands"
	"botmon/internal/observability/metrics"
	"botmon/internal/registry"
	"botmon/internal/registry/mocks"
	"botmon/internal/transport"
	logx "botmon/pkg/logx"
)

type recorder struct {
	mu      sync.Mutex
	replies []string
	eph     []bool
}

func (r *recorder) Respond(_ context.Context, text string, ephemeral bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, text)
	r.eph = append(r.eph, ephemeral)
	return nil
}

type directory map[string]transport.User

func (d directory) LookupUser(_ context.Context, id string) (transport.User, error) {
	u, ok := d[id]
	if !ok {
		return transport.User{}, errors.New("not found")
	}
	return u, nil
}

var (
	invoker = transport.User{ID: "U1", Name: "alice"}
	uptime  = transport.User{ID: "B1", Name: "Uptime", Bot: true}
	human   = transport.User{ID: "U2", Name: "bob"}
)

func setup(t *testing.T, dir transport.Directory) (*commands.Handler, *mocks.MockStore, *metrics.Metrics) {
	t.Helper()
	store := mocks.NewMockStore(gomock.NewController(t))
	m := metrics.New()
	svc := registry.NewService(store, logx.Nop(), m)
	return commands.New(commands.Config{}, svc, dir, logx.Nop(), m), store, m
}

func invoke(t *testing.T, h *commands.Handler, name string, opts map[string]transport.User) (*recorder, error) {
	t.Helper()
	rec := &recorder{}
	err := h.Handle(context.Background(), &transport.Command{Name: name, Invoker: invoker, Users: opts, Reply: rec})
	return rec, err
}

func TestAdd(t *testing.T) {
	t.Run("registers the bot for the invoker", func(t *testing.T) {
		h, store, m := setup(t, nil)
		store.EXPECT().Add(gomock.Any(), registry.Entry{SubjectID: "B1", WatcherID: "U1"}).Return(nil)

		rec, err := invoke(t, h, commands.CmdAdd, map[string]transport.User{commands.OptBot: uptime})
		require.NoError(t, err)
		assert.Equal(t, []string{"Added Uptime to the register. I will now DM you when it goes offline and when it comes online."}, rec.replies)
		assert.Equal(t, []bool{true}, rec.eph)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("add", "ok")))
	})

	t.Run("refuses humans without touching the store", func(t *testing.T) {
		h, _, _ := setup(t, nil)
		rec, err := invoke(t, h, commands.CmdAdd, map[string]transport.User{commands.OptBot: human})
		require.NoError(t, err)
		assert.Equal(t, []string{"This is to track bots not to spy on people"}, rec.replies)
	})

	t.Run("store failure gets the generic reply", func(t *testing.T) {
		h, store, m := setup(t, nil)
		store.EXPECT().Add(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

		rec, err := invoke(t, h, commands.CmdAdd, map[string]transport.User{commands.OptBot: uptime})
		require.ErrorIs(t, err, registry.ErrCreationFailed)
		assert.Equal(t, []string{"Failed to add bot to register"}, rec.replies)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("add", "error")))
	})

	t.Run("missing option", func(t *testing.T) {
		h, _, _ := setup(t, nil)
		rec, err := invoke(t, h, commands.CmdAdd, nil)
		require.ErrorIs(t, err, commands.ErrMissingOption)
		assert.Equal(t, []string{"Failed to add bot to register"}, rec.replies)
	})
}

func TestRemove(t *testing.T) {
	h, store, _ := setup(t, nil)
	e := registry.Entry{SubjectID: "B1", WatcherID: "U1"}
	gomock.InOrder(
		store.EXPECT().Remove(gomock.Any(), e).Return(nil),
		store.EXPECT().Remove(gomock.Any(), e).Return(errors.New("timeout")),
	)

	rec, err := invoke(t, h, commands.CmdRemove, map[string]transport.User{commands.OptBot: uptime})
	require.NoError(t, err)
	assert.Equal(t, []string{"I have removed Uptime from the register. I will no longer DM you when the bot goes offline or comes online"}, rec.replies)

	rec, err = invoke(t, h, commands.CmdRemove, map[string]transport.User{commands.OptBot: uptime})
	require.ErrorIs(t, err, registry.ErrRemoveFailed)
	assert.Equal(t, []string{"Failed to remove bot from the register"}, rec.replies)
}

func TestList(t *testing.T) {
	dir := directory{"B1": uptime}

	t.Run("empty", func(t *testing.T) {
		h, store, _ := setup(t, dir)
		store.EXPECT().FetchByWatcher(gomock.Any(), "U1").Return(nil, nil)
		rec, err := invoke(t, h, commands.CmdList, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"You have no current warnings set up"}, rec.replies)
	})

	t.Run("names with mention fallback", func(t *testing.T) {
		h, store, _ := setup(t, dir)
		store.EXPECT().FetchByWatcher(gomock.Any(), "U1").Return([]registry.Entry{
			{SubjectID: "B1", WatcherID: "U1"},
			{SubjectID: "B9", WatcherID: "U1"},
		}, nil)
		rec, err := invoke(t, h, commands.CmdList, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"Current Warnings:\nUptime: <@B1>\n<@B9>"}, rec.replies)
	})

	t.Run("failure", func(t *testing.T) {
		h, store, _ := setup(t, dir)
		store.EXPECT().FetchByWatcher(gomock.Any(), "U1").Return(nil, errors.New("boom"))
		rec, err := invoke(t, h, commands.CmdList, nil)
		require.ErrorIs(t, err, registry.ErrFetchFailed)
		assert.Equal(t, []string{"Failed to list your entries :("}, rec.replies)
	})
}

func TestHelpAndRouting(t *testing.T) {
	h, _, _ := setup(t, nil)

	rec, err := invoke(t, h, commands.CmdHelp, nil)
	require.NoError(t, err)
	require.Len(t, rec.replies, 1)
	assert.Contains(t, rec.replies[0], "I am Monitor Bot")

	_, err = invoke(t, h, "nope", nil)
	assert.ErrorIs(t, err, commands.ErrUnknownCommand)
}

func TestBotInvokerIgnored(t *testing.T) {
	h, _, m := setup(t, nil)
	rec := &recorder{}
	err := h.Handle(context.Background(), &transport.Command{Name: commands.CmdList, Invoker: uptime, Reply: rec})
	require.NoError(t, err)
	assert.Empty(t, rec.replies)
	assert.Equal(t, 0, testutil.CollectAndCount(m.Commands))
}

func TestPanicRecovered(t *testing.T) {
	h, store, _ := setup(t, nil)
	store.EXPECT().FetchByWatcher(gomock.Any(), "U1").DoAndReturn(func(context.Context, string) ([]registry.Entry, error) {
		panic("store exploded")
	})
	_, err := invoke(t, h, commands.CmdList, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: store exploded")
}

func TestSpecs(t *testing.T) {
	specs := commands.Specs()
	require.Len(t, specs, 4)
	for _, s := range specs {
		assert.Equal(t, s.Name != commands.CmdHelp, s.AdminOnly, s.Name)
	}
	assert.Equal(t, "bot", specs[0].Users[0].Name)
	assert.True(t, specs[0].Users[0].Required)
}
