package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"botmon/internal/observability/metrics"
	"botmon/internal/registry"
	"botmon/internal/registry/mocks"
	logx "botmon/pkg/logx"
)

var errBackend = errors.New("connection reset by peer")

func newService(t *testing.T) (*registry.Service, *mocks.MockStore, *metrics.Metrics) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	m := metrics.New()
	return registry.NewService(store, logx.Nop(), m), store, m
}

func TestServiceAdd(t *testing.T) {
	ctx := context.Background()
	e := registry.Entry{SubjectID: "bot_42", WatcherID: "user_7"}

	t.Run("passes entry through", func(t *testing.T) {
		svc, store, m := newService(t)
		store.EXPECT().Add(gomock.Any(), e).Return(nil)

		require.NoError(t, svc.Add(ctx, e))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryOps.WithLabelValues("add", "ok")))
	})

	t.Run("store failure maps to creation failed", func(t *testing.T) {
		svc, store, m := newService(t)
		store.EXPECT().Add(gomock.Any(), e).Return(errBackend)

		err := svc.Add(ctx, e)
		require.ErrorIs(t, err, registry.ErrCreationFailed)
		assert.NotErrorIs(t, err, errBackend, "cause must not leak into the error chain")
		assert.Equal(t, errBackend, registry.Cause(err))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryOps.WithLabelValues("add", "error")))
	})

	t.Run("empty ids never reach the store", func(t *testing.T) {
		svc, _, _ := newService(t)

		err := svc.Add(ctx, registry.Entry{SubjectID: "bot_42"})
		require.ErrorIs(t, err, registry.ErrCreationFailed)
		assert.Equal(t, registry.ErrEmptyID, registry.Cause(err))
	})
}

func TestServiceRemove(t *testing.T) {
	ctx := context.Background()
	e := registry.Entry{SubjectID: "bot_42", WatcherID: "user_7"}

	svc, store, _ := newService(t)
	gomock.InOrder(
		store.EXPECT().Remove(gomock.Any(), e).Return(nil),
		store.EXPECT().Remove(gomock.Any(), e).Return(errBackend),
	)

	require.NoError(t, svc.Remove(ctx, e))
	err := svc.Remove(ctx, e)
	require.ErrorIs(t, err, registry.ErrRemoveFailed)

	var re *registry.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "remove", re.Op)
	assert.Equal(t, e, re.Entry)
}

func TestServiceFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("by subject", func(t *testing.T) {
		svc, store, _ := newService(t)
		want := []registry.Entry{{SubjectID: "bot_42", WatcherID: "user_7"}}
		store.EXPECT().FetchBySubject(gomock.Any(), "bot_42").Return(want, nil)
		store.EXPECT().FetchBySubject(gomock.Any(), "bot_99").Return(nil, errBackend)

		got, err := svc.FetchBySubject(ctx, "bot_42")
		require.NoError(t, err)
		assert.Equal(t, want, got)

		got, err = svc.FetchBySubject(ctx, "bot_99")
		require.ErrorIs(t, err, registry.ErrFetchFailed)
		assert.Nil(t, got)
	})

	t.Run("by watcher", func(t *testing.T) {
		svc, store, _ := newService(t)
		store.EXPECT().FetchByWatcher(gomock.Any(), "user_7").Return([]registry.Entry{}, nil)
		store.EXPECT().FetchByWatcher(gomock.Any(), "user_8").Return(nil, errBackend)

		got, err := svc.FetchByWatcher(ctx, "user_7")
		require.NoError(t, err)
		assert.Empty(t, got)

		_, err = svc.FetchByWatcher(ctx, "user_8")
		require.ErrorIs(t, err, registry.ErrFetchFailed)
		assert.NotErrorIs(t, err, registry.ErrCreationFailed)
	})
}

func TestServicePingWithoutPinger(t *testing.T) {
	svc, _, _ := newService(t)
	assert.NoError(t, svc.Ping(context.Background()))

	compacted, err := svc.Compact(context.Background())
	assert.NoError(t, err)
	assert.False(t, compacted)
}

func TestErrorString(t *testing.T) {
	err := &registry.Error{Kind: registry.ErrFetchFailed, Op: "fetch_by_subject", Cause: errBackend}
	assert.Equal(t, "fetch_by_subject: registry entry fetch failed: connection reset by peer", err.Error())
}
