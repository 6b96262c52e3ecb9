package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/mocks"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/observability/statsd"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/testutil"
)

type staticCatalog map[string]bool

func (c staticCatalog) Has(name string) bool { return c[name] }

func newTestDispatcher(
	t *testing.T,
	store core.GenerationResultRepository,
	pub core.EventPublisher,
	lock core.DispatchLock,
) *DispatcherService {
	t.Helper()
	svc, err := NewDispatcherService(DispatcherServiceOptions{
		Results:   store,
		Publisher: pub,
		Lock:      lock,
		Catalog:   staticCatalog{"generate-text": true},
		Config:    config.DispatchConfig{LockTTL: 5 * time.Second, LockWait: 2 * time.Second},
	})
	require.NoError(t, err)
	return svc
}

func textRequest(objectID string) model.DispatchRequest {
	return model.DispatchRequest{
		EventName:  "generate-text",
		ObjectType: "character",
		ObjectID:   objectID,
		ObjectKey:  "backstory",
		Data:       json.RawMessage(`{"name":"Ayla"}`),
	}
}

func TestNewDispatcherService_RequiresDependencies(t *testing.T) {
	_, err := NewDispatcherService(DispatcherServiceOptions{Publisher: &testutil.MemPublisher{}})
	require.Error(t, err)

	_, err = NewDispatcherService(DispatcherServiceOptions{Results: testutil.NewMemResultStore()})
	require.Error(t, err)
}

func TestDispatcherService_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending result and publishes start event", func(t *testing.T) {
		store := testutil.NewMemResultStore()
		pub := &testutil.MemPublisher{}
		sink := &statsd.MemorySink{}
		svc, err := NewDispatcherService(DispatcherServiceOptions{
			Results:   store,
			Publisher: pub,
			Metrics:   sink,
			NewID:     func() string { return "fixed-id" },
		})
		require.NoError(t, err)

		out, err := svc.Dispatch(ctx, textRequest("c1"))
		require.NoError(t, err)
		assert.False(t, out.Reused)
		assert.Equal(t, "fixed-id", out.Result.ID)
		assert.Equal(t, model.GenerationStatusPending, out.Result.Status)

		events := pub.Events()
		require.Len(t, events, 1)
		assert.Equal(t, "fixed-id", events[0].ID)
		assert.Equal(t, "generate-text", events[0].EventName)
		assert.Equal(t, model.Target{ObjectType: "character", ObjectID: "c1", ObjectKey: "backstory"}, events[0].Target())
		assert.JSONEq(t, `{"name":"Ayla"}`, string(events[0].Data))

		dispatched := sink.Named("generation.dispatch")
		require.Len(t, dispatched, 1)
		assert.Equal(t, "created", dispatched[0].Tags["result"])
	})

	t.Run("rejects invalid request", func(t *testing.T) {
		svc := newTestDispatcher(t, testutil.NewMemResultStore(), &testutil.MemPublisher{}, nil)
		req := textRequest("")
		_, err := svc.Dispatch(ctx, req)
		require.ErrorIs(t, err, model.ErrInvalidDispatchRequest)
	})

	t.Run("rejects unknown event name", func(t *testing.T) {
		svc := newTestDispatcher(t, testutil.NewMemResultStore(), &testutil.MemPublisher{}, nil)
		req := textRequest("c1")
		req.EventName = "generate-hologram"
		_, err := svc.Dispatch(ctx, req)
		require.ErrorIs(t, err, model.ErrUnknownEvent)
	})

	t.Run("reuses pending result", func(t *testing.T) {
		store := testutil.NewMemResultStore()
		pub := &testutil.MemPublisher{}
		svc := newTestDispatcher(t, store, pub, nil)

		first, err := svc.Dispatch(ctx, textRequest("c1"))
		require.NoError(t, err)
		second, err := svc.Dispatch(ctx, textRequest("c1"))
		require.NoError(t, err)

		assert.True(t, second.Reused)
		assert.Equal(t, first.Result.ID, second.Result.ID)
		assert.Len(t, pub.Events(), 1)
	})

	t.Run("reuses completed result unless forced", func(t *testing.T) {
		store := testutil.NewMemResultStore()
		pub := &testutil.MemPublisher{}
		svc := newTestDispatcher(t, store, pub, nil)

		first, err := svc.Dispatch(ctx, textRequest("c1"))
		require.NoError(t, err)
		_, err = store.Complete(ctx, first.Result.ID, json.RawMessage(`{"text":"once upon a time"}`))
		require.NoError(t, err)

		again, err := svc.Dispatch(ctx, textRequest("c1"))
		require.NoError(t, err)
		assert.True(t, again.Reused)
		assert.Equal(t, first.Result.ID, again.Result.ID)
		assert.Equal(t, model.GenerationStatusCompleted, again.Result.Status)

		forced := textRequest("c1")
		forced.Force = true
		fresh, err := svc.Dispatch(ctx, forced)
		require.NoError(t, err)
		assert.False(t, fresh.Reused)
		assert.NotEqual(t, first.Result.ID, fresh.Result.ID)
		assert.Len(t, pub.Events(), 2)
	})

	t.Run("force still reuses pending result", func(t *testing.T) {
		store := testutil.NewMemResultStore()
		pub := &testutil.MemPublisher{}
		svc := newTestDispatcher(t, store, pub, nil)

		first, err := svc.Dispatch(ctx, textRequest("c1"))
		require.NoError(t, err)

		forced := textRequest("c1")
		forced.Force = true
		again, err := svc.Dispatch(ctx, forced)
		require.NoError(t, err)
		assert.True(t, again.Reused)
		assert.Equal(t, first.Result.ID, again.Result.ID)
	})

	t.Run("publish failure leaves orphaned pending row", func(t *testing.T) {
		store := testutil.NewMemResultStore()
		pub := &testutil.MemPublisher{Err: errors.New("queue down")}
		svc := newTestDispatcher(t, store, pub, nil)

		_, err := svc.Dispatch(ctx, textRequest("c1"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue down")

		rows := store.All()
		require.Len(t, rows, 1)
		assert.Equal(t, model.GenerationStatusPending, rows[0].Status)

		// Later dispatches see the orphan rather than creating a second pending row.
		pub.Err = nil
		out, err := svc.Dispatch(ctx, textRequest("c1"))
		require.NoError(t, err)
		assert.True(t, out.Reused)
		assert.Equal(t, rows[0].ID, out.Result.ID)
	})
}

func TestDispatcherService_ConcurrentDispatchConverges(t *testing.T) {
	for _, tc := range []struct {
		name  string
		lock  core.DispatchLock
	}{
		{name: "database only"},
		{name: "with dispatch lock", lock: testutil.NewMemDispatchLock()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := testutil.NewMemResultStore()
			pub := &testutil.MemPublisher{}
			svc := newTestDispatcher(t, store, pub, tc.lock)

			const n = 20
			ids := make([]string, n)
			errs := make([]error, n)
			var wg sync.WaitGroup
			for i := range n {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					out, err := svc.Dispatch(context.Background(), textRequest("shared"))
					errs[i] = err
					if err == nil {
						ids[i] = out.Result.ID
					}
				}(i)
			}
			wg.Wait()

			for i := range n {
				require.NoError(t, errs[i])
				assert.Equal(t, ids[0], ids[i])
			}
			assert.Len(t, pub.Events(), 1)
			assert.Len(t, store.All(), 1)
		})
	}
}

func TestDispatcherService_CreateConflictRereadsPending(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockGenerationResultRepository(ctrl)
	pub := mocks.NewMockEventPublisher(ctrl)

	target := model.Target{ObjectType: "character", ObjectID: "c1", ObjectKey: "backstory"}
	winner := &model.GenerationResult{ID: "winner", EventName: "generate-text", Status: model.GenerationStatusPending}

	gomock.InOrder(
		repo.EXPECT().
			FindByTarget(gomock.Any(), core.FindByTargetParams{Target: target, Status: model.GenerationStatusCompleted}).
			Return(nil, model.ErrResultNotFound),
		repo.EXPECT().
			FindByTarget(gomock.Any(), core.FindByTargetParams{Target: target, Status: model.GenerationStatusPending}).
			Return(nil, model.ErrResultNotFound),
		repo.EXPECT().CreatePending(gomock.Any(), gomock.Any()).Return(nil, model.ErrPendingTargetExists),
		repo.EXPECT().
			FindByTarget(gomock.Any(), core.FindByTargetParams{Target: target, Status: model.GenerationStatusCompleted}).
			Return(nil, model.ErrResultNotFound),
		repo.EXPECT().
			FindByTarget(gomock.Any(), core.FindByTargetParams{Target: target, Status: model.GenerationStatusPending}).
			Return(winner, nil),
	)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	svc := newTestDispatcher(t, repo, pub, nil)
	out, err := svc.Dispatch(context.Background(), textRequest("c1"))
	require.NoError(t, err)
	assert.True(t, out.Reused)
	assert.Equal(t, "winner", out.Result.ID)
}

func TestDispatcherService_LockHeldWaitsForPendingRow(t *testing.T) {
	ctrl := gomock.NewController(t)
	lock := mocks.NewMockDispatchLock(ctrl)
	repo := mocks.NewMockGenerationResultRepository(ctrl)
	pub := mocks.NewMockEventPublisher(ctrl)

	pending := &model.GenerationResult{ID: "other", Status: model.GenerationStatusPending}

	lock.EXPECT().
		TryLock(gomock.Any(), model.Target{ObjectType: "character", ObjectID: "c1", ObjectKey: "backstory"}, gomock.Any(), 5*time.Second).
		Return(false, nil)
	repo.EXPECT().FindByTarget(gomock.Any(), gomock.Any()).Return(pending, nil)

	svc := newTestDispatcher(t, repo, pub, lock)
	out, err := svc.Dispatch(context.Background(), textRequest("c1"))
	require.NoError(t, err)
	assert.True(t, out.Reused)
	assert.Equal(t, "other", out.Result.ID)
}

func TestDispatcherService_LockErrorFallsBackToDatabase(t *testing.T) {
	ctrl := gomock.NewController(t)
	lock := mocks.NewMockDispatchLock(ctrl)
	lock.EXPECT().TryLock(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(false, errors.New("redis unavailable"))
	lock.EXPECT().Unlock(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)

	store := testutil.NewMemResultStore()
	pub := &testutil.MemPublisher{}
	svc := newTestDispatcher(t, store, pub, lock)

	out, err := svc.Dispatch(context.Background(), textRequest("c1"))
	require.NoError(t, err)
	assert.False(t, out.Reused)
	assert.Len(t, pub.Events(), 1)
}
