package data

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/testutil"
)

func newPending(t *testing.T, repo *GenerationResultRepo, target model.Target) *model.GenerationResult {
	t.Helper()
	res, err := repo.CreatePending(context.Background(), model.CreatePendingParams{
		ID:        uuid.NewString(),
		EventName: "generate-text",
		Target:    target,
	})
	require.NoError(t, err)
	return res
}

func TestGenerationResultRepo_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := testutil.SetupTestDB(t)
	repo := NewGenerationResultRepo(db, GenerationResultRepoOptions{})
	ctx := context.Background()

	target := model.Target{ObjectType: "widget", ObjectID: "w1", ObjectKey: "desc"}

	t.Run("create pending", func(t *testing.T) {
		res := newPending(t, repo, target)
		assert.Equal(t, model.GenerationStatusPending, res.Status)
		assert.Equal(t, target, res.Target())
		assert.Nil(t, res.Result)
		assert.Nil(t, res.Error)
	})

	t.Run("second pending for same target is rejected", func(t *testing.T) {
		_, err := repo.CreatePending(ctx, model.CreatePendingParams{
			ID: uuid.NewString(), EventName: "generate-text", Target: target,
		})
		require.ErrorIs(t, err, model.ErrPendingTargetExists)
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		other := model.Target{ObjectType: "widget", ObjectID: "w2", ObjectKey: "desc"}
		res := newPending(t, repo, other)
		_, err := repo.CreatePending(ctx, model.CreatePendingParams{
			ID: res.ID, EventName: "generate-text",
			Target: model.Target{ObjectType: "widget", ObjectID: "w3", ObjectKey: "desc"},
		})
		require.ErrorIs(t, err, model.ErrResultExists)
	})

	t.Run("progress then complete", func(t *testing.T) {
		pending, err := repo.FindByTarget(ctx, core.FindByTargetParams{Target: target, Status: model.GenerationStatusPending})
		require.NoError(t, err)

		updated, err := repo.UpdateProgress(ctx, pending.ID, model.ProgressUpdate{
			Step: "prompt", Message: "prompt built", Payload: json.RawMessage(`{"partial":true}`),
		})
		require.NoError(t, err)
		require.NotNil(t, updated)
		require.NotNil(t, updated.Step)
		assert.Equal(t, "prompt", *updated.Step)
		assert.JSONEq(t, `{"partial":true}`, string(updated.Result))

		done, err := repo.Complete(ctx, pending.ID, json.RawMessage(`{"text":"hello"}`))
		require.NoError(t, err)
		require.NotNil(t, done)
		assert.Equal(t, model.GenerationStatusCompleted, done.Status)
		assert.JSONEq(t, `{"text":"hello"}`, string(done.Result))
		assert.Nil(t, done.Error)

		completed, err := repo.FindByTarget(ctx, core.FindByTargetParams{Target: target, Status: model.GenerationStatusCompleted})
		require.NoError(t, err)
		assert.Equal(t, pending.ID, completed.ID)
	})

	t.Run("terminal rows are immutable", func(t *testing.T) {
		completed, err := repo.FindByTarget(ctx, core.FindByTargetParams{Target: target, Status: model.GenerationStatusCompleted})
		require.NoError(t, err)

		res, err := repo.Fail(ctx, completed.ID, "late failure")
		require.NoError(t, err)
		assert.Nil(t, res)

		res, err = repo.UpdateProgress(ctx, completed.ID, model.ProgressUpdate{Step: "late"})
		require.NoError(t, err)
		assert.Nil(t, res)

		res, err = repo.RequestCancel(ctx, completed.ID)
		require.NoError(t, err)
		assert.Nil(t, res)

		got, err := repo.Get(ctx, completed.ID)
		require.NoError(t, err)
		assert.Equal(t, model.GenerationStatusCompleted, got.Status)
		assert.Nil(t, got.Error)
	})

	t.Run("fail clears partial result", func(t *testing.T) {
		res := newPending(t, repo, model.Target{ObjectType: "widget", ObjectID: "w4", ObjectKey: "img"})
		_, err := repo.UpdateProgress(ctx, res.ID, model.ProgressUpdate{Step: "generate", Payload: json.RawMessage(`{"url":"x"}`)})
		require.NoError(t, err)

		failed, err := repo.Fail(ctx, res.ID, "step fetch failed after 3 attempts: boom")
		require.NoError(t, err)
		require.NotNil(t, failed)
		assert.Equal(t, model.GenerationStatusError, failed.Status)
		assert.Nil(t, failed.Result)
		require.NotNil(t, failed.Error)
		assert.Contains(t, *failed.Error, "fetch")
	})

	t.Run("get unknown id", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.NewString())
		require.ErrorIs(t, err, model.ErrResultNotFound)
	})

	t.Run("mutations on unknown id return nil", func(t *testing.T) {
		res, err := repo.Complete(ctx, uuid.NewString(), json.RawMessage(`{}`))
		require.NoError(t, err)
		assert.Nil(t, res)
	})
}

func TestGenerationResultRepo_ConcurrentCreatePending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := testutil.SetupTestDB(t)
	repo := NewGenerationResultRepo(db, GenerationResultRepoOptions{})
	target := model.Target{ObjectType: "widget", ObjectID: "race", ObjectKey: "desc"}

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.CreatePending(context.Background(), model.CreatePendingParams{
				ID: uuid.NewString(), EventName: "generate-text", Target: target,
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, model.ErrPendingTargetExists)
	}
	assert.Equal(t, 1, created)
}

func TestSweepRepo_DeleteExpiredResults(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	clock := NewManualClock(testutil.TestTime())
	repo := NewGenerationResultRepo(db, GenerationResultRepoOptions{Clock: clock})
	sweeper := NewSweepRepo(db, clock)

	old := newPending(t, repo, model.Target{ObjectType: "widget", ObjectID: "old", ObjectKey: "desc"})
	_, err := repo.Complete(ctx, old.ID, json.RawMessage(`{"text":"x"}`))
	require.NoError(t, err)

	clock.Advance(90 * time.Minute)
	fresh := newPending(t, repo, model.Target{ObjectType: "widget", ObjectID: "fresh", ObjectKey: "desc"})

	t.Run("rejects invalid params", func(t *testing.T) {
		_, err := sweeper.DeleteExpiredResults(ctx, core.SweepParams{MaxAge: time.Hour})
		require.Error(t, err)
	})

	t.Run("deletes rows older than retention regardless of status", func(t *testing.T) {
		n, err := sweeper.DeleteExpiredResults(ctx, core.SweepParams{MaxAge: time.Hour, BatchSize: 100})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.Get(ctx, old.ID)
		require.ErrorIs(t, err, model.ErrResultNotFound)

		_, err = repo.Get(ctx, fresh.ID)
		require.NoError(t, err)
	})
}
