package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/buidl-renaissance/collector-quest-sub003/config"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/mocks"
)

func TestNewRunner_RequiresStore(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
}

func TestRunner_RunSweepsOnStartAndStops(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockSweepRepository(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := core.SweepParams{MaxAge: time.Hour, BatchSize: 100}
	gomock.InOrder(
		repo.EXPECT().DeleteExpiredResults(gomock.Any(), params).Return(int64(3), nil),
		repo.EXPECT().DeleteExpiredResults(gomock.Any(), params).Return(int64(0), nil),
		repo.EXPECT().DeleteFinishedEvents(gomock.Any(), params).
			DoAndReturn(func(context.Context, core.SweepParams) (int64, error) {
				cancel()
				return 0, nil
			}),
	)

	r, err := NewRunner(RunnerOptions{
		Repo: repo,
		Config: config.SweeperConfig{
			Schedule:   "@every 1h",
			Retention:  time.Hour,
			BatchSize:  100,
			RunOnStart: true,
		},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper runner did not stop")
	}
	assert.False(t, r.Service().Running())
}
