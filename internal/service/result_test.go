package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/mocks"
)

func TestResultService_RequestCancel(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		setup     func(repo *mocks.MockGenerationResultRepository)
		wantErr   error
		wantFlag  bool
		wantState model.GenerationStatus
	}{
		{
			name: "pending result is flagged",
			setup: func(repo *mocks.MockGenerationResultRepository) {
				repo.EXPECT().RequestCancel(gomock.Any(), "r1").Return(&model.GenerationResult{
					ID: "r1", Status: model.GenerationStatusPending, CancelRequested: true,
				}, nil)
			},
			wantFlag:  true,
			wantState: model.GenerationStatusPending,
		},
		{
			name: "terminal result is rejected",
			setup: func(repo *mocks.MockGenerationResultRepository) {
				repo.EXPECT().RequestCancel(gomock.Any(), "r1").Return(nil, nil)
				repo.EXPECT().Get(gomock.Any(), "r1").Return(&model.GenerationResult{
					ID: "r1", Status: model.GenerationStatusCompleted,
				}, nil)
			},
			wantErr:   model.ErrResultTerminal,
			wantState: model.GenerationStatusCompleted,
		},
		{
			name: "unknown result",
			setup: func(repo *mocks.MockGenerationResultRepository) {
				repo.EXPECT().RequestCancel(gomock.Any(), "r1").Return(nil, nil)
				repo.EXPECT().Get(gomock.Any(), "r1").Return(nil, model.ErrResultNotFound)
			},
			wantErr: model.ErrResultNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mocks.NewMockGenerationResultRepository(ctrl)
			tt.setup(repo)

			svc, err := NewResultService(ResultServiceOptions{Repo: repo})
			require.NoError(t, err)

			res, err := svc.RequestCancel(ctx, "r1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tt.wantState != "" {
				require.NotNil(t, res)
				assert.Equal(t, tt.wantState, res.Status)
				assert.Equal(t, tt.wantFlag, res.CancelRequested)
			}
		})
	}
}

func TestResultService_IsCancelRequested(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockGenerationResultRepository(ctrl)
	svc, err := NewResultService(ResultServiceOptions{Repo: repo})
	require.NoError(t, err)
	ctx := context.Background()

	repo.EXPECT().Get(gomock.Any(), "flagged").Return(&model.GenerationResult{CancelRequested: true}, nil)
	repo.EXPECT().Get(gomock.Any(), "running").Return(&model.GenerationResult{}, nil)
	repo.EXPECT().Get(gomock.Any(), "gone").Return(nil, model.ErrResultNotFound)
	repo.EXPECT().Get(gomock.Any(), "broken").Return(nil, errors.New("db down"))

	got, err := svc.IsCancelRequested(ctx, "flagged")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = svc.IsCancelRequested(ctx, "running")
	require.NoError(t, err)
	assert.False(t, got)

	got, err = svc.IsCancelRequested(ctx, "gone")
	require.NoError(t, err)
	assert.True(t, got)

	_, err = svc.IsCancelRequested(ctx, "broken")
	require.Error(t, err)
}

func TestResultService_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockGenerationResultRepository(ctrl)
	svc, err := NewResultService(ResultServiceOptions{Repo: repo})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "")
	require.ErrorIs(t, err, model.ErrResultNotFound)

	repo.EXPECT().Get(gomock.Any(), "r1").Return(&model.GenerationResult{ID: "r1"}, nil)
	res, err := svc.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", res.ID)
}

func TestResultService_SweepExpired(t *testing.T) {
	t.Run("loops batches until none remain", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sweeper := mocks.NewMockSweepRepository(ctrl)
		params := core.SweepParams{MaxAge: time.Hour, BatchSize: 2}
		gomock.InOrder(
			sweeper.EXPECT().DeleteExpiredResults(gomock.Any(), params).Return(int64(2), nil),
			sweeper.EXPECT().DeleteExpiredResults(gomock.Any(), params).Return(int64(1), nil),
			sweeper.EXPECT().DeleteExpiredResults(gomock.Any(), params).Return(int64(0), nil),
		)

		svc, err := NewResultService(ResultServiceOptions{
			Repo:      mocks.NewMockGenerationResultRepository(ctrl),
			Sweeper:   sweeper,
			BatchSize: 2,
		})
		require.NoError(t, err)

		n, err := svc.SweepExpired(context.Background(), time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("returns partial count on error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sweeper := mocks.NewMockSweepRepository(ctrl)
		gomock.InOrder(
			sweeper.EXPECT().DeleteExpiredResults(gomock.Any(), gomock.Any()).Return(int64(5), nil),
			sweeper.EXPECT().DeleteExpiredResults(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("boom")),
		)
		svc, err := NewResultService(ResultServiceOptions{
			Repo:    mocks.NewMockGenerationResultRepository(ctrl),
			Sweeper: sweeper,
		})
		require.NoError(t, err)

		n, err := svc.SweepExpired(context.Background(), time.Hour)
		require.Error(t, err)
		assert.Equal(t, int64(5), n)
	})

	t.Run("requires sweep repository", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc, err := NewResultService(ResultServiceOptions{Repo: mocks.NewMockGenerationResultRepository(ctrl)})
		require.NoError(t, err)
		_, err = svc.SweepExpired(context.Background(), time.Hour)
		require.Error(t, err)
	})
}
