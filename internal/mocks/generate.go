// Package mocks provides gomock implementations of the pipeline's core ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockGenerationResultRepository(ctrl)
//	repo.EXPECT().Get(gomock.Any(), "id").Return(result, nil)
package mocks

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=generation_result_repository_mock.go github.com/buidl-renaissance/collector-quest-sub003/internal/core GenerationResultRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=event_publisher_mock.go github.com/buidl-renaissance/collector-quest-sub003/internal/core EventPublisher
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=event_queue_mock.go github.com/buidl-renaissance/collector-quest-sub003/internal/core EventQueue
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=sweep_repository_mock.go github.com/buidl-renaissance/collector-quest-sub003/internal/core SweepRepository
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=dispatch_lock_mock.go github.com/buidl-renaissance/collector-quest-sub003/internal/core DispatchLock
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=step_ledger_mock.go github.com/buidl-renaissance/collector-quest-sub003/internal/core StepLedger
