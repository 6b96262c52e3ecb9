package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buidl-renaissance/collector-quest-sub003/internal/core"
	"github.com/buidl-renaissance/collector-quest-sub003/internal/domain/model"
)

// MemResultStore is an in-memory core.GenerationResultRepository with the same
// pending-per-target uniqueness and terminal immutability as the Postgres store.
type MemResultStore struct {
	mu   sync.Mutex
	rows map[string]*model.GenerationResult
	now  func() time.Time

	// CreateCalls counts CreatePending invocations, successful or not.
	CreateCalls int
}

var _ core.GenerationResultRepository = (*MemResultStore)(nil)

// NewMemResultStore creates an empty store using the system clock.
func NewMemResultStore() *MemResultStore {
	return &MemResultStore{rows: make(map[string]*model.GenerationResult), now: time.Now}
}

// SetClock replaces the clock used for created_at and updated_at.
func (s *MemResultStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *MemResultStore) CreatePending(_ context.Context, p model.CreatePendingParams) (*model.GenerationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls++

	if _, ok := s.rows[p.ID]; ok {
		return nil, model.ErrResultExists
	}
	for _, r := range s.rows {
		if r.Status == model.GenerationStatusPending && r.Target() == p.Target {
			return nil, model.ErrPendingTargetExists
		}
	}
	now := s.now().UTC()
	r := &model.GenerationResult{
		ID:         p.ID,
		EventName:  p.EventName,
		Status:     model.GenerationStatusPending,
		ObjectType: p.Target.ObjectType,
		ObjectID:   p.Target.ObjectID,
		ObjectKey:  p.Target.ObjectKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.rows[p.ID] = r
	return cloneResult(r), nil
}

func (s *MemResultStore) UpdateProgress(_ context.Context, id string, u model.ProgressUpdate) (*model.GenerationResult, error) {
	return s.mutatePending(id, func(r *model.GenerationResult) {
		r.Step = optString(u.Step)
		r.Message = optString(u.Message)
		if len(u.Payload) > 0 {
			r.Result = append(json.RawMessage(nil), u.Payload...)
		}
	})
}

func (s *MemResultStore) Complete(_ context.Context, id string, payload json.RawMessage) (*model.GenerationResult, error) {
	return s.mutatePending(id, func(r *model.GenerationResult) {
		r.Status = model.GenerationStatusCompleted
		r.Result = append(json.RawMessage(nil), payload...)
		r.Error = nil
		r.Message = nil
	})
}

func (s *MemResultStore) Fail(_ context.Context, id, errMsg string) (*model.GenerationResult, error) {
	return s.mutatePending(id, func(r *model.GenerationResult) {
		r.Status = model.GenerationStatusError
		r.Error = &errMsg
		r.Result = nil
	})
}

func (s *MemResultStore) Get(_ context.Context, id string) (*model.GenerationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, model.ErrResultNotFound
	}
	return cloneResult(r), nil
}

func (s *MemResultStore) FindByTarget(_ context.Context, p core.FindByTargetParams) (*model.GenerationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.GenerationResult
	for _, r := range s.rows {
		if r.Status != p.Status || r.Target() != p.Target {
			continue
		}
		if best == nil || r.UpdatedAt.After(best.UpdatedAt) {
			best = r
		}
	}
	if best == nil {
		return nil, model.ErrResultNotFound
	}
	return cloneResult(best), nil
}

func (s *MemResultStore) SetEventID(_ context.Context, id, eventID string) (*model.GenerationResult, error) {
	return s.mutatePending(id, func(r *model.GenerationResult) {
		r.EventID = &eventID
	})
}

func (s *MemResultStore) RequestCancel(_ context.Context, id string) (*model.GenerationResult, error) {
	return s.mutatePending(id, func(r *model.GenerationResult) {
		r.CancelRequested = true
	})
}

// Sweep deletes rows created before now - maxAge and returns the count.
func (s *MemResultStore) Sweep(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-maxAge)
	n := 0
	for id, r := range s.rows {
		if r.CreatedAt.Before(cutoff) {
			delete(s.rows, id)
			n++
		}
	}
	return n
}

// All returns every stored row ordered by creation time.
func (s *MemResultStore) All() []*model.GenerationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.GenerationResult, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, cloneResult(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemResultStore) mutatePending(id string, fn func(*model.GenerationResult)) (*model.GenerationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.Status != model.GenerationStatusPending {
		return nil, nil
	}
	fn(r)
	r.UpdatedAt = s.now().UTC()
	return cloneResult(r), nil
}

func cloneResult(r *model.GenerationResult) *model.GenerationResult {
	c := *r
	if r.Result != nil {
		c.Result = append(json.RawMessage(nil), r.Result...)
	}
	return &c
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MemPublisher records published job-start events.
type MemPublisher struct {
	mu     sync.Mutex
	events []model.JobStartEvent

	// Err, when set, is returned by Publish instead of recording the event.
	Err error
}

var _ core.EventPublisher = (*MemPublisher)(nil)

func (p *MemPublisher) Publish(_ context.Context, evt model.JobStartEvent) (*model.GenerationEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	p.events = append(p.events, evt)
	payload, _ := json.Marshal(evt)
	now := time.Now().UTC()
	return &model.GenerationEvent{
		ID:          uuid.NewString(),
		ResultID:    evt.ID,
		EventName:   evt.EventName,
		Payload:     payload,
		Status:      model.GenerationEventStatusPending,
		MaxAttempts: 5,
		ScheduledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Events returns a copy of the published events in publish order.
func (p *MemPublisher) Events() []model.JobStartEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.JobStartEvent(nil), p.events...)
}

// MemLedger is an in-memory core.StepLedger.
type MemLedger struct {
	mu      sync.Mutex
	entries map[string]map[string]json.RawMessage
}

var _ core.StepLedger = (*MemLedger)(nil)

// NewMemLedger creates an empty ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{entries: make(map[string]map[string]json.RawMessage)}
}

func (l *MemLedger) Lookup(_ context.Context, jobID, step string) (json.RawMessage, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out, ok := l.entries[jobID][step]
	return out, ok, nil
}

func (l *MemLedger) Record(_ context.Context, jobID, step string, output json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries[jobID] == nil {
		l.entries[jobID] = make(map[string]json.RawMessage)
	}
	l.entries[jobID][step] = append(json.RawMessage(nil), output...)
	return nil
}

func (l *MemLedger) Forget(_ context.Context, jobID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, jobID)
	return nil
}

// MemDispatchLock is an in-memory core.DispatchLock without expiry.
type MemDispatchLock struct {
	mu      sync.Mutex
	holders map[model.Target]string
}

var _ core.DispatchLock = (*MemDispatchLock)(nil)

// NewMemDispatchLock creates an unlocked lock table.
func NewMemDispatchLock() *MemDispatchLock {
	return &MemDispatchLock{holders: make(map[model.Target]string)}
}

func (l *MemDispatchLock) TryLock(_ context.Context, target model.Target, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.holders[target]; held {
		return false, nil
	}
	l.holders[target] = token
	return true, nil
}

func (l *MemDispatchLock) Unlock(_ context.Context, target model.Target, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders[target] != token {
		return false, nil
	}
	delete(l.holders, target)
	return true, nil
}

// Held reports whether target is currently locked.
func (l *MemDispatchLock) Held(target model.Target) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.holders[target]
	return ok
}
