package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWaiter struct {
	calls chan struct{}
	err   error
}

func (s *stubWaiter) WaitForNotification(ctx context.Context) error {
	select {
	case s.calls <- struct{}{}:
	default:
	}
	if s.err != nil {
		return s.err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil
	}
}

func TestNewNotifierRequiresWaiter(t *testing.T) {
	n, err := NewNotifier(NotifierOptions{})
	require.ErrorIs(t, err, ErrWaiterRequired)
	assert.Nil(t, n)
}

func TestNotifier(t *testing.T) {
	t.Run("subscriber receives signal", func(t *testing.T) {
		waiter := &stubWaiter{calls: make(chan struct{}, 4)}
		n, err := NewNotifier(NotifierOptions{Waiter: waiter})
		require.NoError(t, err)

		unsub, ch := n.Subscribe()
		defer unsub()

		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("expected notification to be delivered")
		}
	})

	t.Run("unsubscribe closes channel and is idempotent", func(t *testing.T) {
		waiter := &stubWaiter{calls: make(chan struct{}, 1)}
		n, err := NewNotifier(NotifierOptions{Waiter: waiter})
		require.NoError(t, err)

		unsub, ch := n.Subscribe()
		unsub()
		unsub()

		select {
		case _, ok := <-ch:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("expected channel to close")
		}
	})

	t.Run("stop all closes every channel", func(t *testing.T) {
		waiter := &stubWaiter{calls: make(chan struct{}, 2), err: errors.New("boom")}
		n, err := NewNotifier(NotifierOptions{Waiter: waiter, Backoff: time.Millisecond})
		require.NoError(t, err)

		_, ch1 := n.Subscribe()
		_, ch2 := n.Subscribe()
		n.StopAll()

		for _, ch := range []<-chan struct{}{ch1, ch2} {
			select {
			case _, ok := <-ch:
				assert.False(t, ok)
			case <-time.After(time.Second):
				t.Fatal("expected channel to close")
			}
		}
	})
}
