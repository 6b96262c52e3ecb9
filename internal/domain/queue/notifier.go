// Package queue fans out queue-availability notifications to executor workers.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until the event queue signals new work.
type Waiter interface {
	WaitForNotification(ctx context.Context) error
}

// NotifierOptions configure a Notifier.
type NotifierOptions struct {
	Waiter Waiter
	// WaitWindow bounds each LISTEN round so a dropped connection is noticed.
	WaitWindow time.Duration
	// Backoff is the pause after a failed wait.
	Backoff time.Duration
}

// Notifier shares one LISTEN loop between every subscribed worker. The loop
// starts with the first subscriber and stops when the last one leaves.
type Notifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu     sync.Mutex
	subs   map[chan struct{}]struct{}
	cancel context.CancelFunc
}

// NewNotifier constructs a Notifier.
func NewNotifier(opts NotifierOptions) (*Notifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}
	waitWindow := opts.WaitWindow
	if waitWindow <= 0 {
		waitWindow = time.Minute
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	return &Notifier{
		waiter:     opts.Waiter,
		waitWindow: waitWindow,
		backoff:    backoff,
		subs:       make(map[chan struct{}]struct{}),
	}, nil
}

// Subscribe registers a receiver. The channel carries at most one pending signal;
// it is closed by the returned unsubscribe func or by StopAll.
func (n *Notifier) Subscribe() (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		n.cancel = cancel
		go n.listenLoop(ctx)
	}

	ch := make(chan struct{}, 1)
	n.subs[ch] = struct{}{}

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if _, ok := n.subs[ch]; !ok {
				return
			}
			delete(n.subs, ch)
			drainAndClose(ch)
			if len(n.subs) == 0 {
				n.stopListenerLocked()
			}
		})
	}
	return unsub, ch
}

// StopAll stops the listener and closes every subscriber channel.
func (n *Notifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopListenerLocked()
	for ch := range n.subs {
		drainAndClose(ch)
		delete(n.subs, ch)
	}
}

func (n *Notifier) stopListenerLocked() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	n.cancel = nil
}

func (n *Notifier) listenLoop(ctx context.Context) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx)
		cancel()

		n.broadcast()

		if err != nil && ctx.Err() == nil {
			timer := time.NewTimer(n.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

func (n *Notifier) broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose removes any buffered signal before closing so receivers observe
// the close immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}
