// Package feed carries change notifications from the write path to live
// subscribers. A notification only says "collection X of owner Y changed";
// subscribers re-read the full snapshot, so notifications may be coalesced.
package feed

import (
	"context"
	"sync"
	"time"
)

// Change identifies a written document.
type Change struct {
	OwnerID    string    `json:"ownerId"`
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
}

type Broker interface {
	Publish(ctx context.Context, c Change) error
	// Subscribe registers for the changes of one owner. The subscription is
	// active when Subscribe returns.
	Subscribe(ctx context.Context, ownerID string) (*Subscription, error)
}

// Subscription delivers coalesced changes until closed.
type Subscription struct {
	mu      sync.Mutex
	closed  bool
	ch      chan Change
	release func()
}

func newSubscription(release func()) *Subscription {
	return &Subscription{ch: make(chan Change, 1), release: release}
}

// C is closed by Close.
func (s *Subscription) C() <-chan Change { return s.ch }

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	if s.release != nil {
		s.release()
	}
	return nil
}

// offer delivers c unless a notification is already pending.
func (s *Subscription) offer(c Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- c:
	default:
	}
}
