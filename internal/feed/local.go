package feed

import (
	"context"
	"sync"
	"time"
)

// Local fans changes out inside one process. Used with the bolt store and in
// tests; multi-instance deployments use Redis or Postgres.
type Local struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]*Subscription
}

func NewLocal() *Local {
	return &Local{subs: make(map[string]map[int]*Subscription)}
}

func (l *Local) Publish(_ context.Context, c Change) error {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.subs[c.OwnerID] {
		s.offer(c)
	}
	return nil
}

func (l *Local) Subscribe(_ context.Context, ownerID string) (*Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.next
	l.next++
	sub := newSubscription(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs[ownerID], id)
		if len(l.subs[ownerID]) == 0 {
			delete(l.subs, ownerID)
		}
	})
	if l.subs[ownerID] == nil {
		l.subs[ownerID] = make(map[int]*Subscription)
	}
	l.subs[ownerID][id] = sub
	return sub, nil
}

// Subscribers reports the live subscriptions of an owner.
func (l *Local) Subscribers(ownerID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[ownerID])
}

// resync asks every subscriber to re-read, for when changes may have been
// missed.
func (l *Local) resync(at time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for ownerID, subs := range l.subs {
		for _, s := range subs {
			s.offer(Change{OwnerID: ownerID, At: at})
		}
	}
}
