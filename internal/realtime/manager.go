package realtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"khata-ledger-go/internal/feed"
	"khata-ledger-go/internal/models"
	"khata-ledger-go/internal/store"
)

type view interface {
	Close()
}

// Manager opens views and keeps at most one live view per key. Watching a
// key that already has a view closes the old one first, so a client that
// reconnects does not leave duplicate listeners behind.
type Manager struct {
	store  store.Store
	broker feed.Broker
	logger *zap.Logger

	mu    sync.Mutex
	views map[string]view
}

func NewManager(s store.Store, broker feed.Broker, logger *zap.Logger) *Manager {
	return &Manager{
		store:  s,
		broker: broker,
		logger: logger,
		views:  make(map[string]view),
	}
}

// WatchHome opens the home view of ownerID: every transaction folded against
// every contact.
func (m *Manager) WatchHome(key, ownerID string) (*HomeView, error) {
	m.release(key)

	ctx, cancel := context.WithCancel(context.Background())
	v := &HomeView{states: make(chan HomeState, 1)}
	v.cancel = cancel
	v.done = make(chan struct{})

	contacts, err := openStream(ctx, m.broker, ownerID, models.CollectionContacts, m.findAll(models.CollectionContacts, ownerID), m.logger)
	if err != nil {
		cancel()
		return nil, err
	}
	transactions, err := openStream(ctx, m.broker, ownerID, models.CollectionTransactions, m.findAll(models.CollectionTransactions, ownerID), m.logger)
	if err != nil {
		contacts.close()
		cancel()
		return nil, err
	}
	v.streams = []*stream{contacts, transactions}
	v.onClose = m.forget(key, v)
	go v.loop(ctx, contacts, transactions)

	m.register(key, v)
	return v, nil
}

// WatchContact opens the detail view of one contact: its transactions, its
// contact document and its wasooli date.
func (m *Manager) WatchContact(key, ownerID, contactID string) (*ContactView, error) {
	m.release(key)

	ctx, cancel := context.WithCancel(context.Background())
	v := &ContactView{contactID: contactID, states: make(chan ContactState, 1)}
	v.cancel = cancel
	v.done = make(chan struct{})

	open := []struct {
		collection string
		fetch      fetchFunc
	}{
		{models.CollectionContacts, m.getOne(models.CollectionContacts, ownerID, contactID)},
		{models.CollectionTransactions, m.find(models.CollectionTransactions, store.Query{
			OwnerID: ownerID,
			Where:   map[string]any{"contactId": contactID},
		})},
		{models.CollectionWasooliDates, m.getOne(models.CollectionWasooliDates, ownerID, models.WasooliKey(ownerID, contactID))},
	}
	for _, o := range open {
		s, err := openStream(ctx, m.broker, ownerID, o.collection, o.fetch, m.logger)
		if err != nil {
			for _, opened := range v.streams {
				opened.close()
			}
			cancel()
			return nil, err
		}
		v.streams = append(v.streams, s)
	}
	v.onClose = m.forget(key, v)
	go v.loop(ctx, v.streams[0], v.streams[1], v.streams[2], m.logger)

	m.register(key, v)
	return v, nil
}

// Active reports the number of registered views.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.views)
}

// Close stops every registered view.
func (m *Manager) Close() {
	m.mu.Lock()
	views := make([]view, 0, len(m.views))
	for _, v := range m.views {
		views = append(views, v)
	}
	m.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
}

func (m *Manager) register(key string, v view) {
	m.mu.Lock()
	prev := m.views[key]
	m.views[key] = v
	m.mu.Unlock()

	// Two concurrent watches on one key: the later registration wins.
	if prev != nil && prev != v {
		prev.Close()
	}
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	prev := m.views[key]
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (m *Manager) forget(key string, v view) func() {
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.views[key] == v {
			delete(m.views, key)
		}
	}
}

func (m *Manager) find(collection string, q store.Query) fetchFunc {
	return func(ctx context.Context) ([]store.Document, error) {
		return m.store.Find(ctx, collection, q)
	}
}

func (m *Manager) findAll(collection, ownerID string) fetchFunc {
	return m.find(collection, store.Query{OwnerID: ownerID})
}

// getOne reads a single document as a zero or one element snapshot.
func (m *Manager) getOne(collection, ownerID, id string) fetchFunc {
	return func(ctx context.Context) ([]store.Document, error) {
		doc, err := m.store.Get(ctx, collection, ownerID, id)
		if errors.Is(err, store.ErrNotFound) {
			return []store.Document{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []store.Document{*doc}, nil
	}
}
