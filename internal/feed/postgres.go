package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const pgChannel = "khata_changes"

// Postgres rides on LISTEN/NOTIFY of the database that already holds the
// documents. All owners share one channel and one listener connection per
// broker; notifications fan out to subscribers through a Local hub.
type Postgres struct {
	db     *sql.DB
	dsn    string
	logger *zap.Logger
	hub    *Local

	mu       sync.Mutex
	listener *pq.Listener
	done     chan struct{}
}

func NewPostgres(db *sql.DB, dsn string, logger *zap.Logger) *Postgres {
	return &Postgres{db: db, dsn: dsn, logger: logger, hub: NewLocal()}
}

func (p *Postgres) Publish(ctx context.Context, c Change) error {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	_, err = p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", pgChannel, string(payload))
	return err
}

func (p *Postgres) Subscribe(ctx context.Context, ownerID string) (*Subscription, error) {
	if err := p.listen(); err != nil {
		return nil, err
	}
	return p.hub.Subscribe(ctx, ownerID)
}

// Close stops the shared listener. Open subscriptions stay valid but receive
// nothing further.
func (p *Postgres) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	close(p.done)
	err := p.listener.Close()
	p.listener = nil
	return err
}

// listen starts the shared listener on first use.
func (p *Postgres) listen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener != nil {
		return nil
	}

	listener := pq.NewListener(p.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			p.logger.Warn("Change listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(pgChannel); err != nil {
		_ = listener.Close()
		return fmt.Errorf("listen %s: %w", pgChannel, err)
	}
	p.listener = listener
	p.done = make(chan struct{})
	go p.relay(listener.Notify, p.done)
	return nil
}

// relay dispatches notifications until notify is closed or done fires.
func (p *Postgres) relay(notify <-chan *pq.Notification, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case n, ok := <-notify:
			if !ok {
				return
			}
			p.dispatch(n)
		}
	}
}

func (p *Postgres) dispatch(n *pq.Notification) {
	// nil after a reconnect: state may have changed while disconnected.
	if n == nil {
		p.hub.resync(time.Now().UTC())
		return
	}
	var c Change
	if err := json.Unmarshal([]byte(n.Extra), &c); err != nil || c.OwnerID == "" {
		p.logger.Warn("Dropping malformed change notification", zap.String("payload", n.Extra))
		return
	}
	_ = p.hub.Publish(context.Background(), c)
}
