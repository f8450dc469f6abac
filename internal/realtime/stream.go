// Package realtime keeps live views of a merchant's ledger. Each view owns
// independent snapshot streams, one per collection, and folds their latest
// snapshots together on a single goroutine whenever any of them moves.
package realtime

import (
	"context"

	"go.uber.org/zap"

	"khata-ledger-go/internal/feed"
	"khata-ledger-go/internal/store"
)

type snapshot struct {
	docs []store.Document
	err  error
}

type fetchFunc func(ctx context.Context) ([]store.Document, error)

// stream re-reads one collection every time the feed reports a change to it.
type stream struct {
	collection string
	sub        *feed.Subscription
	out        chan snapshot
}

// openStream subscribes before the initial read so no write between the read
// and the subscription is missed.
func openStream(ctx context.Context, broker feed.Broker, ownerID, collection string, fetch fetchFunc, logger *zap.Logger) (*stream, error) {
	sub, err := broker.Subscribe(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	s := &stream{
		collection: collection,
		sub:        sub,
		out:        make(chan snapshot, 1),
	}
	go s.run(ctx, fetch, logger)
	return s, nil
}

func (s *stream) run(ctx context.Context, fetch fetchFunc, logger *zap.Logger) {
	read := func() {
		docs, err := fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("Snapshot read failed", zap.String("collection", s.collection), zap.Error(err))
		}
		latest(s.out, snapshot{docs: docs, err: err})
	}

	read()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-s.sub.C():
			if !ok {
				return
			}
			if c.Collection != "" && c.Collection != s.collection {
				continue
			}
			read()
		}
	}
}

func (s *stream) close() {
	_ = s.sub.Close()
}

// latest replaces any undelivered value in a one-slot channel. Safe only with
// a single sender per channel.
func latest[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
