package store

import (
	"context"

	"go.uber.org/zap"

	"khata-ledger-go/internal/feed"
)

type Publisher interface {
	Publish(ctx context.Context, c feed.Change) error
}

// Observed publishes a change notification after every successful write.
// The write has already happened when publishing fails, so the failure is
// logged and the caller still gets the stored document.
type Observed struct {
	Store
	pub    Publisher
	logger *zap.Logger
}

func NewObserved(inner Store, pub Publisher, logger *zap.Logger) *Observed {
	return &Observed{Store: inner, pub: pub, logger: logger}
}

func (o *Observed) Create(ctx context.Context, collection, ownerID string, fields map[string]any) (*Document, error) {
	doc, err := o.Store.Create(ctx, collection, ownerID, fields)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, collection, doc)
	return doc, nil
}

func (o *Observed) Put(ctx context.Context, collection, ownerID, id string, fields map[string]any, merge bool) (*Document, error) {
	doc, err := o.Store.Put(ctx, collection, ownerID, id, fields, merge)
	if err != nil {
		return nil, err
	}
	o.publish(ctx, collection, doc)
	return doc, nil
}

func (o *Observed) publish(ctx context.Context, collection string, doc *Document) {
	c := feed.Change{OwnerID: doc.OwnerID, Collection: collection, ID: doc.ID, At: doc.UpdatedAt}
	if err := o.pub.Publish(ctx, c); err != nil {
		o.logger.Warn("Failed to publish change",
			zap.String("collection", collection),
			zap.String("owner_id", doc.OwnerID),
			zap.String("id", doc.ID),
			zap.Error(err),
		)
	}
}
