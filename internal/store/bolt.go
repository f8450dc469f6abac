package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"
)

// Bolt keeps documents in an embedded BoltDB file: one bucket per
// collection, one nested bucket per owner, JSON envelopes keyed by id.
type Bolt struct {
	db   *bolt.DB
	opts options
}

func NewBolt(path string, opts ...Option) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	return &Bolt{db: db, opts: buildOptions(opts)}, nil
}

func (s *Bolt) Close() error {
	return s.db.Close()
}

func ownerBucket(tx *bolt.Tx, collection, ownerID string) *bolt.Bucket {
	b := tx.Bucket([]byte(collection))
	if b == nil {
		return nil
	}
	return b.Bucket([]byte(ownerID))
}

func (s *Bolt) Get(_ context.Context, collection, ownerID, id string) (*Document, error) {
	var doc Document
	err := s.db.View(func(tx *bolt.Tx) error {
		ob := ownerBucket(tx, collection, ownerID)
		if ob == nil {
			return ErrNotFound
		}
		v := ob.Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &doc)
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Bolt) Find(_ context.Context, collection string, q Query) ([]Document, error) {
	docs := []Document{}
	err := s.db.View(func(tx *bolt.Tx) error {
		ob := ownerBucket(tx, collection, q.OwnerID)
		if ob == nil {
			return nil
		}
		return ob.ForEach(func(_, v []byte) error {
			if v == nil {
				return nil
			}
			var d Document
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if matches(d.Body, q.Where) {
				docs = append(docs, d)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortNewestFirst(docs)
	return docs, nil
}

func (s *Bolt) Create(ctx context.Context, collection, ownerID string, fields map[string]any) (*Document, error) {
	return s.Put(ctx, collection, ownerID, uuid.NewString(), fields, false)
}

func (s *Bolt) Put(_ context.Context, collection, ownerID, id string, fields map[string]any, merge bool) (*Document, error) {
	if collection == "" || ownerID == "" || id == "" {
		return nil, errors.New("collection, owner and id are required")
	}
	var result Document
	err := s.db.Update(func(tx *bolt.Tx) error {
		cb, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		ob, err := cb.CreateBucketIfNotExists([]byte(ownerID))
		if err != nil {
			return err
		}

		now := s.opts.now().UTC()
		doc := Document{ID: id, OwnerID: ownerID, CreatedAt: now}
		if existing := ob.Get([]byte(id)); existing != nil {
			if err := json.Unmarshal(existing, &doc); err != nil {
				return err
			}
		}

		body, err := mergeBody(doc.Body, fields, merge)
		if err != nil {
			return err
		}
		doc.Body = body
		doc.UpdatedAt = now

		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		result = doc
		return ob.Put([]byte(id), data)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
