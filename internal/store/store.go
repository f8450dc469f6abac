// Package store is the document database behind the ledger. Documents are
// JSON bodies keyed by (collection, owner, id); every query is scoped to one
// owner, so no user can see another user's records.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"
)

var ErrNotFound = errors.New("document not found")

type Document struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Decode unmarshals the body into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Body, v)
}

// Query selects the documents of one owner whose top-level body fields equal
// every entry of Where.
type Query struct {
	OwnerID string
	Where   map[string]any
}

type Store interface {
	Get(ctx context.Context, collection, ownerID, id string) (*Document, error)
	// Find returns matching documents newest first by creation time.
	Find(ctx context.Context, collection string, q Query) ([]Document, error)
	// Create stores a new document under a generated id.
	Create(ctx context.Context, collection, ownerID string, fields map[string]any) (*Document, error)
	// Put writes the document, creating it when absent. With merge the fields
	// are overlaid on the stored body, otherwise they replace it.
	// CreatedAt is kept from the first write.
	Put(ctx context.Context, collection, ownerID, id string, fields map[string]any, merge bool) (*Document, error)
	Close() error
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the server timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func mergeBody(existing json.RawMessage, fields map[string]any, merge bool) (json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(fields))
	if merge && len(existing) > 0 {
		if err := json.Unmarshal(existing, &out); err != nil {
			return nil, fmt.Errorf("decode stored body: %w", err)
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		out[k] = raw
	}
	return json.Marshal(out)
}

// matches compares decoded JSON values, so 500 and 500.0 are equal.
func matches(body json.RawMessage, where map[string]any) bool {
	if len(where) == 0 {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	for k, want := range where {
		have, ok := fields[k]
		if !ok {
			return false
		}
		wantRaw, err := json.Marshal(want)
		if err != nil {
			return false
		}
		var a, b any
		if json.Unmarshal(have, &a) != nil || json.Unmarshal(wantRaw, &b) != nil {
			return false
		}
		if !reflect.DeepEqual(a, b) {
			return false
		}
	}
	return true
}

func sortNewestFirst(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}
