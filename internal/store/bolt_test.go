package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickingClock advances one second per call so creation order is strict.
func tickingClock() func() time.Time {
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newTestBolt(t *testing.T) *Bolt {
	t.Helper()
	s, err := NewBolt(filepath.Join(t.TempDir(), "test.db"), WithClock(tickingClock()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBolt_GetMissing(t *testing.T) {
	s := newTestBolt(t)
	_, err := s.Get(context.Background(), "contacts", "u1", "0300")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBolt_FindEmptyReturnsEmptySlice(t *testing.T) {
	s := newTestBolt(t)
	docs, err := s.Find(context.Background(), "transactions", Query{OwnerID: "u1"})
	require.NoError(t, err)
	require.NotNil(t, docs)
	require.Empty(t, docs)
}

func TestBolt_CreateAssignsIDAndTimestamps(t *testing.T) {
	s := newTestBolt(t)
	ctx := context.Background()

	doc, err := s.Create(ctx, "transactions", "u1", map[string]any{"amount": 500})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	require.False(t, doc.CreatedAt.IsZero())

	got, err := s.Get(ctx, "transactions", "u1", doc.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":500}`, string(got.Body))
	assert.Equal(t, doc.CreatedAt, got.CreatedAt)
}

func TestBolt_PutMergeKeepsOtherFieldsAndCreatedAt(t *testing.T) {
	s := newTestBolt(t)
	ctx := context.Background()

	first, err := s.Put(ctx, "contacts", "u1", "0300", map[string]any{"name": "Junaid", "deleted": true}, true)
	require.NoError(t, err)

	second, err := s.Put(ctx, "contacts", "u1", "0300", map[string]any{"deleted": false, "deletedAt": nil}, true)
	require.NoError(t, err)

	assert.JSONEq(t, `{"name":"Junaid","deleted":false,"deletedAt":null}`, string(second.Body))
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestBolt_PutReplaceDropsOldFields(t *testing.T) {
	s := newTestBolt(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "users", "u1", "u1", map[string]any{"businessName": "A", "currency": "RS"}, false)
	require.NoError(t, err)
	doc, err := s.Put(ctx, "users", "u1", "u1", map[string]any{"businessName": "B"}, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"businessName":"B"}`, string(doc.Body))
}

func TestBolt_FindScopesByOwnerFiltersAndOrders(t *testing.T) {
	s := newTestBolt(t)
	ctx := context.Background()

	older, err := s.Create(ctx, "transactions", "u1", map[string]any{"contactId": "0300", "amount": 1})
	require.NoError(t, err)
	_, err = s.Create(ctx, "transactions", "u1", map[string]any{"contactId": "0311", "amount": 2})
	require.NoError(t, err)
	newer, err := s.Create(ctx, "transactions", "u1", map[string]any{"contactId": "0300", "amount": 3})
	require.NoError(t, err)
	_, err = s.Create(ctx, "transactions", "u2", map[string]any{"contactId": "0300", "amount": 4})
	require.NoError(t, err)

	all, err := s.Find(ctx, "transactions", Query{OwnerID: "u1"})
	require.NoError(t, err)
	require.Len(t, all, 3)

	scoped, err := s.Find(ctx, "transactions", Query{OwnerID: "u1", Where: map[string]any{"contactId": "0300"}})
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	assert.Equal(t, newer.ID, scoped[0].ID)
	assert.Equal(t, older.ID, scoped[1].ID)
}

func TestBolt_PutRequiresKeys(t *testing.T) {
	s := newTestBolt(t)
	_, err := s.Put(context.Background(), "contacts", "", "x", map[string]any{}, true)
	require.Error(t, err)
}

func TestMatches(t *testing.T) {
	body := []byte(`{"deleted":true,"amount":500,"contactId":"0300"}`)
	assert.True(t, matches(body, nil))
	assert.True(t, matches(body, map[string]any{"deleted": true}))
	assert.True(t, matches(body, map[string]any{"amount": 500.0, "contactId": "0300"}))
	assert.False(t, matches(body, map[string]any{"deleted": false}))
	assert.False(t, matches(body, map[string]any{"missing": "x"}))
	assert.False(t, matches([]byte(`not json`), map[string]any{"deleted": true}))
}
