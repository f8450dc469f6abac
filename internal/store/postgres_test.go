package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var documentColumns = []string{"collection", "owner_id", "id", "body", "created_at", "updated_at"}

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewPostgres(gdb), mock
}

func TestPostgres_GetNotFound(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE .*collection = \$1 AND owner_id = \$2 AND id = \$3`).
		WillReturnRows(sqlmock.NewRows(documentColumns))

	_, err := s.Get(context.Background(), "contacts", "u1", "0300")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindUsesContainmentFilter(t *testing.T) {
	s, mock := newMockPostgres(t)
	created := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE .*body @> \$3::jsonb.*ORDER BY created_at desc, id`).
		WithArgs("contacts", "u1", `{"deleted":true}`).
		WillReturnRows(sqlmock.NewRows(documentColumns).
			AddRow("contacts", "u1", "0300", []byte(`{"name":"Junaid","deleted":true}`), created, created))

	docs, err := s.Find(context.Background(), "contacts", Query{OwnerID: "u1", Where: map[string]any{"deleted": true}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "0300", docs[0].ID)
	assert.Equal(t, "u1", docs[0].OwnerID)
	assert.JSONEq(t, `{"name":"Junaid","deleted":true}`, string(docs[0].Body))
	assert.Equal(t, created, docs[0].CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PutMergeUpserts(t *testing.T) {
	s, mock := newMockPostgres(t)
	now := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO "documents" .*ON CONFLICT .*DO UPDATE SET .*"documents"."body" \|\| excluded.body`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE`).
		WillReturnRows(sqlmock.NewRows(documentColumns).
			AddRow("contacts", "u1", "0300", []byte(`{"name":"Junaid","deleted":false}`), now, now))

	doc, err := s.Put(context.Background(), "contacts", "u1", "0300", map[string]any{"deleted": false}, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Junaid","deleted":false}`, string(doc.Body))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJSONB_ValueAndScan(t *testing.T) {
	v, err := JSONB(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)

	var j JSONB
	require.NoError(t, j.Scan([]byte(`{"a":1}`)))
	assert.Equal(t, `{"a":1}`, string(j))
	require.NoError(t, j.Scan(`{"b":2}`))
	assert.Equal(t, `{"b":2}`, string(j))
	require.Error(t, j.Scan(42))
}
