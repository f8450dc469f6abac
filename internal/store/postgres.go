package store

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JSONB maps a raw JSON body onto a postgres jsonb column.
type JSONB json.RawMessage

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return string(j), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append(JSONB(nil), v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("unsupported type for JSONB: %T", value)
	}
	return nil
}

// DocumentRow is the single table holding every collection.
type DocumentRow struct {
	Collection string    `gorm:"primaryKey;size:64"`
	OwnerID    string    `gorm:"primaryKey;size:128"`
	ID         string    `gorm:"primaryKey;size:128"`
	Body       JSONB     `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

func (DocumentRow) TableName() string { return "documents" }

func (r DocumentRow) document() Document {
	return Document{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Body:      json.RawMessage(r.Body),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type Postgres struct {
	db   *gorm.DB
	opts options
}

func NewPostgres(db *gorm.DB, opts ...Option) *Postgres {
	return &Postgres{db: db, opts: buildOptions(opts)}
}

// AutoMigrate creates the documents table and its indexes.
func (s *Postgres) AutoMigrate() error {
	return s.db.AutoMigrate(&DocumentRow{})
}

func (s *Postgres) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Postgres) Get(ctx context.Context, collection, ownerID, id string) (*Document, error) {
	var row DocumentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND owner_id = ? AND id = ?", collection, ownerID, id).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc := row.document()
	return &doc, nil
}

func (s *Postgres) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	query := s.db.WithContext(ctx).
		Where("collection = ? AND owner_id = ?", collection, q.OwnerID)
	if len(q.Where) > 0 {
		filter, err := json.Marshal(q.Where)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		query = query.Where("body @> ?::jsonb", string(filter))
	}

	var rows []DocumentRow
	if err := query.Order("created_at desc, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.document())
	}
	return docs, nil
}

func (s *Postgres) Create(ctx context.Context, collection, ownerID string, fields map[string]any) (*Document, error) {
	return s.Put(ctx, collection, ownerID, uuid.NewString(), fields, false)
}

func (s *Postgres) Put(ctx context.Context, collection, ownerID, id string, fields map[string]any, merge bool) (*Document, error) {
	if collection == "" || ownerID == "" || id == "" {
		return nil, errors.New("collection, owner and id are required")
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}

	now := s.opts.now().UTC()
	row := DocumentRow{
		Collection: collection,
		OwnerID:    ownerID,
		ID:         id,
		Body:       JSONB(body),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	bodyExpr := gorm.Expr("excluded.body")
	if merge {
		bodyExpr = gorm.Expr(`"documents"."body" || excluded.body`)
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "owner_id"}, {Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"body":       bodyExpr,
			"updated_at": now,
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, collection, ownerID, id)
}
