package khata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"khata-ledger-go/internal/ledger"
	"khata-ledger-go/internal/models"
	"khata-ledger-go/internal/phone"
	"khata-ledger-go/internal/store"
)

// TransactionInput is an entry as submitted by the merchant. ID is set when
// editing an existing entry.
type TransactionInput struct {
	ID            string          `json:"id,omitempty"`
	ContactName   string          `json:"contactName"`
	ContactNumber string          `json:"contactNumber"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Note          string          `json:"note"`
	ImageRef      string          `json:"imageRef,omitempty"`
	Date          time.Time       `json:"date"`
}

// SaveTransaction records an entry and then upserts its contact. Everything
// is validated before the first write. An edit without a date keeps the
// stored one. The contact upsert always clears a
// soft delete, so recording against a deleted contact restores it. If the
// upsert fails after the entry was written a *PartialWriteError is returned.
func (s *Service) SaveTransaction(ctx context.Context, ownerID string, in TransactionInput) (*models.Transaction, error) {
	if ownerID == "" {
		return nil, ErrNoIdentity
	}
	if !models.ValidAmount(in.Amount) {
		return nil, ErrInvalidAmount
	}
	contactID := models.ContactID(in.ContactNumber)
	if contactID == "" {
		return nil, ErrInvalidContact
	}
	dir, ok := models.ParseDirection(in.Type)
	if !ok {
		return nil, ErrInvalidDirection
	}

	name := strings.TrimSpace(in.ContactName)
	if name == "" {
		name = phone.Format(in.ContactNumber)
	}
	number := strings.TrimSpace(in.ContactNumber)

	var existing *store.Document
	if in.ID != "" {
		doc, err := s.store.Get(ctx, models.CollectionTransactions, ownerID, in.ID)
		if err != nil {
			return nil, notFound(err)
		}
		existing = doc
	}

	date := in.Date
	if date.IsZero() && existing != nil {
		var stored struct {
			Date time.Time `json:"date"`
		}
		if existing.Decode(&stored) == nil {
			date = stored.Date
		}
	}
	if date.IsZero() {
		date = s.now()
	}

	tx := models.Transaction{
		ID:            in.ID,
		ContactID:     contactID,
		ContactName:   name,
		ContactNumber: number,
		UserID:        ownerID,
		Type:          dir,
		Amount:        in.Amount,
		Note:          strings.TrimSpace(in.Note),
		ImageRef:      in.ImageRef,
		Date:          date,
	}

	var (
		doc *store.Document
		err error
	)
	if existing == nil {
		doc, err = s.store.Create(ctx, models.CollectionTransactions, ownerID, tx.Fields())
	} else {
		fields := tx.Fields()
		if tx.ImageRef == "" {
			fields["imageRef"] = nil
		}
		doc, err = s.store.Put(ctx, models.CollectionTransactions, ownerID, in.ID, fields, true)
	}
	if err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}
	tx.ID = doc.ID
	tx.CreatedAt = doc.CreatedAt

	if _, err := s.store.Put(ctx, models.CollectionContacts, ownerID, contactID,
		models.ContactUpsertFields(name, number, ownerID), true); err != nil {
		s.logger.Error("Contact upsert failed after transaction write",
			zap.String("owner_id", ownerID),
			zap.String("transaction_id", tx.ID),
			zap.String("contact_id", contactID),
			zap.Error(err),
		)
		return &tx, &PartialWriteError{TransactionID: tx.ID, Err: err}
	}

	s.logger.Info("Transaction saved",
		zap.String("owner_id", ownerID),
		zap.String("transaction_id", tx.ID),
		zap.String("type", string(dir)),
	)
	return &tx, nil
}

// Filter narrows a transaction listing. From and To bound the business date
// inclusively; zero values are open.
type Filter struct {
	ContactID string
	From      time.Time
	To        time.Time
}

// Transactions lists valid entries newest first. The second result counts
// stored rows that were skipped as malformed.
func (s *Service) Transactions(ctx context.Context, ownerID string, f Filter) ([]ledger.Entry, int, error) {
	if ownerID == "" {
		return nil, 0, ErrNoIdentity
	}
	q := store.Query{OwnerID: ownerID}
	if f.ContactID != "" {
		q.Where = map[string]any{"contactId": f.ContactID}
	}
	docs, err := s.store.Find(ctx, models.CollectionTransactions, q)
	if err != nil {
		return nil, 0, err
	}

	entries, skipped := ledger.DecodeEntries(docs)
	out := entries[:0]
	for _, e := range entries {
		if !f.From.IsZero() && e.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.Date.After(f.To) {
			continue
		}
		out = append(out, e)
	}
	return out, skipped, nil
}

// Home folds every transaction against every contact.
func (s *Service) Home(ctx context.Context, ownerID string) (ledger.Summary, error) {
	if ownerID == "" {
		return ledger.Summary{}, ErrNoIdentity
	}
	txs, err := s.store.Find(ctx, models.CollectionTransactions, store.Query{OwnerID: ownerID})
	if err != nil {
		return ledger.Summary{}, err
	}
	contacts, err := s.store.Find(ctx, models.CollectionContacts, store.Query{OwnerID: ownerID})
	if err != nil {
		return ledger.Summary{}, err
	}
	return ledger.Summarize(txs, contacts, true), nil
}

// ContactLedger is the detail view of one contact. It works for settled and
// soft-deleted contacts alike.
func (s *Service) ContactLedger(ctx context.Context, ownerID, contactID string) (ledger.ContactLedger, error) {
	if ownerID == "" {
		return ledger.ContactLedger{}, ErrNoIdentity
	}
	entries, skipped, err := s.Transactions(ctx, ownerID, Filter{ContactID: contactID})
	if err != nil {
		return ledger.ContactLedger{}, err
	}

	var contact *models.Contact
	doc, err := s.store.Get(ctx, models.CollectionContacts, ownerID, contactID)
	switch {
	case err == nil:
		if c, derr := ledger.DecodeContact(*doc); derr == nil {
			contact = &c
		}
	case !errors.Is(err, store.ErrNotFound):
		return ledger.ContactLedger{}, err
	}
	if contact == nil && len(entries) == 0 {
		return ledger.ContactLedger{}, ErrNotFound
	}

	l := ledger.Detail(contactID, entries, contact)
	l.Skipped = skipped
	return l, nil
}
