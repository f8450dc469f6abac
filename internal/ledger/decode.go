package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"khata-ledger-go/internal/models"
	"khata-ledger-go/internal/store"
)

// maxAmountText caps the stored amount text before it is parsed.
const maxAmountText = 40

// ErrMalformed marks a stored document that cannot take part in a fold.
var ErrMalformed = errors.New("malformed document")

// Entry is a transaction that passed the decode boundary: it has a contact,
// a known direction and a positive amount.
type Entry struct {
	ID            string           `json:"id"`
	ContactID     string           `json:"contactId"`
	ContactName   string           `json:"contactName"`
	ContactNumber string           `json:"contactNumber"`
	Direction     models.Direction `json:"type"`
	Amount        decimal.Decimal  `json:"amount"`
	Note          string           `json:"note"`
	ImageRef      string           `json:"imageRef,omitempty"`
	Date          time.Time        `json:"date"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Signed is the contribution of the entry to its contact balance.
func (e Entry) Signed() decimal.Decimal {
	return e.Direction.Signed(e.Amount)
}

func malformed(doc store.Document, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, doc.ID, reason)
}

// optional decodes a field when present; bad or missing values leave v untouched.
func optional(fields map[string]json.RawMessage, key string, v any) {
	if raw, ok := fields[key]; ok {
		_ = json.Unmarshal(raw, v)
	}
}

// DecodeEntry validates one transactions document.
func DecodeEntry(doc store.Document) (Entry, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc.Body, &fields); err != nil || fields == nil {
		return Entry{}, malformed(doc, "body is not an object")
	}

	var contactID, kind string
	if raw, ok := fields["contactId"]; !ok || json.Unmarshal(raw, &contactID) != nil || strings.TrimSpace(contactID) == "" {
		return Entry{}, malformed(doc, "missing contactId")
	}
	if raw, ok := fields["type"]; !ok || json.Unmarshal(raw, &kind) != nil {
		return Entry{}, malformed(doc, "missing type")
	}
	dir, ok := models.ParseDirection(kind)
	if !ok {
		return Entry{}, malformed(doc, "unknown type "+kind)
	}
	var amount decimal.Decimal
	raw, ok := fields["amount"]
	if !ok {
		return Entry{}, malformed(doc, "missing amount")
	}
	if len(raw) > maxAmountText {
		return Entry{}, malformed(doc, "amount out of range")
	}
	if json.Unmarshal(raw, &amount) != nil {
		return Entry{}, malformed(doc, "missing amount")
	}
	if !amount.IsPositive() {
		return Entry{}, malformed(doc, "amount is not positive")
	}
	if !models.ValidAmount(amount) {
		return Entry{}, malformed(doc, "amount out of range")
	}

	e := Entry{
		ID:        doc.ID,
		ContactID: contactID,
		Direction: dir,
		Amount:    amount,
		CreatedAt: doc.CreatedAt,
	}
	optional(fields, "contactName", &e.ContactName)
	optional(fields, "contactNumber", &e.ContactNumber)
	optional(fields, "note", &e.Note)
	optional(fields, "imageRef", &e.ImageRef)
	optional(fields, "date", &e.Date)
	if e.Date.IsZero() {
		e.Date = doc.CreatedAt
	}
	return e, nil
}

// DecodeEntries keeps the valid entries of a snapshot and counts the rest.
func DecodeEntries(docs []store.Document) ([]Entry, int) {
	entries := make([]Entry, 0, len(docs))
	skipped := 0
	for _, d := range docs {
		e, err := DecodeEntry(d)
		if err != nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	return entries, skipped
}

// DecodeContact reads a contacts document. Only a non-object body is an
// error; missing fields take their zero value, so a contact without a
// deleted flag counts as live.
func DecodeContact(doc store.Document) (models.Contact, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc.Body, &fields); err != nil || fields == nil {
		return models.Contact{}, malformed(doc, "body is not an object")
	}
	c := models.Contact{ID: doc.ID, UserID: doc.OwnerID, CreatedAt: doc.CreatedAt}
	optional(fields, "name", &c.Name)
	optional(fields, "number", &c.Number)
	optional(fields, "userId", &c.UserID)
	optional(fields, "deleted", &c.Deleted)
	optional(fields, "deletedAt", &c.DeletedAt)
	return c, nil
}

// ContactIndex maps contact id to contact for a contacts snapshot.
func ContactIndex(docs []store.Document) map[string]models.Contact {
	idx := make(map[string]models.Contact, len(docs))
	for _, d := range docs {
		c, err := DecodeContact(d)
		if err != nil {
			continue
		}
		idx[c.ID] = c
	}
	return idx
}
