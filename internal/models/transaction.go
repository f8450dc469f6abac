package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the polarity tag of a ledger entry.
type Direction string

const (
	Given    Direction = "given"    // diye: merchant handed over money or goods
	Received Direction = "received" // liye: merchant took money back
)

// ParseDirection accepts the canonical tags and the Urdu aliases diye/liye.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "given", "diye":
		return Given, true
	case "received", "liye":
		return Received, true
	}
	return "", false
}

// Signed returns the contribution of amount to a contact balance.
// Given adds and received subtracts, so a positive balance is owed to the
// merchant (lene hain).
func (d Direction) Signed(amount decimal.Decimal) decimal.Decimal {
	if d == Received {
		return amount.Neg()
	}
	return amount
}

// MaxAmount bounds a single entry.
var MaxAmount = decimal.New(1, 12)

// AmountPlaces is the finest unit an entry can carry.
const AmountPlaces = 2

// ValidAmount reports whether d is a positive amount of at most MaxAmount
// with no more than AmountPlaces decimal places.
func ValidAmount(d decimal.Decimal) bool {
	// Check the exponent before comparing: comparisons rescale both sides.
	if e := d.Exponent(); e > 12 || e < -30 {
		return false
	}
	return d.IsPositive() && d.LessThanOrEqual(MaxAmount) && d.Equal(d.Truncate(AmountPlaces))
}

type Transaction struct {
	ID            string          `json:"id"`
	ContactID     string          `json:"contactId"`
	ContactName   string          `json:"contactName"`
	ContactNumber string          `json:"contactNumber"`
	UserID        string          `json:"userId"`
	Type          Direction       `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Note          string          `json:"note"`
	ImageRef      string          `json:"imageRef,omitempty"`
	Date          time.Time       `json:"date"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Fields is the document body written for t. createdAt is owned by the store.
func (t Transaction) Fields() map[string]any {
	f := map[string]any{
		"contactId":     t.ContactID,
		"contactName":   t.ContactName,
		"contactNumber": t.ContactNumber,
		"userId":        t.UserID,
		"type":          string(t.Type),
		"amount":        json.Number(t.Amount.String()),
		"note":          t.Note,
		"date":          t.Date.UTC(),
	}
	if t.ImageRef != "" {
		f["imageRef"] = t.ImageRef
	}
	return f
}
