package models

import (
	"time"

	"khata-ledger-go/internal/phone"
)

// Collection names in the document store.
const (
	CollectionContacts     = "contacts"
	CollectionTransactions = "transactions"
	CollectionUsers        = "users"
	CollectionWasooliDates = "wasooliDates"
)

// PurgeWindow is how long a soft-deleted contact is advertised as
// recoverable. Nothing purges it afterwards.
const PurgeWindow = 30 * 24 * time.Hour

type Contact struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Number    string     `json:"number"`
	UserID    string     `json:"userId"`
	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deletedAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ContactID derives the document id of a contact from its phone number.
func ContactID(number string) string {
	return phone.Normalize(number)
}

// PurgeAfter is the advertised end of the recovery window, nil for live contacts.
func (c Contact) PurgeAfter() *time.Time {
	if !c.Deleted || c.DeletedAt == nil {
		return nil
	}
	t := c.DeletedAt.Add(PurgeWindow)
	return &t
}

// ContactUpsertFields is the merge-write applied whenever a contact is saved
// or a transaction is recorded against it. It always clears a soft delete.
func ContactUpsertFields(name, number, userID string) map[string]any {
	return map[string]any{
		"name":      name,
		"number":    number,
		"userId":    userID,
		"deleted":   false,
		"deletedAt": nil,
	}
}

func SoftDeleteFields(at time.Time) map[string]any {
	return map[string]any{
		"deleted":   true,
		"deletedAt": at.UTC(),
	}
}

func RecoverFields() map[string]any {
	return map[string]any{
		"deleted":   false,
		"deletedAt": nil,
	}
}
