package models

import "time"

// WasooliDate is the single collection-due reminder for a (user, contact) pair.
type WasooliDate struct {
	UserID    string     `json:"userId"`
	ContactID string     `json:"contactId"`
	Date      *time.Time `json:"wasooliDate"`
}

// WasooliKey is the document id; one per (user, contact), so writes overwrite.
func WasooliKey(userID, contactID string) string {
	return userID + "_" + contactID
}

func (w WasooliDate) Fields() map[string]any {
	var date any
	if w.Date != nil {
		date = w.Date.UTC()
	}
	return map[string]any{
		"userId":      w.UserID,
		"contactId":   w.ContactID,
		"wasooliDate": date,
	}
}
