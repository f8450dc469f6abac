package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"khata-ledger-go/internal/models"
)

// Line is one entry of a contact ledger with the balance right after it.
type Line struct {
	Entry
	RunningBalance decimal.Decimal `json:"runningBalance"`
}

// ContactLedger is the detail view of one contact.
type ContactLedger struct {
	ContactID string          `json:"contactId"`
	Name      string          `json:"name"`
	Number    string          `json:"number"`
	Deleted   bool            `json:"deleted"`
	Balance   decimal.Decimal `json:"balance"`
	Standing  Standing        `json:"standing"`
	Given     decimal.Decimal `json:"given"`
	Received  decimal.Decimal `json:"received"`
	Lines     []Line          `json:"lines"`
	Skipped   int             `json:"skipped"`
}

// Detail builds the ledger of contactID from entries, which may hold other
// contacts' entries too. Running balances accumulate oldest first; lines are
// returned newest first. contact may be nil when no contact document exists.
func Detail(contactID string, entries []Entry, contact *models.Contact) ContactLedger {
	own := ForContact(entries, contactID)
	sort.SliceStable(own, func(i, j int) bool {
		if !own[i].CreatedAt.Equal(own[j].CreatedAt) {
			return own[i].CreatedAt.Before(own[j].CreatedAt)
		}
		return own[i].ID < own[j].ID
	})

	l := ContactLedger{
		ContactID: contactID,
		Balance:   decimal.Zero,
		Given:     decimal.Zero,
		Received:  decimal.Zero,
		Lines:     make([]Line, 0, len(own)),
	}
	for _, e := range own {
		l.Balance = l.Balance.Add(e.Signed())
		if e.Direction == models.Received {
			l.Received = l.Received.Add(e.Amount)
		} else {
			l.Given = l.Given.Add(e.Amount)
		}
		l.Lines = append(l.Lines, Line{Entry: e, RunningBalance: l.Balance})
		if e.ContactName != "" {
			l.Name = e.ContactName
		}
		if e.ContactNumber != "" {
			l.Number = e.ContactNumber
		}
	}
	for i, j := 0, len(l.Lines)-1; i < j; i, j = i+1, j-1 {
		l.Lines[i], l.Lines[j] = l.Lines[j], l.Lines[i]
	}

	if contact != nil {
		if contact.Name != "" {
			l.Name = contact.Name
		}
		if contact.Number != "" {
			l.Number = contact.Number
		}
		l.Deleted = contact.Deleted
	}
	l.Standing = StandingOf(l.Balance)
	return l
}
