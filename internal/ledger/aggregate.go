// Package ledger derives contact balances from raw transaction rows.
// Nothing here is cached or stored: every caller folds the current snapshot
// again, which is what lets a recovered contact reappear with its exact
// historical balance.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"khata-ledger-go/internal/models"
	"khata-ledger-go/internal/store"
)

// Standing classifies a balance from the merchant's side.
type Standing string

const (
	Receivable Standing = "receivable" // lene hain: the contact owes the merchant
	Payable    Standing = "payable"    // dene hain: the merchant owes the contact
	Clear      Standing = "clear"
)

func StandingOf(balance decimal.Decimal) Standing {
	switch balance.Sign() {
	case 1:
		return Receivable
	case -1:
		return Payable
	}
	return Clear
}

// Label is the phrase shown next to the amount.
func (s Standing) Label() string {
	switch s {
	case Receivable:
		return "lene hain"
	case Payable:
		return "dene hain"
	}
	return "hisaab clear"
}

// Fold sums the signed contributions of entries.
func Fold(entries []Entry) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range entries {
		balance = balance.Add(e.Signed())
	}
	return balance
}

// Group splits entries by contact id, preserving order within each group.
func Group(entries []Entry) map[string][]Entry {
	groups := make(map[string][]Entry)
	for _, e := range entries {
		groups[e.ContactID] = append(groups[e.ContactID], e)
	}
	return groups
}

// Balances is the per-contact fold over a multi-contact snapshot.
func Balances(entries []Entry) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for id, group := range Group(entries) {
		out[id] = Fold(group)
	}
	return out
}

// ContactBalance is the single-contact fold. It shares Fold with Balances,
// so both agree for every contact.
func ContactBalance(entries []Entry, contactID string) decimal.Decimal {
	return Fold(ForContact(entries, contactID))
}

func ForContact(entries []Entry, contactID string) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.ContactID == contactID {
			out = append(out, e)
		}
	}
	return out
}

type Row struct {
	ContactID    string          `json:"contactId"`
	Name         string          `json:"name"`
	Number       string          `json:"number"`
	Balance      decimal.Decimal `json:"balance"`
	Standing     Standing        `json:"standing"`
	Entries      int             `json:"entries"`
	LastActivity time.Time       `json:"lastActivity"`
	DeletedAt    *time.Time      `json:"deletedAt,omitempty"`
	PurgeAfter   *time.Time      `json:"purgeAfter,omitempty"`
}

// Summary is the home view: the active ledger list and global totals.
type Summary struct {
	Active     []Row           `json:"active"`
	Deleted    []Row           `json:"deleted"`
	Receivable decimal.Decimal `json:"receivable"`
	Payable    decimal.Decimal `json:"payable"`
	Skipped    int             `json:"skipped"`
}

// Aggregate folds a transactions snapshot against a contacts snapshot.
// A nil contacts map means the contacts snapshot has not arrived yet and no
// contact is treated as deleted.
func Aggregate(entries []Entry, contacts map[string]models.Contact) Summary {
	sum := Summary{
		Active:     []Row{},
		Deleted:    []Row{},
		Receivable: decimal.Zero,
		Payable:    decimal.Zero,
	}

	groups := Group(entries)
	for id, group := range groups {
		row := newRow(id, group, contacts)
		if c, ok := contacts[id]; ok && c.Deleted {
			row.DeletedAt = c.DeletedAt
			row.PurgeAfter = c.PurgeAfter()
			sum.Deleted = append(sum.Deleted, row)
			continue
		}
		switch row.Standing {
		case Receivable:
			sum.Receivable = sum.Receivable.Add(row.Balance)
		case Payable:
			sum.Payable = sum.Payable.Add(row.Balance.Abs())
		default:
			continue
		}
		sum.Active = append(sum.Active, row)
	}

	// Deleted contacts with no transactions are still listed for recovery.
	for id, c := range contacts {
		if !c.Deleted {
			continue
		}
		if _, seen := groups[id]; seen {
			continue
		}
		sum.Deleted = append(sum.Deleted, Row{
			ContactID:  id,
			Name:       c.Name,
			Number:     c.Number,
			Balance:    decimal.Zero,
			Standing:   Clear,
			DeletedAt:  c.DeletedAt,
			PurgeAfter: c.PurgeAfter(),
		})
	}

	sort.Slice(sum.Active, func(i, j int) bool {
		a, b := sum.Active[i], sum.Active[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		return a.ContactID < b.ContactID
	})
	sort.Slice(sum.Deleted, func(i, j int) bool {
		a, b := sum.Deleted[i], sum.Deleted[j]
		at, bt := deletedAt(a), deletedAt(b)
		if !at.Equal(bt) {
			return at.After(bt)
		}
		return a.ContactID < b.ContactID
	})
	return sum
}

func deletedAt(r Row) time.Time {
	if r.DeletedAt == nil {
		return time.Time{}
	}
	return *r.DeletedAt
}

// newRow names the row after the contact document when there is one,
// otherwise after the most recent entry.
func newRow(id string, group []Entry, contacts map[string]models.Contact) Row {
	balance := Fold(group)
	row := Row{
		ContactID: id,
		Balance:   balance,
		Standing:  StandingOf(balance),
		Entries:   len(group),
	}
	for _, e := range group {
		if e.CreatedAt.After(row.LastActivity) || row.Name == "" {
			if e.CreatedAt.After(row.LastActivity) {
				row.LastActivity = e.CreatedAt
			}
			if e.ContactName != "" {
				row.Name = e.ContactName
			}
			if e.ContactNumber != "" {
				row.Number = e.ContactNumber
			}
		}
	}
	if c, ok := contacts[id]; ok {
		if c.Name != "" {
			row.Name = c.Name
		}
		if c.Number != "" {
			row.Number = c.Number
		}
	}
	return row
}

// Summarize decodes both snapshots and aggregates them. contactsReady is
// false while the contacts stream has not delivered its first snapshot.
func Summarize(transactions, contacts []store.Document, contactsReady bool) Summary {
	entries, skipped := DecodeEntries(transactions)
	var idx map[string]models.Contact
	if contactsReady {
		idx = ContactIndex(contacts)
	}
	sum := Aggregate(entries, idx)
	sum.Skipped = skipped
	return sum
}
