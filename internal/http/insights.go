package http

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"khata-ledger-go/internal/khata"
	"khata-ledger-go/internal/ledger"
	"khata-ledger-go/internal/models"
	"khata-ledger-go/internal/reminder"
)

type MonthlyActivity struct {
	Given           string `json:"given"`
	Received        string `json:"received"`
	GivenDisplay    string `json:"given_display"`
	ReceivedDisplay string `json:"received_display"`
	Entries         int    `json:"entries"`
	// Percentage of this month's given amount already received back.
	RecoveryRate float64 `json:"recovery_rate"`
}

type TopContact struct {
	ContactID string `json:"contact_id"`
	Name      string `json:"name"`
	Balance   string `json:"balance"`
	Display   string `json:"display"`
}

type ReminderSummary struct {
	Overdue  int `json:"overdue"`
	DueToday int `json:"due_today"`
	Upcoming int `json:"upcoming"`
}

type InsightCard struct {
	Type        string `json:"type"` // info, warning, success
	Title       string `json:"title"`
	Description string `json:"description"`
	ActionLabel string `json:"action_label"`
	ActionType  string `json:"action_type"`
}

type InsightsResponse struct {
	ThisMonth      MonthlyActivity `json:"this_month"`
	TopReceivables []TopContact    `json:"top_receivables"`
	TopPayables    []TopContact    `json:"top_payables"`
	Reminders      ReminderSummary `json:"reminders"`
	Cards          []InsightCard   `json:"cards"`
}

// GET /v1/insights
func (s *Server) getInsights(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()
	uid := userID(c)

	loc := s.khata.Location()
	now := s.khata.Now().In(loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	entries, _, err := s.khata.Transactions(ctx, uid, khata.Filter{From: monthStart})
	if err != nil {
		s.writeError(c, err)
		return
	}
	sum, err := s.khata.Home(ctx, uid)
	if err != nil {
		s.writeError(c, err)
		return
	}
	dates, err := s.khata.WasooliDates(ctx, uid)
	if err != nil {
		s.writeError(c, err)
		return
	}
	currency := s.currency(ctx, uid)

	res := InsightsResponse{
		TopReceivables: []TopContact{},
		TopPayables:    []TopContact{},
		Cards:          []InsightCard{},
	}

	// 1. This month
	given, received := decimal.Zero, decimal.Zero
	for _, e := range entries {
		if e.Direction == models.Received {
			received = received.Add(e.Amount)
		} else {
			given = given.Add(e.Amount)
		}
	}
	res.ThisMonth = MonthlyActivity{
		Given:           given.String(),
		Received:        received.String(),
		GivenDisplay:    ledger.FormatAmount(given, currency),
		ReceivedDisplay: ledger.FormatAmount(received, currency),
		Entries:         len(entries),
	}
	if given.IsPositive() {
		res.ThisMonth.RecoveryRate, _ = received.Div(given).Mul(decimal.NewFromInt(100)).Round(1).Float64()
	}

	// 2. Top contacts
	for _, row := range sum.Active {
		tc := TopContact{
			ContactID: row.ContactID,
			Name:      row.Name,
			Balance:   row.Balance.String(),
			Display:   ledger.FormatAmount(row.Balance, currency),
		}
		if row.Standing == ledger.Receivable {
			res.TopReceivables = append(res.TopReceivables, tc)
		} else {
			res.TopPayables = append(res.TopPayables, tc)
		}
	}
	byMagnitude := func(list []TopContact) {
		sort.SliceStable(list, func(i, j int) bool {
			a := decimal.RequireFromString(list[i].Balance).Abs()
			b := decimal.RequireFromString(list[j].Balance).Abs()
			return a.GreaterThan(b)
		})
	}
	byMagnitude(res.TopReceivables)
	byMagnitude(res.TopPayables)
	if len(res.TopReceivables) > 5 {
		res.TopReceivables = res.TopReceivables[:5]
	}
	if len(res.TopPayables) > 5 {
		res.TopPayables = res.TopPayables[:5]
	}

	// 3. Reminders, only for contacts that still owe something
	owing := make(map[string]bool, len(sum.Active))
	for _, row := range sum.Active {
		if row.Standing == ledger.Receivable {
			owing[row.ContactID] = true
		}
	}
	for _, w := range dates {
		if !owing[w.ContactID] {
			continue
		}
		switch n := reminder.DaysUntil(now, *w.Date, loc); {
		case n < 0:
			res.Reminders.Overdue++
		case n == 0:
			res.Reminders.DueToday++
		default:
			res.Reminders.Upcoming++
		}
	}

	// 4. Cards
	if res.Reminders.Overdue > 0 {
		res.Cards = append(res.Cards, InsightCard{
			Type:        "warning",
			Title:       "Overdue Wasooli",
			Description: fmt.Sprintf("%d contact(s) are past their collection date.", res.Reminders.Overdue),
			ActionLabel: "View Contacts",
			ActionType:  "navigate_contacts",
		})
	}
	if sum.Payable.GreaterThan(sum.Receivable) {
		res.Cards = append(res.Cards, InsightCard{
			Type:        "info",
			Title:       "You Owe More Than You Are Owed",
			Description: fmt.Sprintf("Dene hain %s against lene hain %s.", ledger.FormatAmount(sum.Payable, currency), ledger.FormatAmount(sum.Receivable, currency)),
			ActionLabel: "Review Ledger",
			ActionType:  "navigate_ledger",
		})
	}
	if given.IsPositive() && received.GreaterThanOrEqual(given) {
		res.Cards = append(res.Cards, InsightCard{
			Type:        "success",
			Title:       "Good Recovery",
			Description: "You have collected at least as much as you gave this month.",
			ActionLabel: "View Transactions",
			ActionType:  "navigate_transactions",
		})
	}

	c.JSON(http.StatusOK, res)
}
