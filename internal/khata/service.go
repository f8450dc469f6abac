// Package khata is the merchant-facing ledger service: recording entries,
// managing contacts, reminders and the business profile. Balances are never
// stored; reads fold the raw transactions through package ledger.
package khata

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"khata-ledger-go/internal/store"
)

var (
	ErrNoIdentity       = errors.New("no signed-in user")
	ErrInvalidAmount    = errors.New("amount must be a positive number")
	ErrInvalidContact   = errors.New("contact phone number has no digits")
	ErrInvalidDirection = errors.New("type must be given or received")
	ErrInvalidProfile   = errors.New("invalid profile")
	ErrNotFound         = errors.New("not found")
)

// PartialWriteError reports a transaction that was saved while the contact
// upsert that follows it failed. The transaction is not rolled back.
type PartialWriteError struct {
	TransactionID string
	Err           error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("transaction %s saved but contact update failed: %v", e.TransactionID, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

type Service struct {
	store           store.Store
	logger          *zap.Logger
	loc             *time.Location
	now             func() time.Time
	defaultCurrency string
}

type Option func(*Service)

func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithDefaultCurrency(code string) Option {
	return func(s *Service) { s.defaultCurrency = code }
}

func NewService(s store.Store, logger *zap.Logger, opts ...Option) *Service {
	svc := &Service{
		store:           s,
		logger:          logger,
		loc:             time.UTC,
		now:             time.Now,
		defaultCurrency: "RS",
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) Now() time.Time { return s.now() }

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
