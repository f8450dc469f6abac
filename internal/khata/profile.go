package khata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"khata-ledger-go/internal/models"
	"khata-ledger-go/internal/reminder"
	"khata-ledger-go/internal/store"
)

// Profile loads the business profile, filling in the default currency.
func (s *Service) Profile(ctx context.Context, ownerID string) (models.Profile, error) {
	if ownerID == "" {
		return models.Profile{}, ErrNoIdentity
	}
	p := models.Profile{UserID: ownerID}
	doc, err := s.store.Get(ctx, models.CollectionUsers, ownerID, ownerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return models.Profile{}, err
	default:
		if err := doc.Decode(&p); err != nil {
			return models.Profile{}, fmt.Errorf("decode profile: %w", err)
		}
		p.UserID = ownerID
	}
	if p.Currency == "" {
		p.Currency = s.defaultCurrency
	}
	if p.BusinessType == "" {
		p.BusinessType = models.BusinessTypes[0]
	}
	return p, nil
}

// SetBusinessName completes onboarding.
func (s *Service) SetBusinessName(ctx context.Context, ownerID, name string) (models.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Profile{}, fmt.Errorf("%w: business name is required", ErrInvalidProfile)
	}
	return s.UpdateProfile(ctx, ownerID, ProfileUpdate{BusinessName: &name})
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	BusinessName *string `json:"businessName"`
	BusinessType *string `json:"businessType"`
	Currency     *string `json:"currency"`
	Username     *string `json:"username"`
}

func (s *Service) UpdateProfile(ctx context.Context, ownerID string, u ProfileUpdate) (models.Profile, error) {
	if ownerID == "" {
		return models.Profile{}, ErrNoIdentity
	}
	fields := map[string]any{"userId": ownerID}
	if u.BusinessName != nil {
		name := strings.TrimSpace(*u.BusinessName)
		if name == "" {
			return models.Profile{}, fmt.Errorf("%w: business name is required", ErrInvalidProfile)
		}
		fields["businessName"] = name
	}
	if u.BusinessType != nil {
		if !models.ValidBusinessType(*u.BusinessType) {
			return models.Profile{}, fmt.Errorf("%w: unknown business type %q", ErrInvalidProfile, *u.BusinessType)
		}
		fields["businessType"] = *u.BusinessType
	}
	if u.Currency != nil {
		c := strings.ToUpper(strings.TrimSpace(*u.Currency))
		if !models.ValidCurrency(c) {
			return models.Profile{}, fmt.Errorf("%w: unknown currency %q", ErrInvalidProfile, *u.Currency)
		}
		fields["currency"] = c
	}
	if u.Username != nil {
		fields["username"] = strings.TrimSpace(*u.Username)
	}

	if _, err := s.store.Put(ctx, models.CollectionUsers, ownerID, ownerID, fields, true); err != nil {
		return models.Profile{}, err
	}
	return s.Profile(ctx, ownerID)
}

// SetWasooliDate sets or clears the collection reminder of a contact and
// returns the stored date, nil when cleared.
func (s *Service) SetWasooliDate(ctx context.Context, ownerID, contactID string, preset reminder.Preset, custom *time.Time) (*time.Time, error) {
	if ownerID == "" {
		return nil, ErrNoIdentity
	}
	if strings.TrimSpace(contactID) == "" {
		return nil, ErrInvalidContact
	}
	due, err := reminder.Resolve(preset, s.now(), custom, s.loc)
	if err != nil {
		return nil, err
	}
	w := models.WasooliDate{UserID: ownerID, ContactID: contactID, Date: due}
	if _, err := s.store.Put(ctx, models.CollectionWasooliDates, ownerID, models.WasooliKey(ownerID, contactID), w.Fields(), false); err != nil {
		return nil, err
	}
	return due, nil
}

func (s *Service) WasooliDate(ctx context.Context, ownerID, contactID string) (*time.Time, error) {
	if ownerID == "" {
		return nil, ErrNoIdentity
	}
	doc, err := s.store.Get(ctx, models.CollectionWasooliDates, ownerID, models.WasooliKey(ownerID, contactID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var w models.WasooliDate
	if err := doc.Decode(&w); err != nil {
		return nil, fmt.Errorf("decode wasooli date: %w", err)
	}
	return w.Date, nil
}

// WasooliDates lists every reminder that is set.
func (s *Service) WasooliDates(ctx context.Context, ownerID string) ([]models.WasooliDate, error) {
	if ownerID == "" {
		return nil, ErrNoIdentity
	}
	docs, err := s.store.Find(ctx, models.CollectionWasooliDates, store.Query{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}
	out := make([]models.WasooliDate, 0, len(docs))
	for _, d := range docs {
		var w models.WasooliDate
		if err := d.Decode(&w); err != nil || w.Date == nil {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}
