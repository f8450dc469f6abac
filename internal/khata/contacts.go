package khata

import (
	"context"
	"sort"
	"strings"

	"khata-ledger-go/internal/ledger"
	"khata-ledger-go/internal/models"
	"khata-ledger-go/internal/phone"
	"khata-ledger-go/internal/store"
)

// CreateContact saves a contact without an entry. Saving an existing number
// updates its name and clears any soft delete.
func (s *Service) CreateContact(ctx context.Context, ownerID, name, number string) (models.Contact, error) {
	if ownerID == "" {
		return models.Contact{}, ErrNoIdentity
	}
	id := models.ContactID(number)
	if id == "" {
		return models.Contact{}, ErrInvalidContact
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = phone.Format(number)
	}
	doc, err := s.store.Put(ctx, models.CollectionContacts, ownerID, id,
		models.ContactUpsertFields(name, strings.TrimSpace(number), ownerID), true)
	if err != nil {
		return models.Contact{}, err
	}
	return ledger.DecodeContact(*doc)
}

// DeleteContact soft-deletes a contact. Its transactions stay untouched.
func (s *Service) DeleteContact(ctx context.Context, ownerID, contactID string) error {
	return s.flagContact(ctx, ownerID, contactID, models.SoftDeleteFields(s.now()))
}

// RecoverContact clears a soft delete; the balance reappears unchanged
// because it is derived from the same transactions.
func (s *Service) RecoverContact(ctx context.Context, ownerID, contactID string) error {
	return s.flagContact(ctx, ownerID, contactID, models.RecoverFields())
}

func (s *Service) flagContact(ctx context.Context, ownerID, contactID string, fields map[string]any) error {
	if ownerID == "" {
		return ErrNoIdentity
	}
	if _, err := s.store.Get(ctx, models.CollectionContacts, ownerID, contactID); err != nil {
		return notFound(err)
	}
	_, err := s.store.Put(ctx, models.CollectionContacts, ownerID, contactID, fields, true)
	return err
}

// Contacts lists live contacts by name. search matches a name substring or
// the digits of the number.
func (s *Service) Contacts(ctx context.Context, ownerID, search string) ([]models.Contact, error) {
	if ownerID == "" {
		return nil, ErrNoIdentity
	}
	docs, err := s.store.Find(ctx, models.CollectionContacts, store.Query{OwnerID: ownerID})
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(search))
	out := []models.Contact{}
	for _, d := range docs {
		c, err := ledger.DecodeContact(d)
		if err != nil || c.Deleted {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(c.Name), q) && !phone.Matches(c.Number, q) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// DeletedContacts lists soft-deleted contacts with their balance and the end
// of the advertised recovery window.
func (s *Service) DeletedContacts(ctx context.Context, ownerID string) ([]ledger.Row, error) {
	sum, err := s.Home(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return sum.Deleted, nil
}
