package service

import (
	"context"
	"fmt"

	"github.com/jimmy-lgtm/pd-sms/model"
	"github.com/jimmy-lgtm/pd-sms/phone"
	"github.com/jimmy-lgtm/pd-sms/pkg/logger"
)

// Resolver finds or creates the CRM contact for a phone number and looks up
// that contact's first open deal.
type Resolver struct {
	crm CRM
}

func NewResolver(crm CRM) *Resolver {
	return &Resolver{crm: crm}
}

// Resolve tries each candidate form of rawPhone against the CRM in order,
// first match wins. A failed search for one candidate is skipped and the next
// is tried. When nothing matches, a new person is created with the E.164 form
// as name and primary phone and the bare ten digits as a secondary phone.
// The deal may be nil; a deal-lookup failure never fails the resolution.
func (r *Resolver) Resolve(ctx context.Context, rawPhone string) (*model.Contact, *model.Deal, error) {
	candidates := phone.CandidatesFor(rawPhone)
	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("phone %q is unresolvable", rawPhone)
	}

	var contact *model.Contact
	for _, candidate := range candidates {
		matches, err := r.crm.SearchPersonsByPhone(ctx, candidate)
		if err != nil {
			logger.Warn(ctx, "person search failed, trying next candidate",
				"candidate", candidate, "error", err)
			continue
		}
		if len(matches) > 0 {
			contact = &matches[0]
			break
		}
	}

	if contact == nil {
		e164, ok := phone.ToE164(rawPhone)
		if !ok {
			return nil, nil, fmt.Errorf("phone %q is unresolvable", rawPhone)
		}
		created, err := r.crm.CreatePerson(ctx, e164, []model.Phone{
			{Value: e164, Primary: true},
			{Value: phone.Last10(rawPhone)},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create contact: %w", err)
		}
		logger.Info(ctx, "created contact", "contact_id", created.ID, "phone", e164)
		contact = created
	}

	deal := r.openDealFor(ctx, contact.ID)
	return contact, deal, nil
}

// openDealFor returns the contact's first open deal, or nil. Lookup failures
// are logged and treated as "no deal".
func (r *Resolver) openDealFor(ctx context.Context, contactID int64) *model.Deal {
	deals, err := r.crm.GetOpenDealsForPerson(ctx, contactID, 1)
	if err != nil {
		logger.Warn(ctx, "open deal lookup failed, proceeding without deal",
			"contact_id", contactID, "error", err)
		return nil
	}
	if len(deals) == 0 {
		return nil
	}
	return &deals[0]
}
