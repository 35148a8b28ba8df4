package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jimmy-lgtm/pd-sms/model"
)

// fakeCRM is an in-memory CRM used by resolver and note tests. Behaviors are
// overridable per test through the err fields.
type fakeCRM struct {
	mu sync.Mutex

	personsByPhone map[string][]model.Contact
	persons        map[int64]*model.Contact
	deals          map[int64]*model.Deal
	openDeals      map[int64][]model.Deal
	notes          map[int64]*model.Note

	nextPersonID int64
	nextNoteID   int64

	searchErrFor  map[string]error // per-candidate search failures
	createErr     error
	getPersonErr  error
	openDealsErr  error
	getDealErr    error
	createNoteErr error
	updateNoteErr error

	searchCalls  []string
	createdNotes []*model.Note
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		personsByPhone: make(map[string][]model.Contact),
		persons:        make(map[int64]*model.Contact),
		deals:          make(map[int64]*model.Deal),
		openDeals:      make(map[int64][]model.Deal),
		notes:          make(map[int64]*model.Note),
		searchErrFor:   make(map[string]error),
		nextPersonID:   1000,
		nextNoteID:     5000,
	}
}

func (f *fakeCRM) SearchPersonsByPhone(ctx context.Context, phone string) ([]model.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls = append(f.searchCalls, phone)
	if err := f.searchErrFor[phone]; err != nil {
		return nil, err
	}
	return f.personsByPhone[phone], nil
}

func (f *fakeCRM) CreatePerson(ctx context.Context, name string, phones []model.Phone) (*model.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextPersonID++
	c := &model.Contact{ID: f.nextPersonID, Name: name, Phones: phones}
	f.persons[c.ID] = c
	return c, nil
}

func (f *fakeCRM) GetPerson(ctx context.Context, id int64) (*model.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getPersonErr != nil {
		return nil, f.getPersonErr
	}
	c, ok := f.persons[id]
	if !ok {
		return nil, fmt.Errorf("person %d not found", id)
	}
	return c, nil
}

func (f *fakeCRM) GetOpenDealsForPerson(ctx context.Context, personID int64, limit int) ([]model.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openDealsErr != nil {
		return nil, f.openDealsErr
	}
	deals := f.openDeals[personID]
	if limit > 0 && len(deals) > limit {
		deals = deals[:limit]
	}
	return deals, nil
}

func (f *fakeCRM) GetDeal(ctx context.Context, id int64) (*model.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getDealErr != nil {
		return nil, f.getDealErr
	}
	d, ok := f.deals[id]
	if !ok {
		return nil, errors.New("deal not found")
	}
	return d, nil
}

func (f *fakeCRM) CreateNote(ctx context.Context, content string, personID, dealID int64) (*model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createNoteErr != nil {
		return nil, f.createNoteErr
	}
	f.nextNoteID++
	n := &model.Note{ID: f.nextNoteID, Content: content, PersonID: personID, DealID: dealID}
	f.notes[n.ID] = n
	f.createdNotes = append(f.createdNotes, n)
	return n, nil
}

func (f *fakeCRM) UpdateNote(ctx context.Context, noteID int64, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateNoteErr != nil {
		return f.updateNoteErr
	}
	n, ok := f.notes[noteID]
	if !ok {
		f.notes[noteID] = &model.Note{ID: noteID, Content: content}
		return nil
	}
	n.Content = content
	return nil
}
