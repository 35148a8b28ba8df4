package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jimmy-lgtm/pd-sms/model"
)

type sentMessage struct {
	To   string
	Body string
}

// fakeCarrier records outbound sends and can be made to fail.
type fakeCarrier struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr error
	nextSID int
}

func (f *fakeCarrier) SendMessage(ctx context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sentMessage{To: to, Body: body})
	f.nextSID++
	return fmt.Sprintf("SM%04d", f.nextSID), nil
}

func (f *fakeCarrier) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

type threadPost struct {
	Channel  string
	Text     string
	ThreadTS string
}

// fakeChat records channel posts and webhook notifications.
type fakeChat struct {
	mu        sync.Mutex
	posts     []threadPost
	notified  []string
	rootText  string
	rootErr   error
	postErr   error
	notifyErr error
}

func (f *fakeChat) PostMessage(ctx context.Context, channel, text, threadTS string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, threadPost{Channel: channel, Text: text, ThreadTS: threadTS})
	return nil
}

func (f *fakeChat) GetThreadRoot(ctx context.Context, channel, threadTS string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rootErr != nil {
		return "", f.rootErr
	}
	return f.rootText, nil
}

func (f *fakeChat) Notify(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notified = append(f.notified, text)
	return nil
}

func (f *fakeChat) threadPosts() []threadPost {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]threadPost, len(f.posts))
	copy(out, f.posts)
	return out
}

// fakeCRM backs the resolver and note logger in handler tests.
type fakeCRM struct {
	mu sync.Mutex

	personsByPhone map[string][]model.Contact
	persons        map[int64]*model.Contact
	deals          map[int64]*model.Deal
	openDeals      map[int64][]model.Deal
	notes          map[int64]*model.Note

	nextPersonID int64
	nextNoteID   int64

	searchErr     error
	getPersonErr  error
	getDealErr    error
	createNoteErr error
	updateNoteErr error

	createdPersons []*model.Contact
	createdNotes   []*model.Note
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		personsByPhone: make(map[string][]model.Contact),
		persons:        make(map[int64]*model.Contact),
		deals:          make(map[int64]*model.Deal),
		openDeals:      make(map[int64][]model.Deal),
		notes:          make(map[int64]*model.Note),
		nextPersonID:   100,
		nextNoteID:     9000,
	}
}

func (f *fakeCRM) SearchPersonsByPhone(ctx context.Context, phone string) ([]model.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.personsByPhone[phone], nil
}

func (f *fakeCRM) CreatePerson(ctx context.Context, name string, phones []model.Phone) (*model.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPersonID++
	c := &model.Contact{ID: f.nextPersonID, Name: name, Phones: phones}
	f.persons[c.ID] = c
	f.createdPersons = append(f.createdPersons, c)
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

func (f *fakeCRM) noteContents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.createdNotes))
	for _, n := range f.createdNotes {
		out = append(out, n.Content)
	}
	return out
}
