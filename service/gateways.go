package service

import (
	"context"

	"github.com/jimmy-lgtm/pd-sms/model"
)

// Carrier is the outbound SMS gateway.
type Carrier interface {
	// SendMessage sends body to the destination number and returns the
	// carrier's message ID.
	SendMessage(ctx context.Context, to, body string) (string, error)
}

// CRM is the contact/deal/notes system of record.
type CRM interface {
	SearchPersonsByPhone(ctx context.Context, phone string) ([]model.Contact, error)
	CreatePerson(ctx context.Context, name string, phones []model.Phone) (*model.Contact, error)
	GetPerson(ctx context.Context, id int64) (*model.Contact, error)
	GetOpenDealsForPerson(ctx context.Context, personID int64, limit int) ([]model.Deal, error)
	GetDeal(ctx context.Context, id int64) (*model.Deal, error)
	CreateNote(ctx context.Context, content string, personID, dealID int64) (*model.Note, error)
	UpdateNote(ctx context.Context, noteID int64, content string) error
}

// Chat is the team messaging platform.
type Chat interface {
	// PostMessage posts text into a channel; threadTS, when non-empty,
	// targets a thread.
	PostMessage(ctx context.Context, channel, text, threadTS string) error
	// GetThreadRoot returns the text of the root message of a thread.
	GetThreadRoot(ctx context.Context, channel, threadTS string) (string, error)
	// Notify posts text through the plain incoming webhook.
	Notify(ctx context.Context, text string) error
}
