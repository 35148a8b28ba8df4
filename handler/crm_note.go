package handler

import (
	"context"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jimmy-lgtm/pd-sms/model"
	"github.com/jimmy-lgtm/pd-sms/phone"
	"github.com/jimmy-lgtm/pd-sms/pkg/logger"
	"github.com/jimmy-lgtm/pd-sms/service"
)

var htmlTagRE = regexp.MustCompile(`<[^>]*>`)

// NoteWebhookHandler receives the CRM's note webhook. A note whose plain text
// starts with the configured tag (default "SMS:") is a send instruction; the
// note is rewritten into the outbound log entry after the send.
//
// The CRM retries aggressively on non-2xx, which would duplicate sends, so
// every internal failure is converted to a soft success.
type NoteWebhookHandler struct {
	crm     service.CRM
	carrier service.Carrier
	notes   *service.NoteLogger
	store   *service.MessageStore
	noteTag string
}

func NewNoteWebhookHandler(crm service.CRM, carrier service.Carrier, notes *service.NoteLogger, noteTag string) *NoteWebhookHandler {
	if noteTag == "" {
		noteTag = "SMS:"
	}
	return &NoteWebhookHandler{
		crm:     crm,
		carrier: carrier,
		notes:   notes,
		store:   service.GetMessageStore(),
		noteTag: noteTag,
	}
}

type noteWebhookRequest struct {
	Current struct {
		ID       int64  `json:"id"`
		Content  string `json:"content"`
		PersonID int64  `json:"person_id"`
		DealID   int64  `json:"deal_id"`
	} `json:"current"`
}

// Handle always answers 2xx; errors are logged and swallowed.
func (h *NoteWebhookHandler) Handle(c *gin.Context) {
	var req noteWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn(c.Request.Context(), "unparseable note webhook", "error", err)
		c.String(http.StatusOK, "ok")
		return
	}

	if err := h.process(c.Request.Context(), req); err != nil {
		logger.Error(c.Request.Context(), "note webhook processing failed", "note_id", req.Current.ID, "error", err)
	}

	c.String(http.StatusOK, "ok")
}

func (h *NoteWebhookHandler) process(ctx context.Context, req noteWebhookRequest) error {
	message, ok := h.commandMessage(req.Current.Content)
	if !ok {
		// Not a command note.
		return nil
	}

	personID := req.Current.PersonID
	dealID := req.Current.DealID

	// A note attached only to a deal still identifies its person through the
	// deal record.
	if personID == 0 && dealID != 0 {
		deal, err := h.crm.GetDeal(ctx, dealID)
		if err != nil {
			logger.Error(ctx, "failed to load deal for note", "deal_id", dealID, "error", err)
			return nil
		}
		personID = deal.PersonID
	}
	if personID == 0 {
		logger.Error(ctx, "note has no person to send to", "note_id", req.Current.ID)
		return nil
	}

	person, err := h.crm.GetPerson(ctx, personID)
	if err != nil {
		logger.Error(ctx, "failed to load person for note", "person_id", personID, "error", err)
		return nil
	}

	ph, ok := person.PrimaryPhone()
	if !ok {
		logger.Error(ctx, "person has no phone entries", "person_id", personID)
		return nil
	}
	dest, ok := phone.ToE164(ph.Value)
	if !ok {
		logger.Error(ctx, "person phone is unusable", "person_id", personID, "phone", ph.Value)
		return nil
	}

	messageID, err := h.carrier.SendMessage(ctx, dest, message)
	if err != nil {
		logger.Error(ctx, "note-triggered send failed", "dest", dest, "error", err)
		return nil
	}

	logLine := service.OutboundLogLine(time.Now(), dest, message)

	// The command note becomes the log note.
	if err := h.notes.ConsumeAndRewrite(ctx, req.Current.ID, logLine); err != nil {
		logger.Warn(ctx, "failed to rewrite command note", "note_id", req.Current.ID, "error", err)
	}
	if _, err := h.notes.AppendLog(ctx, logLine, personID, dealID); err != nil {
		logger.Warn(ctx, "failed to create outbound note", "person_id", personID, "error", err)
	}

	h.store.Append(&model.MessageLog{
		ID:        uuid.New().String(),
		Direction: model.DirectionOutbound,
		Peer:      dest,
		Body:      message,
		Status:    model.StatusSent,
		Source:    model.SourceCRMNote,
		MessageID: messageID,
		ContactID: personID,
		DealID:    dealID,
	})

	return nil
}

// commandMessage strips markup from the note content and, when the plain
// text starts with the tag (case-insensitive) followed by non-empty content,
// returns the message to send.
func (h *NoteWebhookHandler) commandMessage(content string) (string, bool) {
	plain := htmlTagRE.ReplaceAllString(content, "")
	plain = strings.TrimSpace(html.UnescapeString(plain))

	if len(plain) < len(h.noteTag) {
		return "", false
	}
	if !strings.EqualFold(plain[:len(h.noteTag)], h.noteTag) {
		return "", false
	}

	message := strings.TrimSpace(plain[len(h.noteTag):])
	if message == "" {
		return "", false
	}
	return message, true
}
