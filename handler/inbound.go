package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jimmy-lgtm/pd-sms/model"
	"github.com/jimmy-lgtm/pd-sms/pkg/logger"
	"github.com/jimmy-lgtm/pd-sms/service"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// InboundHandler receives the carrier's inbound-message webhook, logs the
// message as a CRM note, and notifies the chat channel.
type InboundHandler struct {
	resolver *service.Resolver
	notes    *service.NoteLogger
	chat     service.Chat
	media    *service.MediaService // nil when media archiving is disabled
	store    *service.MessageStore
}

func NewInboundHandler(resolver *service.Resolver, notes *service.NoteLogger, chat service.Chat, media *service.MediaService) *InboundHandler {
	return &InboundHandler{
		resolver: resolver,
		notes:    notes,
		chat:     chat,
		media:    media,
		store:    service.GetMessageStore(),
	}
}

// Handle processes one inbound SMS/MMS. The carrier retries on non-2xx, so
// the empty TwiML ack is only sent once the note exists; earlier failures
// surface as a server error.
func (h *InboundHandler) Handle(c *gin.Context) {
	from := c.PostForm("From")
	body := c.PostForm("Body")
	messageSID := c.PostForm("MessageSid")
	numMedia, _ := strconv.Atoi(c.PostForm("NumMedia"))

	ctx := c.Request.Context()

	if from == "" {
		c.String(http.StatusBadRequest, "missing From")
		return
	}

	contact, deal, err := h.resolver.Resolve(ctx, from)
	if err != nil {
		logger.Error(ctx, "failed to resolve inbound sender", "from", from, "error", err)
		c.String(http.StatusInternalServerError, "failed to resolve sender")
		return
	}

	var dealID int64
	if deal != nil {
		dealID = deal.ID
	}

	mediaLinks := h.archiveMedia(ctx, c, messageSID, numMedia)

	content := service.InboundLogLine(time.Now(), from, body, numMedia, mediaLinks)
	if _, err := h.notes.AppendLog(ctx, content, contact.ID, dealID); err != nil {
		logger.Error(ctx, "failed to create inbound note", "contact_id", contact.ID, "error", err)
		c.String(http.StatusInternalServerError, "failed to log message")
		return
	}

	// Channel notification is best-effort.
	if err := h.chat.Notify(ctx, fmt.Sprintf("New SMS from %s: %s", from, body)); err != nil {
		logger.Warn(ctx, "chat notify failed", "error", err)
	}

	h.store.Append(&model.MessageLog{
		ID:        uuid.New().String(),
		Direction: model.DirectionInbound,
		Peer:      from,
		Body:      body,
		Status:    model.StatusReceived,
		Source:    model.SourceCarrier,
		MessageID: messageSID,
		ContactID: contact.ID,
		DealID:    dealID,
	})

	c.Header("Content-Type", "text/xml")
	c.String(http.StatusOK, emptyTwiML)
}

// archiveMedia stores each attachment and returns presigned links. Failures
// are logged and skipped; the note still records the attachment count.
func (h *InboundHandler) archiveMedia(ctx context.Context, c *gin.Context, messageSID string, numMedia int) []string {
	if h.media == nil || numMedia == 0 {
		return nil
	}

	var links []string
	for i := 0; i < numMedia; i++ {
		mediaURL := c.PostForm(fmt.Sprintf("MediaUrl%d", i))
		if mediaURL == "" {
			continue
		}
		link, err := h.media.ArchiveAttachment(ctx, messageSID, mediaURL)
		if err != nil {
			logger.Warn(ctx, "failed to archive attachment", "index", i, "error", err)
			continue
		}
		links = append(links, link)
	}
	return links
}
