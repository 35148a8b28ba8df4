package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jimmy-lgtm/pd-sms/model"
	"github.com/jimmy-lgtm/pd-sms/pkg/logger"
	"github.com/jimmy-lgtm/pd-sms/service"
)

// SendHandler exposes the manual send API. Contact and deal identifiers are
// caller-supplied; no resolution is performed.
type SendHandler struct {
	carrier service.Carrier
	notes   *service.NoteLogger
	store   *service.MessageStore
}

func NewSendHandler(carrier service.Carrier, notes *service.NoteLogger) *SendHandler {
	return &SendHandler{
		carrier: carrier,
		notes:   notes,
		store:   service.GetMessageStore(),
	}
}

type SendRequest struct {
	To        string `json:"to" binding:"required"`
	Body      string `json:"body" binding:"required"`
	ContactID int64  `json:"contact_id"`
	DealID    int64  `json:"deal_id"`
}

type SendResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Handle sends one message and logs it as an outbound note.
func (h *SendHandler) Handle(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, SendResponse{Success: false, Error: "Invalid request"})
		return
	}

	ctx := c.Request.Context()

	messageID, err := h.carrier.SendMessage(ctx, req.To, req.Body)
	if err != nil {
		logger.Error(ctx, "manual send failed", "to", req.To, "error", err)
		c.JSON(http.StatusBadGateway, SendResponse{Success: false, Error: "Failed to send message"})
		return
	}

	// The message is already out; a note failure must not turn the response
	// into an error the caller might retry.
	if req.ContactID != 0 {
		content := service.OutboundLogLine(time.Now(), req.To, req.Body)
		if _, err := h.notes.AppendLog(ctx, content, req.ContactID, req.DealID); err != nil {
			logger.Warn(ctx, "failed to create outbound note", "contact_id", req.ContactID, "error", err)
		}
	}

	h.store.Append(&model.MessageLog{
		ID:        uuid.New().String(),
		Direction: model.DirectionOutbound,
		Peer:      req.To,
		Body:      req.Body,
		Status:    model.StatusSent,
		Source:    model.SourceAPI,
		MessageID: messageID,
		ContactID: req.ContactID,
		DealID:    req.DealID,
	})

	c.JSON(http.StatusOK, SendResponse{Success: true, MessageID: messageID})
}
