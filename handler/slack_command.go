package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jimmy-lgtm/pd-sms/config"
	"github.com/jimmy-lgtm/pd-sms/model"
	"github.com/jimmy-lgtm/pd-sms/phone"
	"github.com/jimmy-lgtm/pd-sms/pkg/logger"
	"github.com/jimmy-lgtm/pd-sms/service"
)

const commandUsage = "Usage: /sms <phone number> <message>"

// SlackCommandHandler serves the slash command. Slack requires a response
// within three seconds, so the handler acks immediately and reports the
// outcome through the command's response_url.
type SlackCommandHandler struct {
	config     *config.Config
	resolver   *service.Resolver
	carrier    service.Carrier
	notes      *service.NoteLogger
	store      *service.MessageStore
	httpClient *http.Client
	wg         *sync.WaitGroup
}

func NewSlackCommandHandler(cfg *config.Config, resolver *service.Resolver, carrier service.Carrier, notes *service.NoteLogger, wg *sync.WaitGroup) *SlackCommandHandler {
	return &SlackCommandHandler{
		config:     cfg,
		resolver:   resolver,
		carrier:    carrier,
		notes:      notes,
		store:      service.GetMessageStore(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		wg:         wg,
	}
}

// Handle acknowledges the command and hands the work to a background
// goroutine. Workspace mismatches are reported as command output, not as an
// HTTP error.
func (h *SlackCommandHandler) Handle(c *gin.Context) {
	teamID := c.PostForm("team_id")
	text := c.PostForm("text")
	responseURL := c.PostForm("response_url")

	if !h.config.WorkspaceAllowed(teamID) {
		logger.Warn(c.Request.Context(), "slash command from unauthorized workspace", "team_id", teamID)
		c.String(http.StatusOK, "This workspace is not authorized to send messages.")
		return
	}

	c.String(http.StatusOK, "")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx := context.WithValue(context.Background(), logger.TriggerKey, "slack_command")
		h.process(ctx, text, responseURL)
	}()
}

func (h *SlackCommandHandler) process(ctx context.Context, text, responseURL string) {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 2)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		h.respond(ctx, responseURL, commandUsage)
		return
	}
	destToken := parts[0]
	body := strings.TrimSpace(parts[1])

	dest := destToken
	if !strings.HasPrefix(destToken, "+") {
		e164, ok := phone.ToE164(destToken)
		if !ok {
			h.respond(ctx, responseURL, commandUsage)
			return
		}
		dest = e164
	}

	contact, deal, err := h.resolver.Resolve(ctx, dest)
	if err != nil {
		logger.Error(ctx, "slash command contact resolution failed", "dest", dest, "error", err)
		h.respond(ctx, responseURL, fmt.Sprintf("Could not send to %s: contact lookup failed.", dest))
		return
	}
	var dealID int64
	if deal != nil {
		dealID = deal.ID
	}

	messageID, err := h.carrier.SendMessage(ctx, dest, body)
	if err != nil {
		logger.Error(ctx, "slash command send failed", "dest", dest, "error", err)
		h.respond(ctx, responseURL, fmt.Sprintf("Failed to send message to %s.", dest))
		return
	}

	content := service.OutboundLogLine(time.Now(), dest, body)
	if _, err := h.notes.AppendLog(ctx, content, contact.ID, dealID); err != nil {
		logger.Warn(ctx, "failed to create outbound note", "contact_id", contact.ID, "error", err)
	}

	h.store.Append(&model.MessageLog{
		ID:        uuid.New().String(),
		Direction: model.DirectionOutbound,
		Peer:      dest,
		Body:      body,
		Status:    model.StatusSent,
		Source:    model.SourceSlackCommand,
		MessageID: messageID,
		ContactID: contact.ID,
		DealID:    dealID,
	})

	h.respond(ctx, responseURL, fmt.Sprintf("Message sent to %s: %s", dest, body))
}

// respond posts command output to the one-shot response_url.
func (h *SlackCommandHandler) respond(ctx context.Context, responseURL, text string) {
	if responseURL == "" {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"response_type": "ephemeral",
		"text":          text,
	})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewBuffer(payload))
	if err != nil {
		logger.Warn(ctx, "failed to build response_url request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		logger.Warn(ctx, "response_url post failed", "error", err)
		return
	}
	resp.Body.Close()
}
