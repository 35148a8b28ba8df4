package handler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jimmy-lgtm/pd-sms/model"
	"github.com/jimmy-lgtm/pd-sms/phone"
	"github.com/jimmy-lgtm/pd-sms/pkg/logger"
	"github.com/jimmy-lgtm/pd-sms/service"
)

// SlackEventsHandler serves the Events API subscription. Only plain user
// replies inside a thread are acted on: the thread root's phone number is
// extracted and the reply text is relayed as an SMS.
type SlackEventsHandler struct {
	chat     service.Chat
	resolver *service.Resolver
	carrier  service.Carrier
	notes    *service.NoteLogger
	deduper  *service.Deduper
	store    *service.MessageStore
	wg       *sync.WaitGroup
}

func NewSlackEventsHandler(chat service.Chat, resolver *service.Resolver, carrier service.Carrier, notes *service.NoteLogger, deduper *service.Deduper, wg *sync.WaitGroup) *SlackEventsHandler {
	return &SlackEventsHandler{
		chat:     chat,
		resolver: resolver,
		carrier:  carrier,
		notes:    notes,
		deduper:  deduper,
		store:    service.GetMessageStore(),
		wg:       wg,
	}
}

type slackEventEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	EventID   string `json:"event_id"`
	Event     struct {
		Type     string `json:"type"`
		Subtype  string `json:"subtype"`
		BotID    string `json:"bot_id"`
		User     string `json:"user"`
		Text     string `json:"text"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
		Channel  string `json:"channel"`
	} `json:"event"`
}

// Handle acknowledges every event delivery with a 2xx (Slack retries on
// anything else) and answers the url_verification handshake by echoing the
// challenge.
func (h *SlackEventsHandler) Handle(c *gin.Context) {
	var env slackEventEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		// Malformed deliveries are dropped, never retried.
		c.String(http.StatusOK, "")
		return
	}

	if env.Type == "url_verification" {
		c.JSON(http.StatusOK, gin.H{"challenge": env.Challenge})
		return
	}

	c.String(http.StatusOK, "")

	// Retry deliveries reuse the event ID; duplicates stop here. The ack
	// above already answered the HTTP exchange.
	if h.deduper.IsDuplicate(env.EventID) {
		return
	}
	h.deduper.MarkSeen(env.EventID)

	if !isThreadReply(env) {
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx := context.WithValue(context.Background(), logger.TriggerKey, "slack_thread")
		h.process(ctx, env)
	}()
}

// isThreadReply filters out everything but plain user messages posted as a
// reply inside a thread.
func isThreadReply(env slackEventEnvelope) bool {
	ev := env.Event
	if ev.Type != "message" {
		return false
	}
	if ev.Subtype != "" || ev.BotID != "" || ev.User == "" {
		return false
	}
	return ev.ThreadTS != "" && ev.ThreadTS != ev.TS
}

func (h *SlackEventsHandler) process(ctx context.Context, env slackEventEnvelope) {
	channel := env.Event.Channel
	threadTS := env.Event.ThreadTS

	rootText, err := h.chat.GetThreadRoot(ctx, channel, threadTS)
	if err != nil {
		logger.Error(ctx, "failed to fetch thread root", "channel", channel, "error", err)
		h.postInThread(ctx, channel, threadTS, "Could not read this thread's first message, no SMS sent.")
		return
	}

	dest, ok := phone.ExtractFromText(rootText)
	if !ok {
		h.postInThread(ctx, channel, threadTS, "No phone number found in this thread's first message, no SMS sent.")
		return
	}

	contact, deal, err := h.resolver.Resolve(ctx, dest)
	if err != nil {
		logger.Error(ctx, "thread reply contact resolution failed", "dest", dest, "error", err)
		h.postInThread(ctx, channel, threadTS, "Failed to send SMS.")
		return
	}
	var dealID int64
	if deal != nil {
		dealID = deal.ID
	}

	messageID, err := h.carrier.SendMessage(ctx, dest, env.Event.Text)
	if err != nil {
		logger.Error(ctx, "thread reply send failed", "dest", dest, "error", err)
		h.postInThread(ctx, channel, threadTS, "Failed to send SMS.")
		return
	}

	content := service.OutboundLogLine(time.Now(), dest, env.Event.Text)
	if _, err := h.notes.AppendLog(ctx, content, contact.ID, dealID); err != nil {
		logger.Warn(ctx, "failed to create outbound note", "contact_id", contact.ID, "error", err)
	}

	h.store.Append(&model.MessageLog{
		ID:        uuid.New().String(),
		Direction: model.DirectionOutbound,
		Peer:      dest,
		Body:      env.Event.Text,
		Status:    model.StatusSent,
		Source:    model.SourceSlackThread,
		MessageID: messageID,
		ContactID: contact.ID,
		DealID:    dealID,
	})

	h.postInThread(ctx, channel, threadTS, fmt.Sprintf("SMS sent to %s", dest))
}

func (h *SlackEventsHandler) postInThread(ctx context.Context, channel, threadTS, text string) {
	if err := h.chat.PostMessage(ctx, channel, text, threadTS); err != nil {
		logger.Warn(ctx, "failed to post in thread", "channel", channel, "error", err)
	}
}
