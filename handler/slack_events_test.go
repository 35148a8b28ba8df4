package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimmy-lgtm/pd-sms/model"
	"github.com/jimmy-lgtm/pd-sms/service"
)

func newEventsRouter(crm *fakeCRM, carrier *fakeCarrier, chat *fakeChat, wg *sync.WaitGroup) *gin.Engine {
	gin.SetMode(gin.TestMode)
	deduper := service.NewDeduper(10*time.Minute, time.Minute)
	h := NewSlackEventsHandler(chat, service.NewResolver(crm), carrier, service.NewNoteLogger(crm), deduper, wg)

	router := gin.New()
	router.POST("/webhooks/slack/events", h.Handle)
	return router
}

func postEvent(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/slack/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func threadReplyEvent(eventID, text string) string {
	return `{
		"type": "event_callback",
		"event_id": "` + eventID + `",
		"event": {
			"type": "message",
			"user": "U1",
			"text": "` + text + `",
			"ts": "1700000001.000100",
			"thread_ts": "1700000000.000100",
			"channel": "C1"
		}
	}`
}

func TestEventsURLVerification(t *testing.T) {
	var wg sync.WaitGroup
	router := newEventsRouter(newFakeCRM(), &fakeCarrier{}, &fakeChat{}, &wg)

	w := postEvent(router, `{"type":"url_verification","challenge":"abc123"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"challenge":"abc123"`)
}

func TestEventsThreadReplySendsSMS(t *testing.T) {
	crm := newFakeCRM()
	crm.personsByPhone["4805551234"] = []model.Contact{{ID: 7}}
	carrier := &fakeCarrier{}
	chat := &fakeChat{rootText: "New SMS from +14805551234: need help"}
	var wg sync.WaitGroup
	router := newEventsRouter(crm, carrier, chat, &wg)

	w := postEvent(router, threadReplyEvent("Ev1", "We are on it"))
	assert.Equal(t, http.StatusOK, w.Code)
	wg.Wait()

	sent := carrier.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "+14805551234", sent[0].To)
	assert.Equal(t, "We are on it", sent[0].Body)

	posts := chat.threadPosts()
	require.Len(t, posts, 1)
	assert.Equal(t, "C1", posts[0].Channel)
	assert.Equal(t, "1700000000.000100", posts[0].ThreadTS)
	assert.Contains(t, posts[0].Text, "SMS sent to +14805551234")

	require.Len(t, crm.createdNotes, 1)
	assert.Contains(t, crm.createdNotes[0].Content, "We are on it")
}

func TestEventsRootWithoutNumber(t *testing.T) {
	carrier := &fakeCarrier{}
	chat := &fakeChat{rootText: "General discussion, nothing else"}
	var wg sync.WaitGroup
	router := newEventsRouter(newFakeCRM(), carrier, chat, &wg)

	postEvent(router, threadReplyEvent("Ev2", "reply text"))
	wg.Wait()

	assert.Empty(t, carrier.sentMessages())

	posts := chat.threadPosts()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Text, "No phone number found")
}

func TestEventsRootFetchFailure(t *testing.T) {
	carrier := &fakeCarrier{}
	chat := &fakeChat{rootErr: assert.AnError}
	var wg sync.WaitGroup
	router := newEventsRouter(newFakeCRM(), carrier, chat, &wg)

	postEvent(router, threadReplyEvent("Ev3", "reply text"))
	wg.Wait()

	assert.Empty(t, carrier.sentMessages())

	posts := chat.threadPosts()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0].Text, "Could not read")
}

func TestEventsDuplicateDeliveryProcessedOnce(t *testing.T) {
	crm := newFakeCRM()
	crm.personsByPhone["4805551234"] = []model.Contact{{ID: 7}}
	carrier := &fakeCarrier{}
	chat := &fakeChat{rootText: "+14805551234"}
	var wg sync.WaitGroup
	router := newEventsRouter(crm, carrier, chat, &wg)

	postEvent(router, threadReplyEvent("Ev4", "hello"))
	postEvent(router, threadReplyEvent("Ev4", "hello"))
	wg.Wait()

	assert.Len(t, carrier.sentMessages(), 1)
}

func TestEventsIgnoresNonThreadMessages(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			"top-level message",
			`{"type":"event_callback","event_id":"EvA","event":{"type":"message","user":"U1","text":"hi","ts":"1.0","channel":"C1"}}`,
		},
		{
			"thread root",
			`{"type":"event_callback","event_id":"EvB","event":{"type":"message","user":"U1","text":"hi","ts":"1.0","thread_ts":"1.0","channel":"C1"}}`,
		},
		{
			"bot message",
			`{"type":"event_callback","event_id":"EvC","event":{"type":"message","bot_id":"B1","text":"hi","ts":"2.0","thread_ts":"1.0","channel":"C1"}}`,
		},
		{
			"message with subtype",
			`{"type":"event_callback","event_id":"EvD","event":{"type":"message","subtype":"message_changed","user":"U1","ts":"2.0","thread_ts":"1.0","channel":"C1"}}`,
		},
		{
			"reaction event",
			`{"type":"event_callback","event_id":"EvE","event":{"type":"reaction_added","user":"U1"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			carrier := &fakeCarrier{}
			chat := &fakeChat{rootText: "+14805551234"}
			var wg sync.WaitGroup
			router := newEventsRouter(newFakeCRM(), carrier, chat, &wg)

			w := postEvent(router, tt.body)
			assert.Equal(t, http.StatusOK, w.Code)
			wg.Wait()

			assert.Empty(t, carrier.sentMessages())
			assert.Empty(t, chat.threadPosts())
		})
	}
}

func TestEventsMalformedBodyAcked(t *testing.T) {
	var wg sync.WaitGroup
	router := newEventsRouter(newFakeCRM(), &fakeCarrier{}, &fakeChat{}, &wg)

	w := postEvent(router, `{not json`)

	assert.Equal(t, http.StatusOK, w.Code)
}
