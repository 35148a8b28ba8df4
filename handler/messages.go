package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jimmy-lgtm/pd-sms/service"
)

const defaultMessageLimit = 50

// MessagesHandler lists recent relayed messages for operators.
type MessagesHandler struct {
	store *service.MessageStore
}

func NewMessagesHandler() *MessagesHandler {
	return &MessagesHandler{store: service.GetMessageStore()}
}

// List returns the newest messages first. The limit query parameter caps the
// result; invalid values fall back to the default.
func (h *MessagesHandler) List(c *gin.Context) {
	limit := defaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	messages := h.store.Recent(limit)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"count":    len(messages),
		"messages": messages,
	})
}
