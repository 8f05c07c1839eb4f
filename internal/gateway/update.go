package gateway

import (
	"context"
	"net/http"

	"github.com/challengeforge/backend/internal/dispatcher"
	"github.com/challengeforge/backend/internal/ratelimit"
	"github.com/challengeforge/backend/internal/render"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	updateKindMessage  = "message"
	updateKindCallback = "callback"
)

type updateRequestPayload struct {
	Kind           string `json:"kind" binding:"required"`
	ExternalUserID int64  `json:"external_user_id" binding:"required"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	Text           string `json:"text"`
	CallbackData   string `json:"callback_data"`
	MessageRef     string `json:"message_ref"`
}

type outgoingMessage struct {
	Text     string          `json:"text"`
	Keyboard render.Keyboard `json:"keyboard,omitempty"`
	Edit     bool            `json:"edit,omitempty"`
	Ref      string          `json:"ref,omitempty"`
}

type updateResponsePayload struct {
	Suppressed bool              `json:"suppressed,omitempty"`
	Notice     string            `json:"notice,omitempty"`
	Messages   []outgoingMessage `json:"messages"`
}

// handleUpdate processes one transport update end to end. Rate limiting
// happens before any decoding: the limiter counts raw events only.
func (h *httpHandler) handleUpdate(c *gin.Context) {
	var request updateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var eventKind ratelimit.EventKind
	switch request.Kind {
	case updateKindMessage:
		eventKind = ratelimit.KindMessage
	case updateKindCallback:
		eventKind = ratelimit.KindCallback
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if !h.limiter.Allow(eventKind, request.ExternalUserID) {
		c.JSON(http.StatusOK, updateResponsePayload{
			Suppressed: true,
			Notice:     rateLimitNotice,
			Messages:   []outgoingMessage{},
		})
		return
	}

	identity := dispatcher.Identity{
		ExternalID: request.ExternalUserID,
		Username:   request.Username,
		FirstName:  request.FirstName,
	}
	collector := &replyCollector{}

	var err error
	if request.Kind == updateKindCallback {
		err = h.dispatcher.HandleCallback(
			c.Request.Context(),
			identity,
			dispatcher.MessageRef(request.MessageRef),
			request.CallbackData,
			collector,
		)
	} else {
		err = h.dispatcher.HandleMessage(c.Request.Context(), identity, request.Text, collector)
	}
	if err != nil {
		h.logger.Error("update handling failed",
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.String("kind", request.Kind),
			zap.Int64("external_user_id", request.ExternalUserID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, collector.response())
}

// replyCollector implements dispatcher.Presenter by accumulating the rendered
// output into the webhook response. Delivery, including detection of the
// platform's "message is not modified" condition, is the transport's job.
type replyCollector struct {
	notice   string
	messages []outgoingMessage
}

func (r *replyCollector) Edit(_ context.Context, ref dispatcher.MessageRef, text string, keyboard render.Keyboard) error {
	r.messages = append(r.messages, outgoingMessage{Text: text, Keyboard: keyboard, Edit: true, Ref: string(ref)})
	return nil
}

func (r *replyCollector) Send(_ context.Context, text string, keyboard render.Keyboard) error {
	r.messages = append(r.messages, outgoingMessage{Text: text, Keyboard: keyboard})
	return nil
}

func (r *replyCollector) Notice(_ context.Context, text string) error {
	r.notice = text
	return nil
}

func (r *replyCollector) response() updateResponsePayload {
	messages := r.messages
	if messages == nil {
		messages = []outgoingMessage{}
	}
	return updateResponsePayload{Notice: r.notice, Messages: messages}
}
