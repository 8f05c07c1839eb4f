// Package gateway is the HTTP surface the transport collaborator calls. It
// authenticates the caller, rate-limits per end user, hands each update to
// the dispatcher, and returns the rendered reply for the transport to
// deliver.
package gateway

import (
	"errors"
	"net/http"
	"strings"

	"github.com/challengeforge/backend/internal/dispatcher"
	"github.com/challengeforge/backend/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDContextKey = "cf_request_id"
	subjectContextKey   = "cf_gateway_subject"

	rateLimitNotice = "Too many requests, slow down ⏳"
)

var (
	errMissingTokenValidator = errors.New("gateway: token validator dependency required")
	errMissingDispatcher     = errors.New("gateway: dispatcher dependency required")
	errMissingLimiter        = errors.New("gateway: rate limiter dependency required")
)

// TokenValidator checks the transport's bearer token.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Dependencies wires the gateway's collaborators.
type Dependencies struct {
	TokenValidator TokenValidator
	Dispatcher     *dispatcher.Service
	Limiter        *ratelimit.Limiter
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router for the gateway.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenValidator == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}
	if deps.Limiter == nil {
		return nil, errMissingLimiter
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := &httpHandler{
		tokens:     deps.TokenValidator,
		dispatcher: deps.Dispatcher,
		limiter:    deps.Limiter,
		logger:     logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.tagRequest)

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/v1")
	protected.Use(handler.authorizeRequest)
	protected.POST("/updates", handler.handleUpdate)

	return router, nil
}

type httpHandler struct {
	tokens     TokenValidator
	dispatcher *dispatcher.Service
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// tagRequest attaches a request id to the gin context and the response so a
// transport-side failure can be correlated with backend logs.
func (h *httpHandler) tagRequest(c *gin.Context) {
	requestID, err := uuid.NewV7()
	if err != nil {
		requestID = uuid.New()
	}
	c.Set(requestIDContextKey, requestID.String())
	c.Header("X-Request-Id", requestID.String())
	c.Next()
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	subject, err := h.tokens.ValidateToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		h.logger.Warn("gateway token rejected",
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Set(subjectContextKey, subject)
	c.Next()
}
