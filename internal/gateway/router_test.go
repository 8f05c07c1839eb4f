package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/challengeforge/backend/internal/callback"
	"github.com/challengeforge/backend/internal/challenges"
	"github.com/challengeforge/backend/internal/dispatcher"
	"github.com/challengeforge/backend/internal/ratelimit"
	"github.com/challengeforge/backend/internal/saved"
	"github.com/challengeforge/backend/internal/users"
	"github.com/challengeforge/backend/internal/votes"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticTokenValidator struct {
	subject string
	err     error
}

func (v *staticTokenValidator) ValidateToken(string) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	return v.subject, nil
}

type stubGenerator struct {
	challenge challenges.Challenge
}

func (g *stubGenerator) Ensure(context.Context) (challenges.Challenge, error) {
	return g.challenge, nil
}

type gatewayFixture struct {
	handler   http.Handler
	codec     *callback.Codec
	challenge challenges.Challenge
}

func newGatewayFixture(t *testing.T, limiter *ratelimit.Limiter, validator TokenValidator) *gatewayFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&users.User{}, &challenges.Challenge{}, &votes.Vote{}, &saved.Entry{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create users service: %v", err)
	}
	voteService, err := votes.NewService(votes.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create votes service: %v", err)
	}
	savedService, err := saved.NewService(saved.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create saved service: %v", err)
	}
	catalogue, err := challenges.NewService(challenges.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to create challenges service: %v", err)
	}
	challenge, err := catalogue.Create(context.Background(), "gateway challenge", "gateway body", "api")
	if err != nil {
		t.Fatalf("failed to seed challenge: %v", err)
	}

	codec := callback.NewCodec([]byte("gateway-test-secret"))
	dispatcherService, err := dispatcher.NewService(dispatcher.ServiceConfig{
		Codec:     codec,
		Users:     userService,
		Votes:     voteService,
		Saved:     savedService,
		Catalogue: catalogue,
		Generator: &stubGenerator{challenge: challenge},
	})
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	if limiter == nil {
		limiter = ratelimit.NewLimiter(ratelimit.LimiterConfig{})
	}
	if validator == nil {
		validator = &staticTokenValidator{subject: "transport"}
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenValidator: validator,
		Dispatcher:     dispatcherService,
		Limiter:        limiter,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &gatewayFixture{handler: handler, codec: codec, challenge: challenge}
}

func (f *gatewayFixture) postUpdate(t *testing.T, authorization string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, "/v1/updates", bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		request.Header.Set("Authorization", authorization)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeUpdateResponse(t *testing.T, recorder *httptest.ResponseRecorder) updateResponsePayload {
	t.Helper()
	var response updateResponsePayload
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return response
}

func TestHealthEndpointNeedsNoAuthorization(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)

	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", recorder.Code)
	}
	if recorder.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}
}

func TestUpdateRequiresBearerToken(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)

	recorder := fixture.postUpdate(t, "", map[string]any{
		"kind":             "message",
		"external_user_id": 1,
		"text":             "/start",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("missing auth status = %d, want 401", recorder.Code)
	}
}

func TestUpdateRejectsInvalidToken(t *testing.T) {
	validator := &staticTokenValidator{err: errors.New("expired")}
	fixture := newGatewayFixture(t, nil, validator)

	recorder := fixture.postUpdate(t, "Bearer bogus", map[string]any{
		"kind":             "message",
		"external_user_id": 1,
		"text":             "/start",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token status = %d, want 401", recorder.Code)
	}
}

func TestMessageUpdateReturnsRenderedReply(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)

	recorder := fixture.postUpdate(t, "Bearer valid", map[string]any{
		"kind":             "message",
		"external_user_id": 501,
		"username":         "carol",
		"text":             "/start",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	response := decodeUpdateResponse(t, recorder)
	if response.Suppressed {
		t.Fatal("update must not be suppressed")
	}
	if len(response.Messages) != 1 {
		t.Fatalf("expected one message, got %d", len(response.Messages))
	}
	if !strings.Contains(response.Messages[0].Text, "registered") {
		t.Fatalf("unexpected greeting: %q", response.Messages[0].Text)
	}
}

func TestCallbackUpdateReturnsEditedCard(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)

	token := fixture.codec.EncodeVote(fixture.challenge.ID, 1)
	recorder := fixture.postUpdate(t, "Bearer valid", map[string]any{
		"kind":             "callback",
		"external_user_id": 502,
		"callback_data":    token,
		"message_ref":      "chat-9:msg-4",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}

	response := decodeUpdateResponse(t, recorder)
	if len(response.Messages) != 1 {
		t.Fatalf("expected one message, got %d", len(response.Messages))
	}
	message := response.Messages[0]
	if !message.Edit {
		t.Fatal("vote reply must edit the original card")
	}
	if message.Ref != "chat-9:msg-4" {
		t.Fatalf("message ref = %q", message.Ref)
	}
	if !strings.Contains(message.Text, "Rating: +1") {
		t.Fatalf("edited card missing score: %q", message.Text)
	}
}

func TestFloodedUserIsSuppressedWithNotice(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.LimiterConfig{
		Window:    time.Minute,
		MaxEvents: 1,
	})
	fixture := newGatewayFixture(t, limiter, nil)

	payload := map[string]any{
		"kind":             "message",
		"external_user_id": 503,
		"text":             "/help",
	}
	if recorder := fixture.postUpdate(t, "Bearer valid", payload); recorder.Code != http.StatusOK {
		t.Fatalf("first update status = %d", recorder.Code)
	}

	recorder := fixture.postUpdate(t, "Bearer valid", payload)
	if recorder.Code != http.StatusOK {
		t.Fatalf("suppressed update status = %d, want 200", recorder.Code)
	}
	response := decodeUpdateResponse(t, recorder)
	if !response.Suppressed {
		t.Fatal("expected the second update to be suppressed")
	}
	if response.Notice == "" {
		t.Fatal("suppressed response must carry a notice")
	}
	if len(response.Messages) != 0 {
		t.Fatalf("suppressed response must carry no messages, got %d", len(response.Messages))
	}
}

func TestUnknownUpdateKindIsRejected(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)

	recorder := fixture.postUpdate(t, "Bearer valid", map[string]any{
		"kind":             "sticker",
		"external_user_id": 504,
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind status = %d, want 400", recorder.Code)
	}
}

func TestMalformedBodyIsRejected(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)

	request := httptest.NewRequest(http.MethodPost, "/v1/updates", strings.NewReader("{not json"))
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer valid")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", recorder.Code)
	}
}

func TestMalformedCallbackTokenStillAnswers(t *testing.T) {
	fixture := newGatewayFixture(t, nil, nil)

	recorder := fixture.postUpdate(t, "Bearer valid", map[string]any{
		"kind":             "callback",
		"external_user_id": 505,
		"callback_data":    "cf:1:v:1:1:000000",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	response := decodeUpdateResponse(t, recorder)
	if response.Notice == "" {
		t.Fatal("expected a notice for the rejected token")
	}
	if len(response.Messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(response.Messages))
	}
}
