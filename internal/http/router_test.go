package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"
	"gorm.io/gorm"

	"github.com/meravakil/meravakil-backend/internal/data/repos"
	"github.com/meravakil/meravakil-backend/internal/data/repos/testutil"
	types "github.com/meravakil/meravakil-backend/internal/domain"
	httpH "github.com/meravakil/meravakil-backend/internal/http/handlers"
	httpMW "github.com/meravakil/meravakil-backend/internal/http/middleware"
	"github.com/meravakil/meravakil-backend/internal/observability"
	"github.com/meravakil/meravakil-backend/internal/platform/apierr"
	"github.com/meravakil/meravakil-backend/internal/platform/identity"
	"github.com/meravakil/meravakil-backend/internal/services"
)

var webhookSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("meravakil-router-test-secret-32b"))

type tokenVerifier map[string]string

func (v tokenVerifier) Verify(_ context.Context, token string) (*identity.Claims, error) {
	if sub, ok := v[token]; ok {
		return &identity.Claims{Subject: sub}, nil
	}
	return nil, fmt.Errorf("verify: %w", apierr.ErrUnauthorized)
}

type stubAssistant struct {
	err error
}

func (s *stubAssistant) AnswerQuery(_ context.Context, query string) (*services.Answer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &services.Answer{
		Text:     "Answer to: " + query,
		Grounded: true,
		Sources:  []types.Source{{ID: "doc#0", Score: 0.91, Source: "ipc.pdf"}},
		Model:    "gpt-4o-mini",
	}, nil
}

type harness struct {
	t         *testing.T
	db        *gorm.DB
	router    *gin.Engine
	assistant *stubAssistant
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)

	chatRepo := repos.NewChatRepo(db, log)
	msgRepo := repos.NewMessageRepo(db, log)
	userRepo := repos.NewUserRepo(db, log)

	assistant := &stubAssistant{}
	chats := services.NewChatService(db, log, chatRepo, msgRepo)
	conversation := services.NewConversationService(db, log, chats, chatRepo, msgRepo, assistant)
	users := services.NewUserService(db, log, userRepo, chatRepo)

	webhooks, err := identity.NewWebhookVerifier(webhookSecret)
	require.NoError(t, err)
	metrics := observability.New()

	router := NewRouter(RouterConfig{
		Log:            log,
		Metrics:        metrics,
		AuthMiddleware: httpMW.NewAuthMiddleware(log, tokenVerifier{"alice": "user_alice", "bob": "user_bob"}),
		ChatHandler:    httpH.NewChatHandler(log, chats, conversation),
		WebhookHandler: httpH.NewWebhookHandler(log, webhooks, users, metrics),
		HealthHandler:  httpH.NewHealthHandler(db),
	})
	return &harness{t: t, db: db, router: router, assistant: assistant}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var env struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error.Message, env.Error.Code
}

func (h *harness) ask(token, query string) services.AskResult {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/api/chat", token, gin.H{"query": query})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	var res services.AskResult
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/chats", "/api/chats/" + uuid.NewString() + "/messages"} {
		rec := h.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		_, code := errorOf(t, rec)
		assert.Equal(t, "unauthorized", code)
	}
	rec := h.do(http.MethodGet, "/api/chats", "mallory", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAskCreatesChatAndMessages(t *testing.T) {
	h := newHarness(t)

	res := h.ask("alice", "What is anticipatory bail?")
	assert.NotEqual(t, uuid.Nil, res.ChatID)
	assert.Equal(t, "Answer to: What is anticipatory bail?", res.Answer)
	assert.True(t, res.Grounded)
	require.Len(t, res.Sources, 1)

	again := h.do(http.MethodPost, "/api/chat", "alice", gin.H{"query": "And for women?", "chatId": res.ChatID})
	require.Equal(t, http.StatusOK, again.Code, again.Body.String())

	rec := h.do(http.MethodGet, "/api/chats/"+res.ChatID.String()+"/messages", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []struct {
		From     string         `json:"from"`
		Content  string         `json:"content"`
		Grounded bool           `json:"grounded"`
		Sources  []types.Source `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 4)
	assert.Equal(t, types.FromUser, msgs[0].From)
	assert.Equal(t, types.FromAssistant, msgs[1].From)
	assert.True(t, msgs[1].Grounded)
	assert.Len(t, msgs[1].Sources, 1)
	assert.Equal(t, "And for women?", msgs[2].Content)
}

func TestAskValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/chat", "alice", gin.H{"query": "hi", "chatId": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg, code := errorOf(t, rec)
	assert.Equal(t, "Invalid chatId: must be a valid UUID", msg)
	assert.Equal(t, "invalid_request", code)

	rec = h.do(http.MethodPost, "/api/chat", "alice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg, _ = errorOf(t, rec)
	assert.Equal(t, "Invalid query: is required", msg)

	rec = h.do(http.MethodPost, "/api/chat", "alice", gin.H{"query": "hi", "chatId": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAskFailureHidesCause(t *testing.T) {
	h := newHarness(t)
	h.assistant.err = errors.New("pinecone: connection reset")

	rec := h.do(http.MethodPost, "/api/chat", "alice", gin.H{"query": "hello"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	msg, code := errorOf(t, rec)
	assert.Equal(t, "could not answer query", msg)
	assert.Equal(t, "ask_failed", code)

	var n int64
	require.NoError(t, h.db.Model(&types.Chat{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestChatLifecycle(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/chats", "alice", gin.H{"title": "Tenancy"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created services.ChatSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Tenancy", created.Title)
	base := "/api/chats/" + created.ID.String()

	rec = h.do(http.MethodPost, "/api/chats", "alice", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPatch, base, "alice", gin.H{"title": "Rent dispute"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, fmt.Sprintf(`{"id":%q,"title":"Rent dispute"}`, created.ID), rec.Body.String())

	rec = h.do(http.MethodPut, base+"/star", "alice", gin.H{"starred": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/chats", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []services.ChatSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, created.ID, list[0].ID)
	assert.True(t, list[0].Starred)

	rec = h.do(http.MethodDelete, base, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"chatId":%q}`, created.ID), rec.Body.String())

	rec = h.do(http.MethodGet, base+"/messages", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatOwnershipIsHidden(t *testing.T) {
	h := newHarness(t)
	res := h.ask("alice", "Is a verbal will valid?")
	base := "/api/chats/" + res.ChatID.String()

	rec := h.do(http.MethodGet, "/api/chats", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for _, tc := range []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodPatch, base, gin.H{"title": "mine now"}},
		{http.MethodPut, base + "/star", gin.H{"starred": true}},
		{http.MethodDelete, base, nil},
		{http.MethodGet, base + "/messages", nil},
	} {
		rec := h.do(tc.method, tc.path, "bob", tc.body)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.method+" "+tc.path)
		msg, code := errorOf(t, rec)
		assert.Equal(t, "chat not found", msg)
		assert.Equal(t, "not_found", code)
	}
}

func TestChatRequestValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodDelete, "/api/chats/not-a-uuid", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg, _ := errorOf(t, rec)
	assert.Equal(t, "Invalid chatId: must be a valid UUID", msg)

	id := h.ask("alice", "hello").ChatID.String()
	rec = h.do(http.MethodPatch, "/api/chats/"+id, "alice", gin.H{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg, _ = errorOf(t, rec)
	assert.Equal(t, "Invalid title: is required", msg)

	rec = h.do(http.MethodPut, "/api/chats/"+id+"/star", "alice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	msg, _ = errorOf(t, rec)
	assert.Equal(t, "Invalid starred: is required", msg)
}

func signedWebhook(t *testing.T, payload []byte) *http.Request {
	t.Helper()
	wh, err := svix.NewWebhook(webhookSecret)
	require.NoError(t, err)
	now := time.Now()
	sig, err := wh.Sign("msg_router", now, payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(payload))
	req.Header.Set("svix-id", "msg_router")
	req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("svix-signature", sig)
	return req
}

func TestWebhookSyncsUsers(t *testing.T) {
	h := newHarness(t)

	created := []byte(`{"type":"user.created","data":{"id":"user_alice","first_name":"Alice","email_addresses":[{"id":"e1","email_address":"alice@example.in"}]}}`)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, signedWebhook(t, created))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"upserted"}`, rec.Body.String())

	var u types.User
	require.NoError(t, h.db.Where("external_id = ?", "user_alice").First(&u).Error)
	assert.Equal(t, "alice@example.in", u.Email)

	h.ask("alice", "hello")
	deleted := []byte(`{"type":"user.deleted","data":{"id":"user_alice","deleted":true}}`)
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, signedWebhook(t, deleted))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var n int64
	require.NoError(t, h.db.Model(&types.Chat{}).Where("user_id = ?", "user_alice").Count(&n).Error)
	assert.Zero(t, n)

	forged := signedWebhook(t, created)
	forged.Header.Set("svix-signature", "v1,Zm9yZ2Vk")
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/healthcheck", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	h.do(http.MethodGet, "/api/chats", "alice", nil)
	rec = h.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "meravakil_http_requests_total")
}

func TestRateLimitKeysOnPeerUnlessProxyTrusted(t *testing.T) {
	gin.SetMode(gin.TestMode)

	send := func(r *gin.Engine, peer, forwarded string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = peer + ":4321"
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}
	newRouter := func(trusted []string) *gin.Engine {
		r := NewRouter(RouterConfig{
			Log:            testutil.Logger(t),
			TrustedProxies: trusted,
			Limiter:        httpMW.NewMemoryLimiter(httpMW.RateLimitConfig{RPS: 0.001, Burst: 1}),
		})
		r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	direct := newRouter(nil)
	require.Equal(t, http.StatusOK, send(direct, "203.0.113.7", "198.51.100.1"))
	for i := 2; i <= 10; i++ {
		assert.Equal(t, http.StatusTooManyRequests, send(direct, "203.0.113.7", fmt.Sprintf("198.51.100.%d", i)),
			"rotating X-Forwarded-For from an untrusted peer must not reset the limit")
	}

	proxied := newRouter([]string{"10.0.0.0/8"})
	assert.Equal(t, http.StatusOK, send(proxied, "10.1.2.3", "198.51.100.1"))
	assert.Equal(t, http.StatusOK, send(proxied, "10.1.2.3", "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, send(proxied, "10.1.2.3", "198.51.100.1"))
}
