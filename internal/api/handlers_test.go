package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gin-gonic/gin"

	"hijrachat/internal/auth"
	"hijrachat/internal/models"
	"hijrachat/internal/redis"
	"hijrachat/internal/service/assistant"
	"hijrachat/internal/storage"
)

type testServer struct {
	router    *gin.Engine
	db        *sql.DB
	store     *storage.SQLStore
	generator *fakeGenerator
	limiter   *fakeLimiter
}

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeLimiter struct {
	result *redis.RateLimitResult
	err    error
	calls  []string
}

func (f *fakeLimiter) Allow(_ context.Context, scope, _ string) (*redis.RateLimitResult, error) {
	f.calls = append(f.calls, scope)
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &redis.RateLimitResult{Allowed: true}, nil
	}
	return f.result, nil
}

func TestHandlersEndToEndFlow(t *testing.T) {
	srv := newTestServer(t)
	srv.generator.reply = "مرحبا! كيف أساعدك في الهجرة؟"

	userID, headers := signupAndLogin(t, srv.router)

	subResp := doJSONRequest(t, srv.router, http.MethodGet, "/api/subscription", nil, headers)
	assertStatus(t, subResp, http.StatusOK)
	if !strings.Contains(subResp.Body.String(), `"subscription":null`) {
		t.Fatalf("expected null subscription, got %s", subResp.Body.String())
	}

	if err := srv.store.SetSubscription(context.Background(), userID, models.SubscriptionActive); err != nil {
		t.Fatalf("set subscription: %v", err)
	}

	subResp = doJSONRequest(t, srv.router, http.MethodGet, "/api/subscription", nil, headers)
	assertStatus(t, subResp, http.StatusOK)
	var subBody struct {
		Subscription *struct {
			UserID string `json:"user_id"`
			Status string `json:"status"`
		} `json:"subscription"`
	}
	decodeJSON(t, subResp.Body.Bytes(), &subBody)
	if subBody.Subscription == nil || subBody.Subscription.Status != "active" || subBody.Subscription.UserID != userID {
		t.Fatalf("unexpected subscription: %s", subResp.Body.String())
	}

	chatResp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]string{
		"message":        "أريد الهجرة إلى كندا",
		"userId":         userID,
		"country":        "كندا",
		"conversationId": "conv-1",
	}, nil)
	assertStatus(t, chatResp, http.StatusOK)
	var chatBody struct {
		Response string `json:"response"`
	}
	decodeJSON(t, chatResp.Body.Bytes(), &chatBody)
	if chatBody.Response != srv.generator.reply {
		t.Fatalf("unexpected reply %q", chatBody.Response)
	}
	if len(srv.generator.prompts) != 1 {
		t.Fatalf("expected one generate call, got %d", len(srv.generator.prompts))
	}
	prompt := srv.generator.prompts[0]
	if !strings.Contains(prompt, "الرسائل السابقة:\n\n\nرسالة المستخدم:\nأريد الهجرة إلى كندا\n") {
		t.Fatalf("prompt does not carry an empty transcript and the message: %q", prompt)
	}

	histResp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat/history", map[string]string{
		"userId":         userID,
		"conversationId": "conv-1",
	}, nil)
	assertStatus(t, histResp, http.StatusOK)
	var histBody struct {
		History []struct {
			Role      string    `json:"role"`
			Message   string    `json:"message"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"history"`
	}
	decodeJSON(t, histResp.Body.Bytes(), &histBody)
	if len(histBody.History) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(histBody.History))
	}
	if histBody.History[0].Role != "user" || histBody.History[0].Message != "أريد الهجرة إلى كندا" {
		t.Fatalf("unexpected first row: %+v", histBody.History[0])
	}
	if histBody.History[1].Role != "assistant" || histBody.History[1].Message != srv.generator.reply {
		t.Fatalf("unexpected second row: %+v", histBody.History[1])
	}
	if histBody.History[0].CreatedAt.IsZero() {
		t.Fatalf("expected created_at on history rows")
	}

	// The second turn sees the first exchange as transcript.
	chatResp = doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]string{
		"message":        "وما هي الشروط؟",
		"userId":         userID,
		"conversationId": "conv-1",
	}, nil)
	assertStatus(t, chatResp, http.StatusOK)
	want := "user: أريد الهجرة إلى كندا\nassistant: " + srv.generator.reply
	if !strings.Contains(srv.generator.prompts[1], want) {
		t.Fatalf("second prompt missing transcript %q: %q", want, srv.generator.prompts[1])
	}
}

func TestChatRequiresSubscription(t *testing.T) {
	srv := newTestServer(t)
	userID, _ := signupAndLogin(t, srv.router)

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]string{
		"message":        "hello",
		"userId":         userID,
		"conversationId": "conv-1",
	}, nil)
	assertStatus(t, resp, http.StatusForbidden)
	var body struct {
		Error                string `json:"error"`
		RequiresSubscription bool   `json:"requiresSubscription"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Error != msgSubscriptionRequired || !body.RequiresSubscription {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
	if len(srv.generator.prompts) != 0 {
		t.Fatalf("generator must not be called without subscription")
	}
	if n := countMessages(t, srv.db, "conv-1"); n != 0 {
		t.Fatalf("expected no stored messages, got %d", n)
	}

	// A cancelled subscription does not entitle either.
	if err := srv.store.SetSubscription(context.Background(), userID, "canceled"); err != nil {
		t.Fatalf("set subscription: %v", err)
	}
	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]string{
		"message":        "hello",
		"userId":         userID,
		"conversationId": "conv-1",
	}, nil)
	assertStatus(t, resp, http.StatusForbidden)
}

func TestChatValidation(t *testing.T) {
	srv := newTestServer(t)
	userID, _ := signupAndLogin(t, srv.router)
	if err := srv.store.SetSubscription(context.Background(), userID, models.SubscriptionActive); err != nil {
		t.Fatalf("set subscription: %v", err)
	}

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing user", `{"message":"hi","conversationId":"c"}`, http.StatusBadRequest},
		{"missing message", fmt.Sprintf(`{"userId":%q,"conversationId":"c"}`, userID), http.StatusBadRequest},
		{"missing conversation", fmt.Sprintf(`{"userId":%q,"message":"hi"}`, userID), http.StatusBadRequest},
		{"malformed json", `{"userId":`, http.StatusBadRequest},
		{"unsubscribed user", `{"userId":"someone-else","message":"hi","conversationId":"c"}`, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRawRequest(t, srv.router, http.MethodPost, "/api/chat", tc.body, nil)
			assertStatus(t, resp, tc.want)
			if tc.want == http.StatusBadRequest {
				var body struct {
					Error string `json:"error"`
				}
				decodeJSON(t, resp.Body.Bytes(), &body)
				if body.Error != msgMissingFields {
					t.Fatalf("unexpected error %q", body.Error)
				}
			}
		})
	}
	if len(srv.generator.prompts) != 0 {
		t.Fatalf("generator must not be called for invalid requests")
	}
}

func TestChatGeneratorFailure(t *testing.T) {
	srv := newTestServer(t)
	userID, _ := signupAndLogin(t, srv.router)
	if err := srv.store.SetSubscription(context.Background(), userID, models.SubscriptionActive); err != nil {
		t.Fatalf("set subscription: %v", err)
	}
	srv.generator.err = errors.New("upstream unavailable")

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]string{
		"message":        "hello",
		"userId":         userID,
		"conversationId": "conv-1",
	}, nil)
	assertStatus(t, resp, http.StatusInternalServerError)
	var body struct {
		Error string `json:"error"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Error != msgChatFailed {
		t.Fatalf("unexpected error %q", body.Error)
	}
	if n := countMessages(t, srv.db, "conv-1"); n != 0 {
		t.Fatalf("expected nothing stored after a failed call, got %d", n)
	}
}

func TestChatEmptyReplyUsesFallback(t *testing.T) {
	srv := newTestServer(t)
	userID, _ := signupAndLogin(t, srv.router)
	if err := srv.store.SetSubscription(context.Background(), userID, models.SubscriptionActive); err != nil {
		t.Fatalf("set subscription: %v", err)
	}

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]string{
		"message":        "hello",
		"userId":         userID,
		"conversationId": "conv-1",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	var body struct {
		Response string `json:"response"`
	}
	decodeJSON(t, resp.Body.Bytes(), &body)
	if body.Response != assistant.FallbackReply {
		t.Fatalf("expected fallback reply, got %q", body.Response)
	}
	if n := countMessages(t, srv.db, "conv-1"); n != 2 {
		t.Fatalf("expected the fallback exchange stored, got %d rows", n)
	}
}

func TestSubscriptionRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"no header", nil, "Missing access token"},
		{"unknown token", map[string]string{"Authorization": "Bearer nope"}, "Invalid or expired token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSONRequest(t, srv.router, http.MethodGet, "/api/subscription", nil, tc.headers)
			assertStatus(t, resp, http.StatusUnauthorized)
			var body struct {
				Error string `json:"error"`
			}
			decodeJSON(t, resp.Body.Bytes(), &body)
			if body.Error != tc.want {
				t.Fatalf("unexpected error %q", body.Error)
			}
		})
	}
}

func TestSignupAndLoginErrors(t *testing.T) {
	srv := newTestServer(t)
	email := fmt.Sprintf("dup_%d@example.com", time.Now().UnixNano())

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/signup", map[string]string{
		"email": email, "password": "pass123",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/signup", map[string]string{
		"email": email, "password": "pass123",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorMessage(t, resp, auth.ErrUserExists.Error())

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/signup", map[string]string{
		"email": "other@example.com", "password": "123",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorMessage(t, resp, auth.ErrWeakPassword.Error())

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/login", map[string]string{
		"email": email, "password": "wrong-pass",
	}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	assertErrorMessage(t, resp, auth.ErrInvalidCredentials.Error())

	resp = doRawRequest(t, srv.router, http.MethodPost, "/api/login", `not json`, nil)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestHistoryStoreFailure(t *testing.T) {
	srv := newTestServer(t)
	srv.db.Close()

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat/history", map[string]string{
		"userId":         "u1",
		"conversationId": "conv-1",
	}, nil)
	assertStatus(t, resp, http.StatusInternalServerError)
	assertErrorMessage(t, resp, msgHistoryFailed)
}

func TestHistoryEmptyConversation(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat/history", map[string]string{
		"userId":         "u1",
		"conversationId": "missing",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	if !strings.Contains(resp.Body.String(), `"history":[]`) {
		t.Fatalf("expected empty history array, got %s", resp.Body.String())
	}
}

func TestRateLimitRejects(t *testing.T) {
	srv := newTestServer(t)
	srv.limiter.result = &redis.RateLimitResult{Allowed: false, Limit: 10, Remaining: 0, ResetIn: 42 * time.Second}

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]string{
		"message": "hi", "userId": "u1", "conversationId": "c",
	}, nil)
	assertStatus(t, resp, http.StatusTooManyRequests)
	if got := resp.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Fatalf("unexpected limit header %q", got)
	}
	if got := resp.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("unexpected remaining header %q", got)
	}
	if got := resp.Header().Get("X-RateLimit-Reset"); got != "42" {
		t.Fatalf("unexpected reset header %q", got)
	}

	resp = doJSONRequest(t, srv.router, http.MethodPost, "/api/login", map[string]string{
		"email": "a@example.com", "password": "pass123",
	}, nil)
	assertStatus(t, resp, http.StatusTooManyRequests)

	want := []string{redis.ScopeChat, redis.ScopeAuth}
	if len(srv.limiter.calls) != len(want) || srv.limiter.calls[0] != want[0] || srv.limiter.calls[1] != want[1] {
		t.Fatalf("unexpected limiter scopes %v", srv.limiter.calls)
	}
}

func TestRateLimitErrorLetsRequestThrough(t *testing.T) {
	srv := newTestServer(t)
	srv.limiter.err = errors.New("redis down")

	resp := doJSONRequest(t, srv.router, http.MethodPost, "/api/chat", map[string]string{}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	if resp.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatalf("no rate limit headers expected when the limiter fails")
	}
}

func TestStaticFallback(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		method string
		path   string
		want   int
		body   string
		ctype  string
	}{
		{http.MethodGet, "/", http.StatusOK, "<html", "text/html"},
		{http.MethodGet, "/app.js", http.StatusOK, "console.log", "javascript"},
		{http.MethodGet, "/some/client/route", http.StatusOK, "<html", "text/html"},
		{http.MethodPost, "/unknown", http.StatusNotFound, `"error":"not found"`, "application/json"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			resp := doRawRequest(t, srv.router, tc.method, tc.path, "", nil)
			assertStatus(t, resp, tc.want)
			if !strings.Contains(resp.Body.String(), tc.body) {
				t.Fatalf("unexpected body %q", resp.Body.String())
			}
			if ct := resp.Header().Get("Content-Type"); !strings.Contains(ct, tc.ctype) {
				t.Fatalf("unexpected content type %q", ct)
			}
		})
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	srv := newTestServer(t)
	body := `{"message":"` + strings.Repeat("a", maxBodyBytes+1) + `"}`

	for _, path := range []string{"/api/chat", "/api/signup", "/api/chat/history"} {
		t.Run(path, func(t *testing.T) {
			resp := doRawRequest(t, srv.router, http.MethodPost, path, body, nil)
			assertStatus(t, resp, http.StatusRequestEntityTooLarge)
			assertErrorMessage(t, resp, msgBodyTooLarge)
		})
	}
	if len(srv.generator.prompts) != 0 {
		t.Fatalf("generator must not be called for an oversized body")
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp := doJSONRequest(t, srv.router, http.MethodGet, "/healthz", nil, map[string]string{"X-Request-Id": "req-1"})
	assertStatus(t, resp, http.StatusOK)
	if got := resp.Header().Get("X-Request-Id"); got != "req-1" {
		t.Fatalf("request id not propagated: %q", got)
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	store := storage.NewSQLStore(db)
	authSvc := auth.NewService(db, nil, time.Hour)
	generator := &fakeGenerator{}
	limiter := &fakeLimiter{}
	asst := assistant.NewService(store, authSvc, generator, nil)
	static := fstest.MapFS{
		"index.html": {Data: []byte(`<html dir="rtl"><body>app</body></html>`)},
		"app.js":     {Data: []byte(`console.log("app")`)},
	}
	handler := NewHandler(asst, authSvc, limiter, static, nil)

	router := gin.New()
	handler.RegisterRoutes(router)
	return &testServer{router: router, db: db, store: store, generator: generator, limiter: limiter}
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	return doRawRequest(t, router, method, path, buf.String(), headers)
}

func doRawRequest(t *testing.T, router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

func assertErrorMessage(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Error != want {
		t.Fatalf("unexpected error %q, want %q", body.Error, want)
	}
}

func countMessages(t *testing.T, db *sql.DB, conversationID string) int {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM chat_history WHERE conversation_id = ?`, conversationID).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	return count
}

func signupAndLogin(t *testing.T, router *gin.Engine) (string, map[string]string) {
	t.Helper()
	email := fmt.Sprintf("tester_%d@example.com", time.Now().UnixNano())
	password := "pass123"

	regResp := doJSONRequest(t, router, http.MethodPost, "/api/signup", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	assertStatus(t, regResp, http.StatusOK)
	var regBody struct {
		Success bool   `json:"success"`
		UserID  string `json:"userId"`
	}
	decodeJSON(t, regResp.Body.Bytes(), &regBody)
	if !regBody.Success || regBody.UserID == "" {
		t.Fatalf("unexpected signup response: %s", regResp.Body.String())
	}

	loginResp := doJSONRequest(t, router, http.MethodPost, "/api/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		Success bool `json:"success"`
		User    struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
		Session struct {
			AccessToken string `json:"access_token"`
		} `json:"session"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if !loginBody.Success || loginBody.Session.AccessToken == "" {
		t.Fatalf("expected access token from login: %s", loginResp.Body.String())
	}
	if loginBody.User.ID != regBody.UserID || loginBody.User.Email != email {
		t.Fatalf("login user mismatch: %s", loginResp.Body.String())
	}
	return regBody.UserID, map[string]string{"Authorization": "Bearer " + loginBody.Session.AccessToken}
}
