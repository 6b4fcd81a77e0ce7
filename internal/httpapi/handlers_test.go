package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haontuhcmut/lab-services/internal/auth"
	"github.com/haontuhcmut/lab-services/internal/blocklist"
	"github.com/haontuhcmut/lab-services/internal/detect"
	"github.com/haontuhcmut/lab-services/internal/mailer"
	"github.com/haontuhcmut/lab-services/internal/store"
)

type captureQueue struct {
	mu       sync.Mutex
	messages []mailer.Message
}

func (q *captureQueue) Enqueue(ctx context.Context, msg mailer.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

var mailLinkTokenRe = regexp.MustCompile(`href="http://[^/]+/api/v1/[a-z-]+/[a-z-]+/([^"]+)"`)

func (q *captureQueue) lastToken(t *testing.T) string {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		t.Fatalf("expected a queued mail")
	}
	m := mailLinkTokenRe.FindStringSubmatch(q.messages[len(q.messages)-1].HTML)
	if m == nil {
		t.Fatalf("no action link in mail body")
	}
	return m[1]
}

// fakeDetector returns a fixed result without calling the inference sidecar.
type fakeDetector struct {
	result   detect.Result
	rendered []byte
	err      error
}

func (f *fakeDetector) Detect(ctx context.Context, image []byte) (detect.Result, error) {
	return f.result, f.err
}

func (f *fakeDetector) Annotate(ctx context.Context, image []byte) (detect.Result, []byte, error) {
	return f.result, f.rendered, f.err
}

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	users      *store.MemoryUsers
	detections *store.MemoryDetections
	detector   *fakeDetector
	mail       *captureQueue
	svc        *auth.Service
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	codec, err := auth.NewCodec("test-secret", "HS256", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	users := store.NewMemoryUsers()
	detections := store.NewMemoryDetections()
	mail := &captureQueue{}
	svc := auth.NewService(users, blocklist.NewMemory(), codec,
		auth.NewActionCodec("test-secret", auth.SaltEmailActions),
		"localhost:8080", auth.WithMailer(mail))
	detector := &fakeDetector{
		result:   detect.Result{Objects: []detect.Object{{Name: "cat", Confidence: 0.93}, {Name: "dog", Confidence: 0.81}}},
		rendered: []byte("annotated-jpeg"),
	}

	api := New(svc, detections, detector, ReadyProbe{}, "test")
	api.rateBurst = 100
	api.ratePerSec = 100

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL:    srv.URL,
		client:     srv.Client(),
		t:          t,
		users:      users,
		detections: detections,
		detector:   detector,
		mail:       mail,
		svc:        svc,
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) postRaw(path string, contentType string, body []byte, headers map[string]string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return payload
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// seedVerifiedUser creates a verified account directly in the store and logs
// it in, returning the token pair.
func (c *apiClient) seedVerifiedUser(email, password, role string) auth.TokenPair {
	c.t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		c.t.Fatalf("HashPassword: %v", err)
	}
	if err := c.users.Create(context.Background(), &store.User{
		Username:     "user-" + email,
		Email:        email,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
		Verified:     true,
		PasswordHash: hash,
	}); err != nil {
		c.t.Fatalf("Create: %v", err)
	}
	pair, _, err := c.svc.Login(context.Background(), email, password)
	if err != nil {
		c.t.Fatalf("Login: %v", err)
	}
	return pair
}

func TestSignupVerifyLoginFlow(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/api/v1/auth/signup", map[string]any{
		"first_name": "Alice",
		"last_name":  "Liddell",
		"username":   "alice",
		"email":      "alice@example.com",
		"password":   "pass-123",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	user, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("signup response missing user: %v", body)
	}
	if user["is_verified"] != false {
		t.Fatalf("fresh account must start unverified: %v", user)
	}
	if _, leaked := user["hashed_password"]; leaked {
		t.Fatalf("password hash must never serialize")
	}

	// Logging in works before verification; only role-gated routes insist on
	// a verified account.
	resp = c.post("/api/v1/auth/login", map[string]any{"email": "alice@example.com", "password": "pass-123"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	login := decodeBody(t, resp)
	access, _ := login["access_token"].(string)
	if access == "" || login["refresh_token"] == "" {
		t.Fatalf("login must return both tokens: %v", login)
	}

	resp = c.postRaw("/api/v1/obj/detection", "application/octet-stream", []byte("jpeg"), bearerHeader(access))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unverified detection: expected 403, got %d", resp.StatusCode)
	}
	if code := decodeBody(t, resp)["error_code"]; code != "account_not_verified" {
		t.Fatalf("expected account_not_verified, got %v", code)
	}

	// Consume the emailed verification link.
	resp = c.get("/api/v1/auth/verify/"+c.mail.lastToken(t), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.postRaw("/api/v1/obj/detection", "application/octet-stream", []byte("jpeg"), bearerHeader(access))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verified detection: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSignupValidation(t *testing.T) {
	c := newTestAPI(t)

	cases := []map[string]any{
		{"username": "alice", "password": "pass-123"},                                // missing email
		{"email": "a@example.com", "password": "pass-123"},                           // missing username
		{"email": "a@example.com", "username": "alice", "password": "short"},         // short password
		{"email": "a@example.com", "username": strings.Repeat("x", 40), "password": "pass-123"}, // long username
	}
	for i, in := range cases {
		resp := c.post("/api/v1/auth/signup", in, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	c := newTestAPI(t)
	c.seedVerifiedUser("alice@example.com", "pass-123", store.RoleUser)

	resp := c.post("/api/v1/auth/signup", map[string]any{
		"username": "alice2", "email": "alice@example.com", "password": "pass-123",
	}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if code := decodeBody(t, resp)["error_code"]; code != "user_exists" {
		t.Fatalf("expected user_exists, got %v", code)
	}
}

func TestLoginFailureIndistinguishable(t *testing.T) {
	c := newTestAPI(t)
	c.seedVerifiedUser("alice@example.com", "pass-123", store.RoleUser)

	unknown := c.post("/api/v1/auth/login", map[string]any{"email": "ghost@example.com", "password": "pass-123"}, nil)
	wrong := c.post("/api/v1/auth/login", map[string]any{"email": "alice@example.com", "password": "bad-pass"}, nil)

	if unknown.StatusCode != http.StatusUnauthorized || wrong.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", unknown.StatusCode, wrong.StatusCode)
	}
	if unknown.Header.Get("WWW-Authenticate") != "Bearer" {
		t.Fatalf("expected a bearer challenge")
	}
	a := decodeBody(t, unknown)
	b := decodeBody(t, wrong)
	if a["error_code"] != "invalid_credentials" || a["error_code"] != b["error_code"] || a["message"] != b["message"] {
		t.Fatalf("failure responses must be identical: %v vs %v", a, b)
	}
}

func TestMeAndTokenClassGates(t *testing.T) {
	c := newTestAPI(t)
	pair := c.seedVerifiedUser("alice@example.com", "pass-123", store.RoleUser)

	resp := c.get("/api/v1/auth/me", nil, bearerHeader(pair.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", resp.StatusCode)
	}
	me := decodeBody(t, resp)
	if me["email"] != "alice@example.com" {
		t.Fatalf("unexpected principal: %v", me)
	}

	// A refresh token at an access gate is a distinct, diagnosable failure.
	resp = c.get("/api/v1/auth/me", nil, bearerHeader(pair.RefreshToken))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if code := decodeBody(t, resp)["error_code"]; code != "access_token_required" {
		t.Fatalf("expected access_token_required, got %v", code)
	}

	// And an access token at the refresh gate.
	resp = c.get("/api/v1/auth/refresh_token", nil, bearerHeader(pair.AccessToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if code := decodeBody(t, resp)["error_code"]; code != "refresh_token_required" {
		t.Fatalf("expected refresh_token_required, got %v", code)
	}

	// No credentials at all.
	resp = c.get("/api/v1/auth/me", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if code := decodeBody(t, resp)["error_code"]; code != "missing_credentials" {
		t.Fatalf("expected missing_credentials, got %v", code)
	}
}

func TestRefreshToken(t *testing.T) {
	c := newTestAPI(t)
	pair := c.seedVerifiedUser("alice@example.com", "pass-123", store.RoleUser)

	resp := c.get("/api/v1/auth/refresh_token", nil, bearerHeader(pair.RefreshToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	access, _ := body["access_token"].(string)
	if access == "" {
		t.Fatalf("refresh must return a new access token")
	}

	resp = c.get("/api/v1/auth/me", nil, bearerHeader(access))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refreshed token must pass the access gate, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesAndIsIdempotent(t *testing.T) {
	c := newTestAPI(t)
	pair := c.seedVerifiedUser("alice@example.com", "pass-123", store.RoleUser)

	resp := c.get("/api/v1/auth/logout", nil, bearerHeader(pair.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The revoked token now fails every gate.
	resp = c.get("/api/v1/auth/me", nil, bearerHeader(pair.AccessToken))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
	if code := decodeBody(t, resp)["error_code"]; code != "invalid_token" {
		t.Fatalf("expected invalid_token, got %v", code)
	}

	// A second logout with the same token is rejected at the gate, not by
	// the revocation itself.
	resp = c.get("/api/v1/auth/logout", nil, bearerHeader(pair.AccessToken))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on re-logout, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// The refresh token has its own jti and still works.
	resp = c.get("/api/v1/auth/refresh_token", nil, bearerHeader(pair.RefreshToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sibling refresh token must survive, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestPasswordResetFlow(t *testing.T) {
	c := newTestAPI(t)
	c.seedVerifiedUser("alice@example.com", "old-pass", store.RoleUser)

	resp := c.post("/api/v1/auth/password-reset-request", map[string]any{"email": "alice@example.com"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset request: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	token := c.mail.lastToken(t)

	resp = c.post("/api/v1/auth/password-reset-confirm/"+token, map[string]any{
		"new_password": "new-pass", "confirm_new_password": "other",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("mismatch: expected 400, got %d", resp.StatusCode)
	}
	if code := decodeBody(t, resp)["error_code"]; code != "password_mismatch" {
		t.Fatalf("expected password_mismatch, got %v", code)
	}

	resp = c.post("/api/v1/auth/password-reset-confirm/"+token, map[string]any{
		"new_password": "new-pass", "confirm_new_password": "new-pass",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.post("/api/v1/auth/login", map[string]any{"email": "alice@example.com", "password": "new-pass"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login with the new password: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestVerifyWithMangledToken(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/api/v1/auth/verify/not-a-real-token", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if code := decodeBody(t, resp)["error_code"]; code != "action_token_invalid" {
		t.Fatalf("expected action_token_invalid, got %v", code)
	}
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" || body["service"] != "lab-services" {
		t.Fatalf("unexpected health payload: %v", body)
	}
}
