package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujalbistaa/whispr/internal/apperr"
	"github.com/sujalbistaa/whispr/internal/board"
	"github.com/sujalbistaa/whispr/internal/config"
	"github.com/sujalbistaa/whispr/internal/db/dbtest"
	"github.com/sujalbistaa/whispr/internal/identity"
	"github.com/sujalbistaa/whispr/internal/moderation"
	"github.com/sujalbistaa/whispr/internal/ws"
)

type client struct {
	t       *testing.T
	router  *gin.Engine
	ip      string
	cookies []*http.Cookie

	// forwardedFor, when set, is sent as X-Forwarded-For.
	forwardedFor string
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (cl *client) do(method, path string, body any) (int, envelope) {
	cl.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(cl.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = cl.ip + ":41234"
	if cl.forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", cl.forwardedFor)
	}
	for _, ck := range cl.cookies {
		req.AddCookie(ck)
	}

	w := httptest.NewRecorder()
	cl.router.ServeHTTP(w, req)

	for _, ck := range w.Result().Cookies() {
		cl.setCookie(ck)
	}

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(cl.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (cl *client) setCookie(ck *http.Cookie) {
	for i, existing := range cl.cookies {
		if existing.Name == ck.Name {
			cl.cookies[i] = ck
			return
		}
	}
	cl.cookies = append(cl.cookies, ck)
}

func newRouter(t *testing.T, opts ...func(*config.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database := dbtest.New(t)
	gate := identity.NewGate(database, "WELCOME", identity.WithCooldown(0))
	svc := board.NewService(database, gate, moderation.NewPipeline(moderation.Passthrough{}, time.Second), nil)
	hub := ws.NewHub()

	cfg := &config.Config{
		CORSOrigin:     "*",
		ActivationKey:  "WELCOME",
		AdminSecretKey: "admin-secret",
		SessionSecret:  "session-secret",
		RequestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router := gin.New()
	require.NoError(t, SetupRoutes(ctx, router, cfg, svc, hub))
	return router
}

func TestEndToEnd(t *testing.T) {
	router := newRouter(t)
	alice := &client{t: t, router: router, ip: "203.0.113.1"}
	bob := &client{t: t, router: router, ip: "203.0.113.2"}
	admin := &client{t: t, router: router, ip: "203.0.113.9"}

	code, _ := alice.do(http.MethodPost, "/api/activate", gin.H{"key": "WELCOME"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = bob.do(http.MethodPost, "/api/activate", gin.H{"key": "WELCOME"})
	require.Equal(t, http.StatusCreated, code)

	code, env := alice.do(http.MethodPost, "/api/confessions", gin.H{"text": "I never read the manual."})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Your confession has been submitted for review. Thank you.", env.Message)
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "pending", created.Status)

	// Pending: only the author sees it.
	var feed []board.ConfessionView
	_, env = bob.do(http.MethodGet, "/api/confessions", nil)
	require.NoError(t, json.Unmarshal(env.Data, &feed))
	assert.Empty(t, feed)
	_, env = alice.do(http.MethodGet, "/api/confessions", nil)
	require.NoError(t, json.Unmarshal(env.Data, &feed))
	require.Len(t, feed, 1)
	assert.True(t, feed[0].IsMine)

	code, _ = admin.do(http.MethodPost, "/api/admin/confessions/"+created.ID+"/approve", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = admin.do(http.MethodPost, "/api/admin/login", gin.H{"secretKey": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = admin.do(http.MethodPost, "/api/admin/login", gin.H{"secretKey": "admin-secret"})
	require.Equal(t, http.StatusOK, code)

	code, env = admin.do(http.MethodPost, "/api/admin/confessions/"+created.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Confession approved.", env.Message)

	code, env = bob.do(http.MethodPost, "/api/confessions/"+created.ID+"/like", nil)
	require.Equal(t, http.StatusOK, code)
	var res board.InteractionResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.Likes)

	code, _ = bob.do(http.MethodPost, "/api/confessions/"+created.ID+"/comments", gin.H{"text": "same here"})
	require.Equal(t, http.StatusCreated, code)

	code, env = bob.do(http.MethodPost, "/api/confessions/"+created.ID+"/report", nil)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Content reported for review.", env.Message)

	code, env = bob.do(http.MethodPost, "/api/confessions/"+created.ID+"/report", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Success)
	assert.Equal(t, "You have already reported this content.", env.Message)

	_, env = admin.do(http.MethodGet, "/api/admin/reports?status=pending", nil)
	var reports []board.ReportView
	require.NoError(t, json.Unmarshal(env.Data, &reports))
	require.Len(t, reports, 1)

	_, env = admin.do(http.MethodGet, "/api/admin/confessions?status=pending", nil)
	var queue []struct {
		ID       string `json:"id"`
		AnonHash string `json:"anonHash"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &queue))
	require.Len(t, queue, 1)

	code, env = admin.do(http.MethodPost, "/api/admin/bans", gin.H{"anonHash": queue[0].AnonHash})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, env.Message, "has been banned.")

	code, env = alice.do(http.MethodPost, "/api/confessions", gin.H{"text": "another one from a banned user"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "You are banned from posting confessions.", env.Message)

	code, _ = admin.do(http.MethodDelete, "/api/admin/confessions/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = admin.do(http.MethodDelete, "/api/admin/confessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestErrorMapping(t *testing.T) {
	router := newRouter(t)
	cl := &client{t: t, router: router, ip: "198.51.100.4"}

	code, env := cl.do(http.MethodPost, "/api/confessions", gin.H{"text": "no identity yet"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)

	code, _ = cl.do(http.MethodPost, "/api/activate", gin.H{"key": "nope"})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = cl.do(http.MethodPost, "/api/activate", gin.H{"key": "WELCOME"})
	require.Equal(t, http.StatusCreated, code)

	other := &client{t: t, router: router, ip: "198.51.100.4"}
	code, env = other.do(http.MethodPost, "/api/activate", gin.H{"key": "WELCOME"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "This IP address has already been used to activate an account.", env.Message)

	code, _ = cl.do(http.MethodPost, "/api/confessions", gin.H{"text": "short"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = cl.do(http.MethodPost, "/api/confessions", gin.H{"text": "ring me on (555) 123-4567 tonight"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = cl.do(http.MethodPost, "/api/confessions", gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = cl.do(http.MethodPost, "/api/confessions/missing/like", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRespondError_RetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	respondError(c, apperr.RateLimited(90*time.Second))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "90", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "You must wait 2 more minute(s) to post again.")
}

func TestActivate_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	router := newRouter(t)
	first := &client{t: t, router: router, ip: "203.0.113.20", forwardedFor: "1.1.1.1"}
	second := &client{t: t, router: router, ip: "203.0.113.20", forwardedFor: "2.2.2.2"}

	code, _ := first.do(http.MethodPost, "/api/activate", gin.H{"key": "WELCOME"})
	require.Equal(t, http.StatusCreated, code)

	code, env := second.do(http.MethodPost, "/api/activate", gin.H{"key": "WELCOME"})
	assert.Equal(t, http.StatusConflict, code, "a rotated X-Forwarded-For must not mint a new address")
	assert.Equal(t, "This IP address has already been used to activate an account.", env.Message)
}

func TestActivate_HonoursForwardedForFromTrustedProxy(t *testing.T) {
	router := newRouter(t, func(cfg *config.Config) {
		cfg.TrustedProxies = []string{"10.0.0.0/8"}
	})
	first := &client{t: t, router: router, ip: "10.0.0.1", forwardedFor: "198.51.100.7"}
	second := &client{t: t, router: router, ip: "10.0.0.1", forwardedFor: "198.51.100.8"}
	again := &client{t: t, router: router, ip: "10.0.0.2", forwardedFor: "198.51.100.7"}

	code, _ := first.do(http.MethodPost, "/api/activate", gin.H{"key": "WELCOME"})
	require.Equal(t, http.StatusCreated, code)
	code, _ = second.do(http.MethodPost, "/api/activate", gin.H{"key": "WELCOME"})
	require.Equal(t, http.StatusCreated, code)

	code, _ = again.do(http.MethodPost, "/api/activate", gin.H{"key": "WELCOME"})
	assert.Equal(t, http.StatusConflict, code)
}

func TestSetupRoutes_RejectsBadTrustedProxy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	database := dbtest.New(t)
	gate := identity.NewGate(database, "WELCOME")
	svc := board.NewService(database, gate, moderation.NewPipeline(moderation.Passthrough{}, time.Second), nil)

	cfg := &config.Config{CORSOrigin: "*", TrustedProxies: []string{"not-an-address"}}
	err := SetupRoutes(context.Background(), gin.New(), cfg, svc, ws.NewHub())
	assert.Error(t, err)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	require.NoError(t, router.SetTrustedProxies(nil))
	router.GET("/", RateLimitMiddleware(NewIPRateLimiter(0.001, 2)), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.50:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes[i] = w.Code
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}
