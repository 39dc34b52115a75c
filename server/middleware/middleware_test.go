package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/flowgate/auth"
	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/ratelimit"
)

const jwtSecret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": auth.UserID(c.Request.Context())})
	})
	r.POST("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	return r
}

func do(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	req.RemoteAddr = "203.0.113.7:4000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("body %q: %v", rr.Body.String(), err)
	}
	return body.Error.Code
}

func TestRecovery(t *testing.T) {
	r := newEngine(Recovery(logger.NewNop()))
	rr := do(r, http.MethodGet, "/panic", nil)
	if rr.Code != http.StatusInternalServerError || errorCode(t, rr) != "INTERNAL_ERROR" {
		t.Fatalf("got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())
	if rr := do(r, http.MethodGet, "/ok", nil); rr.Header().Get(HeaderRequestID) == "" {
		t.Error("request id not generated")
	}
	rr := do(r, http.MethodGet, "/ok", map[string]string{HeaderRequestID: "req-1"})
	if got := rr.Header().Get(HeaderRequestID); got != "req-1" {
		t.Errorf("request id = %q", got)
	}
}

func TestCORS(t *testing.T) {
	r := newEngine(CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}, AllowedMethods: []string{"GET", "POST"}}))

	rr := do(r, http.MethodOptions, "/ok", map[string]string{"Origin": "https://app.example.com"})
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Methods") != "GET, POST" {
		t.Errorf("preflight = %d %v", rr.Code, rr.Header())
	}
	rr = do(r, http.MethodGet, "/ok", map[string]string{"Origin": "https://evil.example.com"})
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("disallowed origin got CORS headers")
	}
}

func TestAuthenticate(t *testing.T) {
	tokens, err := auth.NewTokens(auth.Config{JWTSecret: jwtSecret})
	if err != nil {
		t.Fatal(err)
	}
	tok, _ := tokens.Issue("u1", "")

	optional := newEngine(Authenticate(tokens, false))
	if rr := do(optional, http.MethodGet, "/ok", nil); rr.Code != http.StatusOK {
		t.Errorf("anonymous request = %d", rr.Code)
	}
	rr := do(optional, http.MethodGet, "/ok", map[string]string{"Authorization": "Bearer " + tok})
	var body map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body["user"] != "u1" {
		t.Errorf("user = %q", body["user"])
	}
	if rr := do(optional, http.MethodGet, "/ok", map[string]string{"Authorization": "Bearer nope"}); rr.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d", rr.Code)
	}

	required := newEngine(Authenticate(tokens, true))
	if rr := do(required, http.MethodGet, "/ok", nil); rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "UNAUTHORIZED" {
		t.Errorf("missing token = %d", rr.Code)
	}
}

func TestRequireTriggerSecret(t *testing.T) {
	r := newEngine(RequireTriggerSecret("trigger-secret-123"))
	if rr := do(r, http.MethodPost, "/ok", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("missing secret = %d", rr.Code)
	}
	if rr := do(r, http.MethodPost, "/ok", map[string]string{HeaderTriggerSecret: "trigger-secret-123"}); rr.Code != http.StatusOK {
		t.Errorf("valid secret = %d", rr.Code)
	}
}

func TestRateLimit_HeadersAndDenial(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter, err := ratelimit.New(ratelimit.Config{
		Window: time.Minute,
		Scopes: map[ratelimit.Scope]ratelimit.Limits{
			ratelimit.ScopeExecute: {Global: 100, IP: 5, AnonymousIP: 2},
		},
		Penalty: ratelimit.PenaltyConfig{Base: time.Second, Max: time.Minute, Memory: time.Hour},
	}, nil, logger.NewNop(), ratelimit.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	r := newEngine(RateLimit(limiter, ratelimit.ScopeExecute, logger.NewNop()))

	first := do(r, http.MethodGet, "/ok", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first = %d", first.Code)
	}
	if first.Header().Get(HeaderRateLimit) != "2" || first.Header().Get(HeaderRateRemaining) != "1" {
		t.Errorf("headers = %v", first.Header())
	}
	reset, _ := strconv.ParseInt(first.Header().Get(HeaderRateReset), 10, 64)
	if reset <= now.Unix() {
		t.Errorf("reset = %d", reset)
	}

	do(r, http.MethodGet, "/ok", nil)
	denied := do(r, http.MethodGet, "/ok", nil)
	if denied.Code != http.StatusTooManyRequests || errorCode(t, denied) != "RATE_LIMITED" {
		t.Fatalf("third = %d %s", denied.Code, denied.Body.String())
	}
	if denied.Header().Get(HeaderRetryAfter) != "1" {
		t.Errorf("Retry-After = %q", denied.Header().Get(HeaderRetryAfter))
	}
}

func TestBodySizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodySizeLimit(4))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("0123456789"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized body = %d", rr.Code)
	}
}
