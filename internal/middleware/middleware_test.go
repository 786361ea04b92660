package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/room-reservation/internal/ratelimit"
	"github.com/iliyamo/room-reservation/internal/utils"
)

const secret = "test-secret"

func whoami(c echo.Context) error {
	id, ok := UserID(c)
	if !ok {
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": id, "role": c.Get("role")})
}

func bearer(t *testing.T, userID uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, userID, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok.Token
}

func serve(e *echo.Echo, method, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set(echo.HeaderAuthorization, auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret))

	rec := serve(e, http.MethodGet, "/me", bearer(t, 7, RoleCustomer))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":7,"role":"CUSTOMER"}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "Bearer nope").Code)

	other, err := utils.NewAccessToken("other-secret", 7, RoleCustomer, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(e, http.MethodGet, "/me", "Bearer "+other.Token).Code)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.POST("/admin", whoami, JWTAuth(secret), RequireRole(RoleAdmin))

	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodPost, "/admin", bearer(t, 1, RoleCustomer)).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/admin", bearer(t, 1, RoleAdmin)).Code)
}

func TestParseID(t *testing.T) {
	cases := []struct {
		in   any
		want uint64
		ok   bool
	}{
		{float64(12), 12, true},
		{"12", 12, true},
		{uint64(3), 3, true},
		{float64(1.5), 1, false},
		{"abc", 0, false},
		{nil, 0, false},
		{float64(0), 0, false},
	}
	for _, tc := range cases {
		got, ok := parseID(tc.in)
		assert.Equal(t, tc.ok, ok, "%v", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got)
		}
	}
}

func TestRateLimitBlocksSixteenthRequest(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	l := ratelimit.NewMemoryLimiter(ratelimit.DefaultConfig(), func() time.Time { return now }, nil)
	e := echo.New()
	e.POST("/v1/bookings", whoami, JWTAuth(secret), RateLimit(l, ratelimit.Config{}, nil))

	auth := bearer(t, 5, RoleCustomer)
	for i := 0; i < 15; i++ {
		rec := serve(e, http.MethodPost, "/v1/bookings", auth)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}
	rec := serve(e, http.MethodPost, "/v1/bookings", auth)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))
	assert.Equal(t, "15", rec.Header().Get("X-RateLimit-Limit"))
	assert.JSONEq(t, `{"error":"too_many_requests","message":"rate limit exceeded","retry_after":10}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/v1/bookings", bearer(t, 6, RoleCustomer)).Code,
		"other users keep their own window")
}

func TestRateLimitReportsLimiterPolicy(t *testing.T) {
	l := ratelimit.NewMemoryLimiter(ratelimit.Config{MaxRequests: 5}, nil, nil)
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RateLimit(l, ratelimit.Config{}, nil))

	rec := serve(e, http.MethodGet, "/x", "")
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
}

type brokenLimiter struct{}

func (brokenLimiter) Check(context.Context, string, string, ratelimit.Config) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("redis: connection refused")
}

func TestRateLimitFailsOpen(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RateLimit(brokenLimiter{}, ratelimit.Config{}, nil))
	assert.Equal(t, http.StatusNoContent, serve(e, http.MethodGet, "/x", "").Code)
}

func TestRequestIDIsEchoedOrAssigned(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := serve(e, http.MethodGet, "/x", "")
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(echo.HeaderXRequestID))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, got)
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := echo.New()
	e.Use(RequestID(), RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/missing", func(c echo.Context) error { return c.NoContent(http.StatusNotFound) })
	e.GET("/boom", func(c echo.Context) error {
		c.Set("error", errors.New("db down"))
		return c.NoContent(http.StatusInternalServerError)
	})

	for _, p := range []string{"/ok", "/missing", "/boom"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "db down", entries[2].ContextMap()["error"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
}
