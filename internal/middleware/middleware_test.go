package middleware

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/batch-admission/internal/auth"
	"github.com/iliyamo/batch-admission/internal/config"
)

const secret = "test-secret"

func protected(roles ...string) *echo.Echo {
	e := echo.New()
	g := e.Group("", JWTAuth(secret), RequireRole(roles...))
	g.GET("/me", func(c echo.Context) error {
		uid, ok := UserID(c)
		return c.JSON(http.StatusOK, echo.Map{"uid": uid, "ok": ok, "role": Role(c)})
	})
	return e
}

func do(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuthAcceptsAccessToken(t *testing.T) {
	tok, err := auth.NewAccessToken(secret, 42, RoleApplicant, time.Minute)
	require.NoError(t, err)

	rec := do(protected(RoleApplicant, RoleAdmin), tok.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"uid":42,"ok":true,"role":"APPLICANT"}`, rec.Body.String())
}

func TestJWTAuthRejects(t *testing.T) {
	e := protected(RoleApplicant)

	assert.Equal(t, http.StatusUnauthorized, do(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, "garbage").Code)

	wrong, err := auth.NewAccessToken("other-secret", 1, RoleApplicant, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, wrong.Token).Code)

	expired, err := auth.NewAccessToken(secret, 1, RoleApplicant, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, expired.Token).Code)

	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "role": RoleApplicant, "type": "refresh", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(e, refresh).Code)
}

func TestRequireRole(t *testing.T) {
	tok, err := auth.NewAccessToken(secret, 7, RoleApplicant, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(protected(RoleAdmin), tok.Token).Code)
}

func TestUserIDAcceptsNumericSubject(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	_, ok := UserID(c)
	assert.False(t, ok)
	assert.Equal(t, "anon", userKey(c))

	c.Set(ctxUserID, float64(9))
	uid, ok := UserID(c)
	assert.True(t, ok)
	assert.Equal(t, uint64(9), uid)

	c.Set(ctxUserID, "not-a-number")
	_, ok = UserID(c)
	assert.False(t, ok)
}

func TestUserIDRejectsNonPositiveIntegers(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	for _, sub := range []any{float64(9.5), float64(-3), float64(0), float64(1e20), math.NaN(), "0", "-3"} {
		c.Set(ctxUserID, sub)
		_, ok := UserID(c)
		assert.False(t, ok, "%v", sub)
	}
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/applications/3/reserve", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/applications/:id/reserve")
	c.Set(ctxUserID, "5")

	cfg := config.RateLimitConfig{Prefix: "rl"}
	for strategy, want := range map[string]string{
		"ip":         "rl:ip:10.0.0.1",
		"user":       "rl:user:5",
		"user_route": "rl:user:5:route:POST /v1/applications/:id/reserve",
		"":           "rl:ip:10.0.0.1:user:5:route:POST /v1/applications/:id/reserve",
	} {
		cfg.KeyStrategy = strategy
		assert.Equal(t, want, rateKey(cfg, c), strategy)
	}
}

func TestDisabledMiddlewarePassesThrough(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "x") },
		RateLimit(config.RateLimitConfig{Enabled: false}, nil, nil),
		ResponseCache(config.CacheConfig{Enabled: true}, nil))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestCacheKeyIgnoresPathParamsButKeepsPath(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "cache"}
	c1 := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/batches/1/availability", nil), httptest.NewRecorder())
	c2 := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/batches/2/availability", nil), httptest.NewRecorder())
	assert.NotEqual(t, cacheKey(cfg, c1), cacheKey(cfg, c2))
	assert.Equal(t, cacheKey(cfg, c1), cacheKey(cfg, c1))
	assert.Regexp(t, `^cache:[0-9a-f]{40}$`, cacheKey(cfg, c1))
}

func TestRecorderDropsOversizedBodies(t *testing.T) {
	rec := &recorder{ResponseWriter: httptest.NewRecorder(), limit: 4}
	_, _ = rec.Write([]byte("ab"))
	assert.False(t, rec.over)
	_, _ = rec.Write([]byte("cde"))
	assert.True(t, rec.over)
	assert.Zero(t, rec.buf.Len())
}
