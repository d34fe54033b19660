package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"app/internal/config"
	"app/internal/middleware"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

// =====================
// レスポンス確認用（any禁止）
// =====================

type mwErrorResponse struct {
	Error string `json:"error"`
}

type mwOKResponse struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// =====================
// helper
// =====================

func mustMakeJWT(t *testing.T, secret string, claims jwt.MapClaims, method jwt.SigningMethod) string {
	t.Helper()

	token := jwt.NewWithClaims(method, claims)

	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return s
}

func newProtectedEcho(cfg config.Config, extra ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	mws := append([]echo.MiddlewareFunc{middleware.AuthJWT(cfg)}, extra...)
	e.GET("/protected", func(c echo.Context) error {
		userID, _ := c.Get(middleware.CtxUserIDKey).(string)
		role, _ := c.Get(middleware.CtxUserRoleKey).(string)
		return c.JSON(http.StatusOK, mwOKResponse{UserID: userID, Role: role})
	}, mws...)
	return e
}

func runRequest(t *testing.T, e *echo.Echo, authHeader string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeMWError(t *testing.T, rec *httptest.ResponseRecorder) mwErrorResponse {
	t.Helper()
	var r mwErrorResponse
	_ = json.NewDecoder(rec.Body).Decode(&r)
	return r
}

func decodeMWOK(t *testing.T, rec *httptest.ResponseRecorder) mwOKResponse {
	t.Helper()
	var r mwOKResponse
	_ = json.NewDecoder(rec.Body).Decode(&r)
	return r
}

// =====================
// AuthJWT
// =====================

// Authorizationなし => 401
func TestMiddleware_AuthJWT_Unauthorized_NoHeader(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	e := newProtectedEcho(cfg)

	rec := runRequest(t, e, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeMWError(t, rec).Error)
}

// Bearer形式でない => 401
func TestMiddleware_AuthJWT_Unauthorized_NotBearer(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	e := newProtectedEcho(cfg)

	rec := runRequest(t, e, "Basic abc123")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// 署名が違う => 401
func TestMiddleware_AuthJWT_Unauthorized_WrongSecret(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	e := newProtectedEcho(cfg)

	tok := mustMakeJWT(t, "other-secret", jwt.MapClaims{"sub": "u1", "exp": int64(9999999999)}, jwt.SigningMethodHS256)
	rec := runRequest(t, e, "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// subが無い => 401
func TestMiddleware_AuthJWT_Unauthorized_MissingSub(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	e := newProtectedEcho(cfg)

	tok := mustMakeJWT(t, "test-secret", jwt.MapClaims{"exp": int64(9999999999)}, jwt.SigningMethodHS256)
	rec := runRequest(t, e, "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// 正常系：subとroleがcontextに入る
func TestMiddleware_AuthJWT_Success(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	e := newProtectedEcho(cfg)

	tok := mustMakeJWT(t, "test-secret", jwt.MapClaims{"sub": "user-abc", "role": "ADMIN", "exp": int64(9999999999)}, jwt.SigningMethodHS256)
	rec := runRequest(t, e, "Bearer "+tok)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeMWOK(t, rec)
	assert.Equal(t, "user-abc", body.UserID)
	assert.Equal(t, "ADMIN", body.Role)
}

// role無しはUSER扱い
func TestMiddleware_AuthJWT_DefaultRoleUser(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	e := newProtectedEcho(cfg)

	tok := mustMakeJWT(t, "test-secret", jwt.MapClaims{"sub": "user-abc", "exp": int64(9999999999)}, jwt.SigningMethodHS256)
	rec := runRequest(t, e, "Bearer "+tok)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "USER", decodeMWOK(t, rec).Role)
}

// 期限切れ => 401
func TestMiddleware_AuthJWT_Unauthorized_Expired(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	e := newProtectedEcho(cfg)

	tok := mustMakeJWT(t, "test-secret", jwt.MapClaims{"sub": "u1", "exp": int64(1)}, jwt.SigningMethodHS256)
	rec := runRequest(t, e, "Bearer "+tok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =====================
// AdminRoleGuard
// =====================

// USERは403
func TestMiddleware_AdminRoleGuard_Forbidden_User(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	e := newProtectedEcho(cfg, middleware.AdminRoleGuard())

	tok := mustMakeJWT(t, "test-secret", jwt.MapClaims{"sub": "u1", "role": "USER", "exp": int64(9999999999)}, jwt.SigningMethodHS256)
	rec := runRequest(t, e, "Bearer "+tok)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "admin only", decodeMWError(t, rec).Error)
}

// ADMINは通る
func TestMiddleware_AdminRoleGuard_AllowsAdmin(t *testing.T) {
	cfg := config.Config{JWTSecret: "test-secret"}
	e := newProtectedEcho(cfg, middleware.AdminRoleGuard())

	tok := mustMakeJWT(t, "test-secret", jwt.MapClaims{"sub": "u1", "role": "ADMIN", "exp": int64(9999999999)}, jwt.SigningMethodHS256)
	rec := runRequest(t, e, "Bearer "+tok)

	assert.Equal(t, http.StatusOK, rec.Code)
}
