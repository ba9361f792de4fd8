package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/OriD-19/vendly-backend/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-middleware-tests", 15*time.Minute)
}

// newTestEngine mounts the middleware chain in front of a handler that
// echoes the caller's id.
func newTestEngine(chain ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append(chain, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c)})
	})
	r.GET("/protected", handlers...)
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuth_ValidToken_Header(t *testing.T) {
	jwtService := newTestJWTService()
	token, _, err := jwtService.GenerateAccessToken("customer-123", "test@example.com", auth.RoleCustomer, "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := serve(newTestEngine(Auth(jwtService)), req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"customer-123"}`, rec.Body.String())
}

func TestAuth_ValidToken_Cookie(t *testing.T) {
	jwtService := newTestJWTService()
	token, _, err := jwtService.GenerateAccessToken("customer-456", "cookie@example.com", auth.RoleCustomer, "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	rec := serve(newTestEngine(Auth(jwtService)), req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"customer-456"}`, rec.Body.String())
}

func TestAuth_Rejects(t *testing.T) {
	jwtService := newTestJWTService()
	other := auth.NewJWTService("another-secret-key-for-middleware", 15*time.Minute)
	foreign, _, err := other.GenerateAccessToken("customer-1", "x@example.com", auth.RoleCustomer, "")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"no token", ""},
		{"not bearer", "Basic abc"},
		{"garbage", "Bearer not-a-token"},
		{"wrong key", "Bearer " + foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(newTestEngine(Auth(jwtService)), req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	jwtService := newTestJWTService()

	tests := []struct {
		name     string
		role     string
		wantCode int
	}{
		{"admin allowed", auth.RoleAdmin, http.StatusOK},
		{"store allowed", auth.RoleStore, http.StatusOK},
		{"customer forbidden", auth.RoleCustomer, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := jwtService.GenerateAccessToken("user-1", "u@example.com", tt.role, "store-1")
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := serve(newTestEngine(Auth(jwtService), RequireRole(auth.RoleAdmin, auth.RoleStore)), req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRequireRole_WithoutAuth(t *testing.T) {
	rec := serve(newTestEngine(RequireRole(auth.RoleAdmin)), httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
