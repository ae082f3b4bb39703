package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func setupRouter(m *Middleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", m.Required(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"actor": ActorID(c), "role": c.GetString(CtxActorRole)})
	})
	r.GET("/admin", m.Required(), m.RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func doRequest(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequired(t *testing.T) {
	m := NewMiddleware(testSecret)
	r := setupRouter(m)

	t.Run("should accept a valid token and expose the actor", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub":  "cust-1",
			"role": "customer",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})

		w := doRequest(r, "/me", token)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "cust-1")
	})

	t.Run("should reject a missing header", func(t *testing.T) {
		w := doRequest(r, "/me", "")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("should reject a token signed with another secret", func(t *testing.T) {
		token := signToken(t, "wrong-secret", jwt.MapClaims{"sub": "cust-1"})

		w := doRequest(r, "/me", token)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{
			"sub": "cust-1",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		w := doRequest(r, "/me", token)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("should reject a token without a subject", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"role": "customer"})

		w := doRequest(r, "/me", token)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	m := NewMiddleware(testSecret)
	r := setupRouter(m)

	t.Run("should allow an admin", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"sub": "admin-1", "role": "admin"})

		w := doRequest(r, "/admin", token)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("should forbid a customer", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"sub": "cust-1", "role": "customer"})

		w := doRequest(r, "/admin", token)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
