package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ndilive/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTokenValidator(t *testing.T) {
	v := NewTokenValidator("secret")
	token, err := v.IssueToken("operator", time.Minute)
	require.NoError(t, err)

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Subject)

	_, err = NewTokenValidator("other").ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := v.IssueToken("operator", -time.Minute)
	require.NoError(t, err)
	_, err = v.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthMiddleware(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.JWTSecret = "secret"

	gin.SetMode(gin.TestMode)
	router := newRouter(AuthMiddleware(cfg))
	router.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(SubjectKey))
	})

	assert.Equal(t, http.StatusUnauthorized, get(router, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(router, http.Header{"Authorization": {"Basic abc"}}).Code)
	assert.Equal(t, http.StatusUnauthorized, get(router, http.Header{"Authorization": {"Bearer nope"}}).Code)

	token, err := NewTokenValidator("secret").IssueToken("operator", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(router, http.Header{"Authorization": {"Bearer " + token}}).Code)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami?access_token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "operator", w.Body.String())
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router := newRouter(AuthMiddleware(config.DefaultConfig()))
	assert.Equal(t, http.StatusOK, get(router, nil).Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop().Sugar()))
	router.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
