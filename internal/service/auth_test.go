package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAuthRouter(auth *AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/run", auth.AuthMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return r
}

func TestAuthMiddleware_DisabledWithoutSecret(t *testing.T) {
	r := newAuthRouter(NewAuthService(zap.NewNop(), ""))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/run", nil))
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestAuthMiddleware_RequiresValidCode(t *testing.T) {
	secret, url, err := NewAuthService(zap.NewNop(), "").GenerateSecret("operator")
	require.NoError(t, err)
	require.Contains(t, url, "otpauth://totp/")

	auth := NewAuthService(zap.NewNop(), secret)
	r := newAuthRouter(auth)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/run", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set(TOTPHeader, "000000x")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/run", nil)
	req.Header.Set(TOTPHeader, code)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)
}
