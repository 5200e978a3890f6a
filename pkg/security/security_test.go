package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"qcwarehouse/internal/rate_limiter"
	"qcwarehouse/pkg/models"
	"qcwarehouse/pkg/roles"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type stubUsers map[string]*models.User

func (s stubUsers) GetUserByUsername(username string) (*models.User, error) {
	if u, ok := s[username]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

func newUsers(t *testing.T) stubUsers {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	return stubUsers{
		"anna": {ID: 7, Username: "anna", PasswordHash: string(hash), Role: string(roles.Supervisor)},
	}
}

func TestAuthenticateUser(t *testing.T) {
	users := newUsers(t)

	user, err := AuthenticateUser("anna", "secret123", users)
	require.NoError(t, err)
	assert.Equal(t, 7, user.ID)

	_, err = AuthenticateUser("anna", "wrong", users)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = AuthenticateUser("nobody", "secret123", users)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGenerateJWTRequiresSecret(t *testing.T) {
	SetSecret("")
	_, err := GenerateJWT("1", "admin", "root")
	assert.Error(t, err)
}

func protectedRouter(required roles.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/", JWTMiddleware())
	g.GET("/ping", Authorize(required), func(c *gin.Context) {
		id, ok := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "ok": ok})
	})
	return r
}

func TestJWTMiddlewareAndAuthorize(t *testing.T) {
	SetSecret("test-secret")

	operatorToken, err := GenerateJWT("3", string(roles.Operator), "op")
	require.NoError(t, err)
	adminToken, err := GenerateJWT("1", string(roles.Admin), "root")
	require.NoError(t, err)

	tests := []struct {
		name           string
		header         string
		required       roles.Role
		expectedStatus int
	}{
		{"missing header", "", roles.Operator, http.StatusUnauthorized},
		{"garbage token", "Bearer nope", roles.Operator, http.StatusUnauthorized},
		{"operator allowed", "Bearer " + operatorToken, roles.Operator, http.StatusOK},
		{"operator below supervisor", "Bearer " + operatorToken, roles.Supervisor, http.StatusForbidden},
		{"admin above supervisor", "Bearer " + adminToken, roles.Supervisor, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := protectedRouter(tt.required)
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestGetUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetUserID(c)
	assert.False(t, ok)

	c.Set("userID", "12")
	id, ok := GetUserID(c)
	assert.True(t, ok)
	assert.Equal(t, 12, id)

	c.Set("userID", "abc")
	_, ok = GetUserID(c)
	assert.False(t, ok)
}

func TestLoginHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	SetSecret("test-secret")

	limiter := rate_limiter.NewRateLimiter(2, time.Minute)
	defer limiter.Stop()

	r := gin.New()
	NewLoginHandler(newUsers(t), limiter, zap.NewNop()).RegisterRoutes(r)

	login := func(username, password string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"username": username, "password": password})
		req := httptest.NewRequest(http.MethodPost, "/auth", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", "203.0.113.5")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := login("anna", "secret123")
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := parseToken(resp["token"])
	require.NoError(t, err)
	assert.Equal(t, "7", claims["userID"])
	assert.Equal(t, "supervisor", claims["role"])

	w = login("anna", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = login("anna", "secret123")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, isPrivateIP("10.1.2.3"))
	assert.True(t, isPrivateIP("192.168.0.1"))
	assert.True(t, isPrivateIP("127.0.0.1"))
	assert.False(t, isPrivateIP("203.0.113.5"))
	assert.False(t, isPrivateIP("172.32.0.1"))
}
