package security

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"qcwarehouse/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 12 * time.Hour

var (
	secretMu  sync.RWMutex
	jwtSecret []byte
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// SetSecret configures the HMAC key used to sign and verify tokens. It must
// be called before serving requests.
func SetSecret(secret string) {
	secretMu.Lock()
	defer secretMu.Unlock()
	jwtSecret = []byte(secret)
}

func secret() ([]byte, error) {
	secretMu.RLock()
	defer secretMu.RUnlock()
	if len(jwtSecret) == 0 {
		return nil, fmt.Errorf("jwt secret is not configured")
	}
	return jwtSecret, nil
}

type UserFinder interface {
	GetUserByUsername(username string) (*models.User, error)
}

func AuthenticateUser(username, password string, users UserFinder) (*models.User, error) {
	user, err := users.GetUserByUsername(username)
	if err != nil || user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func GenerateJWT(userID string, role string, username string) (string, error) {
	key, err := secret()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"userID":   userID,
		"role":     role,
		"username": username,
		"exp":      time.Now().Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

func parseToken(tokenString string) (jwt.MapClaims, error) {
	key, err := secret()
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims")
	}
	return claims, nil
}

// GetUserID returns the authenticated user's id set by JWTMiddleware.
func GetUserID(c *gin.Context) (int, bool) {
	raw, ok := c.Get("userID")
	if !ok {
		return 0, false
	}
	s, ok := raw.(string)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(s)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
