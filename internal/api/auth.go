package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"edgevision-worker-go/internal/config"
)

// Auth gates the evidence endpoints. The operator exchanges the configured
// PIN for a short-lived bearer token; with no PIN configured the endpoints
// are open (development mode).
type Auth struct {
	pin    string
	secret []byte
	ttl    time.Duration
}

type pinRequest struct {
	PIN string `json:"pin" binding:"required"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func NewAuth(cfg *config.Config) (*Auth, error) {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		// Ephemeral secret: tokens die with the process, which is fine
		// for a single-node worker.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("api: generate jwt secret: %w", err)
		}
	}
	if cfg.DecryptPIN == "" {
		log.Warn().Msg("DECRYPT_PIN not set, evidence endpoints are unauthenticated")
	}
	return &Auth{pin: cfg.DecryptPIN, secret: secret, ttl: cfg.JWTTTL}, nil
}

// ExchangePIN issues a bearer token for a correct PIN
// @Summary Exchange the decrypt PIN for a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body pinRequest true "PIN"
// @Success 200 {object} tokenResponse
// @Failure 401 {object} map[string]string
// @Router /auth/pin [post]
func (a *Auth) ExchangePIN(c *gin.Context) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if a.pin == "" || subtle.ConstantTimeCompare([]byte(req.PIN), []byte(a.pin)) != 1 {
		log.Warn().Str("remote", c.ClientIP()).Msg("Rejected PIN attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid pin"})
		return
	}

	expires := time.Now().Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "decrypt",
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ID:        randomID(),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token signing failed"})
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: signed, ExpiresAt: expires.Unix()})
}

// Middleware validates the bearer token on protected routes. With no PIN
// configured it is a pass-through.
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.pin == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		_, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return a.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func randomID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
