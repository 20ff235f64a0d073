package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	userIDKey    = "user_id"
	userIDHeader = "X-User-ID"
)

var errUnauthenticated = errors.New("missing or invalid credentials")

// Authenticator resolves the calling user from a request.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// HeaderAuthenticator trusts the X-User-ID header set by a fronting proxy.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(userIDHeader))
	if id == "" {
		return "", errUnauthenticated
	}
	return id, nil
}

// JWTAuthenticator accepts HS256 bearer tokens whose subject is the user id.
type JWTAuthenticator struct {
	Secret []byte
}

func (a JWTAuthenticator) Authenticate(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		return "", errUnauthenticated
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", errUnauthenticated
	}
	if claims.Subject == "" {
		return "", errUnauthenticated
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := s.auth.Authenticate(c.Request)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "unauthorized", "Unauthorized")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
