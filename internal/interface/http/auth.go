package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dyslexia-hub/therapy-workflow/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEARER TOKENS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims is the token payload. The subject is the user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenAuthenticator issues and verifies HS256 tokens that carry an actor.
type TokenAuthenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenAuthenticator creates an authenticator. An empty issuer is not checked.
func NewTokenAuthenticator(secret, issuer string) *TokenAuthenticator {
	return &TokenAuthenticator{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for the actor.
func (a *TokenAuthenticator) Issue(actor shared.Actor, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Role: actor.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses the token and returns the actor it names.
func (a *TokenAuthenticator) Verify(token string) (shared.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return shared.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return shared.Actor{}, ErrInvalidToken
	}

	role, err := shared.ParseRole(claims.Role)
	if err != nil {
		return shared.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	actor, err := shared.NewActor(claims.Subject, role)
	if err != nil {
		return shared.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return actor, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

const actorKey = "actor"

func authMiddleware(auth *TokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			writeJSONError(c, http.StatusUnauthorized, "missing_token", ErrMissingToken.Error())
			return
		}
		actor, err := auth.Verify(token)
		if err != nil {
			writeJSONError(c, http.StatusUnauthorized, "invalid_token", ErrInvalidToken.Error())
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// actorFrom returns the actor set by authMiddleware.
func actorFrom(c *gin.Context) shared.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(shared.Actor)
	return actor
}
