// Package session issues the signed cookie that scopes session marks to one
// browser session.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const issuer = "kksr-counter"

type contextKey struct{}

// Claims is the payload of the session cookie. The session id is the
// registered jti claim.
type Claims struct {
	jwt.RegisteredClaims
}

// Manager issues and verifies session cookies
type Manager struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
	secure     bool
	logger     *zap.Logger
	now        func() time.Time
}

// Options configures a Manager
type Options struct {
	Secret     string
	CookieName string
	TTL        time.Duration
	// Secure marks the cookie HTTPS-only.
	Secure bool
}

// NewManager creates a session manager. Without a secret a random one is
// generated, so sessions do not survive a restart.
func NewManager(opts Options, logger *zap.Logger) *Manager {
	secret := opts.Secret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
		logger.Warn("SESSION_SECRET not set, using an ephemeral secret")
	}
	if opts.CookieName == "" {
		opts.CookieName = "kksr_session"
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}

	return &Manager{
		secret:     []byte(secret),
		cookieName: opts.CookieName,
		ttl:        opts.TTL,
		secure:     opts.Secure,
		logger:     logger,
		now:        time.Now,
	}
}

// Issue creates a new session id and its signed token
func (m *Manager) Issue() (id string, token string, err error) {
	now := m.now()
	id = uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return id, token, nil
}

// Parse verifies a session token and returns its session id
func (m *Manager) Parse(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", errors.New("invalid session claims")
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return "", fmt.Errorf("invalid session id: %w", err)
	}

	return claims.ID, nil
}

// Resolve returns the session of the request, issuing a new cookie when the
// request carries none or an invalid one. An empty id means no session
// could be established.
func (m *Manager) Resolve(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		id, err := m.Parse(cookie.Value)
		if err == nil {
			return id
		}
		m.logger.Debug("Discarding session cookie", zap.Error(err))
	}

	id, token, err := m.Issue()
	if err != nil {
		m.logger.Error("Failed to issue session", zap.Error(err))
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// Middleware resolves the session of every request and stores its id in
// the request context
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := m.Resolve(w, r)
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}

// WithID returns a context carrying the session id
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the session id stored by Middleware, or ""
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
