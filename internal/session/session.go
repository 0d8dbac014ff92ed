package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Joseda-hg/lazytodo/internal/model"
)

const (
	TokenKey   = "auth_token"
	CookieName = "auth_token"
	CookieTTL  = 7 * 24 * time.Hour

	RouteTasks  = "/tasks"
	RouteSignIn = "/signin"
)

var ErrNoSession = errors.New("no active session")

var protectedPrefixes = []string{RouteTasks}

// Storage is the durable side of the session. SaveSession and ClearSession
// must touch the token and its cookie mirror atomically.
type Storage interface {
	SaveSession(ctx context.Context, key, token string, cookie model.Cookie) error
	ClearSession(ctx context.Context, key, cookieName string) error
	GetSetting(ctx context.Context, key string) (string, bool, error)
	GetCookie(ctx context.Context, name string) (model.Cookie, bool, error)
}

// Claims is the payload the backend signs into every token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Manager struct {
	storage Storage
	logger  *log.Logger
	now     func() time.Time
	parser  *jwt.Parser

	mu sync.Mutex
}

func NewManager(storage Storage, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		storage: storage,
		logger:  logger,
		now:     time.Now,
		parser:  jwt.NewParser(),
	}
}

// SetClock replaces the time source used for expiry checks.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manager) clock() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now()
}

// Store persists token without validating it.
func (m *Manager) Store(ctx context.Context, token string) error {
	expires := m.clock().Add(CookieTTL)
	cookie := model.Cookie{Name: CookieName, Value: token, Path: "/", ExpiresAt: &expires}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.storage.SaveSession(ctx, TokenKey, token, cookie); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Retrieve returns the stored token. Storage failures are logged and
// reported as an absent token.
func (m *Manager) Retrieve(ctx context.Context) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok, err := m.storage.GetSetting(ctx, TokenKey)
	if err != nil {
		m.logger.Printf("session: read token: %v", err)
		return "", false
	}
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// Token satisfies api.TokenSource.
func (m *Manager) Token(ctx context.Context) (string, bool) {
	return m.Retrieve(ctx)
}

func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.storage.ClearSession(ctx, TokenKey, CookieName); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Cookie returns the cookie channel copy of the token, treating an expired
// cookie as absent.
func (m *Manager) Cookie(ctx context.Context) (model.Cookie, bool) {
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	cookie, ok, err := m.storage.GetCookie(ctx, CookieName)
	if err != nil {
		m.logger.Printf("session: read cookie: %v", err)
		return model.Cookie{}, false
	}
	if !ok || cookie.Value == "" || cookie.Expired(now) {
		return model.Cookie{}, false
	}
	return cookie, true
}

// Decode reads the token payload without checking the signature.
func (m *Manager) Decode(token string) (Claims, bool) {
	var claims Claims
	if strings.TrimSpace(token) == "" {
		return Claims{}, false
	}
	// Only the payload matters here, so an unknown or missing alg header is
	// fine once the claims have decoded.
	if _, _, err := m.parser.ParseUnverified(token, &claims); err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return Claims{}, false
	}
	return claims, true
}

// IsExpired reports true for tokens whose exp is at or before now, tokens
// without exp and anything that does not decode.
func (m *Manager) IsExpired(token string) bool {
	claims, ok := m.Decode(token)
	if !ok || claims.ExpiresAt == nil {
		return true
	}
	return !m.clock().Before(claims.ExpiresAt.Time)
}

func (m *Manager) SubjectID(token string) (string, bool) {
	claims, ok := m.Decode(token)
	if !ok {
		return "", false
	}
	if claims.UserID != "" {
		return claims.UserID, true
	}
	if claims.Subject != "" {
		return claims.Subject, true
	}
	return "", false
}

// CurrentUserID returns the identity of the stored, unexpired token.
func (m *Manager) CurrentUserID(ctx context.Context) (string, error) {
	token, ok := m.Retrieve(ctx)
	if !ok || m.IsExpired(token) {
		return "", ErrNoSession
	}
	id, ok := m.SubjectID(token)
	if !ok {
		return "", ErrNoSession
	}
	return id, nil
}

// Landing picks the first route for a request carrying presented: the task
// list for a live session and the sign-in page otherwise.
func (m *Manager) Landing(ctx context.Context, presented string) string {
	if m.Authorized(ctx, presented) {
		return RouteTasks
	}
	return RouteSignIn
}

// Guard decides whether path may be served to a request that presented
// the given session cookie. Protected paths without a matching live cookie
// are sent to the sign-in route with the original path in the redirect
// parameter.
func (m *Manager) Guard(ctx context.Context, path, presented string) (string, bool) {
	if !IsProtected(path) {
		return "", true
	}
	if m.Authorized(ctx, presented) {
		return "", true
	}
	return SignInRedirect(path), false
}

// Authorized reports whether presented is the stored, unexpired session
// cookie.
func (m *Manager) Authorized(ctx context.Context, presented string) bool {
	if presented == "" {
		return false
	}
	cookie, ok := m.Cookie(ctx)
	if !ok || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(presented)) != 1 {
		return false
	}
	return !m.IsExpired(cookie.Value)
}

func IsProtected(path string) bool {
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func SignInRedirect(path string) string {
	values := url.Values{}
	values.Set("redirect", path)
	return RouteSignIn + "?" + values.Encode()
}
