package session_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joseda-hg/lazytodo/internal/db"
	"github.com/Joseda-hg/lazytodo/internal/model"
	"github.com/Joseda-hg/lazytodo/internal/session"
)

var quietLogger = log.New(io.Discard, "", 0)

func signToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func tokenFor(t *testing.T, userID string, exp time.Time) string {
	return signToken(t, session.Claims{
		UserID: userID,
		Email:  userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
}

func newSQLiteManager(t *testing.T) (*session.Manager, *db.Store) {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	store := db.NewStore(conn)
	return session.NewManager(store, quietLogger), store
}

func TestStoreRetrieveClear(t *testing.T) {
	ctx := context.Background()
	manager, store := newSQLiteManager(t)

	_, ok := manager.Retrieve(ctx)
	assert.False(t, ok)

	token := tokenFor(t, "u-1", time.Now().Add(time.Hour))
	require.NoError(t, manager.Store(ctx, token))

	got, ok := manager.Retrieve(ctx)
	require.True(t, ok)
	assert.Equal(t, token, got)

	cookie, ok, err := store.GetCookie(ctx, session.CookieName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, token, cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	require.NotNil(t, cookie.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(session.CookieTTL), *cookie.ExpiresAt, time.Minute)

	require.NoError(t, manager.Clear(ctx))
	require.NoError(t, manager.Clear(ctx))

	_, ok = manager.Retrieve(ctx)
	assert.False(t, ok)
	_, ok = manager.Cookie(ctx)
	assert.False(t, ok)
}

func TestStoreDoesNotValidate(t *testing.T) {
	ctx := context.Background()
	manager := session.NewManager(session.NewMemoryStorage(), quietLogger)

	require.NoError(t, manager.Store(ctx, "not-a-jwt"))
	got, ok := manager.Retrieve(ctx)
	require.True(t, ok)
	assert.Equal(t, "not-a-jwt", got)
	assert.True(t, manager.IsExpired(got))
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	manager := session.NewManager(session.NewMemoryStorage(), quietLogger)
	manager.SetClock(func() time.Time { return now })

	assert.False(t, manager.IsExpired(tokenFor(t, "u-1", now.Add(time.Minute))))
	assert.True(t, manager.IsExpired(tokenFor(t, "u-1", now.Add(-time.Second))))
	assert.True(t, manager.IsExpired(tokenFor(t, "u-1", now)), "exp equal to now counts as expired")

	noExp := signToken(t, session.Claims{UserID: "u-1"})
	assert.True(t, manager.IsExpired(noExp))
}

func TestMalformedTokensAreExpiredAndAnonymous(t *testing.T) {
	manager := session.NewManager(session.NewMemoryStorage(), quietLogger)

	for _, token := range []string{"", "   ", "abc", "a.b", "a.b.c", "a.!!!.c", "eyJhbGciOiJIUzI1NiJ9.bm90LWpzb24.sig", "x.y.z.w"} {
		assert.NotPanics(t, func() {
			assert.True(t, manager.IsExpired(token), "token %q", token)
			_, ok := manager.SubjectID(token)
			assert.False(t, ok, "token %q", token)
		})
	}
}

func TestSubjectID(t *testing.T) {
	manager := session.NewManager(session.NewMemoryStorage(), quietLogger)

	id, ok := manager.SubjectID(tokenFor(t, "u-42", time.Now().Add(time.Hour)))
	require.True(t, ok)
	assert.Equal(t, "u-42", id)

	subOnly := signToken(t, jwt.RegisteredClaims{Subject: "u-7"})
	id, ok = manager.SubjectID(subOnly)
	require.True(t, ok)
	assert.Equal(t, "u-7", id)

	_, ok = manager.SubjectID(signToken(t, jwt.RegisteredClaims{}))
	assert.False(t, ok)
}

func TestCurrentUserIDAndLanding(t *testing.T) {
	ctx := context.Background()
	manager := session.NewManager(session.NewMemoryStorage(), quietLogger)

	_, err := manager.CurrentUserID(ctx)
	assert.ErrorIs(t, err, session.ErrNoSession)
	assert.Equal(t, session.RouteSignIn, manager.Landing(ctx, ""))

	stale := tokenFor(t, "u-1", time.Now().Add(-time.Minute))
	require.NoError(t, manager.Store(ctx, stale))
	_, err = manager.CurrentUserID(ctx)
	assert.ErrorIs(t, err, session.ErrNoSession)
	assert.Equal(t, session.RouteSignIn, manager.Landing(ctx, stale))

	live := tokenFor(t, "u-1", time.Now().Add(time.Hour))
	require.NoError(t, manager.Store(ctx, live))
	id, err := manager.CurrentUserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id)
	assert.Equal(t, session.RouteTasks, manager.Landing(ctx, live))
	assert.Equal(t, session.RouteSignIn, manager.Landing(ctx, ""))
}

func TestGuard(t *testing.T) {
	ctx := context.Background()
	storage := session.NewMemoryStorage()
	manager := session.NewManager(storage, quietLogger)

	redirect, ok := manager.Guard(ctx, "/tasks/create", "")
	assert.False(t, ok)
	assert.Equal(t, "/signin?redirect=%2Ftasks%2Fcreate", redirect)

	_, ok = manager.Guard(ctx, "/signin", "")
	assert.True(t, ok)

	token := tokenFor(t, "u-1", time.Now().Add(time.Hour))
	require.NoError(t, manager.Store(ctx, token))
	_, ok = manager.Guard(ctx, "/tasks", token)
	assert.True(t, ok)

	_, ok = manager.Guard(ctx, "/tasks", "")
	assert.False(t, ok, "a stored session does not admit a request without the cookie")
	_, ok = manager.Guard(ctx, "/tasks", token+"x")
	assert.False(t, ok)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, storage.SaveSession(ctx, session.TokenKey, token, model.Cookie{Name: session.CookieName, Value: token, Path: "/", ExpiresAt: &past}))
	_, ok = manager.Guard(ctx, "/tasks", token)
	assert.False(t, ok, "expired cookie is treated as absent")
}

func TestAuthorizedRejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	manager := session.NewManager(session.NewMemoryStorage(), quietLogger)

	stale := tokenFor(t, "u-1", time.Now().Add(-time.Minute))
	require.NoError(t, manager.Store(ctx, stale))

	assert.False(t, manager.Authorized(ctx, stale))
	assert.False(t, manager.Authorized(ctx, ""))
}

func TestUnknownAlgStillDecodesPayload(t *testing.T) {
	manager := session.NewManager(session.NewMemoryStorage(), quietLogger)
	payload, err := json.Marshal(session.Claims{
		UserID: "u-9",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	for _, header := range []string{`{"alg":"XX1","typ":"JWT"}`, `{"typ":"JWT"}`} {
		token := base64.RawURLEncoding.EncodeToString([]byte(header)) + "." +
			base64.RawURLEncoding.EncodeToString(payload) + ".sig"

		assert.False(t, manager.IsExpired(token), header)
		id, ok := manager.SubjectID(token)
		assert.True(t, ok, header)
		assert.Equal(t, "u-9", id, header)
	}
}

type failingStorage struct {
	session.MemoryStorage
}

func (*failingStorage) GetSetting(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func (*failingStorage) GetCookie(context.Context, string) (model.Cookie, bool, error) {
	return model.Cookie{}, false, errors.New("disk on fire")
}

func TestRetrieveTreatsStorageErrorsAsAbsent(t *testing.T) {
	ctx := context.Background()
	manager := session.NewManager(&failingStorage{}, quietLogger)

	_, ok := manager.Retrieve(ctx)
	assert.False(t, ok)
	_, ok = manager.Cookie(ctx)
	assert.False(t, ok)
	assert.Equal(t, session.RouteSignIn, manager.Landing(ctx, "anything"))
}
