package session

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signedToken builds an HS256 JWT with the server's claim layout.
func signedToken(t *testing.T, userID, email string, isAdmin bool, expiresAt time.Time) string {
	t.Helper()

	claims := tokenClaims{
		UserID:  userID,
		Email:   email,
		IsAdmin: isAdmin,
	}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	return token
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "session.json")

	s, err := NewStore(path, slog.Default())
	require.NoError(t, err)

	return s
}

func TestStore_SetAndCredential(t *testing.T) {
	s := newTestStore(t)

	_, present := s.Credential()
	assert.False(t, present)

	require.NoError(t, s.Set("tok-1", map[string]string{MetaEmail: "a@x.test"}))

	cred, present := s.Credential()
	assert.True(t, present)
	assert.Equal(t, "tok-1", cred)

	meta := s.Meta()
	assert.Equal(t, "a@x.test", meta[MetaEmail])
}

func TestStore_SetDecodesClaims(t *testing.T) {
	s := newTestStore(t)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signedToken(t, "u1", "a@x.test", true, exp)

	require.NoError(t, s.Set(tok, nil))

	claims, ok := s.Claims()
	require.True(t, ok)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "a@x.test", claims.Email)
	assert.True(t, claims.IsAdmin)
	assert.True(t, claims.ExpiresAt.Equal(exp))
}

func TestStore_OpaqueTokenHasNoClaims(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Set("not-a-jwt", nil))

	_, ok := s.Claims()
	assert.False(t, ok)

	// The session itself is still valid.
	cred, present := s.Credential()
	assert.True(t, present)
	assert.Equal(t, "not-a-jwt", cred)
}

func TestStore_ClearIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Set("tok-1", nil))

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())

	_, present := s.Credential()
	assert.False(t, present)
	assert.Nil(t, s.Meta())
}

func TestStore_ClearOnEmptyStoreIsNoop(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Clear())
}

func TestStore_OnClearFiresOncePerSession(t *testing.T) {
	s := newTestStore(t)

	var fired atomic.Int32

	s.SetOnClear(func() { fired.Add(1) })

	require.NoError(t, s.Set("tok-1", nil))
	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())

	assert.Equal(t, int32(1), fired.Load())

	// A fresh session arms the hook again.
	require.NoError(t, s.Set("tok-2", nil))
	require.NoError(t, s.Clear())

	assert.Equal(t, int32(2), fired.Load())
}

func TestStore_ConcurrentClearsFireHookOnce(t *testing.T) {
	s := newTestStore(t)

	var fired atomic.Int32

	s.SetOnClear(func() { fired.Add(1) })

	require.NoError(t, s.Set("tok-1", nil))

	const racers = 16

	var wg sync.WaitGroup

	for range racers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = s.Clear()
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), fired.Load())
}

func TestStore_PersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	s1, err := NewStore(path, slog.Default())
	require.NoError(t, err)

	tok := signedToken(t, "u1", "a@x.test", false, time.Now().Add(time.Hour))
	require.NoError(t, s1.Set(tok, map[string]string{MetaUserID: "u1"}))

	// Simulated restart: a fresh store from the same path.
	s2, err := NewStore(path, slog.Default())
	require.NoError(t, err)

	cred, present := s2.Credential()
	assert.True(t, present)
	assert.Equal(t, tok, cred)

	claims, ok := s2.Claims()
	require.True(t, ok)
	assert.Equal(t, "u1", claims.UserID)

	assert.Equal(t, "u1", s2.Meta()[MetaUserID])
}

func TestStore_ClearRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	s, err := NewStore(path, slog.Default())
	require.NoError(t, err)

	require.NoError(t, s.Set("tok-1", nil))
	require.FileExists(t, path)

	require.NoError(t, s.Clear())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	// Restart after logout stays logged out.
	s2, err := NewStore(path, slog.Default())
	require.NoError(t, err)

	_, present := s2.Credential()
	assert.False(t, present)
}
