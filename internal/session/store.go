package session

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
)

// Meta keys cached in the credential file from the auth response.
const (
	MetaUserID  = "user_id"
	MetaEmail   = "email"
	MetaIsAdmin = "is_admin"
)

// Store holds the current bearer credential. Exactly one Store exists per
// process; it is handed to the transport at construction rather than read
// from ambient globals. All methods are safe for concurrent use — the
// credential is single-writer (login and the transport's auth-failure path)
// but many-reader.
type Store struct {
	mu      sync.Mutex
	path    string
	logger  *slog.Logger
	cred    string
	present bool
	claims  *Claims
	meta    map[string]string

	// onClear fires when a present session transitions to absent —
	// exactly once per set credential no matter how many Clear calls
	// race. This is the "return to login" signal.
	onClear func()
}

// NewStore creates a Store backed by the credential file at path, loading
// any persisted session so a restart does not force re-login.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{path: path, logger: logger}

	tok, meta, err := Load(path)
	if err != nil {
		return nil, err
	}

	if tok != nil && tok.AccessToken != "" {
		s.cred = tok.AccessToken
		s.present = true
		s.meta = meta

		if claims, claimsErr := ParseClaims(tok.AccessToken); claimsErr == nil {
			s.claims = claims
		}

		logger.Debug("restored persisted session", slog.String("path", path))
	}

	return s, nil
}

// SetOnClear registers the session-teardown hook. Must be called before
// the store is shared with the transport.
func (s *Store) SetOnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onClear = fn
}

// Set persists the credential and marks the session present. meta is
// cached alongside (user id, email from the auth response) for display
// when the token claims cannot be decoded.
func (s *Store) Set(cred string, meta map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok := &oauth2.Token{AccessToken: cred, TokenType: "Bearer"}

	claims, err := ParseClaims(cred)
	if err == nil {
		tok.Expiry = claims.ExpiresAt
	}

	if saveErr := Save(s.path, tok, meta); saveErr != nil {
		return fmt.Errorf("persisting session: %w", saveErr)
	}

	s.cred = cred
	s.present = true
	s.claims = claims // nil when the token is not a decodable JWT
	s.meta = meta

	s.logger.Info("session established")

	return nil
}

// Clear removes the credential and marks the session absent. Idempotent:
// concurrent failed requests may all call Clear, but only the first
// observable transition removes the file and fires the teardown hook.
func (s *Store) Clear() error {
	s.mu.Lock()

	if !s.present {
		s.mu.Unlock()
		return nil
	}

	s.cred = ""
	s.present = false
	s.claims = nil
	s.meta = nil
	hook := s.onClear

	err := Remove(s.path)

	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.logger.Info("session cleared")

	if hook != nil {
		hook()
	}

	return nil
}

// Credential returns the current bearer credential, or false when no
// session is present. Implements the transport's CredentialSource.
func (s *Store) Credential() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cred, s.present
}

// Claims returns the decoded token claims, or false when the session is
// absent or the token is not a decodable JWT.
func (s *Store) Claims() (*Claims, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.present || s.claims == nil {
		return nil, false
	}

	c := *s.claims

	return &c, true
}

// Meta returns the metadata cached from the auth response at login time.
func (s *Store) Meta() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.meta == nil {
		return nil
	}

	out := make(map[string]string, len(s.meta))
	for k, v := range s.meta {
		out[k] = v
	}

	return out
}
