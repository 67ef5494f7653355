// Package memory is an in-process auth.Authenticator configured at startup.
package memory

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/cyp0633/caldora-recur/server/auth"
)

// User represents a user in the memory store
type User struct {
	Username      string
	Password      string
	Organizations []string
}

// Store implements an in-memory authentication store
type Store struct {
	mu     sync.RWMutex
	users  map[string]User // map[username]User
	logger *slog.Logger
}

// New creates a new in-memory authentication store
func New(opts ...Option) *Store {
	s := &Store{
		users:  make(map[string]User),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option represents a configuration option for the Store
type Option func(*Store)

// WithLogger sets the logger for the store
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// AddUser adds a user allowed to read the given organizations.
func (s *Store) AddUser(username, password string, organizations ...string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		s.logger.Warn("failed to add user: already exists", "username", username)
		return fmt.Errorf("user already exists: %s", username)
	}
	s.users[username] = User{
		Username:      username,
		Password:      password,
		Organizations: slices.Clone(organizations),
	}
	s.logger.Info("user added", "username", username, "organizations", organizations)
	return nil
}

// ParseUser reads a "name:password:org1,org2" specification.
func ParseUser(raw string) (User, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return User{}, fmt.Errorf("user %q: want name:password:org1,org2", raw)
	}
	return User{Username: parts[0], Password: parts[1], Organizations: strings.Split(parts[2], ",")}, nil
}

// Authenticate implements auth.Authenticator
func (s *Store) Authenticate(ctx context.Context, creds auth.Credentials) (*auth.Principal, error) {
	s.mu.RLock()
	user, exists := s.users[creds.Username]
	s.mu.RUnlock()

	if !exists {
		s.logger.Info("authentication failed: user not found", "username", creds.Username)
		return nil, &auth.Error{
			Type:    auth.ErrInvalidCredentials,
			Message: "invalid username or password",
		}
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(creds.Password)) != 1 {
		s.logger.Info("authentication failed: invalid password", "username", creds.Username)
		return nil, &auth.Error{
			Type:    auth.ErrInvalidCredentials,
			Message: "invalid username or password",
		}
	}

	s.logger.Debug("authentication successful", "username", creds.Username)
	return &auth.Principal{ID: user.Username, Organizations: slices.Clone(user.Organizations)}, nil
}

// ValidateAccess implements auth.Authenticator
func (s *Store) ValidateAccess(ctx context.Context, principal *auth.Principal, organization string) error {
	if principal == nil {
		s.logger.Info("access validation failed: no principal")
		return &auth.Error{
			Type:    auth.ErrUnauthorized,
			Message: "authentication required",
		}
	}
	if !principal.CanRead(organization) {
		s.logger.Warn("access validation failed: forbidden",
			"username", principal.ID,
			"organization", organization)
		return &auth.Error{
			Type:    auth.ErrForbidden,
			Message: fmt.Sprintf("access denied to organization %q", organization),
		}
	}
	s.logger.Debug("access validation successful", "username", principal.ID, "organization", organization)
	return nil
}
