// Package auth authenticates feed clients with HTTP Basic credentials and
// checks which organizations they may read.
package auth

import (
	"context"
	"fmt"
	"slices"
)

// Principal is an authenticated client and the organizations it may read.
type Principal struct {
	ID            string
	Organizations []string
}

// CanRead reports whether p may read organization org. "*" grants every
// organization.
func (p *Principal) CanRead(org string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Organizations, org) || slices.Contains(p.Organizations, "*")
}

// Credentials represents authentication credentials
type Credentials struct {
	Username string
	Password string
}

// ErrorType represents the type of authentication error
type ErrorType string

const (
	ErrInvalidCredentials ErrorType = "invalid_credentials"
	ErrUnauthorized       ErrorType = "unauthorized"
	ErrForbidden          ErrorType = "forbidden"
)

// Error represents an authentication-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Authenticator defines the interface for authentication providers
type Authenticator interface {
	// Authenticate validates credentials and returns a Principal if successful
	Authenticate(ctx context.Context, creds Credentials) (*Principal, error)

	// ValidateAccess checks if a principal may read the given organization
	ValidateAccess(ctx context.Context, principal *Principal, organization string) error
}
