// Package auth admits connections: it validates a bearer credential and
// resolves it to a stored user before any registry interaction happens.
package auth

import (
	"context"
	"errors"

	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/internal/repository"
	"github.com/ymliu/convo/internal/token"
)

var (
	// ErrInvalidCredential covers malformed, badly signed, or expired tokens.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrUnknownSubject means the token subject does not resolve to a user.
	ErrUnknownSubject = errors.New("unknown subject")
)

// Authenticator resolves a bearer credential to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*domain.Identity, error)
}

// Gate is the production Authenticator: JWT validation backed by the user
// repository.
type Gate struct {
	tokens *token.Manager
	users  repository.UserRepository
}

// NewGate creates a new identity gate.
func NewGate(tokens *token.Manager, users repository.UserRepository) *Gate {
	return &Gate{tokens: tokens, users: users}
}

// Authenticate validates the credential's signature and expiry, then
// resolves its subject to a stored user. It has no side effects.
func (g *Gate) Authenticate(ctx context.Context, credential string) (*domain.Identity, error) {
	claims, err := g.tokens.Validate(credential)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	user, err := g.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUnknownSubject
		}
		return nil, err
	}

	return &domain.Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, nil
}
