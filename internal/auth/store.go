package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account. Federated accounts have no password hash.
type User struct {
	ID    string
	Email string
	Hash  []byte
	Role  string
}

type UserStore interface {
	Create(ctx context.Context, email, password, role, id string) error
	Verify(ctx context.Context, email, password string) (User, error)
	ByID(ctx context.Context, id string) (User, error)
	// UpsertFederated records an account vouched for by the federated
	// provider. An existing account keeps its role.
	UpsertFederated(ctx context.Context, id, email string) (User, error)
	Ping(ctx context.Context) error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizePassword(password string) string {
	return strings.TrimSpace(password)
}

// EnsureAdmin creates the bootstrap administrator unless the email is
// already registered.
func EnsureAdmin(ctx context.Context, s UserStore, email, password, id string) error {
	err := s.Create(ctx, email, password, RoleAdmin, id)
	if errors.Is(err, ErrEmailExists) {
		return nil
	}
	return err
}
