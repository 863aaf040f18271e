package auth

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RoleSource decides whether uid holds the administrative role.
type RoleSource interface {
	IsAdmin(ctx context.Context, uid string) (bool, error)
}

// StoreRoles reads the role column of the user store.
type StoreRoles struct {
	Store UserStore
}

func (s StoreRoles) IsAdmin(ctx context.Context, uid string) (bool, error) {
	u, err := s.Store.ByID(ctx, uid)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Role == RoleAdmin, nil
}

// FirestoreRoles reads <Collection>/{uid} documents. A uid is an admin only
// when its document exists and has isAdmin set to true.
type FirestoreRoles struct {
	Client     *firestore.Client
	Collection string
}

func (f FirestoreRoles) IsAdmin(ctx context.Context, uid string) (bool, error) {
	col := f.Collection
	if col == "" {
		col = "admins"
	}

	snap, err := f.Client.Collection(col).Doc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s/%s: %w", col, uid, err)
	}
	if !snap.Exists() {
		return false, nil
	}

	v, _ := snap.Data()["isAdmin"].(bool)
	return v, nil
}

// AnyRoles grants the role when any source does. Sources are asked in
// order and the first error is returned.
type AnyRoles []RoleSource

func (a AnyRoles) IsAdmin(ctx context.Context, uid string) (bool, error) {
	for _, src := range a {
		ok, err := src.IsAdmin(ctx, uid)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
