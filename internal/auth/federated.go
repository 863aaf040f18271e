package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

var (
	ErrFederatedDisabled = errors.New("federated sign-in not configured")
	ErrFederatedRejected = errors.New("federated credential rejected")
)

// FederatedIdentity is what a federated provider vouches for.
type FederatedIdentity struct {
	UID   string
	Email string
}

type FederatedVerifier interface {
	Verify(ctx context.Context, idToken string) (FederatedIdentity, error)
}

// FirebaseVerifier checks Google sign-in ID tokens with Firebase Auth.
type FirebaseVerifier struct {
	Auth *firebaseauth.Client
}

func (v FirebaseVerifier) Verify(ctx context.Context, idToken string) (FederatedIdentity, error) {
	if v.Auth == nil {
		return FederatedIdentity{}, ErrFederatedDisabled
	}

	tok, err := v.Auth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return FederatedIdentity{}, fmt.Errorf("%w: %v", ErrFederatedRejected, err)
	}

	uid := strings.TrimSpace(tok.UID)
	if uid == "" {
		return FederatedIdentity{}, fmt.Errorf("%w: empty uid", ErrFederatedRejected)
	}
	email, _ := tok.Claims["email"].(string)

	return FederatedIdentity{UID: uid, Email: strings.TrimSpace(email)}, nil
}
