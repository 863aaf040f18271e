package auth

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

type MemStore struct {
	mu      sync.RWMutex
	byEmail map[string]User
	byID    map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		byEmail: make(map[string]User),
		byID:    make(map[string]string),
	}
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) Create(_ context.Context, email, password, role, id string) error {
	email = normalizeEmail(email)
	password = normalizePassword(password)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return ErrEmailExists
	}
	s.byEmail[email] = User{ID: id, Email: email, Hash: hash, Role: role}
	s.byID[id] = email
	return nil
}

func (s *MemStore) Verify(_ context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	password = normalizePassword(password)

	s.mu.RLock()
	u, ok := s.byEmail[email]
	s.mu.RUnlock()

	if !ok || len(u.Hash) == 0 {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.Hash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *MemStore) ByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email, ok := s.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.byEmail[email], nil
}

func (s *MemStore) UpsertFederated(_ context.Context, id, email string) (User, error) {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.byID[id]; ok {
		u := s.byEmail[cur]
		if email != "" && email != cur {
			if _, taken := s.byEmail[email]; taken {
				return User{}, ErrEmailExists
			}
			delete(s.byEmail, cur)
			u.Email = email
			s.byEmail[email] = u
			s.byID[id] = email
		}
		return u, nil
	}

	if _, taken := s.byEmail[email]; taken {
		return User{}, ErrEmailExists
	}
	u := User{ID: id, Email: email, Role: RoleUser}
	s.byEmail[email] = u
	s.byID[id] = email
	return u, nil
}
