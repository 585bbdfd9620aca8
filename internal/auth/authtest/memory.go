// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

// Package authtest provides in-memory fakes of the auth package's
// collaborators for tests.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/mentorhub/mentorhub/internal/auth"
)

// UserStore is an in-memory auth.UserRepository. It is safe for concurrent
// use and hands out copies so callers cannot mutate stored users.
type UserStore struct {
	mu       sync.Mutex
	users    map[ulid.ULID]*auth.User
	failures map[string]error
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		users:    make(map[ulid.ULID]*auth.User),
		failures: make(map[string]error),
	}
}

// FailOn makes every later call of the named method return err.
// Pass a nil err to clear it.
func (s *UserStore) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// Put stores user as-is, replacing any user with the same ID.
func (s *UserStore) Put(user *auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = cloneUser(user)
}

// Create implements auth.UserRepository.
func (s *UserStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["Create"]; err != nil {
		return err
	}
	if s.byEmailLocked(user.Email) != nil {
		return oops.Code(auth.CodeEmailTaken).With("email", user.Email).Errorf("email already registered")
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

// GetByID implements auth.UserRepository.
func (s *UserStore) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["GetByID"]; err != nil {
		return nil, err
	}
	user, ok := s.users[id]
	if !ok {
		return nil, notFound(id.String())
	}
	return cloneUser(user), nil
}

// GetByEmail implements auth.UserRepository.
func (s *UserStore) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["GetByEmail"]; err != nil {
		return nil, err
	}
	user := s.byEmailLocked(email)
	if user == nil {
		return nil, notFound(email)
	}
	return cloneUser(user), nil
}

// Delete implements auth.UserRepository.
func (s *UserStore) Delete(_ context.Context, id ulid.ULID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["Delete"]; err != nil {
		return err
	}
	if _, ok := s.users[id]; !ok {
		return notFound(id.String())
	}
	delete(s.users, id)
	return nil
}

// SetVerificationToken implements auth.UserRepository.
func (s *UserStore) SetVerificationToken(_ context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["SetVerificationToken"]; err != nil {
		return err
	}
	user, ok := s.users[id]
	if !ok || user.EmailVerified {
		return notFound(id.String())
	}
	user.SetVerificationToken(tokenHash, expiresAt)
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// ConsumeVerificationToken implements auth.UserRepository.
func (s *UserStore) ConsumeVerificationToken(_ context.Context, tokenHash string, now time.Time) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["ConsumeVerificationToken"]; err != nil {
		return nil, err
	}
	for _, user := range s.users {
		if user.VerificationTokenHash == nil || *user.VerificationTokenHash != tokenHash {
			continue
		}
		if !user.VerificationExpires.After(now) {
			return nil, oops.Code(auth.CodeVerifyTokenExpired).Wrap(auth.ErrTokenExpired)
		}
		user.EmailVerified = true
		user.VerificationTokenHash = nil
		user.VerificationExpires = nil
		user.UpdatedAt = now
		return cloneUser(user), nil
	}
	return nil, oops.Code(auth.CodeVerifyTokenNotFound).Wrap(auth.ErrNotFound)
}

// UpdatePassword implements auth.UserRepository.
func (s *UserStore) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["UpdatePassword"]; err != nil {
		return err
	}
	user, ok := s.users[id]
	if !ok {
		return notFound(id.String())
	}
	user.PasswordHash = passwordHash
	user.PasswordChangedAt = &changedAt
	user.UpdatedAt = changedAt
	return nil
}

// UpgradePasswordHash implements auth.UserRepository.
func (s *UserStore) UpgradePasswordHash(_ context.Context, id ulid.ULID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["UpgradePasswordHash"]; err != nil {
		return err
	}
	user, ok := s.users[id]
	if !ok {
		return notFound(id.String())
	}
	user.PasswordHash = passwordHash
	return nil
}

func (s *UserStore) byEmailLocked(email string) *auth.User {
	email = auth.NormalizeEmail(email)
	for _, user := range s.users {
		if user.Email == email {
			return user
		}
	}
	return nil
}

func notFound(key string) error {
	return oops.Code(auth.CodeUserNotFound).With("key", key).Wrap(auth.ErrNotFound)
}

func cloneUser(u *auth.User) *auth.User {
	c := *u
	if u.ProfileImageURL != nil {
		v := *u.ProfileImageURL
		c.ProfileImageURL = &v
	}
	if u.VerificationTokenHash != nil {
		v := *u.VerificationTokenHash
		c.VerificationTokenHash = &v
	}
	if u.VerificationExpires != nil {
		v := *u.VerificationExpires
		c.VerificationExpires = &v
	}
	if u.PasswordChangedAt != nil {
		v := *u.PasswordChangedAt
		c.PasswordChangedAt = &v
	}
	return &c
}

var _ auth.UserRepository = (*UserStore)(nil)
