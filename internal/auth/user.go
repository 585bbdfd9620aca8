// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ErrTokenExpired is returned by repositories when a verification token
// matched a user but its expiry has passed.
var ErrTokenExpired = errors.New("token expired")

// Role is the single authorization attribute a user carries.
type Role string

// Supported roles.
const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleAdmin   Role = "admin"
)

// DefaultRole is assigned when signup does not name one.
const DefaultRole = RoleStudent

// Roles lists every valid role in declaration order.
func Roles() []Role {
	return []Role{RoleStudent, RoleMentor, RoleAdmin}
}

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	return slices.Contains(Roles(), r)
}

// ParseRole converts s to a Role. An empty string yields DefaultRole.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return DefaultRole, nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", oops.Code("AUTH_INVALID_ROLE").With("role", s).Errorf("unknown role %q", s)
	}
	return r, nil
}

// RoleSet is an immutable allow-list of roles used by access restrictions.
type RoleSet struct {
	roles map[Role]struct{}
}

// NewRoleSet builds a RoleSet from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	m := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		m[r] = struct{}{}
	}
	return RoleSet{roles: m}
}

// Contains reports whether r is in the set.
func (s RoleSet) Contains(r Role) bool {
	_, ok := s.roles[r]
	return ok
}

// String renders the set as a sorted, comma-separated list.
func (s RoleSet) String() string {
	names := make([]string, 0, len(s.roles))
	for r := range s.roles {
		names = append(names, string(r))
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}

// User is an account identity with its credential and verification state.
type User struct {
	ID              ulid.ULID
	FullName        string
	Email           string
	PasswordHash    string
	Role            Role
	ProfileImageURL *string
	EmailVerified   bool

	// VerificationTokenHash and VerificationExpires are both set or both nil.
	VerificationTokenHash *string
	VerificationExpires   *time.Time

	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewUser creates an unverified User with a fresh ID.
// The email is normalized to lower case.
func NewUser(fullName, email, passwordHash string, role Role, profileImageURL *string) (*User, error) {
	if strings.TrimSpace(fullName) == "" {
		return nil, oops.Code("USER_INVALID_NAME").Errorf("full name cannot be empty")
	}
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if role == "" {
		role = DefaultRole
	}
	if !role.Valid() {
		return nil, oops.Code("AUTH_INVALID_ROLE").With("role", string(role)).Errorf("unknown role %q", role)
	}

	now := time.Now().UTC()
	return &User{
		ID:              ulid.Make(),
		FullName:        strings.TrimSpace(fullName),
		Email:           email,
		PasswordHash:    passwordHash,
		Role:            role,
		ProfileImageURL: profileImageURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// SetVerificationToken records a pending verification.
func (u *User) SetVerificationToken(tokenHash string, expiresAt time.Time) {
	u.VerificationTokenHash = &tokenHash
	u.VerificationExpires = &expiresAt
}

// HasPendingVerification reports whether an unconsumed token is on record.
func (u *User) HasPendingVerification() bool {
	return u.VerificationTokenHash != nil && u.VerificationExpires != nil
}

// NormalizeEmail trims and lower-cases an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. A duplicate email fails with CodeEmailTaken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user. Missing users wrap ErrNotFound.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Delete removes a user.
	Delete(ctx context.Context, id ulid.ULID) error

	// SetVerificationToken replaces the pending verification of an
	// unverified user.
	SetVerificationToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error

	// ConsumeVerificationToken atomically marks the owner of tokenHash as
	// verified and clears the token. It wraps ErrNotFound when no user holds
	// the token and ErrTokenExpired when the token is past expiry at now;
	// an expired token is left in place.
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*User, error)

	// UpdatePassword stores a new hash and records when it changed.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, changedAt time.Time) error

	// UpgradePasswordHash replaces the hash without touching PasswordChangedAt.
	UpgradePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error
}
