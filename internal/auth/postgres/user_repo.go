// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

// Package postgres implements the auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/mentorhub/mentorhub/internal/auth"
)

// poolIface is the subset of *pgxpool.Pool the repository uses, so unit
// tests can substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CodeEmptyPasswordHash rejects a password update that carries no hash.
const CodeEmptyPasswordHash = "USER_EMPTY_PASSWORD_HASH"

const userColumns = `
	id, full_name, email, password_hash, role, profile_image_url,
	is_email_verified, email_verification_token_hash, email_verification_expires,
	password_changed_at, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
	now  func() time.Time
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool, now: time.Now}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		user.ID.String(),
		user.FullName,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.ProfileImageURL,
		user.EmailVerified,
		user.VerificationTokenHash,
		user.VerificationExpires,
		user.PasswordChangedAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code(auth.CodeEmailTaken).
			With("email", user.Email).
			Errorf("user with this email already exists")
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("email", user.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeUserNotFound).
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			With("email", email).
			Wrap(err)
	}
	return user, nil
}

// Delete removes a user.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetVerificationToken replaces the pending token of an unverified user.
func (r *UserRepository) SetVerificationToken(ctx context.Context, id ulid.ULID, tokenHash string, expiresAt time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET
			email_verification_token_hash = $2,
			email_verification_expires = $3,
			updated_at = $4
		WHERE id = $1 AND NOT is_email_verified
	`, id.String(), tokenHash, expiresAt, r.now().UTC())
	if err != nil {
		return oops.Code("USER_SET_VERIFICATION_FAILED").
			With("operation", "set verification token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// ConsumeVerificationToken marks the token's owner verified in a single
// transaction. The row lock makes concurrent consumers of the same token
// serialize; the loser sees no matching row.
func (r *UserRepository) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*auth.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, oops.Code("USER_CONSUME_VERIFICATION_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE email_verification_token_hash = $1
		FOR UPDATE
	`, tokenHash)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeVerifyTokenNotFound).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_CONSUME_VERIFICATION_FAILED").
			With("operation", "select user by verification token").
			Wrap(err)
	}

	if user.VerificationExpires == nil || !user.VerificationExpires.After(now) {
		return nil, oops.Code(auth.CodeVerifyTokenExpired).
			With("id", user.ID.String()).
			Wrap(auth.ErrTokenExpired)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE users SET
			is_email_verified = TRUE,
			email_verification_token_hash = NULL,
			email_verification_expires = NULL,
			updated_at = $2
		WHERE id = $1
	`, user.ID.String(), now); err != nil {
		return nil, oops.Code("USER_CONSUME_VERIFICATION_FAILED").
			With("operation", "mark user verified").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, oops.Code("USER_CONSUME_VERIFICATION_FAILED").
			With("operation", "commit transaction").
			Wrap(err)
	}

	user.EmailVerified = true
	user.VerificationTokenHash = nil
	user.VerificationExpires = nil
	user.UpdatedAt = now
	return user, nil
}

// UpdatePassword stores a new password hash and its change time.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string, changedAt time.Time) error {
	if passwordHash == "" {
		return errEmptyPasswordHash(id)
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, password_changed_at = $3, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, changedAt)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpgradePasswordHash re-hashes a password without marking it changed, so
// existing sessions stay valid.
func (r *UserRepository) UpgradePasswordHash(ctx context.Context, id ulid.ULID, passwordHash string) error {
	if passwordHash == "" {
		return errEmptyPasswordHash(id)
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, r.now().UTC())
	if err != nil {
		return oops.Code("USER_UPGRADE_HASH_FAILED").
			With("operation", "upgrade password hash").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code(auth.CodeUserNotFound).
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func errEmptyPasswordHash(id ulid.ULID) error {
	return oops.Code(CodeEmptyPasswordHash).
		With("id", id.String()).
		Errorf("password hash must not be empty")
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr     string
		roleStr   string
		user      auth.User
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(
		&idStr,
		&user.FullName,
		&user.Email,
		&user.PasswordHash,
		&roleStr,
		&user.ProfileImageURL,
		&user.EmailVerified,
		&user.VerificationTokenHash,
		&user.VerificationExpires,
		&user.PasswordChangedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}
	role := auth.Role(roleStr)
	if !role.Valid() {
		return nil, oops.Code("USER_INVALID_ROLE").
			With("id", idStr).
			With("role", roleStr).
			Errorf("stored role %q is not recognized", roleStr)
	}

	user.ID = id
	user.Role = role
	user.CreatedAt = createdAt
	user.UpdatedAt = updatedAt
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ auth.UserRepository = (*UserRepository)(nil)
