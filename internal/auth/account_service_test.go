// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentorhub/mentorhub/internal/auth"
	"github.com/mentorhub/mentorhub/internal/auth/authtest"
	"github.com/mentorhub/mentorhub/pkg/errutil"
)

type accountFixture struct {
	svc      *auth.AccountService
	store    *authtest.UserStore
	mailer   *authtest.Mailer
	sessions *auth.SessionTokenService
	tokens   *auth.VerificationTokenService
	logs     *bytes.Buffer
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	store := authtest.NewUserStore()
	mailer := authtest.NewMailer()

	tokens, err := auth.NewVerificationTokenService(store, time.Hour)
	require.NoError(t, err)
	sessions, err := auth.NewSessionTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	validator, err := auth.NewValidator()
	require.NoError(t, err)

	var logs bytes.Buffer
	svc, err := auth.NewAccountService(auth.AccountDeps{
		Users:     store,
		Hasher:    authtest.Hasher{},
		Tokens:    tokens,
		Sessions:  sessions,
		Mailer:    mailer,
		Validator: validator,
		Logger:    slog.New(slog.NewJSONHandler(&logs, nil)),
	})
	require.NoError(t, err)

	return &accountFixture{svc: svc, store: store, mailer: mailer, sessions: sessions, tokens: tokens, logs: &logs}
}

func (f *accountFixture) signup(t *testing.T, email string) *auth.User {
	t.Helper()
	in := validSignup()
	in.Email = email
	user, err := f.svc.Signup(context.Background(), in)
	require.NoError(t, err)
	return user
}

func TestNewAccountService_NilDependencies(t *testing.T) {
	full := func() auth.AccountDeps {
		f := newAccountFixture(t)
		validator, err := auth.NewValidator()
		require.NoError(t, err)
		return auth.AccountDeps{
			Users:     f.store,
			Hasher:    authtest.Hasher{},
			Tokens:    f.tokens,
			Sessions:  f.sessions,
			Mailer:    f.mailer,
			Validator: validator,
		}
	}

	tests := []struct {
		name        string
		mutate      func(d *auth.AccountDeps)
		expectError string
	}{
		{"nil users", func(d *auth.AccountDeps) { d.Users = nil }, "user repository is required"},
		{"nil hasher", func(d *auth.AccountDeps) { d.Hasher = nil }, "password hasher is required"},
		{"nil tokens", func(d *auth.AccountDeps) { d.Tokens = nil }, "verification token service is required"},
		{"nil sessions", func(d *auth.AccountDeps) { d.Sessions = nil }, "session token service is required"},
		{"nil mailer", func(d *auth.AccountDeps) { d.Mailer = nil }, "mailer is required"},
		{"nil validator", func(d *auth.AccountDeps) { d.Validator = nil }, "validator is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full()
			tt.mutate(&deps)
			svc, err := auth.NewAccountService(deps)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}

	t.Run("logger and tracer are optional", func(t *testing.T) {
		svc, err := auth.NewAccountService(full())
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestAccountService_Signup(t *testing.T) {
	ctx := context.Background()

	t.Run("creates unverified user and mails token", func(t *testing.T) {
		f := newAccountFixture(t)
		in := validSignup()
		in.Email = "  Ada@Example.com "
		in.UserRole = "mentor"

		user, err := f.svc.Signup(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", user.Email)
		assert.Equal(t, auth.RoleMentor, user.Role)
		assert.False(t, user.EmailVerified)
		assert.True(t, user.HasPendingVerification())
		assert.NotEqual(t, "Password123", user.PasswordHash)

		sent := f.mailer.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "ada@example.com", sent[0].To)
		assert.Equal(t, "Ada Lovelace", sent[0].FullName)
		assert.Equal(t, auth.HashVerificationToken(sent[0].Token), *user.VerificationTokenHash)

		stored, err := f.store.GetByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, stored.ID)
	})

	t.Run("role defaults to student", func(t *testing.T) {
		f := newAccountFixture(t)
		user := f.signup(t, "sam@example.com")
		assert.Equal(t, auth.RoleStudent, user.Role)
	})

	t.Run("rejects invalid input without side effects", func(t *testing.T) {
		f := newAccountFixture(t)
		in := validSignup()
		in.ConfirmPassword = "Different1"

		_, err := f.svc.Signup(ctx, in)
		errutil.AssertErrorCode(t, err, auth.CodeValidationFailed)
		assert.Equal(t, 0, f.store.Len())
		assert.Empty(t, f.mailer.Sent())
	})

	t.Run("duplicate email in any case conflicts", func(t *testing.T) {
		f := newAccountFixture(t)
		f.signup(t, "ada@example.com")

		in := validSignup()
		in.Email = "ADA@example.com"
		_, err := f.svc.Signup(ctx, in)
		errutil.AssertErrorCode(t, err, auth.CodeEmailTaken)
		assert.Equal(t, 1, f.store.Len())
		assert.Len(t, f.mailer.Sent(), 1)
	})

	t.Run("insert race reports conflict", func(t *testing.T) {
		f := newAccountFixture(t)
		f.store.FailOn("Create", oops.Code(auth.CodeEmailTaken).Errorf("duplicate key"))
		_, err := f.svc.Signup(ctx, validSignup())
		errutil.AssertErrorCode(t, err, auth.CodeEmailTaken)
	})

	t.Run("mail failure removes the account", func(t *testing.T) {
		f := newAccountFixture(t)
		f.mailer.FailWith(errors.New("smtp: connection refused"))

		_, err := f.svc.Signup(ctx, validSignup())
		errutil.AssertErrorCode(t, err, auth.CodeVerificationSendFailed)
		assert.Equal(t, 0, f.store.Len())
		assert.Contains(t, f.logs.String(), "verification email failed")

		f.mailer.FailWith(nil)
		_, err = f.svc.Signup(ctx, validSignup())
		require.NoError(t, err)
	})

	t.Run("lookup failure", func(t *testing.T) {
		f := newAccountFixture(t)
		f.store.FailOn("GetByEmail", errors.New("db down"))
		_, err := f.svc.Signup(ctx, validSignup())
		errutil.AssertErrorCode(t, err, "AUTH_SIGNUP_FAILED")
	})
}

func TestAccountService_VerifyEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("verifies and opens a session", func(t *testing.T) {
		f := newAccountFixture(t)
		user := f.signup(t, "ada@example.com")
		token, ok := f.mailer.LastTokenFor("ada@example.com")
		require.True(t, ok)

		verified, session, err := f.svc.VerifyEmail(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, verified.ID)
		assert.True(t, verified.EmailVerified)

		claims, err := f.sessions.Verify(session.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.UserID)

		_, _, err = f.svc.VerifyEmail(ctx, token)
		errutil.AssertErrorCode(t, err, auth.CodeVerifyTokenNotFound)
	})

	t.Run("missing token", func(t *testing.T) {
		f := newAccountFixture(t)
		_, _, err := f.svc.VerifyEmail(ctx, "")
		errutil.AssertErrorCode(t, err, auth.CodeVerifyTokenMissing)
	})

	t.Run("expired token", func(t *testing.T) {
		f := newAccountFixture(t)
		f.signup(t, "ada@example.com")
		token, _ := f.mailer.LastTokenFor("ada@example.com")
		auth.SetVerificationClock(f.tokens, func() time.Time { return time.Now().Add(2 * time.Hour) })

		_, _, err := f.svc.VerifyEmail(ctx, token)
		errutil.AssertErrorCode(t, err, auth.CodeVerifyTokenExpired)
	})
}

func TestAccountService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds before verification", func(t *testing.T) {
		f := newAccountFixture(t)
		user := f.signup(t, "ada@example.com")

		got, session, err := f.svc.Login(ctx, " ADA@example.com", "Password123")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.NotEmpty(t, session.Token)
		assert.True(t, session.ExpiresAt.After(time.Now()))
	})

	tests := []struct {
		name     string
		email    string
		password string
		wantCode string
	}{
		{"missing email", "", "Password123", auth.CodeCredentialsRequired},
		{"missing password", "ada@example.com", "", auth.CodeCredentialsRequired},
		{"wrong password", "ada@example.com", "Password124", auth.CodeInvalidCredentials},
		{"unknown email", "bob@example.com", "Password123", auth.CodeInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAccountFixture(t)
			f.signup(t, "ada@example.com")

			user, session, err := f.svc.Login(ctx, tt.email, tt.password)
			assert.Nil(t, user)
			assert.Nil(t, session)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}

	t.Run("upgrades legacy hash", func(t *testing.T) {
		f := newAccountFixture(t)
		user, err := auth.NewUser("Old Timer", "old@example.com", "LegacyPass1", auth.RoleStudent, nil)
		require.NoError(t, err)
		f.store.Put(user)

		_, _, err = f.svc.Login(ctx, "old@example.com", "LegacyPass1")
		require.NoError(t, err)

		stored, err := f.store.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "plain$LegacyPass1", stored.PasswordHash)
		assert.Nil(t, stored.PasswordChangedAt)
	})

	t.Run("failed upgrade does not block login", func(t *testing.T) {
		f := newAccountFixture(t)
		user, err := auth.NewUser("Old Timer", "old@example.com", "LegacyPass1", auth.RoleStudent, nil)
		require.NoError(t, err)
		f.store.Put(user)
		f.store.FailOn("UpgradePasswordHash", errors.New("read only"))

		_, session, err := f.svc.Login(ctx, "old@example.com", "LegacyPass1")
		require.NoError(t, err)
		assert.NotNil(t, session)
		assert.Contains(t, f.logs.String(), "password hash upgrade not stored")
	})

	t.Run("repository failure", func(t *testing.T) {
		f := newAccountFixture(t)
		f.store.FailOn("GetByEmail", errors.New("db down"))
		_, _, err := f.svc.Login(ctx, "ada@example.com", "Password123")
		errutil.AssertErrorCode(t, err, "AUTH_LOGIN_FAILED")
	})
}

func TestAccountService_ResendVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces the pending token", func(t *testing.T) {
		f := newAccountFixture(t)
		f.signup(t, "ada@example.com")
		first, _ := f.mailer.LastTokenFor("ada@example.com")

		require.NoError(t, f.svc.ResendVerification(ctx, "ada@example.com"))
		second, _ := f.mailer.LastTokenFor("ada@example.com")
		assert.NotEqual(t, first, second)

		_, _, err := f.svc.VerifyEmail(ctx, first)
		errutil.AssertErrorCode(t, err, auth.CodeVerifyTokenNotFound)
		_, _, err = f.svc.VerifyEmail(ctx, second)
		require.NoError(t, err)
	})

	t.Run("unknown and verified addresses are silent", func(t *testing.T) {
		f := newAccountFixture(t)
		f.signup(t, "ada@example.com")
		token, _ := f.mailer.LastTokenFor("ada@example.com")
		_, _, err := f.svc.VerifyEmail(ctx, token)
		require.NoError(t, err)

		require.NoError(t, f.svc.ResendVerification(ctx, "ada@example.com"))
		require.NoError(t, f.svc.ResendVerification(ctx, "nobody@example.com"))
		assert.Len(t, f.mailer.Sent(), 1)
	})

	t.Run("empty email", func(t *testing.T) {
		f := newAccountFixture(t)
		err := f.svc.ResendVerification(ctx, " ")
		errutil.AssertErrorCode(t, err, auth.CodeValidationFailed)
	})

	t.Run("mail failure", func(t *testing.T) {
		f := newAccountFixture(t)
		f.signup(t, "ada@example.com")
		f.mailer.FailWith(errors.New("broker unavailable"))

		err := f.svc.ResendVerification(ctx, "ada@example.com")
		errutil.AssertErrorCode(t, err, auth.CodeVerificationSendFailed)
		assert.Equal(t, 1, f.store.Len())
	})
}

func TestAccountService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	change := auth.PasswordChangeInput{
		CurrentPassword: "Password123",
		NewPassword:     "NewPassword456",
		ConfirmPassword: "NewPassword456",
	}

	t.Run("stores new hash and invalidates older sessions", func(t *testing.T) {
		f := newAccountFixture(t)
		user := f.signup(t, "ada@example.com")
		_, oldSession, err := f.svc.Login(ctx, "ada@example.com", "Password123")
		require.NoError(t, err)
		oldClaims, err := f.sessions.Verify(oldSession.Token)
		require.NoError(t, err)

		changedAt := time.Now().Add(5 * time.Second)
		auth.SetAccountClock(f.svc, func() time.Time { return changedAt })
		auth.SetSessionClock(f.sessions, func() time.Time { return changedAt })

		session, err := f.svc.ChangePassword(ctx, user, change)
		require.NoError(t, err)

		stored, err := f.store.GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.PasswordChangedAt)
		assert.True(t, stored.PasswordChangedAt.Equal(changedAt.UTC()))
		assert.True(t, f.sessions.InvalidatedByPasswordChange(stored, oldClaims.IssuedAt))

		newClaims, err := f.sessions.Verify(session.Token)
		require.NoError(t, err)
		assert.False(t, f.sessions.InvalidatedByPasswordChange(stored, newClaims.IssuedAt))

		_, _, err = f.svc.Login(ctx, "ada@example.com", "NewPassword456")
		require.NoError(t, err)
		_, _, err = f.svc.Login(ctx, "ada@example.com", "Password123")
		errutil.AssertErrorCode(t, err, auth.CodeInvalidCredentials)
	})

	t.Run("wrong current password", func(t *testing.T) {
		f := newAccountFixture(t)
		user := f.signup(t, "ada@example.com")
		in := change
		in.CurrentPassword = "Nope12345"

		_, err := f.svc.ChangePassword(ctx, user, in)
		errutil.AssertErrorCode(t, err, auth.CodeWrongCurrentPassword)
	})

	t.Run("invalid new password", func(t *testing.T) {
		f := newAccountFixture(t)
		user := f.signup(t, "ada@example.com")
		in := change
		in.NewPassword = "weak"
		in.ConfirmPassword = "weak"

		_, err := f.svc.ChangePassword(ctx, user, in)
		errutil.AssertErrorCode(t, err, auth.CodeValidationFailed)
	})
}

func TestDummyPasswordHash_IsWellFormed(t *testing.T) {
	ok, err := auth.NewArgon2idHasher().Verify(context.Background(), "anything", auth.DummyPasswordHash)
	require.NoError(t, err)
	assert.False(t, ok)
}
