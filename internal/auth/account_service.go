// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mentorhub/mentorhub/pkg/errutil"
)

// dummyPasswordHash is verified when a user doesn't exist so that login takes
// the same time either way. It is a well-formed argon2id string that never
// matches any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Session is an issued session token and its expiry.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// AccountDeps holds the collaborators of an AccountService.
type AccountDeps struct {
	Users     UserRepository
	Hasher    PasswordHasher
	Tokens    *VerificationTokenService
	Sessions  *SessionTokenService
	Mailer    Mailer
	Validator *Validator

	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Tracer defaults to the global provider's tracer.
	Tracer trace.Tracer
}

// AccountService runs the account lifecycle: signup, email verification,
// login and password change.
type AccountService struct {
	users     UserRepository
	hasher    PasswordHasher
	tokens    *VerificationTokenService
	sessions  *SessionTokenService
	mailer    Mailer
	validator *Validator
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewAccountService creates an AccountService.
func NewAccountService(deps AccountDeps) (*AccountService, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Errorf("user repository is required")
	case deps.Hasher == nil:
		return nil, oops.Errorf("password hasher is required")
	case deps.Tokens == nil:
		return nil, oops.Errorf("verification token service is required")
	case deps.Sessions == nil:
		return nil, oops.Errorf("session token service is required")
	case deps.Mailer == nil:
		return nil, oops.Errorf("mailer is required")
	case deps.Validator == nil:
		return nil, oops.Errorf("validator is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/mentorhub/mentorhub/internal/auth")
	}

	return &AccountService{
		users:     deps.Users,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		sessions:  deps.Sessions,
		mailer:    deps.Mailer,
		validator: deps.Validator,
		logger:    logger,
		tracer:    tracer,
		now:       time.Now,
	}, nil
}

// Signup validates input, creates an unverified user and emails a
// verification token. If the email cannot be sent the user is deleted again
// so no unverifiable account is left behind.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "AccountService.Signup")
	defer span.End()

	in.Normalize()
	if err := s.validator.ValidateSignup(in); err != nil {
		return nil, err
	}
	role, err := ParseRole(in.UserRole)
	if err != nil {
		return nil, validationError([]FieldError{{Field: "userRole", Message: messageFor("userRole", "enum")}})
	}

	_, err = s.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, emailTaken(in.Email)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "get user by email").Wrap(err)
	}

	passwordHash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}

	issued, err := s.tokens.Issue()
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "issue verification token").Wrap(err)
	}

	var profileImageURL *string
	if in.ProfileImageURL != "" {
		profileImageURL = &in.ProfileImageURL
	}
	user, err := NewUser(in.FullName, in.Email, passwordHash, role, profileImageURL)
	if err != nil {
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "build user").Wrap(err)
	}
	user.SetVerificationToken(issued.TokenHash, issued.ExpiresAt)

	if err := s.users.Create(ctx, user); err != nil {
		if errutil.Code(err) == CodeEmailTaken {
			return nil, emailTaken(in.Email)
		}
		return nil, oops.Code("AUTH_SIGNUP_FAILED").With("operation", "create user").Wrap(err)
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	if err := s.sendVerification(ctx, user, issued); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "verification email failed, removing new account", err)
		// The delete must run even if the request was cancelled mid-send.
		if delErr := s.users.Delete(context.WithoutCancel(ctx), user.ID); delErr != nil {
			errutil.LogErrorContext(ctx, s.logger, "failed to remove account after email failure", delErr)
		}
		span.RecordError(err)
		return nil, oops.Code(CodeVerificationSendFailed).
			With("user_id", user.ID.String()).
			Errorf("failed to send verification email: %v", err)
	}

	s.logger.InfoContext(ctx, "account created", "user_id", user.ID.String(), "role", string(user.Role))
	return user, nil
}

// VerifyEmail consumes a verification token and logs the user in.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*User, *Session, error) {
	ctx, span := s.tracer.Start(ctx, "AccountService.VerifyEmail")
	defer span.End()

	user, err := s.tokens.Consume(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, nil, err
	}
	s.logger.InfoContext(ctx, "email verified", "user_id", user.ID.String())
	return user, session, nil
}

// Login authenticates by email and password and issues a session.
// Uses constant-time operations to prevent timing-based email enumeration.
func (s *AccountService) Login(ctx context.Context, email, password string) (*User, *Session, error) {
	ctx, span := s.tracer.Start(ctx, "AccountService.Login")
	defer span.End()

	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil, oops.Code(CodeCredentialsRequired).Errorf("please provide email and password")
	}

	user, lookupErr := s.users.GetByEmail(ctx, email)

	var targetHash string
	var userExists bool
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		userExists = true
	case errors.Is(lookupErr, ErrNotFound):
		// Still verify against the dummy hash to keep timing constant.
		targetHash = dummyPasswordHash
	default:
		return nil, nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by email").
			Wrap(lookupErr)
	}

	valid, err := s.hasher.Verify(ctx, password, targetHash)
	if err != nil {
		return nil, nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "verify password").Wrap(err)
	}
	if !userExists || !valid {
		return nil, nil, oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// ResendVerification issues and sends a new token to an unverified account.
// Unknown or already verified addresses succeed silently so the endpoint
// cannot be used to probe for accounts.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	ctx, span := s.tracer.Start(ctx, "AccountService.ResendVerification")
	defer span.End()

	email = NormalizeEmail(email)
	if email == "" {
		return validationError([]FieldError{{Field: "email", Message: messageFor("email", "format")}})
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return oops.Code("AUTH_RESEND_FAILED").With("operation", "get user by email").Wrap(err)
	}
	if user.EmailVerified {
		return nil
	}

	issued, err := s.tokens.Issue()
	if err != nil {
		return oops.Code("AUTH_RESEND_FAILED").With("operation", "issue verification token").Wrap(err)
	}
	if err := s.users.SetVerificationToken(ctx, user.ID, issued.TokenHash, issued.ExpiresAt); err != nil {
		return oops.Code("AUTH_RESEND_FAILED").With("operation", "store verification token").Wrap(err)
	}
	user.SetVerificationToken(issued.TokenHash, issued.ExpiresAt)

	if err := s.sendVerification(ctx, user, issued); err != nil {
		errutil.LogErrorContext(ctx, s.logger, "verification email resend failed", err)
		return oops.Code(CodeVerificationSendFailed).
			With("user_id", user.ID.String()).
			Errorf("failed to send verification email: %v", err)
	}
	return nil
}

// ChangePassword replaces the password of an authenticated user. Sessions
// issued before the change stop working; the returned session replaces the
// caller's.
func (s *AccountService) ChangePassword(ctx context.Context, user *User, in PasswordChangeInput) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "AccountService.ChangePassword")
	defer span.End()

	if err := s.validator.ValidatePasswordChange(in); err != nil {
		return nil, err
	}

	valid, err := s.hasher.Verify(ctx, in.CurrentPassword, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("operation", "verify password").Wrap(err)
	}
	if !valid {
		return nil, oops.Code(CodeWrongCurrentPassword).With("user_id", user.ID.String()).Errorf("current password is wrong")
	}

	newHash, err := s.hasher.Hash(ctx, in.NewPassword)
	if err != nil {
		return nil, oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("operation", "hash password").Wrap(err)
	}
	changedAt := s.now().UTC()
	if err := s.users.UpdatePassword(ctx, user.ID, newHash, changedAt); err != nil {
		return nil, oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("operation", "update password").Wrap(err)
	}
	user.PasswordHash = newHash
	user.PasswordChangedAt = &changedAt
	user.UpdatedAt = changedAt

	s.logger.InfoContext(ctx, "password changed", "user_id", user.ID.String())
	return s.issueSession(user)
}

func (s *AccountService) issueSession(user *User) (*Session, error) {
	token, expiresAt, err := s.sessions.Issue(user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_ISSUE_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt}, nil
}

func (s *AccountService) sendVerification(ctx context.Context, user *User, issued *IssuedVerification) error {
	//nolint:wrapcheck // mailer errors are wrapped by the caller with its own code
	return s.mailer.SendVerification(ctx, VerificationMessage{
		To:        user.Email,
		FullName:  user.FullName,
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
	})
}

// upgradeHash re-hashes a legacy password. Login succeeds regardless.
func (s *AccountService) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed", "user_id", user.ID.String(), "error", err)
		return
	}
	if err := s.users.UpgradePasswordHash(ctx, user.ID, newHash); err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade not stored", "user_id", user.ID.String(), "error", err)
		return
	}
	user.PasswordHash = newHash
}

func emailTaken(email string) error {
	return oops.Code(CodeEmailTaken).With("email", email).Errorf("user with this email already exists")
}
