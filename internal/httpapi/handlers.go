// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/mentorhub/mentorhub/internal/auth"
)

// Success messages.
const (
	msgSignedUp        = "Account created successfully! Please check your email to verify your account."
	msgResent          = "If that account exists and is not yet verified, a new verification email has been sent."
	msgLoggedOut       = "Logged out successfully"
	msgPasswordUpdated = "Password updated successfully"
)

// Operation labels for auth event metrics.
const (
	opSignup         = "signup"
	opVerifyEmail    = "verify_email"
	opLogin          = "login"
	opResend         = "resend_verification"
	opChangePassword = "change_password"
)

// userView is the public rendering of a user. It never carries the password
// hash or the verification token.
type userView struct {
	ID                       string     `json:"id"`
	FullName                 string     `json:"fullName"`
	Email                    string     `json:"email"`
	Role                     string     `json:"userRole"`
	ProfileImageURL          *string    `json:"profileImageUrl,omitempty"`
	EmailVerified            bool       `json:"isEmailVerified"`
	EmailVerificationExpires *time.Time `json:"emailVerificationExpires,omitempty"`
	PasswordChangedAt        *time.Time `json:"passwordChangedAt,omitempty"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
}

func newUserView(u *auth.User) userView {
	return userView{
		ID:                       u.ID.String(),
		FullName:                 u.FullName,
		Email:                    u.Email,
		Role:                     string(u.Role),
		ProfileImageURL:          u.ProfileImageURL,
		EmailVerified:            u.EmailVerified,
		EmailVerificationExpires: u.VerificationExpires,
		PasswordChangedAt:        u.PasswordChangedAt,
		CreatedAt:                u.CreatedAt,
		UpdatedAt:                u.UpdatedAt,
	}
}

type signupData struct {
	User      userView `json:"user"`
	EmailSent bool     `json:"emailSent"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resendRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in auth.SignupInput
	if !decodeJSON(w, r, &in) {
		return
	}

	user, err := s.accounts.Signup(r.Context(), in)
	s.metrics.RecordAuthEvent(opSignup, err)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, msgSignedUp, signupData{User: newUserView(user), EmailSent: true})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	user, session, err := s.accounts.Login(r.Context(), in.Email, in.Password)
	s.metrics.RecordAuthEvent(opLogin, err)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	s.cookies.set(w, session)
	writeSuccess(w, http.StatusOK, "", newUserView(user))
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	user, session, err := s.accounts.VerifyEmail(r.Context(), r.PathValue("token"))
	s.metrics.RecordAuthEvent(opVerifyEmail, err)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	s.cookies.set(w, session)
	writeSuccess(w, http.StatusOK, "", newUserView(user))
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var in resendRequest
	if !decodeJSON(w, r, &in) {
		return
	}

	err := s.accounts.ResendVerification(r.Context(), in.Email)
	s.metrics.RecordAuthEvent(opResend, err)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, msgResent, nil)
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.cookies.clear(w)
	writeSuccess(w, http.StatusOK, msgLoggedOut, nil)
}

// handleCurrentUser renders the user the gate attached. It serves both
// /me and the admin-only /test route.
func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, msgNotLoggedIn)
		return
	}
	writeSuccess(w, http.StatusOK, "", newUserView(user))
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, msgNotLoggedIn)
		return
	}
	var in auth.PasswordChangeInput
	if !decodeJSON(w, r, &in) {
		return
	}

	session, err := s.accounts.ChangePassword(r.Context(), user, in)
	s.metrics.RecordAuthEvent(opChangePassword, err)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	s.cookies.set(w, session)
	writeSuccess(w, http.StatusOK, msgPasswordUpdated, newUserView(user))
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeFail(w, http.StatusNotFound, msgNotFound)
}
