// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/mentorhub/mentorhub/internal/auth"
	"github.com/mentorhub/mentorhub/internal/observability"
	"github.com/mentorhub/mentorhub/pkg/errutil"
)

// Gate rejection messages.
const (
	msgNotLoggedIn     = "You are not logged in! Please log in to get access."
	msgSessionExpired  = "Your session has expired. Please log in again."
	msgNoIssuedAt      = "Invalid token: missing issued date."
	msgInvalidToken    = "Invalid token. Please log in again."
	msgUserGone        = "The user belonging to this token no longer exists."
	msgPasswordChanged = "User recently changed password. Please log in again."
	msgForbidden       = "You do not have permission to perform this action"
)

// Gate rejection reasons, used as metric labels.
const (
	reasonMissingToken    = "missing_token"
	reasonExpired         = "expired"
	reasonNoIssuedAt      = "no_issued_at"
	reasonInvalidToken    = "invalid_token"
	reasonUserGone        = "user_gone"
	reasonPasswordChanged = "password_changed"
	reasonForbidden       = "forbidden"
)

// Gate authenticates requests by session token and enforces role
// restrictions.
type Gate struct {
	sessions *auth.SessionTokenService
	users    auth.UserRepository
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewGate creates a Gate. metrics may be nil.
func NewGate(sessions *auth.SessionTokenService, users auth.UserRepository, metrics *observability.Metrics, logger *slog.Logger) (*Gate, error) {
	if sessions == nil {
		return nil, oops.Errorf("session token service is required")
	}
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{sessions: sessions, users: users, metrics: metrics, logger: logger}, nil
}

// Authenticate resolves the session token to a user and attaches it to the
// request context. Requests without a valid session are refused with 401.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			g.reject(w, http.StatusUnauthorized, reasonMissingToken, msgNotLoggedIn)
			return
		}

		claims, err := g.sessions.Verify(token)
		if err != nil {
			switch errutil.Code(err) {
			case auth.CodeSessionTokenExpired:
				g.reject(w, http.StatusUnauthorized, reasonExpired, msgSessionExpired)
			case auth.CodeSessionTokenNoIssuedAt:
				g.reject(w, http.StatusUnauthorized, reasonNoIssuedAt, msgNoIssuedAt)
			default:
				g.reject(w, http.StatusUnauthorized, reasonInvalidToken, msgInvalidToken)
			}
			return
		}

		user, err := g.users.GetByID(r.Context(), claims.UserID)
		if errors.Is(err, auth.ErrNotFound) {
			g.reject(w, http.StatusUnauthorized, reasonUserGone, msgUserGone)
			return
		}
		if err != nil {
			writeError(w, r, g.logger, oops.Code("GATE_USER_LOOKUP_FAILED").
				With("user_id", claims.UserID.String()).
				Wrap(err))
			return
		}

		if g.sessions.InvalidatedByPasswordChange(user, claims.IssuedAt) {
			g.reject(w, http.StatusUnauthorized, reasonPasswordChanged, msgPasswordChanged)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

// RequireRoles admits authenticated users whose role is in allowed. It must
// run after Authenticate; without a user in the context it answers 401.
func (g *Gate) RequireRoles(allowed auth.RoleSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok {
				g.reject(w, http.StatusUnauthorized, reasonMissingToken, msgNotLoggedIn)
				return
			}
			if !allowed.Contains(user.Role) {
				g.logger.InfoContext(r.Context(), "role not permitted",
					"user_id", user.ID.String(), "role", string(user.Role), "allowed", allowed.String())
				g.reject(w, http.StatusForbidden, reasonForbidden, msgForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) reject(w http.ResponseWriter, status int, reason, message string) {
	g.metrics.RecordGateRejection(reason)
	writeFail(w, status, message)
}

// sessionToken reads the jwt cookie, falling back to a bearer token.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}
