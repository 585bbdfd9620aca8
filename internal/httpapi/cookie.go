// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/mentorhub/mentorhub/internal/auth"
)

// SessionCookie is the cookie that carries the session token.
const SessionCookie = "jwt"

// cookieWriter sets and clears the session cookie. Production deployments
// serve the API cross-site over TLS, so the cookie is Secure with
// SameSite=None there and Lax elsewhere.
type cookieWriter struct {
	production bool
}

func (c cookieWriter) sameSite() http.SameSite {
	if c.production {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (c cookieWriter) set(w http.ResponseWriter, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   c.production,
		SameSite: c.sameSite(),
	})
}

func (c cookieWriter) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.production,
		SameSite: c.sameSite(),
	})
}
