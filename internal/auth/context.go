// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package auth

import "context"

type userContextKey struct{}

// WithUser returns a child context carrying the authenticated user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*User)
	return user, ok && user != nil
}
