// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

// Package auth provides the account and authentication core of MentorHub.
//
// # Domain Types
//
// User carries identity, credential and verification state. Create users
// with NewUser, which validates the name and role and normalizes the email.
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated users.
//
// # Services
//
// Service types coordinate domain operations:
//   - VerificationTokenService - single-use email verification tokens
//   - SessionTokenService - signed, stateless session tokens
//   - AccountService - signup, email verification, login and password change
//
// Services are created with New*Service constructors that validate
// dependencies. Failures are oops errors carrying one of the Code*
// constants; transports map those codes to client messages.
package auth
