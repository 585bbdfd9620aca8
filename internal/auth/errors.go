// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Error codes for operational failures. Callers match on these with
// oops.AsOops(err).Code(); the HTTP layer turns them into client messages.
const (
	CodeValidationFailed       = "AUTH_VALIDATION_FAILED"
	CodeEmailTaken             = "AUTH_EMAIL_TAKEN"
	CodeCredentialsRequired    = "AUTH_CREDENTIALS_REQUIRED"
	CodeInvalidCredentials     = "AUTH_INVALID_CREDENTIALS"
	CodeWrongCurrentPassword   = "AUTH_WRONG_CURRENT_PASSWORD"
	CodeVerificationSendFailed = "AUTH_VERIFICATION_SEND_FAILED"
	CodeEmptyPassword          = "AUTH_EMPTY_PASSWORD"

	CodeVerifyTokenMissing  = "VERIFY_TOKEN_MISSING"
	CodeVerifyTokenNotFound = "VERIFY_TOKEN_NOT_FOUND"
	CodeVerifyTokenExpired  = "VERIFY_TOKEN_EXPIRED"

	CodeSessionTokenMissing      = "SESSION_TOKEN_MISSING"
	CodeSessionTokenMalformed    = "SESSION_TOKEN_MALFORMED"
	CodeSessionTokenBadSignature = "SESSION_TOKEN_BAD_SIGNATURE"
	CodeSessionTokenExpired      = "SESSION_TOKEN_EXPIRED"
	CodeSessionTokenNoIssuedAt   = "SESSION_TOKEN_NO_ISSUED_AT"

	CodeUserNotFound = "USER_NOT_FOUND"
)
