// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/mentorhub/mentorhub/internal/auth"
	"github.com/mentorhub/mentorhub/pkg/errutil"
)

// Envelope statuses.
const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Client-facing messages.
const (
	msgServerError      = "Server Error"
	msgNotFound         = "Resource not found"
	msgInvalidBody      = "Invalid request body"
	msgValidationFailed = "Validation failed"
	msgTooManyRequests  = "Too many requests in a short time. Please try in a minute."
)

type envelope struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Errors  []auth.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // the client may have gone away
	json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Status: statusSuccess, Message: message, Data: data})
}

// writeFail answers with a client error. 5xx statuses get "error".
func writeFail(w http.ResponseWriter, status int, message string) {
	s := statusFail
	if status >= http.StatusInternalServerError {
		s = statusError
	}
	writeJSON(w, status, envelope{Status: s, Message: message})
}

// errorResponse is the status and client-safe message for an error code.
type errorResponse struct {
	status  int
	message string
}

var errorResponses = map[string]errorResponse{
	auth.CodeEmailTaken:             {http.StatusConflict, "User with this email already exists"},
	auth.CodeCredentialsRequired:    {http.StatusBadRequest, "Please provide email and password"},
	auth.CodeInvalidCredentials:     {http.StatusBadRequest, "Invalid email or password"},
	auth.CodeWrongCurrentPassword:   {http.StatusUnauthorized, "Your current password is wrong."},
	auth.CodeVerificationSendFailed: {http.StatusInternalServerError, "Failed to send verification email. Please try again."},
	auth.CodeVerifyTokenMissing:     {http.StatusBadRequest, "Verification token is required"},
	auth.CodeVerifyTokenNotFound:    {http.StatusBadRequest, "Invalid or expired verification token"},
	auth.CodeVerifyTokenExpired:     {http.StatusBadRequest, "Verification token has expired"},
}

// writeError renders err from an account operation. Coded operational
// failures get their mapped message; everything else is logged and
// answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	oopsErr, ok := oops.AsOops(err)
	if ok {
		code, _ := oopsErr.Code().(string) //nolint:errcheck // non-string codes are unmapped
		if code == auth.CodeValidationFailed {
			writeJSON(w, http.StatusBadRequest, envelope{
				Status:  statusError,
				Message: msgValidationFailed,
				Errors:  auth.FieldErrors(err),
			})
			return
		}
		if resp, found := errorResponses[code]; found {
			if resp.status >= http.StatusInternalServerError {
				errutil.LogErrorContext(r.Context(), logger, "request failed", err)
			}
			writeFail(w, resp.status, resp.message)
			return
		}
	}

	errutil.LogErrorContext(r.Context(), logger, "unhandled error",
		oops.With("method", r.Method, "route", r.Pattern).Wrap(err))
	writeFail(w, http.StatusInternalServerError, msgServerError)
}

// decodeJSON reads a size-limited JSON body into dst. Any failure is
// answered with 400 and reported as false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFail(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeFail(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}
