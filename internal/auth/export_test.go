// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package auth

import "time"

// Test hooks for pinning the clock of time-dependent services.

func SetSessionClock(s *SessionTokenService, now func() time.Time) { s.now = now }

func SetVerificationClock(s *VerificationTokenService, now func() time.Time) { s.now = now }

func SetAccountClock(s *AccountService, now func() time.Time) { s.now = now }

const DummyPasswordHash = dummyPasswordHash
