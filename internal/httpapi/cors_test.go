// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

package httpapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mentorhub/mentorhub/internal/config"
)

func preflight(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, prefix+"/login", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	return req
}

func TestCORS_AnyOriginWithoutCredentials(t *testing.T) {
	f := newAPIFixture(t)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, preflight("https://elsewhere.example"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	req := httptest.NewRequest(http.MethodGet, prefix+"/me", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_ConfiguredOriginsGetCredentials(t *testing.T) {
	f := newAPIFixture(t, func(c *config.Config) {
		c.CORSOrigins = []string{"https://app.mentorhub.example"}
	})

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, preflight("https://app.mentorhub.example"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.mentorhub.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, preflight("https://evil.example"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightSkipsRateLimit(t *testing.T) {
	f := newAPIFixture(t, func(c *config.Config) {
		c.RateLimitBurst = 1
	})

	for range 3 {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, preflight("https://elsewhere.example"))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}
