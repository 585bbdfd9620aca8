// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/mentorhub/mentorhub/internal/httpapi"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

// client is a browser-like API client that keeps the session cookie.
type client struct {
	http *http.Client
}

func newClient() *client {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &client{http: &http.Client{Jar: jar}}
}

func (c *client) call(method, path string, body any) (int, envelope) {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+httpapi.RoutePrefix+path, &buf)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var out envelope
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}

func signup(email string) map[string]string {
	return map[string]string{
		"fullName":        "Ada Lovelace",
		"email":           email,
		"password":        "Password123",
		"confirmPassword": "Password123",
	}
}

func userField(e envelope, field string) any {
	var user map[string]any
	Expect(json.Unmarshal(e.Data, &user)).To(Succeed())
	return user[field]
}

var _ = Describe("Account API", func() {
	BeforeEach(func() {
		env.resetUsers()
	})

	It("signs up, verifies and keeps a cookie session", func() {
		c := newClient()

		status, body := c.call(http.MethodPost, "/signup", signup("Ada@Example.com"))
		Expect(status).To(Equal(http.StatusCreated))
		Expect(body.Status).To(Equal("success"))

		token, ok := env.mailer.LastTokenFor("ada@example.com")
		Expect(ok).To(BeTrue())

		status, body = c.call(http.MethodPost, "/verify-email/"+token, nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(userField(body, "isEmailVerified")).To(BeTrue())

		status, body = c.call(http.MethodGet, "/me", nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(userField(body, "email")).To(Equal("ada@example.com"))

		By("refusing the same token twice")
		status, body = newClient().call(http.MethodPost, "/verify-email/"+token, nil)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body.Message).To(Equal("Invalid or expired verification token"))

		By("closing the session on logout")
		status, _ = c.call(http.MethodPost, "/logout", nil)
		Expect(status).To(Equal(http.StatusOK))
		status, body = c.call(http.MethodGet, "/me", nil)
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body.Message).To(Equal("You are not logged in! Please log in to get access."))
	})

	It("gates the admin route by role", func() {
		c := newClient()
		status, _ := c.call(http.MethodPost, "/signup", signup("grace@example.com"))
		Expect(status).To(Equal(http.StatusCreated))

		status, _ = c.call(http.MethodPost, "/login", map[string]string{"email": "grace@example.com", "password": "Password123"})
		Expect(status).To(Equal(http.StatusOK))

		status, body := c.call(http.MethodGet, "/test", nil)
		Expect(status).To(Equal(http.StatusForbidden))
		Expect(body.Message).To(Equal("You do not have permission to perform this action"))

		_, err := env.pool.Exec(env.ctx, "UPDATE users SET role = 'admin' WHERE email = $1", "grace@example.com")
		Expect(err).NotTo(HaveOccurred())

		status, _ = c.call(http.MethodGet, "/test", nil)
		Expect(status).To(Equal(http.StatusOK))
	})

	It("rejects the old password after a change", func() {
		c := newClient()
		status, _ := c.call(http.MethodPost, "/signup", signup("linus@example.com"))
		Expect(status).To(Equal(http.StatusCreated))

		status, body := c.call(http.MethodPatch, "/update-password", map[string]string{
			"currentPassword": "Password123",
			"newPassword":     "NewPassword456",
			"confirmPassword": "NewPassword456",
		})
		Expect(status).To(Equal(http.StatusUnauthorized), body.Message)

		status, _ = c.call(http.MethodPost, "/login", map[string]string{"email": "linus@example.com", "password": "Password123"})
		Expect(status).To(Equal(http.StatusOK))

		status, body = c.call(http.MethodPatch, "/update-password", map[string]string{
			"currentPassword": "Password123",
			"newPassword":     "NewPassword456",
			"confirmPassword": "NewPassword456",
		})
		Expect(status).To(Equal(http.StatusOK), body.Message)

		status, _ = c.call(http.MethodGet, "/me", nil)
		Expect(status).To(Equal(http.StatusOK))

		status, body = newClient().call(http.MethodPost, "/login", map[string]string{"email": "linus@example.com", "password": "Password123"})
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body.Message).To(Equal("Invalid email or password"))

		status, _ = newClient().call(http.MethodPost, "/login", map[string]string{"email": "linus@example.com", "password": "NewPassword456"})
		Expect(status).To(Equal(http.StatusOK))
	})

	It("creates exactly one account for concurrent signups of one email", func() {
		const attempts = 8
		statuses := make(chan int, attempts)

		var wg sync.WaitGroup
		for range attempts {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				status, _ := newClient().call(http.MethodPost, "/signup", signup("race@example.com"))
				statuses <- status
			}()
		}
		wg.Wait()
		close(statuses)

		counts := map[int]int{}
		for s := range statuses {
			counts[s]++
		}
		Expect(counts[http.StatusCreated]).To(Equal(1))
		Expect(counts[http.StatusConflict]).To(Equal(attempts - 1))

		var n int
		Expect(env.pool.QueryRow(env.ctx, "SELECT count(*) FROM users WHERE LOWER(email) = 'race@example.com'").Scan(&n)).To(Succeed())
		Expect(n).To(Equal(1))
	})

	It("reports database readiness", func() {
		rec := httptest.NewRecorder()
		env.obs.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/readiness", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
	})
})
