// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MentorHub Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/mentorhub/mentorhub/internal/auth"
	"github.com/mentorhub/mentorhub/internal/auth/postgres"
	"github.com/mentorhub/mentorhub/pkg/errutil"
)

func newPendingUser(email, tokenHash string, expires time.Time) *auth.User {
	user, err := auth.NewUser("Ada Lovelace", email, "$argon2id$hash", auth.RoleStudent, nil)
	Expect(err).NotTo(HaveOccurred())
	user.CreatedAt = user.CreatedAt.Truncate(time.Microsecond)
	user.UpdatedAt = user.CreatedAt
	user.SetVerificationToken(tokenHash, expires.Truncate(time.Microsecond))
	return user
}

var _ = Describe("UserRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.UserRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewUserRepository(testPool)
		_, err := testPool.Exec(ctx, `DELETE FROM users`)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Create and lookup", func() {
		It("round-trips every column", func() {
			url := "https://cdn.example.com/ada.png"
			user := newPendingUser("ada@example.com", "hash-1", time.Now().Add(time.Hour))
			user.ProfileImageURL = &url
			Expect(repo.Create(ctx, user)).To(Succeed())

			got, err := repo.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Email).To(Equal("ada@example.com"))
			Expect(got.Role).To(Equal(auth.RoleStudent))
			Expect(*got.ProfileImageURL).To(Equal(url))
			Expect(*got.VerificationTokenHash).To(Equal("hash-1"))
			Expect(got.VerificationExpires.Equal(*user.VerificationExpires)).To(BeTrue())
			Expect(got.PasswordChangedAt).To(BeNil())
		})

		It("finds users by email regardless of case", func() {
			user := newPendingUser("ada@example.com", "hash-2", time.Now().Add(time.Hour))
			Expect(repo.Create(ctx, user)).To(Succeed())

			got, err := repo.GetByEmail(ctx, "ADA@example.COM")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(user.ID))
		})

		It("rejects a second account for the same email", func() {
			Expect(repo.Create(ctx, newPendingUser("ada@example.com", "hash-3", time.Now().Add(time.Hour)))).To(Succeed())

			dup := newPendingUser("ada@example.com", "hash-4", time.Now().Add(time.Hour))
			dup.Email = "Ada@Example.com"
			err := repo.Create(ctx, dup)
			Expect(errutil.Code(err)).To(Equal(auth.CodeEmailTaken))
		})

		It("reports missing users as not found", func() {
			_, err := repo.GetByEmail(ctx, "nobody@example.com")
			Expect(err).To(MatchError(auth.ErrNotFound))
		})
	})

	Describe("ConsumeVerificationToken", func() {
		It("verifies exactly once under concurrency", func() {
			user := newPendingUser("ada@example.com", "race-hash", time.Now().Add(time.Hour))
			Expect(repo.Create(ctx, user)).To(Succeed())

			const racers = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
			)
			for range racers {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					if _, err := repo.ConsumeVerificationToken(ctx, "race-hash", time.Now()); err == nil {
						mu.Lock()
						successes++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			Expect(successes).To(Equal(1))

			got, err := repo.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.EmailVerified).To(BeTrue())
			Expect(got.VerificationTokenHash).To(BeNil())
			Expect(got.VerificationExpires).To(BeNil())
		})

		It("leaves an expired token in place", func() {
			user := newPendingUser("ada@example.com", "old-hash", time.Now().Add(-time.Minute))
			Expect(repo.Create(ctx, user)).To(Succeed())

			_, err := repo.ConsumeVerificationToken(ctx, "old-hash", time.Now())
			Expect(err).To(MatchError(auth.ErrTokenExpired))

			got, err := repo.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.EmailVerified).To(BeFalse())
			Expect(got.HasPendingVerification()).To(BeTrue())
		})

		It("lets a resend replace the pending token", func() {
			user := newPendingUser("ada@example.com", "first", time.Now().Add(time.Hour))
			Expect(repo.Create(ctx, user)).To(Succeed())
			Expect(repo.SetVerificationToken(ctx, user.ID, "second", time.Now().Add(time.Hour))).To(Succeed())

			_, err := repo.ConsumeVerificationToken(ctx, "first", time.Now())
			Expect(err).To(MatchError(auth.ErrNotFound))
			_, err = repo.ConsumeVerificationToken(ctx, "second", time.Now())
			Expect(err).NotTo(HaveOccurred())

			err = repo.SetVerificationToken(ctx, user.ID, "third", time.Now().Add(time.Hour))
			Expect(err).To(MatchError(auth.ErrNotFound), "verified users get no new token")
		})
	})

	Describe("passwords", func() {
		It("records the change time only for real changes", func() {
			user := newPendingUser("ada@example.com", "h", time.Now().Add(time.Hour))
			Expect(repo.Create(ctx, user)).To(Succeed())

			Expect(repo.UpgradePasswordHash(ctx, user.ID, "upgraded")).To(Succeed())
			got, err := repo.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordHash).To(Equal("upgraded"))
			Expect(got.PasswordChangedAt).To(BeNil())

			changedAt := time.Now().UTC().Truncate(time.Microsecond)
			Expect(repo.UpdatePassword(ctx, user.ID, "changed", changedAt)).To(Succeed())
			got, err = repo.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PasswordHash).To(Equal("changed"))
			Expect(got.PasswordChangedAt.Equal(changedAt)).To(BeTrue())
		})
	})

	It("deletes users", func() {
		user := newPendingUser("ada@example.com", "h", time.Now().Add(time.Hour))
		Expect(repo.Create(ctx, user)).To(Succeed())
		Expect(repo.Delete(ctx, user.ID)).To(Succeed())
		Expect(repo.Delete(ctx, user.ID)).To(MatchError(auth.ErrNotFound))
	})
})
