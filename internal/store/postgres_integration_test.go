// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/sessiongate/internal/auth"
	authpg "github.com/holomush/sessiongate/internal/auth/postgres"
	"github.com/holomush/sessiongate/internal/store"
)

var _ = Describe("PostgreSQL account storage", Ordered, func() {
	var (
		ctx       context.Context
		container *postgres.PostgresContainer
		connStr   string
		pool      *pgxpool.Pool
	)

	BeforeAll(func() {
		ctx = context.Background()
		var err error
		container, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("sessiongate_test"),
			postgres.WithUsername("sessiongate"),
			postgres.WithPassword("sessiongate"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		Expect(err).NotTo(HaveOccurred())

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if pool != nil {
			pool.Close()
		}
		if container != nil {
			Expect(container.Terminate(ctx)).To(Succeed())
		}
	})

	Describe("Migrator", func() {
		It("applies, reports and rolls back every migration", func() {
			m, err := store.NewMigrator(connStr)
			Expect(err).NotTo(HaveOccurred())
			defer func() { Expect(m.Close()).To(Succeed()) }()

			versions, err := store.MigrationVersions()
			Expect(err).NotTo(HaveOccurred())

			pending, err := m.Pending()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(Equal(versions))

			Expect(m.Up()).To(Succeed())
			version, dirty, err := m.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(dirty).To(BeFalse())
			Expect(version).To(Equal(versions[len(versions)-1]))

			Expect(m.Down()).To(Succeed())
			version, _, err = m.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(BeZero())

			Expect(m.Up()).To(Succeed())
			Expect(m.Up()).To(Succeed(), "Up is idempotent")
		})
	})

	Describe("AccountRepository", func() {
		var repo *authpg.AccountRepository

		BeforeAll(func() {
			var err error
			pool, err = store.Connect(ctx, connStr, store.DefaultConnectOptions)
			Expect(err).NotTo(HaveOccurred())
			repo = authpg.NewAccountRepository(pool)
		})

		It("round-trips an account and enforces unique usernames", func() {
			account, err := auth.NewAccount("Alice", "hash", []string{"admin"})
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, account)).To(Succeed())

			got, err := repo.GetByUsername(ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(account.ID))
			Expect(got.Roles).To(Equal([]string{"admin"}))

			dup, err := auth.NewAccount("ALICE", "hash", nil)
			Expect(err).NotTo(HaveOccurred())
			err = repo.Create(ctx, dup)
			Expect(errors.Is(err, auth.ErrUsernameTaken)).To(BeTrue())
		})

		It("persists lockout bookkeeping", func() {
			account, err := auth.NewAccount("bob", "hash", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.Create(ctx, account)).To(Succeed())

			now := time.Now()
			for range 7 {
				account.RecordFailure(now)
			}
			Expect(account.IsLocked(now)).To(BeTrue())
			Expect(repo.Update(ctx, account)).To(Succeed())

			got, err := repo.GetByID(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.FailedAttempts).To(Equal(7))
			Expect(got.IsLocked(now)).To(BeTrue())

			got.RecordSuccess(now)
			Expect(repo.Update(ctx, got)).To(Succeed())
			got, err = repo.GetByID(ctx, account.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.LockedUntil).To(BeNil())
		})

		It("reports missing accounts", func() {
			_, err := repo.GetByUsername(ctx, "nobody")
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})
	})
})
