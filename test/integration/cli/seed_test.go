// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package cli_test

import (
	"context"
	"os/exec"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

// seedCommand builds an exec.Cmd that runs the gatehouse CLI with an
// isolated config home, so a developer's own config file never leaks in.
func seedCommand(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "go", append([]string{"run", "."}, args...)...)
	cmd.Dir = "../../../cmd/gatehouse"
	cmd.Env = append(cmd.Environ(), "XDG_CONFIG_HOME="+GinkgoT().TempDir())
	return cmd
}

var _ = Describe("gatehouse seed", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		resetDatabase(ctx, env.pool)
	})

	Describe("admin account", func() {
		It("creates the admin account", func() {
			cmd := seedCommand(ctx, "seed",
				"--password", "Sup3rSecret",
				"--database.url", env.connStr)

			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "seed exited non-zero: %s", string(output))
			Expect(string(output)).To(ContainSubstring("Created admin account: admin@example.com"))
			Expect(string(output)).To(ContainSubstring("Seeding complete"))

			// The stored row carries an argon2id hash, never the password.
			var email, hash string
			err = env.pool.QueryRow(ctx,
				"SELECT email, password_hash FROM users WHERE id = $1",
				"01K2XJ3S000000000000000000",
			).Scan(&email, &hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(email).To(Equal("admin@example.com"))
			Expect(hash).To(HavePrefix("$argon2id$"))
		})

		It("skips creation when the admin already exists", func() {
			cmd1 := seedCommand(ctx, "seed",
				"--password", "Sup3rSecret",
				"--database.url", env.connStr)

			output1, err := cmd1.CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "first run exited non-zero: %s", string(output1))
			Expect(string(output1)).To(ContainSubstring("Created admin account"))

			// The second run must report the skip, not fail.
			cmd2 := seedCommand(ctx, "seed",
				"--password", "Sup3rSecret",
				"--database.url", env.connStr)

			output2, err := cmd2.CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "second run exited non-zero: %s", string(output2))
			Expect(string(output2)).To(ContainSubstring("Admin account already exists"))

			var count int
			err = env.pool.QueryRow(ctx,
				"SELECT COUNT(*) FROM users WHERE email_normalized = $1",
				"admin@example.com",
			).Scan(&count)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
		})

		It("honors a custom admin email", func() {
			cmd := seedCommand(ctx, "seed",
				"--email", "Root@Example.ORG",
				"--password", "Sup3rSecret",
				"--database.url", env.connStr)

			output, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "seed exited non-zero: %s", string(output))

			// Lookups key on the normalized form
			var email string
			err = env.pool.QueryRow(ctx,
				"SELECT email_normalized FROM users WHERE id = $1",
				"01K2XJ3S000000000000000000",
			).Scan(&email)
			Expect(err).NotTo(HaveOccurred())
			Expect(email).To(Equal("root@example.org"))
		})
	})

	Describe("input validation", func() {
		It("fails without --password", func() {
			cmd := seedCommand(ctx, "seed", "--database.url", env.connStr)

			output, err := cmd.CombinedOutput()
			Expect(err).To(HaveOccurred())
			Expect(string(output)).To(ContainSubstring("--password"))
		})

		It("rejects a password failing the policy", func() {
			cmd := seedCommand(ctx, "seed",
				"--password", "weak",
				"--database.url", env.connStr)

			output, err := cmd.CombinedOutput()
			Expect(err).To(HaveOccurred())
			Expect(string(output)).To(ContainSubstring("at least 8 characters"))
		})
	})
})
