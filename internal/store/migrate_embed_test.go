// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	// The version scanner relies on every embedded file following the
	// NNNNNN_name.(up|down).sql convention.
	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for _, name := range names {
		assert.Regexp(t, pattern, name)
	}

	// Each migration ships as an up/down pair.
	for _, migration := range []string{
		"000001_create_users",
		"000002_create_sessions",
	} {
		assert.Contains(t, names, migration+".up.sql")
		assert.Contains(t, names, migration+".down.sql")
	}
}
