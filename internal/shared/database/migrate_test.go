package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilesOrdered(t *testing.T) {
	files, err := MigrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)

	assert.Equal(t, "0001_reporting_schema.sql", files[0])
	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1], files[i])
	}
}

func TestReportingSchemaCoversSourceTables(t *testing.T) {
	content, err := fs.ReadFile(migrationsFS, "migrations/0001_reporting_schema.sql")
	require.NoError(t, err)

	sql := string(content)
	for _, table := range []string{
		"reporting.clients",
		"reporting.employees",
		"reporting.client_medications",
		"reporting.client_extensions",
	} {
		assert.True(t, strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table), table)
	}
}
