package main

import (
	"io/fs"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	infraBQ "github.com/dvloznov/cashflow-engine/internal/infra/bigquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var target = Target{Project: "acme", Dataset: "finance", Table: "transactions"}

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
	}{
		{"0001_create_ledger_transactions.sql", true},
		{"001_invalid.sql", false},
		{"0001_test", false},
		{"0001.sql", false},
		{"invalid_0001_test.sql", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.valid, migrationPattern.MatchString(tt.filename))
		})
	}
}

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_view.sql":  {Data: []byte("CREATE VIEW `{{PROJECT_ID}}.{{DATASET_ID}}.v` AS SELECT 1")},
		"0001_table.sql": {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.{{LEDGER_TABLE}}` (id STRING)")},
		"README.md":      {Data: []byte("notes")},
	}

	migrations, err := readMigrations(fsys, target, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "table", migrations[0].Name)
	assert.Equal(t, "CREATE TABLE `acme.finance.transactions` (id STRING)", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Len(t, migrations[0].Checksum, 64)
}

func TestReadMigrations_ChecksumIgnoresTarget(t *testing.T) {
	fsys := fstest.MapFS{"0001_table.sql": {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.x.y` (id STRING)")}}

	a, err := readMigrations(fsys, target, zerolog.Nop())
	require.NoError(t, err)
	b, err := readMigrations(fsys, Target{Project: "other"}, zerolog.Nop())
	require.NoError(t, err)

	assert.NotEqual(t, a[0].SQL, b[0].SQL)
	assert.Equal(t, a[0].Checksum, b[0].Checksum)
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1")},
		"0001_b.sql": {Data: []byte("SELECT 2")},
	}
	_, err := readMigrations(fsys, target, zerolog.Nop())
	assert.ErrorContains(t, err, "version 0001")
}

func TestPending(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Filename: "0001_a.sql", Checksum: "aaa"},
		{Version: 2, Filename: "0002_b.sql", Checksum: "bbb"},
	}

	todo, err := pending(migrations, []AppliedMigration{{Version: 1, Checksum: "aaa"}})
	require.NoError(t, err)
	require.Len(t, todo, 1)
	assert.Equal(t, 2, todo[0].Version)

	todo, err = pending(migrations, nil)
	require.NoError(t, err)
	assert.Len(t, todo, 2)

	_, err = pending(migrations, []AppliedMigration{{Version: 1, Checksum: "changed"}})
	assert.ErrorContains(t, err, "0001_a.sql was modified")
}

// The ledger table must provide every column the ledger repository reads.
func TestEmbeddedMigrationsCoverLedgerRow(t *testing.T) {
	source, err := fs.Sub(embedded, "migrations")
	require.NoError(t, err)

	migrations, err := readMigrations(source, target, zerolog.Nop())
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	create := migrations[0].SQL
	assert.Contains(t, create, "`acme.finance.transactions`")

	rowType := reflect.TypeOf(infraBQ.TransactionRow{})
	for i := 0; i < rowType.NumField(); i++ {
		column := rowType.Field(i).Tag.Get("bigquery")
		assert.True(t, strings.Contains(create, column+" "), "missing column %s", column)
	}
}
