package main

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var embedded embed.FS

// migrationPattern matches 0001_name.sql.
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// Target names where migrations are applied. Its fields replace the
// {{PROJECT_ID}}, {{DATASET_ID}} and {{LEDGER_TABLE}} placeholders.
type Target struct {
	Project string
	Dataset string
	Table   string
}

func (t Target) expand(sql string) string {
	return strings.NewReplacer(
		"{{PROJECT_ID}}", t.Project,
		"{{DATASET_ID}}", t.Dataset,
		"{{LEDGER_TABLE}}", t.Table,
	).Replace(sql)
}

// readMigrations loads every migration file at the root of fsys, sorted by version.
// Files that do not match the naming pattern are skipped.
func readMigrations(fsys fs.FS, target Target, log zerolog.Logger) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("readMigrations: read directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := migrationPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			log.Warn().Str("file", entry.Name()).Msg("Skipping file with invalid name")
			continue
		}
		version, _ := strconv.Atoi(matches[1])
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("readMigrations: version %04d used by %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("readMigrations: read %s: %w", entry.Name(), err)
		}

		// Checksum the file before placeholders are expanded so it does not
		// depend on the target.
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: entry.Name(),
			SQL:      target.expand(string(content)),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// pending returns the migrations not yet applied. A changed checksum on an applied
// migration is an error.
func pending(migrations []Migration, applied []AppliedMigration) ([]Migration, error) {
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	var out []Migration
	for _, m := range migrations {
		am, ok := byVersion[m.Version]
		if !ok {
			out = append(out, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			return nil, fmt.Errorf("pending: %s was modified after it was applied", m.Filename)
		}
	}
	return out, nil
}
