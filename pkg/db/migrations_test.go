package db

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const migrationsTestPrefix = "db:migrations_test"

func TestEmbeddedMigrations_WidgetSchema(t *testing.T) {
	files, err := EmbeddedMigrations()
	if err != nil {
		t.Fatalf("%s - EmbeddedMigrations: %v", migrationsTestPrefix, err)
	}
	tables := []string{"widget_storage", "widget_outputs"}
	if len(files) != len(tables) {
		t.Fatalf("%s - got %d embedded migrations, want %d", migrationsTestPrefix, len(files), len(tables))
	}
	for i, table := range tables {
		if !strings.Contains(files[i], "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("%s - migration %d should create %s", migrationsTestPrefix, i+1, table)
		}
	}
}

// The dev host re-runs migrations on every start with RUN_MIGRATIONS.
func TestEmbeddedMigrations_Rerunnable(t *testing.T) {
	files, err := EmbeddedMigrations()
	if err != nil {
		t.Fatalf("%s - EmbeddedMigrations: %v", migrationsTestPrefix, err)
	}
	for i, sql := range files {
		for _, stmt := range strings.Split(sql, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if strings.HasPrefix(stmt, "CREATE") && !strings.Contains(stmt, "IF NOT EXISTS") {
				t.Errorf("%s - migration %d statement is not re-runnable: %.60s", migrationsTestPrefix, i+1, stmt)
			}
		}
	}
}

// MIGRATION_PATH pointed at the source tree must apply the same schema as
// the binary's embedded copy.
func TestLoadMigrationFiles_MatchesEmbedded(t *testing.T) {
	embedded, err := EmbeddedMigrations()
	if err != nil {
		t.Fatalf("%s - EmbeddedMigrations: %v", migrationsTestPrefix, err)
	}
	fromDir, err := LoadMigrationFiles("migrations")
	if err != nil {
		t.Fatalf("%s - LoadMigrationFiles: %v", migrationsTestPrefix, err)
	}
	if !reflect.DeepEqual(embedded, fromDir) {
		t.Errorf("%s - directory and embedded migrations differ", migrationsTestPrefix)
	}
}

func TestLoadMigrationFiles_OverrideDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0002_widget_outputs.sql": "OUTPUTS",
		"0001_widget_storage.sql": "STORAGE",
		"0003_widget_audit.sql":   "AUDIT",
		"README.md":               "# widget host schema",
		"0004_disabled.sql.orig":  "IGNORED",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("%s - write %s: %v", migrationsTestPrefix, name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "0005_archive.sql"), 0o755); err != nil {
		t.Fatalf("%s - mkdir: %v", migrationsTestPrefix, err)
	}

	got, err := LoadMigrationFiles(dir)
	if err != nil {
		t.Fatalf("%s - LoadMigrationFiles: %v", migrationsTestPrefix, err)
	}
	want := []string{"STORAGE", "OUTPUTS", "AUDIT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("%s - got %v, want %v", migrationsTestPrefix, got, want)
	}
}

func TestLoadMigrationFiles_MissingDir(t *testing.T) {
	if _, err := LoadMigrationFiles(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Errorf("%s - expected error for a missing MIGRATION_PATH", migrationsTestPrefix)
	}
}
