package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	smshook "github.com/goliatone/go-smshook"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}
	if !postgresFound || !sqliteFound {
		t.Fatalf("expected postgres and sqlite filesystems, got %+v", filesystems)
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	reg, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected a single sqlite registration, got %v", calls)
	}
	if reg.SourceLabel != "go-smshook" {
		t.Fatalf("unexpected source label %q", reg.SourceLabel)
	}
}

func TestRegister_PropagatesRegisterErrors(t *testing.T) {
	_, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return fmt.Errorf("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected register error, got %v", err)
	}

	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected nil register function to fail")
	}
}

func TestDialectFor(t *testing.T) {
	cases := map[string]string{
		"postgres": DialectPostgres,
		"pgx":      DialectPostgres,
		" PGX ":    DialectPostgres,
		"sqlite3":  DialectSQLite,
		"":         DialectSQLite,
	}
	for driver, want := range cases {
		if got := DialectFor(driver); got != want {
			t.Fatalf("driver %q: expected %q, got %q", driver, want, got)
		}
	}
}

func TestSchemaMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := smshook.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_smshook_schema.up.sql",
		"data/sql/migrations/00001_smshook_schema.down.sql",
		"data/sql/migrations/sqlite/00001_smshook_schema.up.sql",
		"data/sql/migrations/sqlite/00001_smshook_schema.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteSchemaMigration_EnforcesPartUniqueness(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:migrations-schema-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	sqliteMigrations, err := fs.Sub(smshook.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_smshook_schema.up.sql"); err != nil {
		t.Fatalf("apply schema up: %v", err)
	}

	insert := `
		INSERT INTO sms_message_parts (
			id, fragment_ref, fragment_index, fragment_total, message_id,
			sender, recipient, kind, provider_timestamp, received_timestamp
		) VALUES (?, ?, ?, ?, ?, '447700900419', '447700900996', 'text', '2018-04-24 14:05:19', '2018-04-24 14:05:19')
	`
	if _, err := db.ExecContext(ctx, insert, "p1", "78", 1, 9, "0B000000D0EBB58D"); err != nil {
		t.Fatalf("insert first part: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "p2", "78", 1, 9, "0B000000D0EBB58E"); err == nil {
		t.Fatalf("expected (fragment_ref, fragment_index) uniqueness violation")
	}
	if _, err := db.ExecContext(ctx, insert, "p3", "79", 1, 2, "0B000000D0EBB58D"); err == nil {
		t.Fatalf("expected message_id uniqueness violation")
	}
	if _, err := db.ExecContext(ctx, insert, "p4", "78", 0, 9, "0B000000D0EBB58F"); err == nil {
		t.Fatalf("expected fragment_index check violation")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_smshook_schema.down.sql"); err != nil {
		t.Fatalf("apply schema down: %v", err)
	}
	var tableName string
	err = db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"sms_message_parts",
	).Scan(&tableName)
	if err != sql.ErrNoRows {
		t.Fatalf("expected sms_message_parts to be dropped, got %q (%v)", tableName, err)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
