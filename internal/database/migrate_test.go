package database

import (
	"strings"
	"testing"
)

// 埋め込みマイグレーションの整合性を検証する。
// upとdownが必ず対になっていることを確認し、片方だけの追加を防ぐ。
func TestMigrationsFS_UpDownPairsComplete(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("failed to read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migration files found")
	}

	ups := make(map[string]bool)
	downs := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file name: %s", name)
		}
	}

	for base := range ups {
		if !downs[base] {
			t.Errorf("migration %s has no down file", base)
		}
	}
	for base := range downs {
		if !ups[base] {
			t.Errorf("migration %s has no up file", base)
		}
	}
}

func TestMigrationsFS_ContainsCoreTables(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/000001_create_users.up.sql")
	if err != nil {
		t.Fatalf("failed to read users migration: %v", err)
	}
	if !strings.Contains(string(data), "CREATE TABLE") {
		t.Error("users migration should create a table")
	}

	data, err = migrationsFS.ReadFile("migrations/000002_create_sessions.up.sql")
	if err != nil {
		t.Fatalf("failed to read sessions migration: %v", err)
	}
	if !strings.Contains(string(data), "sessions") {
		t.Error("sessions migration should reference the sessions table")
	}
}
