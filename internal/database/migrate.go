package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// usersとsessionsのスキーマ。OTPチャレンジはRedis側のTTLで管理するため
// マイグレーション対象のテーブルを持たない。
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations は埋め込みSQLマイグレーションを最新まで適用する。
// すでに最新の場合は何もせずに正常終了し、適用後のスキーマバージョンをログに残す。
func RunMigrations(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema is dirty at version %d, manual repair required", version)
	}

	if errors.Is(upErr, migrate.ErrNoChange) {
		slog.Info("schema already up to date", slog.Uint64("version", uint64(version)))
	} else {
		slog.Info("migrations applied", slog.Uint64("version", uint64(version)))
	}
	return nil
}
