package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/elee1766/threadagent/src/storage"
)

// MigrateCmd manages database migrations
type MigrateCmd struct {
	Up     MigrateUpCmd     `cmd:"" default:"1" help:"Run pending migrations"`
	Status MigrateStatusCmd `cmd:"" help:"Show migration status"`
}

// MigrateUpCmd runs pending migrations
type MigrateUpCmd struct{}

// Run executes the migrate up command
func (c *MigrateUpCmd) Run(cli *CLI) error {
	db, path, err := openDatabase(cli)
	if err != nil {
		return err
	}
	defer db.Close()

	versions, err := db.AppliedMigrations()
	if err != nil {
		return err
	}
	fmt.Printf("Database %s is at migration %d\n", path, latest(versions))
	return nil
}

// MigrateStatusCmd shows migration status
type MigrateStatusCmd struct{}

// Run executes the migrate status command
func (c *MigrateStatusCmd) Run(cli *CLI) error {
	db, path, err := openDatabase(cli)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := db.AppliedMigrations()
	if err != nil {
		return err
	}
	migrations, err := storage.Migrations()
	if err != nil {
		return err
	}

	fmt.Printf("Database: %s\n", path)
	for _, m := range migrations {
		state := "pending"
		if slices.Contains(applied, m.Version) {
			state = "applied"
		}
		fmt.Printf("  %03d %-24s %s\n", m.Version, m.Name, state)
	}
	return nil
}

// openDatabase opens the configured database; opening applies pending migrations.
func openDatabase(cli *CLI) (*storage.DB, string, error) {
	cfg, err := loadConfig(cli)
	if err != nil {
		return nil, "", err
	}
	path := cfg.Storage.DatabasePath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := storage.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, path, nil
}

func latest(versions []int) int {
	if len(versions) == 0 {
		return 0
	}
	return versions[len(versions)-1]
}
