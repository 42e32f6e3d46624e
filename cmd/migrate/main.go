package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"fairplay/internal/config"
	"fairplay/internal/database"
	"fairplay/internal/logging"
)

const CREATE_DIR = "internal/database/migrations"

var versionPrefix = regexp.MustCompile(`^(\d+)_`)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logging.Init(cfg.Log)

	command := os.Args[1]
	if command == "create" {
		if len(os.Args) < 3 {
			log.Fatal().Msg("usage: migrate create <migration_name>")
		}
		dir := cfg.Database.MigrationsPath
		if dir == "" {
			dir = CREATE_DIR
		}
		createMigration(dir, os.Args[2])
		return
	}

	if !cfg.Database.Enabled() {
		log.Fatal().Msg("DB_HOST is required")
	}
	svc, err := database.New(context.Background(), cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database failed")
	}
	defer svc.Close()
	path := cfg.Database.MigrationsPath

	switch command {
	case "up":
		if err := database.RunMigrations(svc.DB(), path); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}

	case "down":
		if err := database.RollbackMigration(svc.DB(), path); err != nil {
			log.Fatal().Err(err).Msg("rollback failed")
		}
		log.Info().Str("component", "migrate").Msg("rolled back last migration")

	case "version":
		version, dirty, err := database.GetMigrationVersion(svc.DB(), path)
		if err != nil {
			log.Fatal().Err(err).Msg("read version failed")
		}
		ev := log.Info()
		if dirty {
			ev = log.Warn()
		}
		ev.Str("component", "migrate").Uint("version", version).Bool("dirty", dirty).Msg("current version")

	default:
		log.Error().Str("command", command).Msg("unknown command")
		printUsage()
		os.Exit(1)
	}
}

// createMigration writes an empty up/down pair numbered after the highest
// version already in dir.
func createMigration(dir, name string) {
	files, err := os.ReadDir(dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("read migrations directory failed")
	}
	next := 1
	for _, f := range files {
		m := versionPrefix.FindStringSubmatch(f.Name())
		if m == nil {
			continue
		}
		if v, err := strconv.Atoi(m[1]); err == nil && v >= next {
			next = v + 1
		}
	}

	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	upFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.up.sql", next, name))
	downFile := filepath.Join(dir, fmt.Sprintf("%06d_%s.down.sql", next, name))

	upContent := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n", name, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(upFile, []byte(upContent), 0o644); err != nil {
		log.Fatal().Err(err).Msg("create up migration failed")
	}
	downContent := fmt.Sprintf("-- Rollback: %s\n\n", name)
	if err := os.WriteFile(downFile, []byte(downContent), 0o644); err != nil {
		log.Fatal().Err(err).Msg("create down migration failed")
	}
	log.Info().Str("component", "migrate").Str("up", upFile).Str("down", downFile).Msg("created migration files")
}

func printUsage() {
	fmt.Println("Database Migration Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate up              Run all pending migrations")
	fmt.Println("  migrate down            Rollback the last migration")
	fmt.Println("  migrate version         Show current migration version")
	fmt.Println("  migrate create <name>   Create a new migration file")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DB_HOST                 Database host (required)")
	fmt.Println("  DB_PORT                 Database port (default: 5432)")
	fmt.Println("  DB_DATABASE             Database name (default: fairplay)")
	fmt.Println("  DB_USERNAME             Database user (default: postgres)")
	fmt.Println("  DB_PASSWORD             Database password (default: postgres)")
	fmt.Println("  DB_SCHEMA               Search path schema (default: public)")
	fmt.Println("  MIGRATIONS_PATH         Migrations directory (default: compiled-in)")
}
