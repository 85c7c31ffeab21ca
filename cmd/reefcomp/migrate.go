package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/banshee-data/marine-composite/internal/store"
)

func handleMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", "reefcomp.db", "Provenance database path")
	fs.Parse(args)

	if err := runMigrate(os.Stdout, *dbPath, fs.Args()); err != nil {
		if errors.Is(err, errMigrateUsage) {
			printMigrateHelp()
			os.Exit(1)
		}
		log.Fatalf("Migrate failed: %v", err)
	}
}

var errMigrateUsage = errors.New("usage")

func runMigrate(w io.Writer, dbPath string, args []string) error {
	if len(args) < 1 {
		return errMigrateUsage
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	switch args[0] {
	case "up":
		if err := db.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := db.MigrateDown(); err != nil {
			return err
		}
	case "force":
		if len(args) < 2 {
			return errMigrateUsage
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := db.MigrateForce(v); err != nil {
			return err
		}
	case "status":
	default:
		return errMigrateUsage
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	latest, err := store.LatestMigrationVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Current version: %d\n", version)
	fmt.Fprintf(w, "Latest version: %d\n", latest)
	fmt.Fprintf(w, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(w, "A migration failed mid-execution; inspect the database and run 'reefcomp migrate force <version>'.")
	}
	return nil
}

func printMigrateHelp() {
	fmt.Println(`Usage: reefcomp migrate [--db path] <action>

Actions:
  up         Apply all pending migrations
  down       Roll back the most recent migration
  status     Show the current and latest schema versions
  force N    Set the schema version to N without running migrations`)
}
