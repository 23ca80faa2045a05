// Command migrate applies the SQL files under migrations/ in lexical order.
// Applied file names are recorded in schema_migrations so reruns are safe.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

func main() {
	var (
		dsn     string
		dir     string
		dryRun  bool
		timeout time.Duration
	)

	flag.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "Postgres connection string")
	flag.StringVar(&dir, "dir", "migrations", "Directory holding .sql migration files")
	flag.BoolVar(&dryRun, "dry-run", false, "List pending migrations without applying them")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Per-migration statement timeout")
	flag.Parse()

	if dsn == "" {
		log.Fatal("no DSN: pass -dsn or set DATABASE_URL")
	}

	files, err := pendingFiles(dir)
	if err != nil {
		log.Fatalf("failed to read migrations: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no .sql files in %s", dir)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("failed to reach database: %v", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		log.Fatalf("failed to ensure schema_migrations: %v", err)
	}

	applied := 0
	for _, file := range files {
		name := filepath.Base(file)

		var exists bool
		if err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists); err != nil {
			log.Fatalf("failed to check %s: %v", name, err)
		}
		if exists {
			continue
		}

		if dryRun {
			fmt.Printf("pending: %s\n", name)
			continue
		}

		if err := apply(db, file, name, timeout); err != nil {
			log.Fatalf("failed to apply %s: %v", name, err)
		}
		fmt.Printf("applied: %s\n", name)
		applied++
	}

	if !dryRun {
		fmt.Printf("done, %d migration(s) applied\n", applied)
	}
}

func pendingFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func apply(db *sql.DB, file, name string, timeout time.Duration) error {
	content, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
		return err
	}
	if _, err := tx.Exec(string(content)); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return err
	}
	return tx.Commit()
}
