// Package migrate applies the embedded schema of the table service store.
//
// Applied migrations are recorded in tracestore_schema together with a
// checksum of their SQL, so an emulator database file created by an older
// build is upgraded in place and a migration edited after release is
// reported instead of silently skipped.
package migrate

import (
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrations embed.FS

const ledgerTable = "tracestore_schema"

// Runner applies versioned SQL migrations to a DuckDB database.
type Runner struct{ db *sql.DB }

// NewRunner creates a migration runner for the given database connection.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// Report describes the schema of a database before and after Run.
type Report struct {
	From    int
	To      int
	Applied []string
}

// Status describes the schema of a database without changing it.
type Status struct {
	Current int
	Pending []string
}

type migration struct {
	version  int
	name     string
	sql      string
	checksum string
}

// loadMigrations reads NNN_name.sql files ordered by version.
func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: read embedded migrations: %w", err)
	}

	var migs []migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		ver, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migrate: version of %s: %w", e.Name(), err)
		}
		if other, dup := seen[ver]; dup {
			return nil, fmt.Errorf("migrate: duplicate version %d: %s and %s", ver, other, e.Name())
		}
		seen[ver] = e.Name()
		data, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(data)
		migs = append(migs, migration{
			version:  ver,
			name:     e.Name(),
			sql:      string(data),
			checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(migs, func(i, j int) bool { return migs[i].version < migs[j].version })
	return migs, nil
}

func (r *Runner) bootstrap() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS ` + ledgerTable + ` (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		checksum   VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	if err != nil {
		return fmt.Errorf("migrate: bootstrap %s: %w", ledgerTable, err)
	}
	return nil
}

// applied returns the checksum of every recorded migration by version.
func (r *Runner) applied() (map[int]string, error) {
	rows, err := r.db.Query("SELECT version, checksum FROM " + ledgerTable)
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s: %w", ledgerTable, err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var v int
		var sum string
		if err := rows.Scan(&v, &sum); err != nil {
			return nil, fmt.Errorf("migrate: scan %s: %w", ledgerTable, err)
		}
		out[v] = sum
	}
	return out, rows.Err()
}

// plan checks recorded migrations against the embedded ones and returns the
// current version and the migrations still to apply.
func (r *Runner) plan() (int, []migration, error) {
	if err := r.bootstrap(); err != nil {
		return 0, nil, err
	}
	migs, err := loadMigrations()
	if err != nil {
		return 0, nil, err
	}
	done, err := r.applied()
	if err != nil {
		return 0, nil, err
	}

	current := 0
	var pending []migration
	for _, m := range migs {
		sum, ok := done[m.version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if sum != m.checksum {
			return 0, nil, fmt.Errorf("migrate: %s changed after it was applied", m.name)
		}
		current = m.version
	}
	if len(pending) > 0 && pending[0].version < current {
		return 0, nil, fmt.Errorf("migrate: %s is older than applied version %d", pending[0].name, current)
	}
	return current, pending, nil
}

// Run applies all pending migrations in order. Each migration runs in its
// own transaction together with its ledger row.
func (r *Runner) Run() (Report, error) {
	current, pending, err := r.plan()
	if err != nil {
		return Report{}, err
	}

	rep := Report{From: current, To: current}
	for _, m := range pending {
		if err := r.apply(m); err != nil {
			return rep, err
		}
		rep.To = m.version
		rep.Applied = append(rep.Applied, m.name)
	}
	return rep, nil
}

func (r *Runner) apply(m migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin %s: %w", m.name, err)
	}
	if _, err := tx.Exec(m.sql); err != nil {
		tx.Rollback()
		return fmt.Errorf("migrate: execute %s: %w", m.name, err)
	}
	if _, err := tx.Exec("INSERT INTO "+ledgerTable+" (version, name, checksum) VALUES (?, ?, ?)", m.version, m.name, m.checksum); err != nil {
		tx.Rollback()
		return fmt.Errorf("migrate: record %s: %w", m.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit %s: %w", m.name, err)
	}
	return nil
}

// Status returns the applied version and the names of pending migrations.
func (r *Runner) Status() (Status, error) {
	current, pending, err := r.plan()
	if err != nil {
		return Status{}, err
	}
	st := Status{Current: current}
	for _, m := range pending {
		st.Pending = append(st.Pending, m.name)
	}
	return st, nil
}
