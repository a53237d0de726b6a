package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

const ledgerTable = "schema_history"

// Runner applies versioned SQL migrations and idempotent seed files from an
// fs.FS. Applied files are recorded in a single ledger table keyed by kind.
type Runner struct {
	db            *sql.DB
	fsys          fs.FS
	migrationsDir string
	seedsDir      string
}

// NewRunner constructs a Runner over fsys. Directories may be empty when the
// corresponding file kind is absent.
func NewRunner(db *sql.DB, fsys fs.FS, migrationsDir, seedsDir string) *Runner {
	return &Runner{db: db, fsys: fsys, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Up applies every pending .up.sql migration in lexical order.
func (r *Runner) Up(ctx context.Context) error {
	return r.applyPending(ctx, "migration", r.migrationsDir, ".up.sql")
}

// Seed applies every pending seed file. Seeds run once and are expected to be
// written idempotently anyway.
func (r *Runner) Seed(ctx context.Context) error {
	return r.applyPending(ctx, "seed", r.seedsDir, ".sql")
}

// Down rolls back the most recently applied migration using its .down.sql
// counterpart.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureLedger(ctx); err != nil {
		return err
	}
	applied, err := r.Status(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return errors.New("no migrations applied")
	}
	last := applied[len(applied)-1]
	downName := strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	if err := r.execFile(ctx, r.migrationsDir+"/"+downName); err != nil {
		return fmt.Errorf("rollback %s: %w", last, err)
	}
	_, err = r.db.ExecContext(ctx,
		`delete from `+ledgerTable+` where kind = 'migration' and name = $1`, last)
	return err
}

// Status returns applied migration names in apply order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`select name from `+ledgerTable+` where kind = 'migration' order by applied_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *Runner) applyPending(ctx context.Context, kind, dir, suffix string) error {
	if dir == "" {
		return nil
	}
	if err := r.ensureLedger(ctx); err != nil {
		return err
	}
	applied, err := r.appliedSet(ctx, kind)
	if err != nil {
		return err
	}
	names, err := listSQL(r.fsys, dir, suffix)
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := r.execFile(ctx, dir+"/"+name); err != nil {
			return fmt.Errorf("apply %s %s: %w", kind, name, err)
		}
		if _, err := r.db.ExecContext(ctx,
			`insert into `+ledgerTable+` (kind, name, applied_at) values ($1, $2, $3)`,
			kind, name, time.Now().UTC()); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		create table if not exists `+ledgerTable+` (
			kind text not null,
			name text not null,
			applied_at timestamptz not null default now(),
			primary key (kind, name)
		)`)
	return err
}

func (r *Runner) appliedSet(ctx context.Context, kind string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`select name from `+ledgerTable+` where kind = $1`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		set[name] = true
	}
	return set, rows.Err()
}

// execFile runs every statement of one SQL file inside a single transaction.
func (r *Runner) execFile(ctx context.Context, path string) error {
	raw, err := fs.ReadFile(r.fsys, path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func listSQL(fsys fs.FS, dir, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements splits on semicolons outside single-quoted strings. Good
// enough for the DDL and seed files shipped with this repo.
func splitStatements(src string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	for _, r := range src {
		switch r {
		case '\'':
			inString = !inString
		case ';':
			if !inString {
				if s := strings.TrimSpace(current.String()); s != "" {
					stmts = append(stmts, s)
				}
				current.Reset()
				continue
			}
		}
		current.WriteRune(r)
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
