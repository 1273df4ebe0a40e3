package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ledger/internal/core"
)

// Dialect selects the SQL flavour of a repository.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// SQLRepository implements Store over database/sql.
//
// On SQLite every unit of work begins IMMEDIATE, so writers are serialized
// by the database write lock. On Postgres the rows a unit of work touches
// are locked with SELECT ... FOR UPDATE.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	queries
}

// NewSQLiteRepository opens (creating if needed) the SQLite database at
// dbPath and applies pending migrations.
func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(SQLite, sqliteDSN(dbPath)); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newSQLRepository(db, SQLite), nil
}

// NewPostgresRepository connects to dsn and applies pending migrations.
func NewPostgresRepository(dsn string) (*SQLRepository, error) {
	if err := RunMigrations(Postgres, dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newSQLRepository(db, Postgres), nil
}

func newSQLRepository(db *sql.DB, d Dialect) *SQLRepository {
	return &SQLRepository{
		db:      db,
		dialect: d,
		queries: queries{q: db, dialect: d},
	}
}

// sqliteDSN enables foreign keys, a busy timeout so concurrent writers wait
// for the lock instead of failing, and IMMEDIATE transactions.
func sqliteDSN(path string) string {
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	const op = "storage.sql.WithinTx"

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Internal("begin unit of work", fmt.Errorf("%s: %w", op, err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
			}
		}
	}()

	if err = fn(&sqlTxQueries{queries{q: sqlTx, dialect: r.dialect, lock: true}}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return core.Internal("commit unit of work", fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries runs the ledger statements against a *sql.DB or a *sql.Tx.
// Statements are written with ? placeholders and rebound per dialect.
type queries struct {
	q       querier
	dialect Dialect
	lock    bool
}

type sqlTxQueries struct {
	queries
}

func (q queries) rebind(query string) string {
	if q.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (q queries) forUpdate(query string) string {
	if q.lock && q.dialect == Postgres {
		return query + " FOR UPDATE"
	}
	return query
}

func (q queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.q.ExecContext(ctx, q.rebind(query), args...)
}

func (q queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.q.QueryContext(ctx, q.rebind(query), args...)
}

func (q queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.q.QueryRowContext(ctx, q.rebind(query), args...)
}

// isForeignKeyViolation recognizes the constraint error of either driver.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}

// expectOne turns a zero-row write into NotFound.
func expectOne(res sql.Result, op string, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return core.ID(n.Int64)
}

func sortedUnique(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	slices.Sort(out)
	return slices.Compact(out)
}

var (
	_ Store = (*SQLRepository)(nil)
	_ Tx    = (*sqlTxQueries)(nil)
)
