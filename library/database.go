package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

const (
	driverName          = "sqlite3"
	defaultBusyTimeout  = 5 * time.Second
	logMsgMigration     = "schema migrated"
	logAttrSchema       = "schema_version"
	logAttrPath         = "path"
	logAttrError        = "error"
	logAttrBookID       = "book_id"
	logAttrMemberID     = "member_id"
	logAttrBorrowID     = "borrow_id"
	logAttrDate         = "date"
	logAttrReason       = "reason"
	logAttrAvailability = "available"
)

// Database is the storage handle shared by the registries, the ledger and
// the reports. It owns the connection pool and the unit-of-work boundary.
type Database struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	logger  *slog.Logger

	busyTimeout time.Duration

	addBookStmt   *sqlx.Stmt
	addMemberStmt *sqlx.Stmt
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Database) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithBusyTimeout sets how long a writer waits for the file lock held by
// another writer before failing.
func WithBusyTimeout(timeout time.Duration) Option {
	return func(d *Database) {
		if timeout > 0 {
			d.busyTimeout = timeout
		}
	}
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string, opts ...Option) (*Database, error) {
	d := &Database{
		dialect:     goqu.Dialect(driverName),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		busyTimeout: defaultBusyTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}

	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// _txlock=immediate takes the write lock at BEGIN, so two ledger
	// transactions on the same copy queue behind busy_timeout instead of one
	// failing on a stale read snapshot.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=1&_txlock=immediate",
		dbPath, d.busyTimeout.Milliseconds())
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	d.db = db

	if err := d.applyMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	if err := d.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	d.logger.Debug("database opened", slog.String(logAttrPath, dbPath))
	return d, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	if d.addBookStmt != nil {
		d.addBookStmt.Close()
	}
	if d.addMemberStmt != nil {
		d.addMemberStmt.Close()
	}
	return d.db.Close()
}

// Logger returns the logger the handle was built with.
func (d *Database) Logger() *slog.Logger { return d.logger }

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		book_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		title     TEXT NOT NULL,
		author    TEXT NOT NULL,
		year      INTEGER,
		available INTEGER NOT NULL DEFAULT 1 CHECK (available IN (0, 1))
	);`,
	`CREATE TABLE IF NOT EXISTS members (
		member_id     INTEGER PRIMARY KEY AUTOINCREMENT,
		name          TEXT NOT NULL,
		phone         TEXT,
		email         TEXT UNIQUE,
		password_hash TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS borrows (
		borrow_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		book_id     INTEGER NOT NULL REFERENCES books(book_id),
		member_id   INTEGER REFERENCES members(member_id) ON DELETE SET NULL,
		borrow_date TEXT NOT NULL,
		return_date TEXT
	);`,
	// At most one open record per copy, enforced by the store as well.
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_borrows_open_book ON borrows(book_id) WHERE return_date IS NULL;`,
	`CREATE INDEX IF NOT EXISTS ix_borrows_member ON borrows(member_id);`,
	`CREATE INDEX IF NOT EXISTS ix_books_title ON books(title);`,
	`CREATE INDEX IF NOT EXISTS ix_members_phone ON members(phone);`,
}

func (d *Database) applyMigrations() error {
	// WAL lets report readers run alongside a ledger writer.
	if _, err := d.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := d.db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return fmt.Errorf("create meta: %w", err)
	}

	var current int
	err := d.db.Get(&current, `SELECT value FROM meta WHERE key='schema_version';`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	err = d.InTx(context.Background(), func(tx *sqlx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("apply migration: %w", err)
			}
		}
		_, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion)
		return err
	})
	if err != nil {
		return err
	}
	d.logger.Info(logMsgMigration, slog.Int(logAttrSchema, schemaVersion))
	return nil
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.addBookStmt, err = d.db.Preparex(`INSERT INTO books(title,author,year) VALUES(?,?,?)`); err != nil {
		return err
	}
	if d.addMemberStmt, err = d.db.Preparex(`INSERT INTO members(name,phone,email) VALUES(?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Unit of work
// ---------------------------------------------------------------------------

// InTx runs fn inside one transaction. When fn returns an error or panics,
// every write it made is rolled back before the error (or panic) leaves InTx.
func (d *Database) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Query helpers
// ---------------------------------------------------------------------------

// selectInto renders ds with bound parameters and scans every row into dest.
func (d *Database) selectInto(ctx context.Context, q sqlx.QueryerContext, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

func exists(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (bool, error) {
	var found bool
	if err := sqlx.GetContext(ctx, q, &found, query, args...); err != nil {
		return false, err
	}
	return found, nil
}

func count(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (int64, error) {
	var n int64
	if err := sqlx.GetContext(ctx, q, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// execAffected runs a write and returns how many rows it changed.
func execAffected(ctx context.Context, e sqlx.ExecerContext, query string, args ...any) (int64, error) {
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// nullIfBlank maps an absent or whitespace-only optional string to NULL.
func nullIfBlank(s *string) any {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return trimmed
}
