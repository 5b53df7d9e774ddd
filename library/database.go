package library

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// busyTimeoutMillis is how long a writer waits for the lock held by another
// transaction before the attempt is reported as a conflict.
const busyTimeoutMillis = 5000

// Database provides high-level helpers around a SQLite connection.
type Database struct {
	db *sql.DB
	x  *sqlx.DB

	addTitleStmt  *sql.Stmt
	addBranchStmt *sql.Stmt
	addUserStmt   *sql.Stmt
}

// NewDatabase opens (or creates) the SQLite database at dbPath, applies schema
// migrations, and prepares common statements.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// Immediate transactions take the write lock at BEGIN, so two checkouts
	// of the same copy serialize instead of both reading stale stock.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=1&_txlock=immediate", dbPath, busyTimeoutMillis)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	database := &Database{db: db, x: sqlx.NewDb(db, "sqlite3")}
	if err := database.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return database, nil
}

// Close releases prepared statements and closes the DB.
func (d *Database) Close() error {
	for _, stmt := range []*sql.Stmt{d.addTitleStmt, d.addBranchStmt, d.addUserStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return d.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		username TEXT NOT NULL UNIQUE,
		contact_info TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		session_token TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS libraries (
		library_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS inventory (
		book_id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL UNIQUE,
		author TEXT NOT NULL,
		genre TEXT NOT NULL CHECK (genre IN ('fiction', 'non-fiction')),
		publish_date TEXT,
		summary TEXT NOT NULL DEFAULT '',
		copies INTEGER NOT NULL DEFAULT 0 CHECK (copies >= 0)
	);`,
	`CREATE TABLE IF NOT EXISTS library_stock (
		library_id INTEGER NOT NULL REFERENCES libraries(library_id),
		book_id INTEGER NOT NULL REFERENCES inventory(book_id),
		copies INTEGER NOT NULL DEFAULT 0 CHECK (copies >= 0),
		PRIMARY KEY (library_id, book_id)
	);`,
	`CREATE TABLE IF NOT EXISTS checkouts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		library_id INTEGER NOT NULL REFERENCES libraries(library_id),
		book_id INTEGER NOT NULL REFERENCES inventory(book_id),
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		check_out_date TEXT NOT NULL,
		due_date TEXT,
		return_date TEXT,
		late_fee TEXT
	);`,
	// At most one open lending per branch, book and user. Closed lendings
	// may repeat the same day, so the surrogate id is the record identity.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_checkouts_open
		ON checkouts(library_id, book_id, user_id) WHERE return_date IS NULL;`,
	`CREATE INDEX IF NOT EXISTS idx_checkouts_user_due ON checkouts(user_id, due_date);`,
	`CREATE TABLE IF NOT EXISTS reservations (
		library_id INTEGER NOT NULL REFERENCES libraries(library_id),
		book_id INTEGER NOT NULL REFERENCES inventory(book_id),
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		reserved_on TEXT NOT NULL,
		PRIMARY KEY (library_id, book_id, user_id)
	);`,
}

func applyMigrations(db *sql.DB) error {
	// WAL lets readers proceed while a checkout holds the write lock.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Prepared statements
// ---------------------------------------------------------------------------

func (d *Database) prepareStatements() error {
	var err error
	if d.addTitleStmt, err = d.db.Prepare(`INSERT INTO inventory(title,author,genre,publish_date,summary) VALUES(?,?,?,?,?)`); err != nil {
		return err
	}
	if d.addBranchStmt, err = d.db.Prepare(`INSERT INTO libraries(name) VALUES(?)`); err != nil {
		return err
	}
	if d.addUserStmt, err = d.db.Prepare(`INSERT INTO users(name,contact_info,username,password_hash) VALUES(?,?,?,?)`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Transactions
// ---------------------------------------------------------------------------

// queryer is satisfied by both *sql.DB and *sql.Tx so store methods can run
// inside or outside a ledger transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn inside one transaction. Any error from fn, or from commit,
// rolls back every write fn made.
func (d *Database) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}
