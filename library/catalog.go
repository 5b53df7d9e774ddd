package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const titleColumns = `book_id, title, author, genre, publish_date, summary, copies`

// CatalogStore reads and adjusts the system-wide title records. It is bound
// to either the database or an open ledger transaction.
type CatalogStore struct {
	q queryer
}

func scanTitle(row *sql.Row) (*Title, error) {
	var t Title
	if err := row.Scan(&t.BookID, &t.Title, &t.Author, &t.Genre, &t.PublishDate, &t.Summary, &t.Copies); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByTitle resolves an exact title.
func (s CatalogStore) GetByTitle(ctx context.Context, title string) (*Title, error) {
	t, err := scanTitle(s.q.QueryRowContext(ctx, `SELECT `+titleColumns+` FROM inventory WHERE title = ?`, title))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("title %q: %w", title, ErrNotFound)
	}
	return t, err
}

// GetByID fetches a title by book id.
func (s CatalogStore) GetByID(ctx context.Context, bookID int64) (*Title, error) {
	t, err := scanTitle(s.q.QueryRowContext(ctx, `SELECT `+titleColumns+` FROM inventory WHERE book_id = ?`, bookID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %d: %w", bookID, ErrNotFound)
	}
	return t, err
}

// AdjustCopies adds delta to a title's system-wide count. A decrement that
// would take the count below zero fails with ErrOutOfStock and changes nothing.
func (s CatalogStore) AdjustCopies(ctx context.Context, bookID int64, delta int) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE inventory SET copies = copies + ? WHERE book_id = ? AND copies + ? >= 0`,
		delta, bookID, delta)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetByID(ctx, bookID); err != nil {
		return err
	}
	return fmt.Errorf("book %d: %w", bookID, ErrOutOfStock)
}

// AddTitle inserts a catalog entry with zero copies; copies arrive through
// Ledger.Stock so the catalog and branch counts move together.
func (d *Database) AddTitle(ctx context.Context, t Title) (int64, error) {
	if strings.TrimSpace(t.Title) == "" || strings.TrimSpace(t.Author) == "" {
		return 0, fmt.Errorf("%w: title and author are required", ErrInvalidInput)
	}
	genre, err := ParseGenre(string(t.Genre))
	if err != nil {
		return 0, err
	}
	res, err := d.addTitleStmt.ExecContext(ctx, t.Title, t.Author, genre, t.PublishDate, t.Summary)
	if err != nil {
		return 0, classify(fmt.Errorf("add title %q: %w", t.Title, err))
	}
	return res.LastInsertId()
}

// Catalog returns a store bound to the database connection pool.
func (d *Database) Catalog() CatalogStore { return CatalogStore{q: d.db} }
