package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// BranchStockStore reads and adjusts per-branch copy counts.
type BranchStockStore struct {
	q queryer
}

// Get returns the copies of bookID held at branchID. A title never stocked
// at the branch has no row and yields ErrNotFound.
func (s BranchStockStore) Get(ctx context.Context, branchID, bookID int64) (int, error) {
	var copies int
	err := s.q.QueryRowContext(ctx,
		`SELECT copies FROM library_stock WHERE library_id = ? AND book_id = ?`,
		branchID, bookID).Scan(&copies)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("book %d at branch %d: %w", bookID, branchID, ErrNotFound)
	}
	return copies, err
}

// Adjust adds delta to the branch count. Positive deltas create the row on
// first use; negative deltas never take the count below zero.
func (s BranchStockStore) Adjust(ctx context.Context, branchID, bookID int64, delta int) error {
	if delta > 0 {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO library_stock(library_id, book_id, copies) VALUES(?, ?, ?)
			ON CONFLICT(library_id, book_id) DO UPDATE SET copies = copies + excluded.copies`,
			branchID, bookID, delta)
		return classify(err)
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE library_stock SET copies = copies + ? WHERE library_id = ? AND book_id = ? AND copies + ? >= 0`,
		delta, branchID, bookID, delta)
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
	if _, err := s.Get(ctx, branchID, bookID); err != nil {
		return err
	}
	return fmt.Errorf("book %d at branch %d: %w", bookID, branchID, ErrOutOfStock)
}

// GetBranch fetches a branch by id.
func (s BranchStockStore) GetBranch(ctx context.Context, branchID int64) (*Branch, error) {
	var b Branch
	err := s.q.QueryRowContext(ctx, `SELECT library_id, name FROM libraries WHERE library_id = ?`, branchID).
		Scan(&b.LibraryID, &b.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("branch %d: %w", branchID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// AddBranch registers a library location.
func (d *Database) AddBranch(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: branch name is required", ErrInvalidInput)
	}
	res, err := d.addBranchStmt.ExecContext(ctx, name)
	if err != nil {
		return 0, classify(fmt.Errorf("add branch %q: %w", name, err))
	}
	return res.LastInsertId()
}

// Stock returns a branch stock store bound to the database connection pool.
func (d *Database) Stock() BranchStockStore { return BranchStockStore{q: d.db} }
