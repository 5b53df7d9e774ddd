package library

import (
	"context"
	"fmt"
	"strings"
)

// Read-side queries. None of them write, and none require a session.

// CatalogEntry is a title with the comma-joined names of the branches that
// stock it.
type CatalogEntry struct {
	Title
	AvailableAt string `json:"available_at"`
}

// Lending is one checkout joined with its title, branch and borrower.
type Lending struct {
	ID           int64  `json:"id" db:"id"`
	LibraryID    int64  `json:"library_id" db:"library_id"`
	Branch       string `json:"branch" db:"branch"`
	BookID       int64  `json:"book_id" db:"book_id"`
	Title        string `json:"title" db:"title"`
	Author       string `json:"author" db:"author"`
	Genre        Genre  `json:"genre" db:"genre"`
	UserID       int64  `json:"user_id" db:"user_id"`
	Borrower     string `json:"borrower" db:"borrower"`
	CheckOutDate Date   `json:"check_out_date" db:"check_out_date"`
	DueDate      *Date  `json:"due_date" db:"due_date"`
	ReturnDate   *Date  `json:"return_date" db:"return_date"`
	DaysBorrowed *int   `json:"days_borrowed" db:"days_borrowed"`
	LateFee      Fee    `json:"late_fee" db:"late_fee"`
	CopiesLeft   int    `json:"copies_left" db:"copies_left"`
}

const lendingSelect = `
	SELECT c.id, c.library_id, l.name AS branch, c.book_id, i.title, i.author, i.genre,
	       c.user_id, u.name AS borrower, c.check_out_date, c.due_date, c.return_date,
	       CAST(julianday(c.return_date) - julianday(c.check_out_date) AS INTEGER) AS days_borrowed,
	       c.late_fee, i.copies AS copies_left
	FROM checkouts c
	JOIN inventory i ON i.book_id = c.book_id
	JOIN libraries l ON l.library_id = c.library_id
	JOIN users u ON u.id = c.user_id`

// BranchInventoryLine is one title held at one branch, with the copies
// on that branch's shelf.
type BranchInventoryLine struct {
	LibraryID int64  `json:"library_id" db:"library_id"`
	Branch    string `json:"branch" db:"branch"`
	BookID    int64  `json:"book_id" db:"book_id"`
	Title     string `json:"title" db:"title"`
	Author    string `json:"author" db:"author"`
	Copies    int    `json:"copies" db:"copies"`
}

// StockDiscrepancy is a title whose catalog count disagrees with the sum of
// its branch stock.
type StockDiscrepancy struct {
	BookID        int64  `json:"book_id" db:"book_id"`
	Title         string `json:"title" db:"title"`
	CatalogCopies int    `json:"catalog_copies" db:"catalog_copies"`
	BranchCopies  int    `json:"branch_copies" db:"branch_copies"`
}

func (d *Database) selectTitles(ctx context.Context, where string, args ...any) ([]Title, error) {
	q := `SELECT ` + titleColumns + ` FROM inventory`
	if where != "" {
		q += ` WHERE ` + where
	}
	titles := []Title{}
	if err := d.x.SelectContext(ctx, &titles, q+` ORDER BY book_id`, args...); err != nil {
		return nil, err
	}
	return titles, nil
}

// ListTitles returns the whole catalog.
func (d *Database) ListTitles(ctx context.Context) ([]Title, error) {
	return d.selectTitles(ctx, "")
}

// ListByGenre returns the titles of one genre.
func (d *Database) ListByGenre(ctx context.Context, genre Genre) ([]Title, error) {
	return d.selectTitles(ctx, `genre = ?`, genre)
}

// SearchByAuthor matches the author name exactly.
func (d *Database) SearchByAuthor(ctx context.Context, author string) ([]Title, error) {
	return d.selectTitles(ctx, `author = ?`, author)
}

// SearchByTitle matches the title exactly.
func (d *Database) SearchByTitle(ctx context.Context, title string) ([]Title, error) {
	return d.selectTitles(ctx, `title = ?`, title)
}

// SearchGenreAndTerm treats term as an author within genre first. Only when
// no author matches is it tried as a title.
func (d *Database) SearchGenreAndTerm(ctx context.Context, genre Genre, term string) ([]Title, error) {
	byAuthor, err := d.selectTitles(ctx, `genre = ? AND author = ?`, genre, term)
	if err != nil || len(byAuthor) > 0 {
		return byAuthor, err
	}
	return d.selectTitles(ctx, `genre = ? AND title = ?`, genre, term)
}

// Search matches term as an author, falling back to a title match.
func (d *Database) Search(ctx context.Context, term string) ([]Title, error) {
	byAuthor, err := d.SearchByAuthor(ctx, term)
	if err != nil || len(byAuthor) > 0 {
		return byAuthor, err
	}
	return d.SearchByTitle(ctx, term)
}

// BranchesStocking joins the names of the branches holding a stock row for
// bookID, in the order those rows were created.
func (d *Database) BranchesStocking(ctx context.Context, bookID int64) (string, error) {
	var names []string
	err := d.x.SelectContext(ctx, &names, `
		SELECT l.name FROM library_stock s
		JOIN libraries l ON l.library_id = s.library_id
		WHERE s.book_id = ?
		ORDER BY s.rowid`, bookID)
	if err != nil {
		return "", err
	}
	return strings.Join(names, ", "), nil
}

// CatalogEntries decorates titles with their availability string.
func (d *Database) CatalogEntries(ctx context.Context, titles []Title) ([]CatalogEntry, error) {
	entries := make([]CatalogEntry, 0, len(titles))
	for _, t := range titles {
		at, err := d.BranchesStocking(ctx, t.BookID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, CatalogEntry{Title: t, AvailableAt: at})
	}
	return entries, nil
}

// ListBranches returns every branch.
func (d *Database) ListBranches(ctx context.Context) ([]Branch, error) {
	branches := []Branch{}
	err := d.x.SelectContext(ctx, &branches, `SELECT library_id, name FROM libraries ORDER BY library_id`)
	return branches, err
}

// BranchTotalCopies sums the copies of every title held at a branch.
func (d *Database) BranchTotalCopies(ctx context.Context, branchID int64) (int, error) {
	if _, err := d.Stock().GetBranch(ctx, branchID); err != nil {
		return 0, err
	}
	var total int
	err := d.x.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(copies), 0) FROM library_stock WHERE library_id = ?`, branchID)
	return total, err
}

// BranchInventory lists every stock row across all branches, ordered by
// branch name then title. Rows at zero copies are kept.
func (d *Database) BranchInventory(ctx context.Context) ([]BranchInventoryLine, error) {
	lines := []BranchInventoryLine{}
	err := d.x.SelectContext(ctx, &lines, `
		SELECT s.library_id, l.name AS branch, s.book_id, i.title, i.author, s.copies
		FROM library_stock s
		JOIN libraries l ON l.library_id = s.library_id
		JOIN inventory i ON i.book_id = s.book_id
		ORDER BY l.name, i.title`)
	if err != nil {
		return nil, fmt.Errorf("branch inventory: %w", err)
	}
	return lines, nil
}

func (d *Database) selectLendings(ctx context.Context, tail string, args ...any) ([]Lending, error) {
	lendings := []Lending{}
	if err := d.x.SelectContext(ctx, &lendings, lendingSelect+` `+tail, args...); err != nil {
		return nil, err
	}
	return lendings, nil
}

// UserHistory lists every checkout the user has made, open or closed.
func (d *Database) UserHistory(ctx context.Context, userID int64) ([]Lending, error) {
	return d.selectLendings(ctx, `WHERE c.user_id = ? ORDER BY c.check_out_date, i.title`, userID)
}

// BranchHistory lists every checkout made at a branch, late ones included.
func (d *Database) BranchHistory(ctx context.Context, branchID int64) ([]Lending, error) {
	return d.selectLendings(ctx, `WHERE c.library_id = ? ORDER BY c.check_out_date, i.title`, branchID)
}

// CheckedOutBooks lists all checkouts ordered by genre and author.
func (d *Database) CheckedOutBooks(ctx context.Context) ([]Lending, error) {
	return d.selectLendings(ctx, `ORDER BY i.genre, i.author, c.check_out_date`)
}

// AverageReturnDays is the mean lending duration of returned books, and how
// many returns it was computed over.
func (d *Database) AverageReturnDays(ctx context.Context) (float64, int, error) {
	var row struct {
		Avg   float64 `db:"avg_days"`
		Count int     `db:"returned"`
	}
	err := d.x.GetContext(ctx, &row, `
		SELECT COALESCE(AVG(julianday(return_date) - julianday(check_out_date)), 0) AS avg_days,
		       COUNT(*) AS returned
		FROM checkouts WHERE return_date IS NOT NULL`)
	return row.Avg, row.Count, err
}

// ListUsers returns the directory without credentials.
func (d *Database) ListUsers(ctx context.Context) ([]User, error) {
	users := []User{}
	err := d.x.SelectContext(ctx, &users,
		`SELECT id, name, username, contact_info FROM users ORDER BY id`)
	return users, err
}

// ReservationsForBook lists standing reservations of one title across branches.
func (d *Database) ReservationsForBook(ctx context.Context, bookID int64) ([]ReservationRecord, error) {
	res := []ReservationRecord{}
	err := d.x.SelectContext(ctx, &res, `
		SELECT library_id, book_id, user_id, reserved_on FROM reservations
		WHERE book_id = ? ORDER BY reserved_on, rowid`, bookID)
	return res, err
}

// ReservationsForUser lists a user's standing reservations.
func (d *Database) ReservationsForUser(ctx context.Context, userID int64) ([]ReservationRecord, error) {
	res := []ReservationRecord{}
	err := d.x.SelectContext(ctx, &res, `
		SELECT library_id, book_id, user_id, reserved_on FROM reservations
		WHERE user_id = ? ORDER BY reserved_on, rowid`, userID)
	return res, err
}

// StockDiscrepancies reports titles violating copies == Σ branch copies.
// An empty result means the inventory is consistent.
func (d *Database) StockDiscrepancies(ctx context.Context) ([]StockDiscrepancy, error) {
	out := []StockDiscrepancy{}
	err := d.x.SelectContext(ctx, &out, `
		SELECT i.book_id, i.title, i.copies AS catalog_copies,
		       COALESCE(SUM(s.copies), 0) AS branch_copies
		FROM inventory i
		LEFT JOIN library_stock s ON s.book_id = i.book_id
		GROUP BY i.book_id, i.title, i.copies
		HAVING i.copies <> COALESCE(SUM(s.copies), 0)
		ORDER BY i.book_id`)
	if err != nil {
		return nil, fmt.Errorf("audit stock: %w", err)
	}
	return out, nil
}
