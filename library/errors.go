package library

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// Sentinel errors returned by the ledger. Callers match them with errors.Is;
// the HTTP and CLI layers translate them into status codes and messages.
var (
	// ErrUnauthenticated means the username/session pair did not match.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound covers unknown users, titles, branches and checkouts.
	ErrNotFound = errors.New("not found")

	// ErrOverdueBlock denies a checkout while the user holds an overdue book.
	ErrOverdueBlock = errors.New("user has an overdue book")

	// ErrOutOfStock denies a checkout when the branch has no copies left.
	ErrOutOfStock = errors.New("no copies available at branch")

	// ErrStockAvailable denies a reservation while copies are still on the shelf.
	ErrStockAvailable = errors.New("copies of the book are still available")

	// ErrConflict is returned when a write loses a race or collides with a
	// unique row (duplicate username, reservation or open checkout).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput rejects malformed arguments before touching the store.
	ErrInvalidInput = errors.New("invalid input")
)

// StoreError is a driver failure mapped onto one of the sentinels. Its
// Kind is safe to show to clients; Err carries the driver's own text.
type StoreError struct {
	Kind error
	Err  error
}

func (e *StoreError) Error() string { return e.Kind.Error() + ": " + e.Err.Error() }

func (e *StoreError) Unwrap() []error { return []error{e.Kind, e.Err} }

// PublicMessage returns the text of err that is fit for an API response.
// Driver failures are reduced to their sentinel; other errors are returned
// as they are, since the ledger writes those messages itself.
func PublicMessage(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind.Error()
	}
	return err.Error()
}

// classify maps driver-level failures onto the ledger taxonomy. Errors it
// does not recognise are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var done *StoreError
	if errors.As(err, &done) {
		return err
	}
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked:
		return &StoreError{Kind: ErrConflict, Err: err}
	case se.ExtendedCode == sqlite3.ErrConstraintUnique,
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return &StoreError{Kind: ErrConflict, Err: err}
	case se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		// A referenced branch, title or user does not exist.
		return &StoreError{Kind: ErrNotFound, Err: err}
	}
	return err
}
