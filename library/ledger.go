package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// LoanPeriodDays is the fixed lending period. The due date of every
// checkout is exactly this many calendar days after the checkout date.
const LoanPeriodDays = 14

// EventKind names a committed ledger transition.
type EventKind string

const (
	EventCheckedOut EventKind = "checked_out"
	EventReturned   EventKind = "returned"
	EventReserved   EventKind = "reserved"
	EventStocked    EventKind = "stocked"
)

// LedgerEvent describes a committed transition for downstream consumers.
type LedgerEvent struct {
	Kind      EventKind `json:"kind"`
	LibraryID int64     `json:"library_id"`
	BookID    int64     `json:"book_id"`
	UserID    int64     `json:"user_id,omitempty"`
	Date      Date      `json:"date"`
	DueDate   *Date     `json:"due_date,omitempty"`
	DaysLate  int       `json:"days_late,omitempty"`
	LateFee   string    `json:"late_fee,omitempty"`
	Copies    int       `json:"copies,omitempty"`
}

// EventPublisher receives ledger events after their transaction commits.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev LedgerEvent) error
}

type nopPublisher struct{}

func (nopPublisher) PublishLedgerEvent(context.Context, LedgerEvent) error { return nil }

// Ledger enforces the lending rules and is the only writer of copy counts,
// checkouts and reservations.
type Ledger struct {
	d        *Database
	accounts AccountDirectory
	events   EventPublisher
	log      *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithEventPublisher routes committed transitions to p.
func WithEventPublisher(p EventPublisher) LedgerOption {
	return func(l *Ledger) {
		if p != nil {
			l.events = p
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLedger builds a ledger over d that authorizes checkouts through accounts.
func NewLedger(d *Database, accounts AccountDirectory, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		d:        d,
		accounts: accounts,
		events:   nopPublisher{},
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckoutRequest identifies who borrows which title where and when.
type CheckoutRequest struct {
	BranchID     int64
	Title        string
	Username     string
	SessionToken string
	Date         Date
}

// Checkout lends one copy of a title from a branch.
//
// The caller is authenticated first, then the title is resolved and the
// user's open checkouts are scanned: any whose due date is before the
// checkout date blocks the request regardless of book or branch. Only then
// are the branch and catalog counts decremented and the record inserted,
// all in one transaction. A branch with no copies fails with ErrOutOfStock
// and nothing is written.
func (l *Ledger) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutRecord, error) {
	if req.Date.IsZero() {
		return nil, fmt.Errorf("%w: checkout date is required", ErrInvalidInput)
	}
	userID, err := l.accounts.Authenticate(ctx, req.Username, req.SessionToken)
	if err != nil {
		return nil, err
	}

	var rec *CheckoutRecord
	err = l.d.inTx(ctx, func(tx *sql.Tx) error {
		catalog, stock := CatalogStore{q: tx}, BranchStockStore{q: tx}

		title, err := catalog.GetByTitle(ctx, req.Title)
		if err != nil {
			return err
		}

		var overdue bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM checkouts
			WHERE user_id = ? AND due_date IS NOT NULL AND due_date < ?)`,
			userID, req.Date).Scan(&overdue); err != nil {
			return err
		}
		if overdue {
			return fmt.Errorf("checkout of %q: %w", req.Title, ErrOverdueBlock)
		}

		if _, err := stock.GetBranch(ctx, req.BranchID); err != nil {
			return err
		}
		if err := stock.Adjust(ctx, req.BranchID, title.BookID, -1); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%q at branch %d: %w", req.Title, req.BranchID, ErrOutOfStock)
			}
			return err
		}
		if err := catalog.AdjustCopies(ctx, title.BookID, -1); err != nil {
			return err
		}

		due := req.Date.AddDays(LoanPeriodDays)
		res, err := tx.ExecContext(ctx, `
			INSERT INTO checkouts(library_id, book_id, user_id, check_out_date, due_date)
			VALUES(?, ?, ?, ?, ?)`,
			req.BranchID, title.BookID, userID, req.Date, due)
		if err != nil {
			return fmt.Errorf("record checkout: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		rec = &CheckoutRecord{
			ID:           id,
			LibraryID:    req.BranchID,
			BookID:       title.BookID,
			UserID:       userID,
			CheckOutDate: req.Date,
			DueDate:      &due,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.InfoContext(ctx, "checkout committed",
		"checkout_id", rec.ID, "library_id", rec.LibraryID, "book_id", rec.BookID,
		"user_id", rec.UserID, "due_date", rec.DueDate.String())
	l.publish(ctx, LedgerEvent{
		Kind: EventCheckedOut, LibraryID: rec.LibraryID, BookID: rec.BookID,
		UserID: rec.UserID, Date: rec.CheckOutDate, DueDate: rec.DueDate,
	})
	return rec, nil
}

// ReturnReceipt is the closed checkout plus how late it came back.
type ReturnReceipt struct {
	CheckoutRecord
	DaysLate int `json:"days_late"`
}

// Return closes the user's open checkout of bookID at branchID. The book
// must come back to the branch that lent it; any other branch has no open
// record and the call fails with ErrNotFound. Returning twice fails the
// same way.
func (l *Ledger) Return(ctx context.Context, branchID, bookID, userID int64, date Date) (*ReturnReceipt, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: return date is required", ErrInvalidInput)
	}

	var receipt ReturnReceipt
	err := l.d.inTx(ctx, func(tx *sql.Tx) error {
		rec := &receipt.CheckoutRecord
		err := tx.QueryRowContext(ctx, `
			SELECT id, library_id, book_id, user_id, check_out_date, due_date
			FROM checkouts
			WHERE library_id = ? AND book_id = ? AND user_id = ? AND return_date IS NULL`,
			branchID, bookID, userID).
			Scan(&rec.ID, &rec.LibraryID, &rec.BookID, &rec.UserID, &rec.CheckOutDate, &rec.DueDate)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("open checkout of book %d at branch %d for user %d: %w", bookID, branchID, userID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if date.Before(rec.CheckOutDate) {
			return fmt.Errorf("%w: return date %s precedes checkout date %s", ErrInvalidInput, date, rec.CheckOutDate)
		}

		if err := (BranchStockStore{q: tx}).Adjust(ctx, branchID, bookID, 1); err != nil {
			return err
		}
		if err := (CatalogStore{q: tx}).AdjustCopies(ctx, bookID, 1); err != nil {
			return err
		}

		due := rec.CheckOutDate.AddDays(LoanPeriodDays)
		if rec.DueDate != nil {
			due = *rec.DueDate
		}
		daysLate, fee := ComputeLateFee(due, date)

		if _, err := tx.ExecContext(ctx, `
			UPDATE checkouts SET return_date = ?, due_date = NULL, late_fee = ?
			WHERE id = ?`,
			date, fee.StringFixed(2), rec.ID); err != nil {
			return fmt.Errorf("close checkout %d: %w", rec.ID, err)
		}

		returned := date
		rec.ReturnDate = &returned
		rec.DueDate = nil
		rec.LateFee = NewFee(fee)
		receipt.DaysLate = daysLate
		return nil
	})
	if err != nil {
		return nil, err
	}

	fee := receipt.LateFee.String()
	l.log.InfoContext(ctx, "return committed",
		"checkout_id", receipt.ID, "library_id", branchID, "book_id", bookID,
		"user_id", userID, "days_late", receipt.DaysLate, "late_fee", fee)
	l.publish(ctx, LedgerEvent{
		Kind: EventReturned, LibraryID: branchID, BookID: bookID, UserID: userID,
		Date: date, DaysLate: receipt.DaysLate, LateFee: fee,
	})
	return &receipt, nil
}

// Reserve records a standing request for bookID at branchID. It is only
// accepted while the branch holds exactly zero copies; otherwise the caller
// should check the book out instead. Nothing fulfils or expires the
// reservation.
func (l *Ledger) Reserve(ctx context.Context, branchID, bookID, userID int64, date Date) (*ReservationRecord, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: reservation date is required", ErrInvalidInput)
	}

	rec := &ReservationRecord{LibraryID: branchID, BookID: bookID, UserID: userID, ReservedOn: date}
	err := l.d.inTx(ctx, func(tx *sql.Tx) error {
		copies, err := BranchStockStore{q: tx}.Get(ctx, branchID, bookID)
		if err != nil {
			return err
		}
		if copies > 0 {
			return fmt.Errorf("reserve book %d at branch %d (%d on shelf): %w", bookID, branchID, copies, ErrStockAvailable)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reservations(library_id, book_id, user_id, reserved_on) VALUES(?, ?, ?, ?)`,
			branchID, bookID, userID, date); err != nil {
			return fmt.Errorf("record reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.log.InfoContext(ctx, "reservation committed", "library_id", branchID, "book_id", bookID, "user_id", userID)
	l.publish(ctx, LedgerEvent{Kind: EventReserved, LibraryID: branchID, BookID: bookID, UserID: userID, Date: date})
	return rec, nil
}

// CancelReservation removes a standing reservation.
func (l *Ledger) CancelReservation(ctx context.Context, branchID, bookID, userID int64) error {
	res, err := l.d.db.ExecContext(ctx,
		`DELETE FROM reservations WHERE library_id = ? AND book_id = ? AND user_id = ?`,
		branchID, bookID, userID)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("reservation of book %d at branch %d for user %d: %w", bookID, branchID, userID, ErrNotFound)
	}
	return nil
}

// Stock adds copies of a title to a branch and to the catalog total in one
// transaction.
func (l *Ledger) Stock(ctx context.Context, branchID, bookID int64, copies int) error {
	if copies <= 0 {
		return fmt.Errorf("%w: copies must be positive, got %d", ErrInvalidInput, copies)
	}
	err := l.d.inTx(ctx, func(tx *sql.Tx) error {
		stock := BranchStockStore{q: tx}
		if _, err := stock.GetBranch(ctx, branchID); err != nil {
			return err
		}
		if err := (CatalogStore{q: tx}).AdjustCopies(ctx, bookID, copies); err != nil {
			return err
		}
		return stock.Adjust(ctx, branchID, bookID, copies)
	})
	if err != nil {
		return err
	}
	l.log.InfoContext(ctx, "stock added", "library_id", branchID, "book_id", bookID, "copies", copies)
	l.publish(ctx, LedgerEvent{Kind: EventStocked, LibraryID: branchID, BookID: bookID, Date: Today(), Copies: copies})
	return nil
}

// publish hands ev to the publisher. The transition has already committed,
// so a failure is only logged.
func (l *Ledger) publish(ctx context.Context, ev LedgerEvent) {
	if err := l.events.PublishLedgerEvent(ctx, ev); err != nil {
		l.log.WarnContext(ctx, "publish ledger event", "kind", ev.Kind, "error", err)
	}
}
