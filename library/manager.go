package library

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// LibraryManager is a thin façade over the Database, the account directory
// and the ledger, keeping CLI and HTTP code simple.
type LibraryManager struct {
	db       *Database
	accounts *Accounts
	ledger   *Ledger
}

// ManagerOptions tunes the collaborators built by NewLibraryManager.
type ManagerOptions struct {
	BcryptCost int
	Events     EventPublisher
	Logger     *slog.Logger
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(dbPath string, opts ManagerOptions) (*LibraryManager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	accounts := NewAccounts(db, opts.BcryptCost)
	ledger := NewLedger(db, accounts, WithEventPublisher(opts.Events), WithLogger(opts.Logger))
	return &LibraryManager{db: db, accounts: accounts, ledger: ledger}, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// ------------------ Catalog & branches ------------------

func (lm *LibraryManager) AddTitle(ctx context.Context, t Title) (int64, error) {
	return lm.db.AddTitle(ctx, t)
}

func (lm *LibraryManager) AddBranch(ctx context.Context, name string) (int64, error) {
	return lm.db.AddBranch(ctx, name)
}

func (lm *LibraryManager) Stock(ctx context.Context, branchID, bookID int64, copies int) error {
	return lm.ledger.Stock(ctx, branchID, bookID, copies)
}

func (lm *LibraryManager) GetTitle(ctx context.Context, bookID int64) (*Title, error) {
	return lm.db.Catalog().GetByID(ctx, bookID)
}

func (lm *LibraryManager) GetTitleByName(ctx context.Context, title string) (*Title, error) {
	return lm.db.Catalog().GetByTitle(ctx, title)
}

func (lm *LibraryManager) BranchCopies(ctx context.Context, branchID, bookID int64) (int, error) {
	return lm.db.Stock().Get(ctx, branchID, bookID)
}

// ------------------ Accounts ------------------

func (lm *LibraryManager) CreateAccount(ctx context.Context, name, contactInfo, username, password string) (int64, error) {
	return lm.accounts.CreateAccount(ctx, name, contactInfo, username, password)
}

func (lm *LibraryManager) Login(ctx context.Context, username, password string) (string, error) {
	return lm.accounts.Login(ctx, username, password)
}

func (lm *LibraryManager) Logout(ctx context.Context, username, token string) error {
	return lm.accounts.Logout(ctx, username, token)
}

func (lm *LibraryManager) EditContactInfo(ctx context.Context, username, token, contactInfo string) error {
	return lm.accounts.EditContactInfo(ctx, username, token, contactInfo)
}

func (lm *LibraryManager) DeleteAccount(ctx context.Context, username, token string) error {
	return lm.accounts.DeleteAccount(ctx, username, token)
}

func (lm *LibraryManager) Authenticate(ctx context.Context, username, token string) (int64, error) {
	return lm.accounts.Authenticate(ctx, username, token)
}

func (lm *LibraryManager) ResolveUserID(ctx context.Context, username string) (int64, error) {
	return lm.accounts.ResolveUserID(ctx, username)
}

func (lm *LibraryManager) GetUser(ctx context.Context, id int64) (*User, error) {
	return lm.accounts.GetUser(ctx, id)
}

func (lm *LibraryManager) ListUsers(ctx context.Context) ([]User, error) { return lm.db.ListUsers(ctx) }

// ------------------ Circulation ------------------

func (lm *LibraryManager) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutRecord, error) {
	return lm.ledger.Checkout(ctx, req)
}

func (lm *LibraryManager) Return(ctx context.Context, branchID, bookID, userID int64, date Date) (*ReturnReceipt, error) {
	return lm.ledger.Return(ctx, branchID, bookID, userID, date)
}

func (lm *LibraryManager) Reserve(ctx context.Context, branchID, bookID, userID int64, date Date) (*ReservationRecord, error) {
	return lm.ledger.Reserve(ctx, branchID, bookID, userID, date)
}

func (lm *LibraryManager) CancelReservation(ctx context.Context, branchID, bookID, userID int64) error {
	return lm.ledger.CancelReservation(ctx, branchID, bookID, userID)
}

// ------------------ Queries ------------------

func (lm *LibraryManager) ListTitles(ctx context.Context) ([]CatalogEntry, error) {
	titles, err := lm.db.ListTitles(ctx)
	return lm.withAvailability(ctx, titles, err)
}

func (lm *LibraryManager) ListByGenre(ctx context.Context, genre Genre) ([]CatalogEntry, error) {
	titles, err := lm.db.ListByGenre(ctx, genre)
	return lm.withAvailability(ctx, titles, err)
}

// Search looks term up as an author, then as a title. With a genre the
// lookup is restricted to it.
func (lm *LibraryManager) Search(ctx context.Context, genre Genre, term string) ([]CatalogEntry, error) {
	var (
		titles []Title
		err    error
	)
	if genre == "" {
		titles, err = lm.db.Search(ctx, term)
	} else {
		titles, err = lm.db.SearchGenreAndTerm(ctx, genre, term)
	}
	return lm.withAvailability(ctx, titles, err)
}

func (lm *LibraryManager) withAvailability(ctx context.Context, titles []Title, err error) ([]CatalogEntry, error) {
	if err != nil {
		return nil, err
	}
	return lm.db.CatalogEntries(ctx, titles)
}

func (lm *LibraryManager) ListBranches(ctx context.Context) ([]Branch, error) {
	return lm.db.ListBranches(ctx)
}

func (lm *LibraryManager) BranchTotalCopies(ctx context.Context, branchID int64) (int, error) {
	return lm.db.BranchTotalCopies(ctx, branchID)
}

func (lm *LibraryManager) BranchInventory(ctx context.Context) ([]BranchInventoryLine, error) {
	return lm.db.BranchInventory(ctx)
}

func (lm *LibraryManager) UserHistory(ctx context.Context, userID int64) ([]Lending, error) {
	return lm.db.UserHistory(ctx, userID)
}

func (lm *LibraryManager) BranchHistory(ctx context.Context, branchID int64) ([]Lending, error) {
	return lm.db.BranchHistory(ctx, branchID)
}

func (lm *LibraryManager) CheckedOutBooks(ctx context.Context) ([]Lending, error) {
	return lm.db.CheckedOutBooks(ctx)
}

func (lm *LibraryManager) AverageReturnDays(ctx context.Context) (float64, int, error) {
	return lm.db.AverageReturnDays(ctx)
}

func (lm *LibraryManager) ReservationsForBook(ctx context.Context, bookID int64) ([]ReservationRecord, error) {
	return lm.db.ReservationsForBook(ctx, bookID)
}

func (lm *LibraryManager) ReservationsForUser(ctx context.Context, userID int64) ([]ReservationRecord, error) {
	return lm.db.ReservationsForUser(ctx, userID)
}

func (lm *LibraryManager) StockDiscrepancies(ctx context.Context) ([]StockDiscrepancy, error) {
	return lm.db.StockDiscrepancies(ctx)
}

// ------------------ Utilities ------------------

// PrettyLending formats a lending for tables.
func PrettyLending(l Lending) string {
	returned, days, fee := "-", "-", "-"
	if l.ReturnDate != nil {
		returned = l.ReturnDate.String()
	}
	if l.DaysBorrowed != nil {
		days = strconv.Itoa(*l.DaysBorrowed)
	}
	if l.LateFee.Valid {
		fee = l.LateFee.String()
	}
	return fmt.Sprintf("%-40s %-18s %-12s %-12s %5s %8s",
		truncate(l.Title+" by "+l.Author, 40), truncate(l.Borrower, 18), l.CheckOutDate, returned, days, fee)
}

// truncate shortens s to width runes, ending in "..." when cut.
func truncate(s string, width int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
