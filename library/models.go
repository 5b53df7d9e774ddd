package library

import (
	"fmt"
	"strings"
)

// Genre classifies a title. Only two genres exist in the catalog.
type Genre string

const (
	GenreFiction    Genre = "fiction"
	GenreNonFiction Genre = "non-fiction"
)

// ParseGenre accepts "fiction" and "non-fiction" in any case.
func ParseGenre(s string) (Genre, error) {
	switch g := Genre(strings.ToLower(strings.TrimSpace(s))); g {
	case GenreFiction, GenreNonFiction:
		return g, nil
	}
	return "", fmt.Errorf("%w: unknown genre %q", ErrInvalidInput, s)
}

// User is an account in the directory. The session token is rotated on
// every successful login and cleared on logout.
type User struct {
	ID           int64   `json:"id" db:"id"`
	Name         string  `json:"name" db:"name"`
	Username     string  `json:"username" db:"username"`
	ContactInfo  string  `json:"contact_info" db:"contact_info"`
	PasswordHash string  `json:"-" db:"password_hash"`
	SessionToken *string `json:"-" db:"session_token"`
}

// Title is a catalog entry. Copies is the system-wide count and always
// equals the sum of the title's branch stock.
type Title struct {
	BookID      int64  `json:"book_id" db:"book_id"`
	Title       string `json:"title" db:"title"`
	Author      string `json:"author" db:"author"`
	Genre       Genre  `json:"genre" db:"genre"`
	PublishDate *Date  `json:"publish_date,omitempty" db:"publish_date"`
	Summary     string `json:"summary" db:"summary"`
	Copies      int    `json:"copies" db:"copies"`
}

// Branch is a library location.
type Branch struct {
	LibraryID int64  `json:"library_id" db:"library_id"`
	Name      string `json:"name" db:"name"`
}

// BranchStock is the number of copies of one title held at one branch.
type BranchStock struct {
	LibraryID int64 `json:"library_id" db:"library_id"`
	BookID    int64 `json:"book_id" db:"book_id"`
	Copies    int   `json:"copies" db:"copies"`
}

// CheckoutRecord is one lending. It is open while ReturnDate is nil; DueDate
// is cleared when the book comes back.
type CheckoutRecord struct {
	ID           int64 `json:"id" db:"id"`
	LibraryID    int64 `json:"library_id" db:"library_id"`
	BookID       int64 `json:"book_id" db:"book_id"`
	UserID       int64 `json:"user_id" db:"user_id"`
	CheckOutDate Date  `json:"check_out_date" db:"check_out_date"`
	DueDate      *Date `json:"due_date" db:"due_date"`
	ReturnDate   *Date `json:"return_date" db:"return_date"`
	LateFee      Fee   `json:"late_fee" db:"late_fee"`
}

// Open reports whether the book is still out.
func (c *CheckoutRecord) Open() bool { return c.ReturnDate == nil }

// ReservationRecord is a standing request for a title at a branch that had
// no copies when it was made.
type ReservationRecord struct {
	LibraryID  int64 `json:"library_id" db:"library_id"`
	BookID     int64 `json:"book_id" db:"book_id"`
	UserID     int64 `json:"user_id" db:"user_id"`
	ReservedOn Date  `json:"reserved_on" db:"reserved_on"`
}
