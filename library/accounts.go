package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AccountDirectory is the slice of the user directory the ledger needs to
// authorize operations.
type AccountDirectory interface {
	Authenticate(ctx context.Context, username, sessionToken string) (int64, error)
	ResolveUserID(ctx context.Context, username string) (int64, error)
}

// Accounts owns user records: credentials, contact details and the session
// token that authorizes ledger operations.
type Accounts struct {
	d    *Database
	cost int
}

// NewAccounts returns a directory hashing passwords at the given bcrypt cost.
// A cost outside bcrypt's range falls back to bcrypt.DefaultCost.
func NewAccounts(d *Database, cost int) *Accounts {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Accounts{d: d, cost: cost}
}

// CreateAccount registers a user and returns its id.
func (a *Accounts) CreateAccount(ctx context.Context, name, contactInfo, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	res, err := a.d.addUserStmt.ExecContext(ctx, strings.TrimSpace(name), contactInfo, username, string(hash))
	if err != nil {
		return 0, classify(fmt.Errorf("create account %q: %w", username, err))
	}
	return res.LastInsertId()
}

// Login checks the password and rotates the session token. The previous
// token stops working immediately.
func (a *Accounts) Login(ctx context.Context, username, password string) (string, error) {
	var (
		id   int64
		hash string
	)
	err := a.d.db.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE username = ?`, username).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", ErrUnauthenticated
	}

	token := uuid.NewString()
	if _, err := a.d.db.ExecContext(ctx, `UPDATE users SET session_token = ? WHERE id = ?`, token, id); err != nil {
		return "", classify(fmt.Errorf("rotate session: %w", err))
	}
	return token, nil
}

// Logout clears the session token.
func (a *Accounts) Logout(ctx context.Context, username, sessionToken string) error {
	id, err := a.Authenticate(ctx, username, sessionToken)
	if err != nil {
		return err
	}
	_, err = a.d.db.ExecContext(ctx, `UPDATE users SET session_token = NULL WHERE id = ?`, id)
	return err
}

// Authenticate resolves a username/session pair to a user id.
func (a *Accounts) Authenticate(ctx context.Context, username, sessionToken string) (int64, error) {
	return authenticate(ctx, a.d.db, username, sessionToken)
}

func authenticate(ctx context.Context, q queryer, username, sessionToken string) (int64, error) {
	if sessionToken == "" {
		return 0, ErrUnauthenticated
	}
	var id int64
	err := q.QueryRowContext(ctx,
		`SELECT id FROM users WHERE username = ? AND session_token = ?`,
		username, sessionToken).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUnauthenticated
	}
	return id, err
}

// ResolveUserID looks up a user id by username.
func (a *Accounts) ResolveUserID(ctx context.Context, username string) (int64, error) {
	var id int64
	err := a.d.db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return id, err
}

// GetUser fetches a user by id.
func (a *Accounts) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	err := a.d.x.GetContext(ctx, &u,
		`SELECT id, name, username, contact_info, password_hash, session_token FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// EditContactInfo replaces the user's contact details.
func (a *Accounts) EditContactInfo(ctx context.Context, username, sessionToken, contactInfo string) error {
	id, err := a.Authenticate(ctx, username, sessionToken)
	if err != nil {
		return err
	}
	_, err = a.d.db.ExecContext(ctx, `UPDATE users SET contact_info = ? WHERE id = ?`, contactInfo, id)
	return err
}

// DeleteAccount removes the user together with their lending history and
// reservations. It is refused while the user still holds a book, since the
// open checkout is the only record of the branch that lent it.
func (a *Accounts) DeleteAccount(ctx context.Context, username, sessionToken string) error {
	return a.d.inTx(ctx, func(tx *sql.Tx) error {
		id, err := authenticate(ctx, tx, username, sessionToken)
		if err != nil {
			return err
		}
		var open bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM checkouts WHERE user_id = ? AND return_date IS NULL)`, id).Scan(&open); err != nil {
			return err
		}
		if open {
			return fmt.Errorf("%w: user %q still has books checked out", ErrConflict, username)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		return err
	})
}
