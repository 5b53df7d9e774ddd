package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)

	id, err := f.accounts.CreateAccount(f.ctx, "Ada Lovelace", "ada@example.com", "ada", "engine")
	require.NoError(t, err)

	u, err := f.accounts.GetUser(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", u.Name)
	assert.Equal(t, "ada@example.com", u.ContactInfo)
	assert.NotEqual(t, "engine", u.PasswordHash, "password must be stored hashed")
	assert.Nil(t, u.SessionToken)

	_, err = f.accounts.CreateAccount(f.ctx, "Other Ada", "", "ada", "x")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.accounts.CreateAccount(f.ctx, "Nobody", "", " ", "x")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.accounts.GetUser(f.ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoginRotatesSession(t *testing.T) {
	f := newFixture(t)
	id, first := f.user("ben")

	got, err := f.accounts.Authenticate(f.ctx, "ben", first)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	second, err := f.accounts.Login(f.ctx, "ben", "secret")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = f.accounts.Authenticate(f.ctx, "ben", first)
	assert.ErrorIs(t, err, ErrUnauthenticated, "old token must stop working")

	_, err = f.accounts.Login(f.ctx, "ben", "wrong")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = f.accounts.Login(f.ctx, "nobody", "secret")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// A failed login leaves the current session alone.
	_, err = f.accounts.Authenticate(f.ctx, "ben", second)
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	_, token := f.user("cleo")

	assert.ErrorIs(t, f.accounts.Logout(f.ctx, "cleo", "bogus"), ErrUnauthenticated)
	require.NoError(t, f.accounts.Logout(f.ctx, "cleo", token))

	_, err := f.accounts.Authenticate(f.ctx, "cleo", token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, f.accounts.Logout(f.ctx, "cleo", token), ErrUnauthenticated)
}

func TestEditContactInfo(t *testing.T) {
	f := newFixture(t)
	id, token := f.user("dina")

	assert.ErrorIs(t, f.accounts.EditContactInfo(f.ctx, "dina", "bogus", "x"), ErrUnauthenticated)
	require.NoError(t, f.accounts.EditContactInfo(f.ctx, "dina", token, "585-555-0100"))

	u, err := f.accounts.GetUser(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "585-555-0100", u.ContactInfo)
}

func TestResolveUserID(t *testing.T) {
	f := newFixture(t)
	id, _ := f.user("eli")

	got, err := f.accounts.ResolveUserID(f.ctx, "eli")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = f.accounts.ResolveUserID(f.ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	branch := f.branch("Penfield")
	book := f.title("Circe", "Madeline Miller", GenreFiction)
	f.stock(branch, book, 1)
	userID, token := f.user("finn")
	otherID, otherToken := f.user("gwen")

	_, err := f.checkout(branch, "Circe", "finn", token, "2024-01-01")
	require.NoError(t, err)
	_, err = f.ledger.Reserve(f.ctx, branch, book, otherID, MustParseDate("2024-01-02"))
	require.NoError(t, err)

	assert.ErrorIs(t, f.accounts.DeleteAccount(f.ctx, "finn", "bogus"), ErrUnauthenticated)
	assert.ErrorIs(t, f.accounts.DeleteAccount(f.ctx, "finn", token), ErrConflict, "open checkout blocks deletion")

	_, err = f.ledger.Return(f.ctx, branch, book, userID, MustParseDate("2024-01-05"))
	require.NoError(t, err)
	require.NoError(t, f.accounts.DeleteAccount(f.ctx, "finn", token))

	_, err = f.accounts.GetUser(f.ctx, userID)
	assert.ErrorIs(t, err, ErrNotFound)
	history, err := f.db.UserHistory(f.ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, f.accounts.DeleteAccount(f.ctx, "gwen", otherToken))
	reservations, err := f.db.ReservationsForBook(f.ctx, book)
	require.NoError(t, err)
	assert.Empty(t, reservations)

	f.requireConsistent()
}

func TestListUsersHidesCredentials(t *testing.T) {
	f := newFixture(t)
	f.user("hal")
	f.user("iris")

	users, err := f.db.ListUsers(f.ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "hal", users[0].Username)
	assert.Equal(t, "iris", users[1].Username)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
		assert.Nil(t, u.SessionToken)
	}
}
