package library

import (
	"context"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newManager(t *testing.T) *LibraryManager {
	t.Helper()
	mgr, err := NewLibraryManager(filepath.Join(t.TempDir(), "lib.db"), ManagerOptions{BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestManagerLendingFlow(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)

	branch, err := mgr.AddBranch(ctx, "Penfield")
	require.NoError(t, err)
	book, err := mgr.AddTitle(ctx, Title{Title: "The Hobbit", Author: "J.R.R. Tolkien", Genre: GenreFiction})
	require.NoError(t, err)
	require.NoError(t, mgr.Stock(ctx, branch, book, 2))
	userID, err := mgr.CreateAccount(ctx, "Quinn", "quinn@example.com", "quinn", "pw")
	require.NoError(t, err)
	token, err := mgr.Login(ctx, "quinn", "pw")
	require.NoError(t, err)

	rec, err := mgr.Checkout(ctx, CheckoutRequest{
		BranchID: branch, Title: "The Hobbit", Username: "quinn", SessionToken: token, Date: MustParseDate("2024-07-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, userID, rec.UserID)
	n, err := mgr.BranchCopies(ctx, branch, book)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = mgr.Return(ctx, branch, book, userID, MustParseDate("2024-07-20"))
	require.NoError(t, err)
	hist, err := mgr.UserHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	line := PrettyLending(hist[0])
	for _, want := range []string{"The Hobbit by J.R.R. Tolkien", "Quinn", "2024-07-01", "2024-07-20", " 19 ", "1.25"} {
		assert.Contains(t, line, want)
	}

	gaps, err := mgr.StockDiscrepancies(ctx)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestManagerSearchWithAvailability(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)

	fairport, err := mgr.AddBranch(ctx, "Fairport")
	require.NoError(t, err)
	penfield, err := mgr.AddBranch(ctx, "Penfield")
	require.NoError(t, err)
	book, err := mgr.AddTitle(ctx, Title{Title: "Emma", Author: "Jane Austen", Genre: GenreFiction})
	require.NoError(t, err)
	require.NoError(t, mgr.Stock(ctx, penfield, book, 1))
	require.NoError(t, mgr.Stock(ctx, fairport, book, 1))

	entries, err := mgr.Search(ctx, "", "Jane Austen")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Penfield, Fairport", entries[0].AvailableAt)
	assert.Equal(t, 2, entries[0].Copies)

	entries, err = mgr.Search(ctx, GenreNonFiction, "Jane Austen")
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = mgr.ListByGenre(ctx, GenreFiction)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestManagerBranchInventory(t *testing.T) {
	ctx := context.Background()
	mgr := newManager(t)

	pittsford, err := mgr.AddBranch(ctx, "Pittsford")
	require.NoError(t, err)
	fairport, err := mgr.AddBranch(ctx, "Fairport")
	require.NoError(t, err)
	emma, err := mgr.AddTitle(ctx, Title{Title: "Emma", Author: "Jane Austen", Genre: GenreFiction})
	require.NoError(t, err)
	require.NoError(t, mgr.Stock(ctx, pittsford, emma, 2))
	require.NoError(t, mgr.Stock(ctx, fairport, emma, 1))

	lines, err := mgr.BranchInventory(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "Fairport", lines[0].Branch)
	assert.Equal(t, 1, lines[0].Copies)
	assert.Equal(t, "Pittsford", lines[1].Branch)
	assert.Equal(t, 2, lines[1].Copies)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"  short ", 10, "short"},
		{"a rather long title", 10, "a rathe..."},
		{"Café Society", 12, "Café Society"},
		{"Les Misérables à Paris", 10, "Les Mis..."},
		{"東京物語の夜と朝の旅", 6, "東京物..."},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.width)
		assert.Equal(t, tt.want, got, tt.in)
		assert.True(t, utf8.ValidString(got), tt.in)
	}
}
