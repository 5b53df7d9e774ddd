package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-ledger/library"
)

const seed = `branch,title,author,genre,publish_date,copies,summary
Penfield,1984,George Orwell,fiction,1949-06-08,2,
Fairport,1984,George Orwell,fiction,1949-06-08,1,
Penfield,Sapiens,Yuval Noah Harari,Non-Fiction,,3,"A brief history, of humankind"
Pittsford,Broken,Nobody,poetry,,1,
Pittsford,Sapiens,Yuval Noah Harari,non-fiction,,zero,
`

func TestImportCSV(t *testing.T) {
	ctx := context.Background()
	mgr, err := library.NewLibraryManager(filepath.Join(t.TempDir(), "seed.db"), library.ManagerOptions{BcryptCost: 4})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	var out bytes.Buffer
	stats, err := importCSV(ctx, mgr, strings.NewReader(seed), &out)
	require.NoError(t, err)
	assert.Equal(t, importStats{Rows: 5, Branches: 3, Titles: 2, Copies: 6, Errors: 2}, stats)
	assert.Contains(t, out.String(), "line 5: ERROR")
	assert.Contains(t, out.String(), "line 6: ERROR")

	orwell, err := mgr.GetTitleByName(ctx, "1984")
	require.NoError(t, err)
	assert.Equal(t, 3, orwell.Copies)
	require.NotNil(t, orwell.PublishDate)
	assert.Equal(t, "1949-06-08", orwell.PublishDate.String())

	sapiens, err := mgr.GetTitleByName(ctx, "Sapiens")
	require.NoError(t, err)
	assert.Equal(t, library.GenreNonFiction, sapiens.Genre)
	assert.Equal(t, "A brief history, of humankind", sapiens.Summary)

	gaps, err := mgr.StockDiscrepancies(ctx)
	require.NoError(t, err)
	assert.Empty(t, gaps)

	// Re-importing adds copies to the existing rows.
	stats, err = importCSV(ctx, mgr, strings.NewReader(seed), &out)
	require.NoError(t, err)
	assert.Zero(t, stats.Branches)
	assert.Zero(t, stats.Titles)
	orwell, _ = mgr.GetTitleByName(ctx, "1984")
	assert.Equal(t, 6, orwell.Copies)
}

func TestImportCSVRejectsBadHeader(t *testing.T) {
	mgr, err := library.NewLibraryManager(filepath.Join(t.TempDir(), "seed.db"), library.ManagerOptions{BcryptCost: 4})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	_, err = importCSV(context.Background(), mgr, strings.NewReader("a,b,c,d,e,f,g\n"), &bytes.Buffer{})
	assert.ErrorContains(t, err, "header column 1")
}
