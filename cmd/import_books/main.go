// Command import_books seeds branches, titles and branch stock from a CSV file.
//
// Columns: branch,title,author,genre,publish_date,copies,summary. The header
// row is required; publish_date and summary may be empty. Branches and
// titles are created on first sight and each row adds its copies.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"library-ledger/config"
	"library-ledger/library"
)

var columns = []string{"branch", "title", "author", "genre", "publish_date", "copies", "summary"}

type importStats struct {
	Rows, Branches, Titles, Copies, Errors int
}

func main() {
	var (
		dbPath string
		reset  bool
	)
	cmd := &cobra.Command{
		Use:          "import_books FILE.csv",
		Short:        "Seed the ledger from a CSV file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dbPath == "" {
				dbPath = cfg.DBPath
			}
			out := cmd.OutOrStdout()
			if reset {
				fmt.Fprintln(out, "Cleaning up existing database files...")
				for _, file := range []string{dbPath, dbPath + "-shm", dbPath + "-wal"} {
					if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
						fmt.Fprintf(out, "Warning: Could not remove %s: %v\n", file, err)
					}
				}
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			mgr, err := library.NewLibraryManager(dbPath, library.ManagerOptions{BcryptCost: cfg.BcryptCost})
			if err != nil {
				return fmt.Errorf("creating database: %w", err)
			}
			defer mgr.Close()

			stats, err := importCSV(cmd.Context(), mgr, f, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nImport complete!\n")
			fmt.Fprintf(out, "Rows: %d, new branches: %d, new titles: %d, copies: %d, errors: %d\n",
				stats.Rows, stats.Branches, stats.Titles, stats.Copies, stats.Errors)
			if stats.Errors > 0 {
				return fmt.Errorf("%d rows failed", stats.Errors)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides LIBRARY_DB_PATH)")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete the database before importing")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// importCSV applies every row of r. A bad row is reported to out and
// counted; it does not stop the import. A malformed file does.
func importCSV(ctx context.Context, mgr *library.LibraryManager, r io.Reader, out io.Writer) (importStats, error) {
	var stats importStats
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(columns)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return stats, fmt.Errorf("read header: %w", err)
	}
	for i, col := range columns {
		if strings.ToLower(strings.TrimSpace(header[i])) != col {
			return stats, fmt.Errorf("header column %d is %q, want %q", i+1, header[i], col)
		}
	}

	branches := map[string]int64{}
	existing, err := mgr.ListBranches(ctx)
	if err != nil {
		return stats, err
	}
	for _, b := range existing {
		branches[b.Name] = b.LibraryID
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		stats.Rows++
		if err := importRow(ctx, mgr, rec, branches, &stats); err != nil {
			fmt.Fprintf(out, "line %d: ERROR - %v\n", line, err)
			stats.Errors++
			continue
		}
		fmt.Fprintf(out, "line %d: %s x%s at %s\n", line, rec[1], rec[5], rec[0])
	}
}

func importRow(ctx context.Context, mgr *library.LibraryManager, rec []string, branches map[string]int64, stats *importStats) error {
	branchName, titleName := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
	copies, err := strconv.Atoi(strings.TrimSpace(rec[5]))
	if err != nil {
		return fmt.Errorf("%w: copies %q", library.ErrInvalidInput, rec[5])
	}

	branchID, ok := branches[branchName]
	if !ok {
		if branchID, err = mgr.AddBranch(ctx, branchName); err != nil {
			return err
		}
		branches[branchName] = branchID
		stats.Branches++
	}

	var bookID int64
	if t, err := mgr.GetTitleByName(ctx, titleName); err == nil {
		bookID = t.BookID
	} else if errors.Is(err, library.ErrNotFound) {
		genre, err := library.ParseGenre(rec[3])
		if err != nil {
			return err
		}
		title := library.Title{Title: titleName, Author: strings.TrimSpace(rec[2]), Genre: genre, Summary: rec[6]}
		if p := strings.TrimSpace(rec[4]); p != "" {
			d, err := library.ParseDate(p)
			if err != nil {
				return err
			}
			title.PublishDate = &d
		}
		if bookID, err = mgr.AddTitle(ctx, title); err != nil {
			return err
		}
		stats.Titles++
	} else {
		return err
	}

	if err := mgr.Stock(ctx, branchID, bookID, copies); err != nil {
		return err
	}
	stats.Copies += copies
	return nil
}
