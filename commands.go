package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"library-ledger/httpapi"
	"library-ledger/library"
)

// sessionFlags identify the caller for commands that need a live session.
type sessionFlags struct {
	username string
	token    string
}

func (s *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.username, "user", "u", "", "username")
	cmd.Flags().StringVar(&s.token, "token", os.Getenv("LIBRARY_SESSION"), "session token from 'account login' (default $LIBRARY_SESSION)")
	_ = cmd.MarkFlagRequired("user")
}

// dateFlag parses an optional YYYY-MM-DD flag, defaulting to today.
func dateFlag(s string) (library.Date, error) {
	if s == "" {
		return library.Today(), nil
	}
	return library.ParseDate(s)
}

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			srv := httpapi.NewServer(a.mgr, a.log)
			errc := make(chan error, 1)
			go func() { errc <- srv.Start(addr) }()

			select {
			case err := <-errc:
				return err
			case <-cmd.Context().Done():
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			a.log.Info("http server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides LIBRARY_HTTP_ADDR)")
	return cmd
}

// ------------------ Accounts ------------------

func newAccountCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "account", Short: "Manage user accounts"}

	var name, contact string
	create := &cobra.Command{
		Use:   "create USERNAME",
		Short: "Register a new account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.OutOrStdout(), "Choose a password: ")
			if err != nil {
				return err
			}
			confirm, err := readPassword(cmd.OutOrStdout(), "Confirm password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("%w: passwords do not match", library.ErrInvalidInput)
			}
			if name == "" {
				name = args[0]
			}
			id, err := a.mgr.CreateAccount(cmd.Context(), name, contact, args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %q created (ID: %d)\n", args[0], id)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name (defaults to the username)")
	create.Flags().StringVar(&contact, "contact", "", "contact details")

	login := &cobra.Command{
		Use:   "login USERNAME",
		Short: "Start a session and print its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.OutOrStdout(), "Password: ")
			if err != nil {
				return err
			}
			token, err := a.mgr.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export LIBRARY_SESSION=%s\n", token)
			return nil
		},
	}

	var logoutSession sessionFlags
	logout := &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.mgr.Logout(cmd.Context(), logoutSession.username, logoutSession.token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
	logoutSession.register(logout)

	var contactSession sessionFlags
	editContact := &cobra.Command{
		Use:   "contact INFO",
		Short: "Replace your contact details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.mgr.EditContactInfo(cmd.Context(), contactSession.username, contactSession.token, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Contact details updated")
			return nil
		},
	}
	contactSession.register(editContact)

	var deleteSession sessionFlags
	remove := &cobra.Command{
		Use:   "delete",
		Short: "Delete your account and its lending history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.mgr.DeleteAccount(cmd.Context(), deleteSession.username, deleteSession.token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %q deleted\n", deleteSession.username)
			return nil
		},
	}
	deleteSession.register(remove)

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			users, err := a.mgr.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(users) == 0 {
				fmt.Fprintln(out, "No users registered.")
				return nil
			}
			fmt.Fprintf(out, "%-5s %-20s %-25s %s\n", "ID", "Username", "Name", "Contact")
			fmt.Fprintln(out, strings.Repeat("-", 80))
			for _, u := range users {
				fmt.Fprintf(out, "%-5d %-20s %-25s %s\n", u.ID, truncateString(u.Username, 20), truncateString(u.Name, 25), u.ContactInfo)
			}
			return nil
		},
	}

	cmd.AddCommand(create, login, logout, editContact, remove, list)
	return cmd
}

// ------------------ Catalog administration ------------------

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "catalog", Short: "Add branches, titles and stock"}

	addBranch := &cobra.Command{
		Use:   "add-branch NAME",
		Short: "Register a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.mgr.AddBranch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Branch %q added (ID: %d)\n", args[0], id)
			return nil
		},
	}

	var author, genre, published, summary string
	addTitle := &cobra.Command{
		Use:   "add-title TITLE",
		Short: "Add a title to the catalog with no copies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := library.ParseGenre(genre)
			if err != nil {
				return err
			}
			t := library.Title{Title: args[0], Author: author, Genre: g, Summary: summary}
			if published != "" {
				d, err := library.ParseDate(published)
				if err != nil {
					return err
				}
				t.PublishDate = &d
			}
			id, err := a.mgr.AddTitle(cmd.Context(), t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Title %q added (ID: %d)\n", args[0], id)
			return nil
		},
	}
	addTitle.Flags().StringVar(&author, "author", "", "author name")
	addTitle.Flags().StringVar(&genre, "genre", "", "fiction or non-fiction")
	addTitle.Flags().StringVar(&published, "published", "", "publish date, YYYY-MM-DD")
	addTitle.Flags().StringVar(&summary, "summary", "", "short summary")
	_ = addTitle.MarkFlagRequired("author")
	_ = addTitle.MarkFlagRequired("genre")

	var branchID, bookID int64
	var copies int
	stock := &cobra.Command{
		Use:   "stock",
		Short: "Add copies of a title to a branch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.mgr.Stock(cmd.Context(), branchID, bookID, copies); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d copies of book %d to branch %d\n", copies, bookID, branchID)
			return nil
		},
	}
	stock.Flags().Int64Var(&branchID, "branch", 0, "branch ID")
	stock.Flags().Int64Var(&bookID, "book", 0, "book ID")
	stock.Flags().IntVar(&copies, "copies", 1, "copies to add")
	_ = stock.MarkFlagRequired("branch")
	_ = stock.MarkFlagRequired("book")

	cmd.AddCommand(addBranch, addTitle, stock)
	return cmd
}

// ------------------ Catalog queries ------------------

func printCatalog(cmd *cobra.Command, entries []library.CatalogEntry) {
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching books.")
		return
	}
	fmt.Fprintf(out, "%-5s %-30s %-25s %-12s %-7s %s\n", "ID", "Title", "Author", "Genre", "Copies", "Available at")
	fmt.Fprintln(out, strings.Repeat("-", 110))
	for _, e := range entries {
		fmt.Fprintf(out, "%-5d %-30s %-25s %-12s %-7d %s\n",
			e.BookID, truncateString(e.Title.Title, 30), truncateString(e.Author, 25), e.Genre, e.Copies, e.AvailableAt)
	}
}

func newBooksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "books", Short: "Browse the catalog"}

	var listGenre string
	list := &cobra.Command{
		Use:   "list",
		Short: "List every title, optionally one genre",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				entries []library.CatalogEntry
				err     error
			)
			if listGenre == "" {
				entries, err = a.mgr.ListTitles(cmd.Context())
			} else {
				g, perr := library.ParseGenre(listGenre)
				if perr != nil {
					return perr
				}
				entries, err = a.mgr.ListByGenre(cmd.Context(), g)
			}
			if err != nil {
				return err
			}
			printCatalog(cmd, entries)
			return nil
		},
	}
	list.Flags().StringVar(&listGenre, "genre", "", "fiction or non-fiction")

	var searchGenre string
	search := &cobra.Command{
		Use:   "search TERM",
		Short: "Find titles by author, falling back to title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var g library.Genre
			if searchGenre != "" {
				var err error
				if g, err = library.ParseGenre(searchGenre); err != nil {
					return err
				}
			}
			entries, err := a.mgr.Search(cmd.Context(), g, strings.Join(args, " "))
			if err != nil {
				return err
			}
			printCatalog(cmd, entries)
			return nil
		},
	}
	search.Flags().StringVar(&searchGenre, "genre", "", "restrict to fiction or non-fiction")

	cmd.AddCommand(list, search)
	return cmd
}

func newBranchesCmd(a *app) *cobra.Command {
	var (
		historyOf int64
		inventory bool
	)
	cmd := &cobra.Command{
		Use:   "branches",
		Short: "List branches with their total copies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if inventory {
				lines, err := a.mgr.BranchInventory(ctx)
				if err != nil {
					return err
				}
				printInventory(cmd, lines)
				return nil
			}
			if historyOf != 0 {
				if _, err := a.mgr.BranchTotalCopies(ctx, historyOf); err != nil {
					return err
				}
				hist, err := a.mgr.BranchHistory(ctx, historyOf)
				if err != nil {
					return err
				}
				printLendings(cmd, hist)
				return nil
			}

			branches, err := a.mgr.ListBranches(ctx)
			if err != nil {
				return err
			}
			if len(branches) == 0 {
				fmt.Fprintln(out, "No branches registered.")
				return nil
			}
			fmt.Fprintf(out, "%-5s %-30s %s\n", "ID", "Branch", "Copies")
			fmt.Fprintln(out, strings.Repeat("-", 45))
			for _, b := range branches {
				total, err := a.mgr.BranchTotalCopies(ctx, b.LibraryID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-5d %-30s %d\n", b.LibraryID, truncateString(b.Name, 30), total)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&historyOf, "history", 0, "show the lending history of this branch ID")
	cmd.Flags().BoolVar(&inventory, "inventory", false, "list every title held at each branch")
	cmd.MarkFlagsMutuallyExclusive("history", "inventory")
	return cmd
}

func printInventory(cmd *cobra.Command, lines []library.BranchInventoryLine) {
	out := cmd.OutOrStdout()
	if len(lines) == 0 {
		fmt.Fprintln(out, "No stock recorded.")
		return
	}
	fmt.Fprintf(out, "%-20s %-30s %-25s %s\n", "Branch", "Title", "Author", "Copies")
	fmt.Fprintln(out, strings.Repeat("-", 85))
	branch := ""
	for _, l := range lines {
		name := truncateString(l.Branch, 20)
		if l.Branch == branch {
			name = ""
		}
		branch = l.Branch
		fmt.Fprintf(out, "%-20s %-30s %-25s %d\n", name, truncateString(l.Title, 30), truncateString(l.Author, 25), l.Copies)
	}
}

// ------------------ Circulation ------------------

func newCheckoutCmd(a *app) *cobra.Command {
	var (
		sess     sessionFlags
		branchID int64
		date     string
	)
	cmd := &cobra.Command{
		Use:   "checkout TITLE",
		Short: "Check a title out of a branch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dateFlag(date)
			if err != nil {
				return err
			}
			title := strings.Join(args, " ")
			rec, err := a.mgr.Checkout(cmd.Context(), library.CheckoutRequest{
				BranchID: branchID, Title: title, Username: sess.username, SessionToken: sess.token, Date: d,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Book '%s' checked out to %s, due %s\n", title, sess.username, rec.DueDate)
			return nil
		},
	}
	sess.register(cmd)
	cmd.Flags().Int64Var(&branchID, "branch", 0, "branch ID")
	cmd.Flags().StringVar(&date, "date", "", "checkout date, YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("branch")
	return cmd
}

func newReturnCmd(a *app) *cobra.Command {
	var (
		username       string
		branchID, book int64
		date           string
	)
	cmd := &cobra.Command{
		Use:   "return",
		Short: "Return a book to the branch that lent it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := dateFlag(date)
			if err != nil {
				return err
			}
			userID, err := a.mgr.ResolveUserID(cmd.Context(), username)
			if err != nil {
				return err
			}
			receipt, err := a.mgr.Return(cmd.Context(), branchID, book, userID, d)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if receipt.DaysLate == 0 {
				fmt.Fprintln(out, "Book returned on time")
				return nil
			}
			fmt.Fprintf(out, "Book returned %d days late, fee %s\n", receipt.DaysLate, receipt.LateFee)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "borrower's username")
	cmd.Flags().Int64Var(&branchID, "branch", 0, "branch ID")
	cmd.Flags().Int64Var(&book, "book", 0, "book ID")
	cmd.Flags().StringVar(&date, "date", "", "return date, YYYY-MM-DD (default today)")
	for _, f := range []string{"user", "branch", "book"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newReserveCmd(a *app) *cobra.Command {
	var (
		username       string
		branchID, book int64
		date           string
		cancel         bool
	)
	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Reserve a title at a branch that has run out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			userID, err := a.mgr.ResolveUserID(ctx, username)
			if err != nil {
				return err
			}
			if cancel {
				if err := a.mgr.CancelReservation(ctx, branchID, book, userID); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Reservation cancelled")
				return nil
			}
			d, err := dateFlag(date)
			if err != nil {
				return err
			}
			if _, err := a.mgr.Reserve(ctx, branchID, book, userID, d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Book %d reserved at branch %d for %s\n", book, branchID, username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "username")
	cmd.Flags().Int64Var(&branchID, "branch", 0, "branch ID")
	cmd.Flags().Int64Var(&book, "book", 0, "book ID")
	cmd.Flags().StringVar(&date, "date", "", "reservation date, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&cancel, "cancel", false, "cancel the reservation instead")
	for _, f := range []string{"user", "branch", "book"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

// ------------------ Reports ------------------

func printLendings(cmd *cobra.Command, lendings []library.Lending) {
	out := cmd.OutOrStdout()
	if len(lendings) == 0 {
		fmt.Fprintln(out, "No lending history.")
		return
	}
	fmt.Fprintf(out, "%-40s %-18s %-12s %-12s %5s %8s\n", "Book", "Borrower", "Checked out", "Returned", "Days", "Fee")
	fmt.Fprintln(out, strings.Repeat("-", 101))
	for _, l := range lendings {
		fmt.Fprintln(out, library.PrettyLending(l))
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history USERNAME",
		Short: "Show a user's lending history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := a.mgr.ResolveUserID(ctx, args[0])
			if err != nil {
				return err
			}
			hist, err := a.mgr.UserHistory(ctx, userID)
			if err != nil {
				return err
			}
			printLendings(cmd, hist)

			res, err := a.mgr.ReservationsForUser(ctx, userID)
			if err != nil {
				return err
			}
			for _, r := range res {
				fmt.Fprintf(cmd.OutOrStdout(), "Reserved book %d at branch %d on %s\n", r.BookID, r.LibraryID, r.ReservedOn)
			}
			return nil
		},
	}
}

func newAuditCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Report lendings, return times and stock consistency",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			lendings, err := a.mgr.CheckedOutBooks(ctx)
			if err != nil {
				return err
			}
			printLendings(cmd, lendings)

			avg, returned, err := a.mgr.AverageReturnDays(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nAverage lending duration: %.1f days over %d returns\n", avg, returned)

			gaps, err := a.mgr.StockDiscrepancies(ctx)
			if err != nil {
				return err
			}
			if len(gaps) == 0 {
				fmt.Fprintln(out, "Stock is consistent")
				return nil
			}
			for _, g := range gaps {
				fmt.Fprintf(out, "MISMATCH %q: catalog %d, branches %d\n", g.Title, g.CatalogCopies, g.BranchCopies)
			}
			return fmt.Errorf("%d titles out of balance", len(gaps))
		},
	}
}
