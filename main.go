package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-ledger/config"
	"library-ledger/library"
	"library-ledger/queue"
)

// app carries what every subcommand needs once the root has loaded config.
type app struct {
	cfg    config.Config
	log    *slog.Logger
	mgr    *library.LibraryManager
	events *queue.Publisher
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	if err := execute(ctx, a, newRootCmd(a)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// execute runs root and then releases whatever the command opened. Cobra
// skips post-run hooks when a command fails, so the close happens here.
func execute(ctx context.Context, a *app, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	var dbPath string

	root := &cobra.Command{
		Use:           "library",
		Short:         "Multi-branch library lending ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			a.cfg = cfg
			a.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.LogLevel}))
			return a.open()
		},
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides LIBRARY_DB_PATH)")

	root.AddCommand(
		newServeCmd(a),
		newAccountCmd(a),
		newCatalogCmd(a),
		newBooksCmd(a),
		newBranchesCmd(a),
		newCheckoutCmd(a),
		newReturnCmd(a),
		newReserveCmd(a),
		newHistoryCmd(a),
		newAuditCmd(a),
	)
	return root
}

func (a *app) open() error {
	var events library.EventPublisher
	if a.cfg.AMQPURL != "" {
		p, err := queue.Dial(a.cfg.AMQPURL, a.cfg.AMQPQueue)
		if err != nil {
			// The ledger works without a broker; events are just not shipped.
			a.log.Warn("event publishing disabled", "error", err)
		} else {
			a.events = p
			events = p
		}
	}

	mgr, err := library.NewLibraryManager(a.cfg.DBPath, library.ManagerOptions{
		BcryptCost: a.cfg.BcryptCost,
		Events:     events,
		Logger:     a.log,
	})
	if err != nil {
		a.close()
		return fmt.Errorf("open ledger %s: %w", a.cfg.DBPath, err)
	}
	a.mgr = mgr
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.mgr != nil {
		errs = append(errs, a.mgr.Close())
		a.mgr = nil
	}
	if a.events != nil {
		errs = append(errs, a.events.Close())
		a.events = nil
	}
	return errors.Join(errs...)
}

// readPassword reads a password from the terminal without echoing it. When
// stdin is not a terminal the first line is read instead.
func readPassword(out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		var line string
		if _, err := fmt.Fscanln(os.Stdin, &line); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, library.ErrUnauthenticated):
		return 3
	case errors.Is(err, library.ErrNotFound):
		return 4
	case errors.Is(err, library.ErrOverdueBlock),
		errors.Is(err, library.ErrOutOfStock),
		errors.Is(err, library.ErrStockAvailable),
		errors.Is(err, library.ErrConflict):
		return 5
	case errors.Is(err, library.ErrInvalidInput):
		return 2
	}
	return 1
}

// truncateString cuts s to maxLength runes so multi-byte names stay valid.
func truncateString(s string, maxLength int) string {
	r := []rune(s)
	if len(r) <= maxLength {
		return s
	}
	return string(r[:maxLength-3]) + "..."
}
