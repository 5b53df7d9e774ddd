// Package httpapi exposes the lending ledger over a JSON REST surface.
//
// Error statuses: ErrInvalidInput 400, ErrUnauthenticated 401,
// ErrNotFound 404, ErrConflict, ErrOutOfStock and ErrStockAvailable 409,
// ErrOverdueBlock 422. Anything else is a 500 and is logged.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"library-ledger/library"
)

// Server wires the ledger manager to echo routes.
type Server struct {
	e   *echo.Echo
	mgr *library.LibraryManager
	log *slog.Logger

	// now supplies the default operation date when a request omits one.
	now func() library.Date
}

// NewServer builds the router. log may be nil.
func NewServer(mgr *library.LibraryManager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{e: e, mgr: mgr, log: log, now: library.Today}
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(s.logRequests)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.e.GET("/health", s.health)

	s.e.POST("/users", s.createUser)
	s.e.GET("/users", s.listUsers)
	s.e.GET("/users/:id/history", s.userHistory)
	s.e.POST("/login", s.login)

	s.e.POST("/logout", s.logout, s.requireSession)
	s.e.PUT("/users/:username/contact", s.editContact, s.requireSession)
	s.e.DELETE("/users/:username", s.deleteUser, s.requireSession)

	s.e.GET("/books", s.listBooks)
	s.e.GET("/books/genre/:genre", s.listGenre)
	s.e.GET("/books/search", s.searchBooks)

	s.e.GET("/branches", s.listBranches)
	s.e.GET("/branches/inventory", s.branchInventory)
	s.e.GET("/branches/:id/total", s.branchTotal)
	s.e.GET("/branches/:id/history", s.branchHistory)

	s.e.GET("/checkouts", s.listCheckouts)
	s.e.POST("/checkouts", s.checkout, s.requireSession)
	s.e.POST("/returns", s.returnBook)
	s.e.POST("/reservations", s.reserve)
	s.e.GET("/reservations", s.listReservations)
	s.e.GET("/audit/stock", s.auditStock)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.e }

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info("http listening", "addr", addr)
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func statusOf(err error) int {
	switch {
	case errors.Is(err, library.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, library.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, library.ErrOverdueBlock):
		return http.StatusUnprocessableEntity
	case errors.Is(err, library.ErrOutOfStock),
		errors.Is(err, library.ErrStockAvailable),
		errors.Is(err, library.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, _ := he.Message.(string)
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		_ = c.JSON(he.Code, echo.Map{"error": msg})
		return
	}

	code := statusOf(err)
	msg := library.PublicMessage(err)
	if code == http.StatusInternalServerError {
		s.log.ErrorContext(c.Request().Context(), "request failed",
			"method", c.Request().Method, "path", c.Path(), "error", err)
		msg = "internal error"
	}
	_ = c.JSON(code, echo.Map{"error": msg})
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.log.DebugContext(c.Request().Context(), "http request",
			"method", c.Request().Method, "path", c.Path(),
			"status", c.Response().Status, "duration", time.Since(start))
		return nil
	}
}

func (s *Server) health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
