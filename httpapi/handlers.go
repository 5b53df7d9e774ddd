package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"library-ledger/library"
)

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad %s %q", library.ErrInvalidInput, name, c.Param(name))
	}
	return id, nil
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return fmt.Errorf("%w: malformed request body", library.ErrInvalidInput)
	}
	return nil
}

func (s *Server) dateOr(d *library.Date) library.Date {
	if d == nil || d.IsZero() {
		return s.now()
	}
	return *d
}

// ------------------ Accounts ------------------

type createUserRequest struct {
	Name        string `json:"name"`
	ContactInfo string `json:"contact_info"`
	Username    string `json:"username"`
	Password    string `json:"password"`
}

func (s *Server) createUser(c echo.Context) error {
	var body createUserRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	id, err := s.mgr.CreateAccount(c.Request().Context(), body.Name, body.ContactInfo, body.Username, body.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id, "username": body.Username})
}

func (s *Server) login(c echo.Context) error {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	token, err := s.mgr.Login(c.Request().Context(), body.Username, body.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"session_token": token})
}

func (s *Server) logout(c echo.Context) error {
	username, token := session(c)
	if err := s.mgr.Logout(c.Request().Context(), username, token); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) editContact(c echo.Context) error {
	if err := ownAccount(c); err != nil {
		return err
	}
	var body struct {
		ContactInfo string `json:"contact_info"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	username, token := session(c)
	if err := s.mgr.EditContactInfo(c.Request().Context(), username, token, body.ContactInfo); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteUser(c echo.Context) error {
	if err := ownAccount(c); err != nil {
		return err
	}
	username, token := session(c)
	if err := s.mgr.DeleteAccount(c.Request().Context(), username, token); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listUsers(c echo.Context) error {
	users, err := s.mgr.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

func (s *Server) userHistory(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := s.mgr.GetUser(ctx, id); err != nil {
		return err
	}
	hist, err := s.mgr.UserHistory(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hist)
}

// ------------------ Catalog ------------------

func (s *Server) listBooks(c echo.Context) error {
	entries, err := s.mgr.ListTitles(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) listGenre(c echo.Context) error {
	genre, err := library.ParseGenre(c.Param("genre"))
	if err != nil {
		return err
	}
	entries, err := s.mgr.ListByGenre(c.Request().Context(), genre)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) searchBooks(c echo.Context) error {
	term := c.QueryParam("term")
	if term == "" {
		return fmt.Errorf("%w: term is required", library.ErrInvalidInput)
	}
	var genre library.Genre
	if g := c.QueryParam("genre"); g != "" {
		var err error
		if genre, err = library.ParseGenre(g); err != nil {
			return err
		}
	}
	entries, err := s.mgr.Search(c.Request().Context(), genre, term)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

// ------------------ Branches ------------------

func (s *Server) listBranches(c echo.Context) error {
	branches, err := s.mgr.ListBranches(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, branches)
}

func (s *Server) branchInventory(c echo.Context) error {
	lines, err := s.mgr.BranchInventory(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lines)
}

func (s *Server) branchTotal(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	total, err := s.mgr.BranchTotalCopies(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"library_id": id, "copies": total})
}

func (s *Server) branchHistory(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := s.mgr.BranchTotalCopies(ctx, id); err != nil {
		return err
	}
	hist, err := s.mgr.BranchHistory(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hist)
}

// ------------------ Circulation ------------------

type checkoutRequest struct {
	BranchID int64         `json:"branch_id"`
	Title    string        `json:"title"`
	Date     *library.Date `json:"date"`
}

func (s *Server) checkout(c echo.Context) error {
	var body checkoutRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	username, token := session(c)
	rec, err := s.mgr.Checkout(c.Request().Context(), library.CheckoutRequest{
		BranchID:     body.BranchID,
		Title:        body.Title,
		Username:     username,
		SessionToken: token,
		Date:         s.dateOr(body.Date),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

type circulationRequest struct {
	BranchID int64         `json:"branch_id"`
	BookID   int64         `json:"book_id"`
	Username string        `json:"username"`
	Date     *library.Date `json:"date"`
}

func (s *Server) returnBook(c echo.Context) error {
	var body circulationRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	ctx := c.Request().Context()
	userID, err := s.mgr.ResolveUserID(ctx, body.Username)
	if err != nil {
		return err
	}
	receipt, err := s.mgr.Return(ctx, body.BranchID, body.BookID, userID, s.dateOr(body.Date))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, receipt)
}

func (s *Server) reserve(c echo.Context) error {
	var body circulationRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	ctx := c.Request().Context()
	userID, err := s.mgr.ResolveUserID(ctx, body.Username)
	if err != nil {
		return err
	}
	res, err := s.mgr.Reserve(ctx, body.BranchID, body.BookID, userID, s.dateOr(body.Date))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

// listReservations filters by book_id or user_id; exactly one is required.
func (s *Server) listReservations(c echo.Context) error {
	ctx := c.Request().Context()
	bookID, userID := c.QueryParam("book_id"), c.QueryParam("user_id")
	switch {
	case bookID != "" && userID == "":
		id, err := strconv.ParseInt(bookID, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: bad book_id %q", library.ErrInvalidInput, bookID)
		}
		res, err := s.mgr.ReservationsForBook(ctx, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, res)
	case userID != "" && bookID == "":
		id, err := strconv.ParseInt(userID, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: bad user_id %q", library.ErrInvalidInput, userID)
		}
		res, err := s.mgr.ReservationsForUser(ctx, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, res)
	}
	return fmt.Errorf("%w: pass exactly one of book_id or user_id", library.ErrInvalidInput)
}

func (s *Server) listCheckouts(c echo.Context) error {
	ctx := c.Request().Context()
	out, err := s.mgr.CheckedOutBooks(ctx)
	if err != nil {
		return err
	}
	avg, returned, err := s.mgr.AverageReturnDays(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"checkouts":           out,
		"returned":            returned,
		"average_return_days": avg,
	})
}

func (s *Server) auditStock(c echo.Context) error {
	gaps, err := s.mgr.StockDiscrepancies(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"consistent": len(gaps) == 0, "discrepancies": gaps})
}
