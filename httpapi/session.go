package httpapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"library-ledger/library"
)

// Sessions are presented as "Authorization: Bearer <token>" together with
// the account name in UsernameHeader.
const UsernameHeader = "X-Library-User"

const (
	ctxUserID   = "user_id"
	ctxUsername = "username"
	ctxToken    = "session_token"
)

func credentials(c echo.Context) (username, token string) {
	username = strings.TrimSpace(c.Request().Header.Get(UsernameHeader))
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if t, ok := strings.CutPrefix(auth, "Bearer "); ok {
		token = strings.TrimSpace(t)
	}
	return username, token
}

// requireSession rejects requests whose username and token do not match a
// live session.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		username, token := credentials(c)
		id, err := s.mgr.Authenticate(c.Request().Context(), username, token)
		if err != nil {
			return err
		}
		c.Set(ctxUserID, id)
		c.Set(ctxUsername, username)
		c.Set(ctxToken, token)
		return next(c)
	}
}

func session(c echo.Context) (username, token string) {
	username, _ = c.Get(ctxUsername).(string)
	token, _ = c.Get(ctxToken).(string)
	return username, token
}

// ownAccount reports ErrUnauthenticated when the path names an account other
// than the session's.
func ownAccount(c echo.Context) error {
	username, _ := session(c)
	if c.Param("username") != username {
		return library.ErrUnauthenticated
	}
	return nil
}
