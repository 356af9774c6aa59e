package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/casewatch/internal/quota"
	"github.com/mohammad-safakhou/casewatch/internal/runtime"
)

const sessionKey = "session"

type sessionResponse struct {
	Token     string `json:"token,omitempty"`
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func describe(sess *quota.Session, tok string) sessionResponse {
	resp := sessionResponse{Token: tok, SessionID: sess.ID(), Limit: sess.Limit(), Remaining: sess.Remaining()}
	if exp := sess.ExpiresAt(); !exp.IsZero() {
		resp.ExpiresAt = exp.UTC().Format(http.TimeFormat)
	}
	return resp
}

func (s *Server) createSession(c echo.Context) error {
	sess := s.sessions.Create()
	tok, err := runtime.SignSessionToken(sess.ID(), s.secret, s.sessionTTL)
	if err != nil {
		s.sessions.End(sess.ID())
		return err
	}
	c.SetCookie(runtime.SessionTokenCookie(tok, s.sessionTTL, c.IsTLS()))
	return c.JSON(http.StatusCreated, describe(sess, tok))
}

func (s *Server) getSession(c echo.Context) error {
	return c.JSON(http.StatusOK, describe(currentSession(c), ""))
}

func (s *Server) endSession(c echo.Context) error {
	s.sessions.End(currentSession(c).ID())
	c.SetCookie(runtime.ExpiredSessionCookie())
	return c.NoContent(http.StatusNoContent)
}

// requireSession resolves the session token to a live session.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tok, err := runtime.ExtractSessionToken(c)
		if err != nil {
			return err
		}
		id, err := runtime.ParseSessionToken(tok, s.secret)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid session token")
		}
		sess, err := s.sessions.Get(id)
		if err != nil {
			return err
		}
		c.Set(sessionKey, sess)
		return next(c)
	}
}

func currentSession(c echo.Context) *quota.Session {
	sess, _ := c.Get(sessionKey).(*quota.Session)
	return sess
}
