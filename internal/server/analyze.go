package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type analyzeRequest struct {
	Subject string `json:"subject"`
	Region  string `json:"region"`
}

func (s *Server) analyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ans, err := s.query.Ask(c.Request().Context(), currentSession(c), req.Subject, req.Region)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ans)
}
