package http

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s Server) GetOpsAlerts(c echo.Context) error {
	alerts, err := s.opsAlertsRepo.FindAll(c.Request().Context())
	if err != nil {
		return fmt.Errorf("failed to list operator alerts: %w", err)
	}

	return c.JSON(http.StatusOK, alerts)
}
