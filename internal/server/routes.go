package server

import (
	"net/http"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/devices", s.DevicesHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.ask(domain.ActorHealthRequest{})
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

// DevicesHandler lists the discovered speedwire devices.
func (s *Server) DevicesHandler(c echo.Context) error {
	res, err := s.ask(domain.GetDevicesRequest{})
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetDevicesResponse)
	if !ok || response.Failure() != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "devices not available")
	}
	devices := response.Devices
	if devices == nil {
		devices = []domain.Device{}
	}
	return c.JSON(http.StatusOK, devices)
}
