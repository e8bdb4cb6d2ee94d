package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"evalgo.org/deployhub/internal/sysconfig"
	"evalgo.org/deployhub/models"
)

func (s *Server) listSystemConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, models.OK(nil, s.sysconfig.List()))
}

func (s *Server) getSystemConfig(c echo.Context) error {
	key := c.Param("config_key")
	cfg, ok := s.sysconfig.Get(key)
	if !ok {
		return NotFoundError("System config", key)
	}
	return c.JSON(http.StatusOK, models.OK(nil, cfg))
}

func (s *Server) createSystemConfig(c echo.Context) error {
	var req sysconfig.CreateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	cfg, err := s.sysconfig.Create(req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.OK("system config created", cfg))
}

func (s *Server) updateSystemConfig(c echo.Context) error {
	var req sysconfig.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	cfg, err := s.sysconfig.Update(c.Param("config_key"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.OK("system config updated", cfg))
}

func (s *Server) deleteSystemConfig(c echo.Context) error {
	if err := s.sysconfig.Delete(c.Param("config_key")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.OK("system config deleted", nil))
}
