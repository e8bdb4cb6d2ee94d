package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"evalgo.org/deployhub/internal/users"
	"evalgo.org/deployhub/models"
)

// ChangeStatusRequest is the body of PUT /user/:id/change-status.
type ChangeStatusRequest struct {
	Status string `json:"status"`
}

// pathID returns the :id parameter. ValidateIDParam has already checked it.
func pathID(c echo.Context) int {
	id, _ := strconv.Atoi(c.Param("id"))
	return id
}

func (s *Server) listUsers(c echo.Context) error {
	return c.JSON(http.StatusOK, models.OK(nil, s.users.List()))
}

func (s *Server) getUser(c echo.Context) error {
	user, ok := s.users.Get(pathID(c))
	if !ok {
		return NotFoundError("User", c.Param("id"))
	}
	return c.JSON(http.StatusOK, models.OK(nil, user.Profile()))
}

func (s *Server) createUser(c echo.Context) error {
	var req users.CreateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	user, err := s.users.Create(req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.OK("user created", user.Profile()))
}

func (s *Server) updateUser(c echo.Context) error {
	var req users.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	user, err := s.users.Update(pathID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.OK("user updated", user.Profile()))
}

func (s *Server) changeUserStatus(c echo.Context) error {
	var req ChangeStatusRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	actor, err := s.currentUser(c)
	if err != nil {
		return err
	}
	actorID := 0
	if actor != nil {
		actorID = actor.ID
	}
	user, err := s.users.ChangeStatus(actorID, pathID(c), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.OK("user status changed", user.Profile()))
}

func (s *Server) deleteUser(c echo.Context) error {
	if err := s.users.Delete(pathID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.OK("user deleted", nil))
}
