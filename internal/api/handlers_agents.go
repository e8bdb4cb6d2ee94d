package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"evalgo.org/deployhub/internal/agents"
	"evalgo.org/deployhub/models"
)

func (s *Server) listAgents(c echo.Context) error {
	return c.JSON(http.StatusOK, models.OK(nil, s.agents.List()))
}

func (s *Server) getAgent(c echo.Context) error {
	agent, ok := s.agents.Get(pathID(c))
	if !ok {
		return NotFoundError("Agent", c.Param("id"))
	}
	return c.JSON(http.StatusOK, models.OK(nil, agent))
}

func (s *Server) registerAgent(c echo.Context) error {
	var req agents.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	agent, err := s.agents.Register(req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.OK("agent registered", agent))
}

func (s *Server) updateAgent(c echo.Context) error {
	var req agents.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}
	agent, err := s.agents.Update(pathID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.OK("agent updated", agent))
}

func (s *Server) deleteAgent(c echo.Context) error {
	if err := s.agents.Delete(pathID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.OK("agent deleted", nil))
}

// callAgentAPI handles POST /agent/:id/call-api?api_path=&method=. The
// request body and headers are relayed untouched, so multipart uploads and
// the caller's token reach the agent as sent.
func (s *Server) callAgentAPI(c echo.Context) error {
	apiPath := c.QueryParam("api_path")
	method := c.QueryParam("method")
	if apiPath == "" || method == "" {
		return BadRequestError("Bad request", "api_path and method query parameters are required")
	}

	user, err := s.currentUser(c)
	if err != nil {
		return err
	}
	var operator *models.UserProfile
	if user != nil {
		operator = user.Profile()
	}

	res, err := s.forwarder.Forward(c.Request().Context(), agents.Call{
		AgentID:       pathID(c),
		APIPath:       apiPath,
		Method:        method,
		Header:        c.Request().Header,
		Body:          c.Request().Body,
		Operator:      operator,
		ContentLength: c.Request().ContentLength,
	})
	if err != nil {
		return err
	}
	return c.JSON(res.Code, res)
}
