package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shellbox/shellbox/internal/sandbox"
	"github.com/shellbox/shellbox/pkg/types"
)

const sandboxTokenTTL = 24 * time.Hour

// errJSON is the error body every handler returns.
func errJSON(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]string{"error": err.Error()})
}

// httpStatus maps engine errors onto HTTP status codes. Admission
// exhaustion is retryable and distinct from state conflicts; a lost shell
// session surfaces as a gateway problem because the sandbox, not the
// server, went away.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, sandbox.ErrNotFound):
		return http.StatusNotFound
	case sandbox.IsInvalidTransition(err):
		return http.StatusConflict
	case errors.Is(err, sandbox.ErrAdmissionExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, sandbox.ErrSessionTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, sandbox.ErrSessionClosed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) createSandbox(c echo.Context) error {
	var cfg types.SandboxConfig
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}

	ctx := c.Request().Context()
	sb, err := s.manager.Create(ctx, cfg)
	if err != nil {
		return errJSON(c, httpStatus(err), err)
	}

	if cfg.Start {
		started, err := s.manager.Start(ctx, sb.ID)
		if err != nil {
			// The sandbox exists either way; report it alongside the
			// start failure so the client can retry or clean up.
			return c.JSON(httpStatus(err), map[string]interface{}{
				"error":   err.Error(),
				"sandbox": sb.ID,
			})
		}
		sb = started
	}

	if s.jwtIssuer != nil {
		token, err := s.jwtIssuer.IssueSandboxToken(sb.ID, sandboxTokenTTL)
		if err == nil {
			sb.Token = token
		}
	}

	return c.JSON(http.StatusCreated, sb)
}

func (s *Server) listSandboxes(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sandboxes": s.manager.List(),
	})
}

func (s *Server) getSandbox(c echo.Context) error {
	sb, err := s.manager.Get(c.Param("id"))
	if err != nil {
		return errJSON(c, httpStatus(err), err)
	}
	return c.JSON(http.StatusOK, sb)
}

func (s *Server) startSandbox(c echo.Context) error {
	sb, err := s.manager.Start(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errJSON(c, httpStatus(err), err)
	}
	return c.JSON(http.StatusOK, sb)
}

func (s *Server) execCommand(c echo.Context) error {
	var req types.ExecRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}
	if req.Command == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "command is required",
		})
	}

	res, err := s.manager.Exec(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return errJSON(c, httpStatus(err), err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) stopSandbox(c echo.Context) error {
	id := c.Param("id")
	sb, err := s.manager.Stop(c.Request().Context(), id)
	if err != nil {
		return errJSON(c, httpStatus(err), err)
	}
	s.ptyManager.KillSandboxSessions(id)
	return c.JSON(http.StatusOK, sb)
}

func (s *Server) removeSandbox(c echo.Context) error {
	if err := s.manager.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return errJSON(c, httpStatus(err), err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getEvents(c echo.Context) error {
	id := c.Param("id")
	entries, summary, err := s.manager.Events(id)
	if err != nil {
		if errors.Is(err, sandbox.ErrEventLogDisabled) {
			return errJSON(c, http.StatusNotFound, err)
		}
		return errJSON(c, httpStatus(err), err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sandbox_id": id,
		"lifecycle":  entries,
		"summary":    summary,
	})
}

func (s *Server) getTrajectory(c echo.Context) error {
	traj, err := s.manager.Trajectory(c.Param("id"))
	if err != nil {
		return errJSON(c, httpStatus(err), err)
	}
	return c.JSON(http.StatusOK, traj)
}
