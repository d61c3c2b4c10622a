package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/shellbox/shellbox/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // auth already ran on this route
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func (s *Server) createPTY(c echo.Context) error {
	id := c.Param("id")

	var req types.PTYCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}

	containerID, err := s.manager.ContainerID(id)
	if err != nil {
		return errJSON(c, httpStatus(err), err)
	}

	handle, err := s.ptyManager.CreateSession(id, containerID, req)
	if err != nil {
		return errJSON(c, http.StatusInternalServerError, err)
	}

	return c.JSON(http.StatusCreated, types.PTYSession{
		SessionID: handle.ID,
		SandboxID: id,
	})
}

func (s *Server) resizePTY(c echo.Context) error {
	var req types.PTYCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
	}
	if err := s.ptyManager.Resize(c.Param("sessionID"), req.Cols, req.Rows); err != nil {
		return errJSON(c, httpStatus(err), err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) ptyWebSocket(c echo.Context) error {
	handle, err := s.ptyManager.GetSession(c.Param("sessionID"))
	if err != nil {
		return errJSON(c, httpStatus(err), err)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	// PTY -> WebSocket
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := handle.PTY.Read(buf)
			if n > 0 {
				if writeErr := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); writeErr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	// WebSocket -> PTY
	go func() {
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if _, err := handle.PTY.Write(msg); err != nil {
				return
			}
		}
	}()

	select {
	case <-done:
	case <-handle.Done:
	}

	ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return nil
}

func (s *Server) killPTY(c echo.Context) error {
	if err := s.ptyManager.KillSession(c.Param("sessionID")); err != nil {
		return errJSON(c, httpStatus(err), err)
	}
	return c.NoContent(http.StatusNoContent)
}
