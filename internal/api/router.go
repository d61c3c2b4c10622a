package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/shellbox/shellbox/internal/auth"
	"github.com/shellbox/shellbox/internal/metrics"
	"github.com/shellbox/shellbox/internal/sandbox"
)

// Server holds the API server dependencies.
type Server struct {
	echo       *echo.Echo
	manager    *sandbox.Manager
	ptyManager *sandbox.PTYManager
	jwtIssuer  *auth.JWTIssuer
}

// NewServer creates a new API server with all routes configured.
func NewServer(mgr *sandbox.Manager, ptyMgr *sandbox.PTYManager, apiKey string, issuer *auth.JWTIssuer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:       e,
		manager:    mgr,
		ptyManager: ptyMgr,
		jwtIssuer:  issuer,
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(metrics.EchoMiddleware())

	// Health and metrics (no auth)
	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// Collection routes require the server API key.
	api := e.Group("")
	api.Use(auth.APIKeyMiddleware(apiKey))
	api.POST("/sandboxes", s.createSandbox)
	api.GET("/sandboxes", s.listSandboxes)

	// Per-sandbox routes also accept that sandbox's scoped token.
	sb := e.Group("/sandboxes/:id")
	sb.Use(auth.SandboxTokenMiddleware(apiKey, issuer))
	sb.GET("", s.getSandbox)
	sb.DELETE("", s.removeSandbox)
	sb.POST("/start", s.startSandbox)
	sb.POST("/exec", s.execCommand)
	sb.POST("/stop", s.stopSandbox)
	sb.GET("/trajectory", s.getTrajectory)
	sb.GET("/events", s.getEvents)

	// PTY
	sb.POST("/pty", s.createPTY)
	sb.GET("/pty/:sessionID", s.ptyWebSocket)
	sb.POST("/pty/:sessionID/resize", s.resizePTY)
	sb.DELETE("/pty/:sessionID", s.killPTY)

	return s
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"capacity": s.manager.Capacity(),
	})
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	return s.echo.Close()
}
