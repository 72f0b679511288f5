// Package server implements the fieldtrack sync server: account
// management, the per-entity sync API that assigns server timestamps,
// and the WebSocket change feed that fans row changes out to a user's
// other devices.
package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"

	"github.com/fieldtrack/fieldtrack/internal/logger"
)

// Server is the sync server.
type Server struct {
	db   *sql.DB
	echo *echo.Echo
	feed *feedHub
}

// New creates a server against the given Postgres URL and runs
// migrations.
func New(dbURL string) (*Server, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &Server{
		db:   db,
		feed: newFeedHub(),
	}

	if err := s.migrate(); err != nil {
		return nil, err
	}

	s.setupEcho()

	return s, nil
}

func (s *Server) setupEcho() {
	e := echo.New()
	e.HideBanner = true

	// Custom logging middleware
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			res := c.Response()
			duration := time.Since(start)

			logger.Info("HTTP Request",
				logger.F("method", req.Method),
				logger.F("uri", req.RequestURI),
				logger.F("status", res.Status),
				logger.F("duration", duration.String()))

			// Also print to console for visibility
			fmt.Printf("REQUEST: %s %s  status=%d  duration=%s\n",
				req.Method, req.RequestURI, res.Status, duration)

			return err
		}
	})

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())

	// Health check
	e.GET("/health", s.handleHealth)

	// API v1
	api := e.Group("/api/v1")

	// Auth endpoints (public)
	api.POST("/register", s.handleRegister)
	api.POST("/login", s.handleLogin)

	// Protected endpoints
	protected := api.Group("")
	protected.Use(s.authMiddleware)
	protected.GET("/me", s.handleMe)
	protected.POST("/logout", s.handleLogout)
	protected.GET("/sync", s.handleSyncPull)
	protected.POST("/sync/jobs", s.handleSyncPushJob)
	protected.POST("/sync/clients", s.handleSyncPushClient)
	protected.GET("/feed", s.handleFeed)

	s.echo = e
}

// Close shuts down the feed hub and the database connection.
func (s *Server) Close() error {
	s.feed.close()
	return s.db.Close()
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.echo
}

// Start starts the server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
