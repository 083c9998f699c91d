// Package web exposes the crawler's health and status endpoints.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/blockedby/tgcrawler/internal/models"
	"github.com/blockedby/tgcrawler/internal/pool"
)

// Queue reports broker liveness.
type Queue interface {
	IsConnected() bool
}

// Config holds server configuration.
type Config struct {
	Port int
}

// Server is the HTTP status surface of the crawler process.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	config     *Config
	listener   net.Listener

	phones *pool.Registry[*models.Phone]
	chats  *pool.Registry[*models.Chat]
	queue  Queue
}

// NewServer creates the HTTP server over the live registries.
func NewServer(cfg *Config, phones *pool.Registry[*models.Phone], chats *pool.Registry[*models.Chat], queue Queue) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		config: cfg,
		phones: phones,
		chats:  chats,
		queue:  queue,
	}
	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	s.router.Get("/status", s.handleStatus)
}

type statusPhone struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Status string `json:"status"`
}

type statusChat struct {
	ID     string `json:"id"`
	Link   string `json:"link"`
	Status string `json:"status"`
}

type statusResponse struct {
	NatsConnected bool          `json:"natsConnected"`
	Phones        []statusPhone `json:"phones"`
	Chats         []statusChat  `json:"chats"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Phones: []statusPhone{},
		Chats:  []statusChat{},
	}
	if s.queue != nil {
		resp.NatsConnected = s.queue.IsConnected()
	}
	if s.phones != nil {
		for _, p := range s.phones.Snapshot() {
			resp.Phones = append(resp.Phones, statusPhone{ID: p.ID, Number: p.Number, Status: string(p.Status)})
		}
	}
	if s.chats != nil {
		for _, c := range s.chats.Snapshot() {
			resp.Chats = append(resp.Chats, statusChat{ID: c.ID, Link: c.Link, Status: string(c.Status)})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.Serve(listener)
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
