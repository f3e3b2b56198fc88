// Package server exposes the chat protocol and the meeting and profile APIs over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/folio/folio/chat"
	"github.com/ZanzyTHEbar/folio/folio/config"
	"github.com/ZanzyTHEbar/folio/folio/meeting"
	"github.com/ZanzyTHEbar/folio/folio/notify"
	"github.com/rs/zerolog"
)

// TurnAdvancer runs one /chat exchange.
type TurnAdvancer interface {
	AdvanceTurn(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Meetings is the meeting API backing /api/meetings.
type Meetings interface {
	Create(ctx context.Context, req meeting.Request) (*meeting.Meeting, error)
	List(ctx context.Context) ([]meeting.Meeting, error)
	Respond(ctx context.Context, id string, status meeting.Status, confirmedBy string) (*meeting.Meeting, error)
	RequestApproval(ctx context.Context, id string) (*meeting.Meeting, meeting.Outcome, error)
}

// Profiles returns the owner profile document.
type Profiles interface {
	Get(ctx context.Context) (json.RawMessage, error)
}

// Channels resolves side channels by name for inbound webhooks.
type Channels interface {
	Get(name string) (notify.Notifier, error)
}

// Publisher accepts replies pushed by a webhook.
type Publisher interface {
	Publish(r notify.Reply) notify.Reply
}

// Deps are the services mounted by the server. Nil services leave their
// routes answering 503.
type Deps struct {
	Chat     TurnAdvancer
	Meetings Meetings
	Profiles Profiles
	Channels Channels
}

// Server routes HTTP requests onto the chat, meeting and profile services.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	logger zerolog.Logger
	router *http.ServeMux
}

func New(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "http").Logger(),
		router: http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /{$}", s.handleRoot)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("POST /chat", s.handleChat)

	s.router.HandleFunc("GET /api/profile", s.handleProfile)
	s.router.HandleFunc("GET /api/meetings", s.handleListMeetings)
	s.router.HandleFunc("POST /api/meetings", s.handleCreateMeeting)
	s.router.HandleFunc("PATCH /api/meetings/{id}", s.handleRespondMeeting)
	s.router.HandleFunc("POST /api/meetings/{id}/approval", s.handleMeetingApproval)

	s.router.HandleFunc("POST /hooks/{channel}", s.handleHook)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return chain(s.router,
		withLogger(s.logger),
		withRecovery(),
		withCORS(s.cfg.CORSOrigins),
		withMaxBody(s.cfg.MaxBodyBytes),
	)
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	s.logger.Info().Msg("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "folio chat backend is running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}
