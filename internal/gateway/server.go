// Package gateway exposes the agent over a websocket chat endpoint. Each
// channel maps to one conversation; tool progress streams back as status
// frames while an ask is in flight.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/raka/paceline/pkg/session"
)

const helpText = `Ask me anything about your training data. I can query the activity
database, run analysis scripts, and build reusable helpers along the way.

Commands:
- clear: start a fresh conversation
- help: show this message`

// Server serves the chat endpoint.
type Server struct {
	port         int
	sharedSecret string
	registry     *session.Registry
	server       *http.Server
	upgrader     websocket.Upgrader
	clients      *ClientRegistry
	logger       zerolog.Logger

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlight       sync.WaitGroup
}

// Config holds server configuration.
type Config struct {
	Port         int
	SharedSecret string
	Sessions     *session.Registry
	Logger       zerolog.Logger
}

// NewServer creates a chat gateway.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session registry is required")
	}

	return &Server{
		port:         cfg.Port,
		sharedSecret: cfg.SharedSecret,
		registry:     cfg.Sessions,
		clients:      NewClientRegistry(),
		logger:       cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Handler returns the HTTP handler serving /chat and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start begins serving. It does not block.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().Int("port", s.port).Msg("Starting chat gateway")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Chat gateway error")
		}
	}()

	return nil
}

// Stop drains in-flight asks and shuts the server down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down chat gateway")

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	for _, client := range s.clients.GetAll() {
		client.Conn.Close()
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Chat gateway stopped")
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		Conn:        conn,
		ConnectedAt: time.Now(),
	}
	s.clients.Add(client)

	s.logger.Info().
		Str("client_id", client.ID).
		Str("ip", r.RemoteAddr).
		Msg("Chat client connected")

	go s.handleClient(client)
}

// authorized checks the shared secret, accepted either as a bearer token or
// in the X-Paceline-Secret header.
func (s *Server) authorized(r *http.Request) bool {
	if secret := r.Header.Get("X-Paceline-Secret"); secret == s.sharedSecret {
		return true
	}
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, prefix) && auth[len(prefix):] == s.sharedSecret
}

func (s *Server) handleClient(client *Client) {
	defer func() {
		client.Conn.Close()
		s.clients.Remove(client.ID)
		s.logger.Info().Str("client_id", client.ID).Msg("Chat client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("client_id", client.ID).Msg("WebSocket error")
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			s.sendError(client, "malformed frame")
			continue
		}

		s.handleFrame(client, frame)
	}
}

// channelKey maps a frame to its conversation key. Frames without an
// explicit channel share a conversation scoped to the connection.
func (s *Server) channelKey(client *Client, frame ClientFrame) string {
	if frame.Channel != "" {
		return frame.Channel
	}
	return client.ID
}

func (s *Server) handleFrame(client *Client, frame ClientFrame) {
	switch frame.Type {
	case FrameAsk:
		text := strings.TrimSpace(frame.Text)
		if text == "" {
			s.sendError(client, "empty question")
			return
		}

		// Bare command words typed into chat work like command frames.
		switch strings.ToLower(text) {
		case "clear":
			s.handleClear(client, frame)
			return
		case "help":
			s.sendInfo(client, helpText)
			return
		}

		s.inFlight.Add(1)
		go func() {
			defer s.inFlight.Done()
			s.handleAsk(client, s.channelKey(client, frame), text)
		}()

	case FrameClear:
		s.handleClear(client, frame)

	case FrameHelp:
		s.sendInfo(client, helpText)

	default:
		s.sendError(client, fmt.Sprintf("unknown frame type %q", frame.Type))
	}
}

func (s *Server) handleAsk(client *Client, key, question string) {
	sess, err := s.registry.GetOrCreate(key)
	if err != nil {
		s.logger.Error().Err(err).Str("channel", key).Msg("Failed to get session")
		s.sendError(client, "failed to start conversation")
		return
	}

	answer, err := sess.Ask(context.Background(), question, func(status string) {
		if err := client.Send(ServerFrame{Type: FrameStatus, Text: status}); err != nil {
			s.logger.Debug().Err(err).Str("client_id", client.ID).Msg("Failed to send status frame")
		}
	})
	if err != nil {
		s.logger.Error().Err(err).Str("channel", key).Msg("Ask failed")
		s.sendError(client, fmt.Sprintf("Sorry, something went wrong: %v", err))
		return
	}

	out := ServerFrame{Type: FrameAnswer, Text: answer, Cost: sess.CostString()}
	if err := client.Send(out); err != nil {
		s.logger.Error().Err(err).Str("client_id", client.ID).Msg("Failed to send answer")
	}
}

func (s *Server) handleClear(client *Client, frame ClientFrame) {
	s.registry.Clear(s.channelKey(client, frame))
	s.sendInfo(client, "Conversation cleared.")
}

func (s *Server) sendInfo(client *Client, text string) {
	if err := client.Send(ServerFrame{Type: FrameInfo, Text: text}); err != nil {
		s.logger.Error().Err(err).Str("client_id", client.ID).Msg("Failed to send info frame")
	}
}

func (s *Server) sendError(client *Client, text string) {
	if err := client.Send(ServerFrame{Type: FrameError, Text: text}); err != nil {
		s.logger.Error().Err(err).Str("client_id", client.ID).Msg("Failed to send error frame")
	}
}
