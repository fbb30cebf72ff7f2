// Package server exposes the card agent over HTTP and WebSocket, with
// mDNS auto-discovery for local clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/klangbox/card-agent/buildinfo"
	"github.com/klangbox/card-agent/protocol"
	"github.com/klangbox/card-agent/rc522"
)

// DefaultSessionTimeout bounds how long an idle client session stays
// claimed before the token is released.
const DefaultSessionTimeout = 5 * time.Minute

// Config holds the server configuration.
type Config struct {
	Watcher *rc522.Watcher

	// Events overrides the card event source. When nil the watcher's
	// channel is consumed directly; callers that fan events out to other
	// consumers pass their own tee here.
	Events <-chan rc522.CardEvent

	Port           int
	APISecret      string // optional shared secret for the handshake
	SessionTimeout time.Duration

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string
}

// Server manages the HTTP and WebSocket server.
type Server struct {
	config     Config
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc

	clients  *clientManager
	sessions *SessionManager
	upgrader websocket.Upgrader

	lastEvent *protocol.CardEventPayload
	eventMu   sync.RWMutex

	mdnsServer *zeroconf.Server
	wg         sync.WaitGroup
}

// New creates a server around a running watcher.
func New(config Config) *Server {
	if config.SessionTimeout == 0 {
		config.SessionTimeout = DefaultSessionTimeout
	}
	return &Server{
		config:   config,
		clients:  newClientManager(),
		sessions: NewSessionManager(config.APISecret, config.SessionTimeout),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local appliance, origins are not meaningful
			},
		},
	}
}

// LastEvent returns the most recent card event payload, or nil when no
// card has been seen yet.
func (s *Server) LastEvent() *protocol.CardEventPayload {
	s.eventMu.RLock()
	defer s.eventMu.RUnlock()
	return s.lastEvent
}

func (s *Server) setLastEvent(payload protocol.CardEventPayload) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	if payload.Removed {
		s.lastEvent = nil
		return
	}
	s.lastEvent = &payload
}

// enableCORS adds CORS headers and answers preflight requests.
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// Start starts the HTTP server and the event pump. It blocks until Stop
// is called.
func (s *Server) Start() error {
	log.Printf("Starting %s...", buildinfo.DisplayName)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", enableCORS(s.handleHealthCheck))
	mux.HandleFunc("/api/v1/status", enableCORS(s.handleStatus))
	mux.HandleFunc("/api/v1/session", enableCORS(s.handleSession))
	mux.HandleFunc("/ws", enableCORS(s.handleWebSocket))
	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s running", buildinfo.DisplayName)
	}))

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: mux,
	}

	go func() {
		var err error
		if s.config.CertFile != "" && s.config.KeyFile != "" {
			log.Printf("Starting server on %s (TLS)", s.httpServer.Addr)
			err = s.httpServer.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			log.Printf("Starting server on %s", s.httpServer.Addr)
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
			s.cancel()
		}
	}()

	if err := s.startMDNS(); err != nil {
		log.Printf("Warning: failed to start mDNS service: %v", err)
		log.Printf("Auto-discovery will not be available, but server will continue normally")
	}

	if s.config.Watcher != nil {
		s.wg.Add(1)
		go s.pumpEvents()
	}

	<-s.ctx.Done()
	log.Println("Server context cancelled, initiating shutdown...")
	return nil
}

// Stop stops the server gracefully.
func (s *Server) Stop() {
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		log.Printf("mDNS service stopped")
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		s.httpServer = nil
	}
	s.wg.Wait()
	s.clients.closeAll()
	s.sessions.Release()
}

// pumpEvents forwards watcher output to connected WebSocket clients.
func (s *Server) pumpEvents() {
	defer s.wg.Done()

	events := s.config.Events
	if events == nil {
		events = s.config.Watcher.Events()
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload := protocol.CardEventToPayload(ev)
			s.setLastEvent(payload)
			s.clients.broadcast(WebsocketMessage{
				Type:    WSMessageTypeCardEvent,
				Payload: payload,
			})
		case status, ok := <-s.config.Watcher.StatusUpdates():
			if !ok {
				return
			}
			s.clients.broadcast(WebsocketMessage{
				Type:    WSMessageTypeReaderStatus,
				Payload: status,
			})
		case result, ok := <-s.config.Watcher.WriteResults():
			if !ok {
				return
			}
			s.broadcastWriteResult(result)
		}
	}
}

func (s *Server) broadcastWriteResult(result rc522.WriteResult) {
	record := protocol.RecordToPayload(result.Record)
	payload := protocol.WriteResponsePayload{
		Status: result.Status.String(),
		Record: &record,
	}
	if result.Err != nil {
		payload.Error = result.Err.Error()
	} else {
		payload.Success = true
	}
	s.clients.broadcast(WebsocketMessage{
		Type:    WSMessageTypeWriteResponse,
		Payload: payload,
	})
}

// startMDNS registers the agent as an mDNS service for auto-discovery.
func (s *Server) startMDNS() error {
	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=/ws",
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, s.config.Port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mdnsServer = server
	log.Printf("mDNS service registered: %s on port %d", MDNSServiceName, s.config.Port)
	return nil
}

// remoteIP strips the port from a RemoteAddr.
func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// handleSession implements the session handshake (POST /api/v1/session).
// The first client to present the correct secret claims the agent and
// receives the token required to open the WebSocket.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token := s.sessions.Acquire(body.Secret, r.Header.Get("Origin"), remoteIP(r.RemoteAddr))
	if token == "" {
		if s.sessions.Active() {
			http.Error(w, "Session already claimed by another client", http.StatusConflict)
		} else {
			http.Error(w, "Unauthorized: invalid secret", http.StatusUnauthorized)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"token": token})
}

// handleWebSocket upgrades HTTP connections to WebSocket connections and
// manages the client connection lifecycle.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if !s.sessions.Validate(token, r.Header.Get("Origin"), remoteIP(r.RemoteAddr)) {
		log.Printf("WebSocket connection rejected: invalid session token")
		http.Error(w, "Unauthorized: invalid session token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket connected from %s", r.RemoteAddr)
	s.clients.register(conn)

	defer func() {
		s.clients.unregister(conn)
		conn.Close()
		s.sessions.Release()
		log.Printf("WebSocket disconnected, session released")
	}()

	// Send the current reader status and the last seen card so the
	// client does not have to wait for the next scan.
	if s.config.Watcher != nil {
		conn.WriteJSON(WebsocketMessage{
			Type:    WSMessageTypeReaderStatus,
			Payload: s.config.Watcher.Status(),
		})
	}
	if last := s.LastEvent(); last != nil {
		conn.WriteJSON(WebsocketMessage{
			Type:    WSMessageTypeCardEvent,
			Payload: *last,
		})
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.sessions.RefreshTimeout()

		var request WebsocketRequest
		if err := json.Unmarshal(message, &request); err != nil {
			log.Printf("Failed to parse WebSocket message: %v", err)
			s.sendErrorResponse(conn, "", protocol.ErrCodeInvalidRequest, "Invalid message format")
			continue
		}

		switch request.Type {
		case WSMessageTypeWriteRequest:
			s.handleWriteRequest(conn, request)
		default:
			log.Printf("Unknown message type: %s", request.Type)
			s.sendErrorResponse(conn, request.ID, protocol.ErrCodeInvalidRequest,
				fmt.Sprintf("Unknown message type: %s", request.Type))
		}
	}
}

// sendErrorResponse sends a structured error response to a client.
func (s *Server) sendErrorResponse(conn *websocket.Conn, requestID, errorCode, message string) {
	response := WebsocketResponse{
		ID:      requestID,
		Type:    WSMessageTypeError,
		Success: false,
		Error:   message,
		Payload: map[string]any{"code": errorCode},
	}
	if err := conn.WriteJSON(response); err != nil {
		log.Printf("Failed to send error response: %v", err)
	}
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health).
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"version":   buildinfo.Version,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleStatus reports the reader connection state (GET /api/v1/status).
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var status rc522.ReaderStatus
	if s.config.Watcher != nil {
		status = s.config.Watcher.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"reader":  status,
		"clients": s.clients.count(),
		"session": s.sessions.Active(),
	})
}
