package tls

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/klangbox/card-agent/buildinfo"
)

// BootstrapServer serves the CA certificate over plain HTTP so client
// devices can fetch and trust it before switching to TLS.
type BootstrapServer struct {
	manager    *Manager
	port       int
	httpServer *http.Server
	logger     *log.Logger
}

// NewBootstrapServer creates a bootstrap server for CA distribution.
func NewBootstrapServer(manager *Manager, port int) *BootstrapServer {
	return &BootstrapServer{
		manager: manager,
		port:    port,
		logger:  log.New(os.Stderr, "[bootstrap] ", log.LstdFlags),
	}
}

// Start starts the bootstrap HTTP server in the background.
func (s *BootstrapServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ca.pem", s.handleCACert)
	mux.HandleFunc("/ca.crt", s.handleCACert)
	mux.HandleFunc("/", s.handleInfo)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	s.logger.Printf("CA bootstrap server running on http://localhost:%d", s.port)
	if hosts, err := LANAddresses(); err == nil {
		for _, h := range hosts {
			s.logger.Printf("  http://%s:%d/ca.pem", h, s.port)
		}
	}
	if fingerprint, err := s.manager.CAFingerprint(); err == nil {
		s.logger.Printf("CA Fingerprint (SHA256): %s", fingerprint)
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Bootstrap server error: %v", err)
		}
	}()
	return nil
}

// Stop stops the bootstrap server.
func (s *BootstrapServer) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

func (s *BootstrapServer) handleCACert(w http.ResponseWriter, r *http.Request) {
	caCert, err := s.manager.ReadCACert()
	if err != nil {
		http.Error(w, "CA certificate not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Header().Set("Content-Disposition", `attachment; filename="klangbox-ca.pem"`)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(caCert)

	s.logger.Printf("CA certificate downloaded by %s", r.RemoteAddr)
}

// handleInfo serves a plain-text page with the download URL and the
// fingerprint to verify against the agent logs.
func (s *BootstrapServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	fingerprint, _ := s.manager.CAFingerprint()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%s CA certificate\n\n", buildinfo.DisplayName)
	fmt.Fprintf(w, "Download: /ca.pem\n")
	fmt.Fprintf(w, "Install it as a trusted CA on your device, then reconnect over https.\n\n")
	fmt.Fprintf(w, "Verify the SHA256 fingerprint against the agent logs before trusting:\n")
	fmt.Fprintf(w, "  %s\n", fingerprint)
}
