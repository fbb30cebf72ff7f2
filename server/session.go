package server

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionManager hands out the single client session token and validates
// it on subsequent requests. First come, first served: one client owns
// the agent until it releases the token or times out.
type SessionManager struct {
	token     string
	origin    string // bound origin for the session
	ip        string // bound IP address for the session
	apiSecret string // optional shared secret for the handshake
	timeout   time.Duration
	timer     *time.Timer
	mu        sync.RWMutex
}

// NewSessionManager creates a session manager. An empty apiSecret
// disables the secret check.
func NewSessionManager(apiSecret string, timeout time.Duration) *SessionManager {
	return &SessionManager{
		apiSecret: apiSecret,
		timeout:   timeout,
	}
}

// Acquire attempts to claim the session. Returns the token on success, or
// an empty string if the session is already claimed or the secret is
// wrong. origin and remoteAddr are bound to the session when non-empty.
func (m *SessionManager) Acquire(secret, origin, remoteAddr string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.apiSecret != "" && secret != m.apiSecret {
		return ""
	}
	if m.token != "" {
		return ""
	}

	m.token = uuid.NewString()
	m.origin = origin
	m.ip = remoteAddr

	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.timeout, func() {
		m.Release()
		log.Println("Session timeout - token released")
	})

	log.Printf("Session acquired: %s... (origin: %s, ip: %s)", m.token[:8], origin, remoteAddr)
	return m.token
}

// Validate checks the token and, when bound, the origin and IP.
func (m *SessionManager) Validate(token, origin, remoteAddr string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == "" || m.token != token {
		return false
	}
	if m.origin != "" && origin != m.origin {
		log.Printf("Session validation failed: origin mismatch (expected: %s, got: %s)", m.origin, origin)
		return false
	}
	if m.ip != "" && remoteAddr != m.ip {
		log.Printf("Session validation failed: IP mismatch (expected: %s, got: %s)", m.ip, remoteAddr)
		return false
	}
	return true
}

// Release frees the session so another client can claim it. Safe to call
// when no session is active.
func (m *SessionManager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" {
		return
	}
	log.Printf("Session released: %s...", m.token[:8])
	m.token = ""
	m.origin = ""
	m.ip = ""
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// RefreshTimeout pushes the session expiry out by the full timeout.
func (m *SessionManager) RefreshTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Reset(m.timeout)
	}
}

// Active reports whether a session is currently claimed.
func (m *SessionManager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != ""
}
