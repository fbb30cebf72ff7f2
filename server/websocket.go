package server

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketMessage is the envelope for every message sent to clients.
type WebsocketMessage struct {
	ID      string `json:"id,omitempty"` // request id for correlation
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebsocketRequest is an incoming client request.
type WebsocketRequest struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// WebsocketResponse answers a WebsocketRequest.
type WebsocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendErrorResponse sends an error response on a WebSocket connection.
func SendErrorResponse(conn *websocket.Conn, requestID, responseType, errMsg string) error {
	return conn.WriteJSON(WebsocketResponse{
		ID:      requestID,
		Type:    responseType,
		Success: false,
		Error:   errMsg,
	})
}

// SendSuccessResponse sends a success response on a WebSocket connection.
func SendSuccessResponse(conn *websocket.Conn, requestID, responseType string, payload any) error {
	return conn.WriteJSON(WebsocketResponse{
		ID:      requestID,
		Type:    responseType,
		Success: true,
		Payload: payload,
	})
}

// clientManager tracks connected WebSocket clients and broadcasts to them.
type clientManager struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

func newClientManager() *clientManager {
	return &clientManager{clients: make(map[*websocket.Conn]bool)}
}

func (cm *clientManager) register(conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.clients[conn] = true
}

func (cm *clientManager) unregister(conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.clients, conn)
}

func (cm *clientManager) closeAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for client := range cm.clients {
		client.Close()
		delete(cm.clients, client)
	}
}

func (cm *clientManager) count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.clients)
}

// broadcast sends a message to all connected clients, dropping clients
// whose connection errors.
func (cm *clientManager) broadcast(message WebsocketMessage) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for client := range cm.clients {
		if err := client.WriteJSON(message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			client.Close()
			delete(cm.clients, client)
		}
	}
}
