package server

import (
	"encoding/json"
	"errors"
	"log"

	"github.com/gorilla/websocket"
	"github.com/klangbox/card-agent/protocol"
	"github.com/klangbox/card-agent/rc522"
)

// handleWriteRequest queues a record write on the watcher. The write is
// applied to the next card presented to the reader; the outcome arrives
// asynchronously as a writeResponse broadcast.
func (s *Server) handleWriteRequest(conn *websocket.Conn, request WebsocketRequest) {
	if s.config.Watcher == nil {
		s.sendErrorResponse(conn, request.ID, protocol.ErrCodeInternalError, "No reader configured")
		return
	}

	raw, err := json.Marshal(request.Payload)
	if err != nil {
		s.sendErrorResponse(conn, request.ID, protocol.ErrCodeInvalidRequest, "Invalid payload")
		return
	}

	var payload protocol.WriteRequestPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.sendErrorResponse(conn, request.ID, protocol.ErrCodeInvalidRequest, "Invalid write request payload")
		return
	}

	record := protocol.PayloadToRecord(payload.Record)
	if err := s.config.Watcher.QueueWrite(record); err != nil {
		code := protocol.ErrCodeInvalidRecord
		if errors.Is(err, rc522.ErrWritePending) {
			code = protocol.ErrCodeWritePending
		}
		log.Printf("Write request rejected: %v", err)
		s.sendErrorResponse(conn, request.ID, code, err.Error())
		return
	}

	log.Printf("Write queued for folder %d (mode %d)", record.Folder, record.Mode)
	if err := SendSuccessResponse(conn, request.ID, WSMessageTypeWriteResponse, map[string]any{
		"queued": true,
	}); err != nil {
		log.Printf("Failed to send write acknowledgement: %v", err)
	}
}
