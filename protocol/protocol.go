// Package protocol defines the wire types the agent exchanges with its
// clients. It is importable by external tools without pulling in the
// server or reader dependencies.
package protocol

import "time"

// RecordPayload is the JSON shape of the on-card record.
type RecordPayload struct {
	Cookie   uint32 `json:"cookie"`
	Version  byte   `json:"version"`
	Folder   byte   `json:"folder"`
	Mode     byte   `json:"mode"`
	Special  byte   `json:"special"`
	Special2 byte   `json:"special2"`
}

// CardEventPayload is broadcast to clients whenever a card arrives,
// leaves, or fails to yield a record.
type CardEventPayload struct {
	// UID is the card identifier as colon-separated uppercase hex
	// (e.g. "04:AB:CD:EF").
	UID string `json:"uid"`

	// Type is the card's storage class name (e.g. "MIFARE Classic 1K").
	Type string `json:"type"`

	// Removed is true when the card left the field.
	Removed bool `json:"removed,omitempty"`

	// Record is the decoded record, when one could be read.
	Record *RecordPayload `json:"record,omitempty"`

	// Err carries the failure when the record could not be read.
	Err string `json:"err,omitempty"`

	// ScannedAt is the time the event was observed by the agent.
	ScannedAt time.Time `json:"scannedAt"`
}

// WriteRequestPayload asks the agent to write a record to the next
// presented card.
type WriteRequestPayload struct {
	Record RecordPayload `json:"record"`
}

// WriteResponsePayload reports the outcome of a write request.
type WriteResponsePayload struct {
	Success bool           `json:"success"`
	Status  string         `json:"status,omitempty"`
	Record  *RecordPayload `json:"record,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Error codes used in HTTP/WS error responses.
const (
	ErrCodeInvalidRecord  = "INVALID_RECORD"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeWritePending   = "WRITE_PENDING"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)
