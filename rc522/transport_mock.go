package rc522

import (
	"fmt"
	"sync"
)

// MockTransport is a test implementation of Transport that simulates an
// MFRC522-class reader with one card slot. It allows exercising the
// session engine without hardware: scripted card insertion/removal, a
// per-sector key policy, a block store with the 18-byte read framing, and
// per-operation error injection.
//
// Example:
//
//	mock := NewMockTransport()
//	mock.InsertCard(CardID{UID: []byte{1, 2, 3, 4}, SAK: 0x08})
//	session := NewSession(mock)
type MockTransport struct {
	// CardPresent tracks whether a card is currently in the field.
	CardPresent bool

	// Card is the identity returned by SelectCard.
	Card CardID

	// SectorKeys maps sector -> accepted key. Sectors without an entry
	// accept KeyFactory.
	SectorKeys map[byte]Key

	// Blocks is the card's block store, 16 bytes per block.
	Blocks map[byte][WriteBlockSize]byte

	// DetectError, SelectError, AuthError, ReadError, WriteError inject
	// failures into the corresponding operations.
	DetectError error
	SelectError error
	AuthError   error
	ReadError   error
	WriteError  error

	// ShortRead, if set, makes ReadRaw return one byte fewer than asked,
	// to exercise length validation.
	ShortRead bool

	// CallLog tracks operations for verification in tests.
	CallLog []string

	authenticated bool

	mu sync.Mutex
}

// NewMockTransport creates a MockTransport with an empty field.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		SectorKeys: make(map[byte]Key),
		Blocks:     make(map[byte][WriteBlockSize]byte),
		CallLog:    make([]string, 0),
	}
}

// InsertCard puts a card into the field.
func (m *MockTransport) InsertCard(card CardID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CardPresent = true
	m.Card = card
	m.authenticated = false
}

// RemoveCard takes the card out of the field and drops crypto state.
func (m *MockTransport) RemoveCard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CardPresent = false
	m.Card = CardID{}
	m.authenticated = false
}

// LoadRecord encodes a record into the given block of the simulated card.
func (m *MockTransport) LoadRecord(block byte, r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Blocks[block] = EncodeBlock(r)
}

// BlockData returns a copy of the stored block bytes.
func (m *MockTransport) BlockData(block byte) [WriteBlockSize]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Blocks[block]
}

func (m *MockTransport) log(call string) {
	m.CallLog = append(m.CallLog, call)
}

// ClearCallLog resets the recorded call log.
func (m *MockTransport) ClearCallLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = m.CallLog[:0]
}

// DetectCard reports the simulated card presence.
func (m *MockTransport) DetectCard() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("DetectCard")
	if m.DetectError != nil {
		return false, m.DetectError
	}
	return m.CardPresent, nil
}

// SelectCard returns the simulated card identity.
func (m *MockTransport) SelectCard() (CardID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("SelectCard")
	if m.SelectError != nil {
		return CardID{}, m.SelectError
	}
	if !m.CardPresent {
		return CardID{}, ErrCardGone
	}
	return m.Card, nil
}

// Authenticate checks the presented key against the sector policy.
func (m *MockTransport) Authenticate(block byte, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log(fmt.Sprintf("Authenticate(%d)", block))
	if m.AuthError != nil {
		return m.AuthError
	}
	if !m.CardPresent {
		return ErrCardGone
	}
	want, ok := m.SectorKeys[SectorOf(block)]
	if !ok {
		want = KeyFactory
	}
	if key != want {
		return ErrAuthFailed
	}
	m.authenticated = true
	return nil
}

// StopAuthentication drops the simulated crypto unit state.
func (m *MockTransport) StopAuthentication() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("StopAuthentication")
	m.authenticated = false
}

// ReadRaw returns the block bytes framed with a CRC_A-sized suffix.
func (m *MockTransport) ReadRaw(block byte, expectedLen int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log(fmt.Sprintf("ReadRaw(%d)", block))
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	if !m.CardPresent {
		return nil, ErrCardGone
	}
	if !m.authenticated {
		return nil, ErrAuthFailed
	}
	data := m.Blocks[block]
	out := make([]byte, expectedLen)
	copy(out, data[:])
	if m.ShortRead {
		out = out[:expectedLen-1]
	}
	return out, nil
}

// WriteRaw stores the block bytes.
func (m *MockTransport) WriteRaw(block byte, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log(fmt.Sprintf("WriteRaw(%d)", block))
	if m.WriteError != nil {
		return m.WriteError
	}
	if !m.CardPresent {
		return ErrCardGone
	}
	if !m.authenticated {
		return ErrAuthFailed
	}
	if len(data) != WriteBlockSize {
		return ErrBufferTooSmall
	}
	var stored [WriteBlockSize]byte
	copy(stored[:], data)
	m.Blocks[block] = stored
	return nil
}

// Deselect halts the simulated card.
func (m *MockTransport) Deselect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("Deselect")
	m.authenticated = false
}
