// Package rc522 implements the card session protocol of the klangbox
// audio appliance: detection, selection, authentication-gated block access
// and the binary layout of the on-card record, driven through an abstract
// reader transport so the engine can run against real hardware or a mock.
package rc522

import "errors"

// Sentinel errors a Transport may return. The session engine maps these
// onto the Status taxonomy; anything unrecognized becomes
// StatusProtocolError.
var (
	// ErrTimeout is returned when the reader did not answer in time.
	ErrTimeout = errors.New("rc522: transport timeout")
	// ErrCollision is returned when multiple cards answered.
	ErrCollision = errors.New("rc522: collision")
	// ErrAuthFailed is returned when the card rejected the presented key.
	ErrAuthFailed = errors.New("rc522: authentication rejected")
	// ErrCardGone is returned when the card left the field mid-operation.
	ErrCardGone = errors.New("rc522: card removed")
	// ErrCRC is returned on a CRC_A check failure.
	ErrCRC = errors.New("rc522: crc mismatch")
	// ErrBufferTooSmall is returned when a transfer buffer is undersized.
	ErrBufferTooSmall = errors.New("rc522: buffer too small")
	// ErrNoDevice is returned when the physical reader is not reachable.
	ErrNoDevice = errors.New("rc522: no reader device")
)

// Transport is the reader capability the session engine is driven through.
// Implementations wrap a physical MFRC522-class reader (see
// LibnfcTransport) or simulate one (see MockTransport). All calls are
// expected to complete or fail within a bounded window; none of them may
// block indefinitely.
type Transport interface {
	// DetectCard reports whether a card is answering in the field.
	DetectCard() (bool, error)

	// SelectCard runs anticollision/select and returns the card identity.
	SelectCard() (CardID, error)

	// Authenticate presents key for the sector containing block.
	Authenticate(block byte, key Key) error

	// StopAuthentication drops the active crypto unit state, if any.
	StopAuthentication()

	// ReadRaw reads the block including any transport-appended integrity
	// suffix. The returned slice must be exactly expectedLen bytes.
	ReadRaw(block byte, expectedLen int) ([]byte, error)

	// WriteRaw writes the raw block bytes.
	WriteRaw(block byte, data []byte) error

	// Deselect halts the card and releases the selection.
	Deselect()
}

// statusFromError maps a transport error onto the status taxonomy.
func statusFromError(err error) Status {
	switch {
	case err == nil:
		return StatusOk
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	case errors.Is(err, ErrCollision):
		return StatusCollision
	case errors.Is(err, ErrAuthFailed):
		return StatusAuthenticationFailed
	case errors.Is(err, ErrCRC):
		return StatusCRCMismatch
	case errors.Is(err, ErrBufferTooSmall):
		return StatusBufferTooSmall
	default:
		return StatusProtocolError
	}
}
