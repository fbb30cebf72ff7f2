package rc522

import "fmt"

// Status is the result of a single card session operation. Every operation
// on a Session returns exactly one Status; there are no partial successes.
type Status int

const (
	// StatusOk indicates the operation completed successfully.
	StatusOk Status = iota
	// StatusProtocolError indicates a generic transport or communication
	// failure, including operations invoked outside their valid state.
	StatusProtocolError
	// StatusCollision indicates more than one card answered in the field.
	StatusCollision
	// StatusTimeout indicates the reader did not answer within the
	// configured window.
	StatusTimeout
	// StatusBufferTooSmall indicates a buffer was too small for the
	// requested transfer.
	StatusBufferTooSmall
	// StatusInvalidArgument indicates a malformed argument (bad key or
	// block address).
	StatusInvalidArgument
	// StatusCRCMismatch indicates the CRC_A suffix did not match.
	StatusCRCMismatch
	// StatusAuthenticationFailed indicates the presented key was rejected
	// for the target sector. Recoverable: the session stays Selected.
	StatusAuthenticationFailed
	// StatusNotAuthenticated indicates a read or write was attempted
	// without a matching prior authentication.
	StatusNotAuthenticated
)

var statusNames = map[Status]string{
	StatusOk:                   "ok",
	StatusProtocolError:        "protocol error",
	StatusCollision:            "collision",
	StatusTimeout:              "timeout",
	StatusBufferTooSmall:       "buffer too small",
	StatusInvalidArgument:      "invalid argument",
	StatusCRCMismatch:          "crc mismatch",
	StatusAuthenticationFailed: "authentication failed",
	StatusNotAuthenticated:     "not authenticated",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// OK reports whether the status is StatusOk.
func (s Status) OK() bool {
	return s == StatusOk
}

// Err returns nil for StatusOk and a StatusError wrapping s otherwise,
// for callers that want to thread a Status through error-returning code.
func (s Status) Err() error {
	if s == StatusOk {
		return nil
	}
	return &StatusError{Status: s}
}

// StatusError carries a non-Ok Status as a Go error.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return "rc522: " + e.Status.String()
}

// Is matches two StatusErrors by their Status, so
// errors.Is(err, StatusTimeout.Err()) works.
func (e *StatusError) Is(target error) bool {
	if t, ok := target.(*StatusError); ok {
		return e.Status == t.Status
	}
	return false
}
