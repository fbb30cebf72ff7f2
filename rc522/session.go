package rc522

// State is the card session state. Reads and writes are only valid in
// StateAuthenticated; authentication is only valid from StateSelected.
// Any transport failure that makes the card unreliable forces StateAbsent.
type State int

const (
	StateAbsent State = iota
	StateDetected
	StateSelected
	StateAuthenticated
)

var stateNames = map[State]string{
	StateAbsent:        "absent",
	StateDetected:      "detected",
	StateSelected:      "selected",
	StateAuthenticated: "authenticated",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "invalid"
}

// EventKind labels a session transition event.
type EventKind int

const (
	// EventPresent fires when a card enters the field.
	EventPresent EventKind = iota
	// EventAbsent fires when the session ends or the card leaves.
	EventAbsent
	// EventAuthenticated fires after a successful authentication.
	EventAuthenticated
	// EventError fires when an operation returns a non-Ok status.
	EventError
)

var eventNames = map[EventKind]string{
	EventPresent:       "present",
	EventAbsent:        "absent",
	EventAuthenticated: "authenticated",
	EventError:         "error",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is a session-state transition, delivered to whoever listens on
// Session.Events. The presentation layer (LED ring, tray icon) consumes
// these; the engine does not care how they are rendered.
type Event struct {
	Kind   EventKind
	Status Status // meaningful for EventError
	Card   CardID // meaningful for EventPresent / EventAuthenticated
}

const eventBufferSize = 16

// Session owns the state machine mediating every card operation. It is
// single-threaded and non-reentrant: one in-flight operation against one
// reader and one card, serialized by the caller.
type Session struct {
	transport Transport
	state     State
	card      CardID

	// authSector is the sector granted by the last successful
	// authentication, or -1 when none is.
	authSector int

	events chan Event
}

// NewSession creates a session engine over the given transport.
func NewSession(t Transport) *Session {
	return &Session{
		transport:  t,
		state:      StateAbsent,
		authSector: -1,
		events:     make(chan Event, eventBufferSize),
	}
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state
}

// Card returns the identifier of the selected card. The zero CardID is
// returned before selection and after the session ends.
func (s *Session) Card() CardID {
	return s.card
}

// Events returns the channel session transition events are delivered on.
// Sends are non-blocking; events are dropped when no one is listening.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// fail emits an error event and returns the status.
func (s *Session) fail(st Status) Status {
	s.emit(Event{Kind: EventError, Status: st})
	return st
}

// abort tears the session down after a failure that implies the card may
// no longer be reliably addressable.
func (s *Session) abort(st Status) Status {
	wasPresent := s.state >= StateSelected
	s.reset()
	if wasPresent {
		s.emit(Event{Kind: EventAbsent})
	}
	return s.fail(st)
}

func (s *Session) reset() {
	s.state = StateAbsent
	s.card = CardID{}
	s.authSector = -1
}

// Detect queries the transport for a card in the field. From StateAbsent a
// present card moves the session to StateDetected; beyond StateDetected the
// call has no side effects. A card that stopped answering, or any transport
// failure, forces StateAbsent.
func (s *Session) Detect() (bool, Status) {
	if s.state > StateDetected {
		return true, StatusOk
	}

	present, err := s.transport.DetectCard()
	if err != nil {
		return false, s.abort(statusFromError(err))
	}
	if !present {
		// No Present event has fired yet at this point, so none is
		// mirrored with an Absent one.
		s.reset()
		return false, StatusOk
	}
	s.state = StateDetected
	return true, StatusOk
}

// Select runs anticollision/select on the detected card and records its
// identity. Valid only from StateDetected. Any transport failure during
// selection destroys the session: the card may already be gone.
func (s *Session) Select() (CardID, Status) {
	if s.state != StateDetected {
		return CardID{}, s.fail(StatusProtocolError)
	}

	card, err := s.transport.SelectCard()
	if err != nil {
		return CardID{}, s.abort(statusFromError(err))
	}
	if !card.Valid() {
		return CardID{}, s.abort(StatusProtocolError)
	}

	s.card = card
	s.state = StateSelected
	s.emit(Event{Kind: EventPresent, Card: card})
	return card, StatusOk
}

// Authenticate presents key for the sector containing block. Valid only
// from StateSelected. A rejected key returns StatusAuthenticationFailed
// and leaves the session Selected so the caller may retry with another
// key; any other transport failure destroys the session.
func (s *Session) Authenticate(block byte, key Key) Status {
	if s.state != StateSelected {
		return s.fail(StatusProtocolError)
	}

	if err := s.transport.Authenticate(block, key); err != nil {
		st := statusFromError(err)
		if st == StatusAuthenticationFailed {
			return s.fail(st)
		}
		return s.abort(st)
	}

	s.authSector = int(SectorOf(block))
	s.state = StateAuthenticated
	s.emit(Event{Kind: EventAuthenticated, Card: s.card})
	return StatusOk
}

// ReadBlock reads and decodes the record block. Valid only from
// StateAuthenticated and only inside the authenticated sector; crossing
// into another sector requires re-authentication. A length mismatch from
// the transport is a protocol error and leaves the state unchanged.
func (s *Session) ReadBlock(block byte) (Record, Status) {
	if st := s.checkAccess(block); st != StatusOk {
		return Record{}, s.fail(st)
	}

	data, err := s.transport.ReadRaw(block, ReadBlockSize)
	if err != nil {
		return Record{}, s.abort(statusFromError(err))
	}
	if len(data) != ReadBlockSize {
		return Record{}, s.fail(StatusProtocolError)
	}
	return DecodeBlock(data), StatusOk
}

// WriteBlock encodes the record and writes it to the block, under the same
// state and sector rules as ReadBlock.
func (s *Session) WriteBlock(block byte, r Record) Status {
	if st := s.checkAccess(block); st != StatusOk {
		return s.fail(st)
	}

	data := EncodeBlock(r)
	if err := s.transport.WriteRaw(block, data[:]); err != nil {
		return s.abort(statusFromError(err))
	}
	return StatusOk
}

func (s *Session) checkAccess(block byte) Status {
	if s.state != StateAuthenticated {
		return StatusNotAuthenticated
	}
	if int(SectorOf(block)) != s.authSector {
		return StatusNotAuthenticated
	}
	return StatusOk
}

// End terminates the session: crypto unit stopped, card halted, identifier
// and authenticated sector cleared, state back to StateAbsent. Idempotent
// and always Ok.
func (s *Session) End() Status {
	if s.state == StateAbsent {
		return StatusOk
	}
	wasPresent := s.state >= StateSelected
	s.transport.StopAuthentication()
	s.transport.Deselect()
	s.reset()
	if wasPresent {
		s.emit(Event{Kind: EventAbsent})
	}
	return StatusOk
}
