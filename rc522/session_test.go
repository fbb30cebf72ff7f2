package rc522

import (
	"errors"
	"testing"
)

func testCard() CardID {
	return CardID{UID: []byte{1, 2, 3, 4}, SAK: 0x08}
}

// selectCard drives a fresh session to StateSelected against the mock.
func selectCard(t *testing.T, mock *MockTransport) *Session {
	t.Helper()
	session := NewSession(mock)
	if present, st := session.Detect(); !present || !st.OK() {
		t.Fatalf("Detect() = %v, %v", present, st)
	}
	if _, st := session.Select(); !st.OK() {
		t.Fatalf("Select() = %v", st)
	}
	return session
}

func TestSessionDetect(t *testing.T) {
	mock := NewMockTransport()
	session := NewSession(mock)

	present, st := session.Detect()
	if present || !st.OK() {
		t.Errorf("Detect() with empty field = %v, %v", present, st)
	}
	if session.State() != StateAbsent {
		t.Errorf("state = %v, want absent", session.State())
	}

	mock.InsertCard(testCard())
	present, st = session.Detect()
	if !present || !st.OK() {
		t.Errorf("Detect() with card = %v, %v", present, st)
	}
	if session.State() != StateDetected {
		t.Errorf("state = %v, want detected", session.State())
	}
}

func TestSessionDetect_NoSideEffectsBeyondDetected(t *testing.T) {
	mock := NewMockTransport()
	mock.InsertCard(testCard())
	session := selectCard(t, mock)

	mock.ClearCallLog()
	present, st := session.Detect()
	if !present || !st.OK() {
		t.Errorf("Detect() = %v, %v", present, st)
	}
	if session.State() != StateSelected {
		t.Errorf("state = %v, want selected", session.State())
	}
	if len(mock.CallLog) != 0 {
		t.Errorf("Detect() beyond detected touched the transport: %v", mock.CallLog)
	}
}

func TestSessionSelect_OnlyFromDetected(t *testing.T) {
	mock := NewMockTransport()
	mock.InsertCard(testCard())
	session := NewSession(mock)

	if _, st := session.Select(); st != StatusProtocolError {
		t.Errorf("Select() from absent = %v, want protocol error", st)
	}
	if session.State() != StateAbsent {
		t.Errorf("state changed to %v", session.State())
	}
}

func TestSessionSelect_TransportFailureForcesAbsent(t *testing.T) {
	mock := NewMockTransport()
	mock.InsertCard(testCard())
	session := NewSession(mock)
	session.Detect()

	mock.SelectError = ErrTimeout
	_, st := session.Select()
	if st != StatusTimeout {
		t.Errorf("Select() = %v, want timeout", st)
	}
	if session.State() != StateAbsent {
		t.Errorf("state after select timeout = %v, want absent", session.State())
	}
}

func TestSessionAuthenticate_OnlyFromSelected(t *testing.T) {
	mock := NewMockTransport()
	mock.InsertCard(testCard())

	// From Absent.
	session := NewSession(mock)
	if st := session.Authenticate(RecordAuthBlock, KeyFactory); st != StatusProtocolError {
		t.Errorf("Authenticate() from absent = %v, want protocol error", st)
	}
	if session.State() != StateAbsent {
		t.Errorf("state = %v, want absent", session.State())
	}

	// From Detected.
	session.Detect()
	if st := session.Authenticate(RecordAuthBlock, KeyFactory); st != StatusProtocolError {
		t.Errorf("Authenticate() from detected = %v, want protocol error", st)
	}
	if session.State() != StateDetected {
		t.Errorf("state = %v, want detected", session.State())
	}

	// From Authenticated.
	session = selectCard(t, mock)
	if st := session.Authenticate(RecordAuthBlock, KeyFactory); !st.OK() {
		t.Fatalf("Authenticate() = %v", st)
	}
	if st := session.Authenticate(RecordAuthBlock, KeyFactory); st != StatusProtocolError {
		t.Errorf("Authenticate() from authenticated = %v, want protocol error", st)
	}
	if session.State() != StateAuthenticated {
		t.Errorf("state = %v, want authenticated", session.State())
	}
}

func TestSessionAuthenticate_WrongKeyIsRetryable(t *testing.T) {
	mock := NewMockTransport()
	mock.InsertCard(testCard())
	session := selectCard(t, mock)

	if st := session.Authenticate(RecordAuthBlock, KeyZero); st != StatusAuthenticationFailed {
		t.Errorf("Authenticate() with wrong key = %v, want authentication failed", st)
	}
	if session.State() != StateSelected {
		t.Errorf("state after rejected key = %v, want selected (retryable)", session.State())
	}

	// Retry with the right key succeeds.
	if st := session.Authenticate(RecordAuthBlock, KeyFactory); !st.OK() {
		t.Errorf("retry Authenticate() = %v", st)
	}
	if session.State() != StateAuthenticated {
		t.Errorf("state = %v, want authenticated", session.State())
	}
}

func TestSessionReadWrite_RequireAuthentication(t *testing.T) {
	mock := NewMockTransport()
	mock.InsertCard(testCard())
	mock.LoadRecord(RecordBlock, Record{Cookie: CookieKlangbox, Folder: 1, Mode: ModeAlbum})
	session := selectCard(t, mock)

	before := mock.BlockData(RecordBlock)

	if _, st := session.ReadBlock(RecordBlock); st != StatusNotAuthenticated {
		t.Errorf("ReadBlock() without auth = %v, want not authenticated", st)
	}
	if st := session.WriteBlock(RecordBlock, Record{Mode: ModeAlbum}); st != StatusNotAuthenticated {
		t.Errorf("WriteBlock() without auth = %v, want not authenticated", st)
	}
	if session.State() != StateSelected {
		t.Errorf("state = %v, want selected", session.State())
	}
	if mock.BlockData(RecordBlock) != before {
		t.Error("block contents changed despite refused write")
	}
}

func TestSessionReadWrite_SectorMustMatch(t *testing.T) {
	mock := NewMockTransport()
	mock.InsertCard(testCard())
	session := selectCard(t, mock)

	// Authenticated for sector 1 (blocks 4..7).
	if st := session.Authenticate(RecordAuthBlock, KeyFactory); !st.OK() {
		t.Fatalf("Authenticate() = %v", st)
	}

	// Block 8 lives in sector 2; access requires re-authentication.
	if _, st := session.ReadBlock(8); st != StatusNotAuthenticated {
		t.Errorf("cross-sector ReadBlock() = %v, want not authenticated", st)
	}
	if st := session.WriteBlock(8, Record{Mode: ModeAlbum}); st != StatusNotAuthenticated {
		t.Errorf("cross-sector WriteBlock() = %v, want not authenticated", st)
	}
	if session.State() != StateAuthenticated {
		t.Errorf("state = %v, want authenticated", session.State())
	}

	// The authenticated sector itself stays accessible.
	if _, st := session.ReadBlock(RecordBlock); !st.OK() {
		t.Errorf("in-sector ReadBlock() = %v", st)
	}
}

func TestSessionReadBlock_LengthMismatch(t *testing.T) {
	mock := NewMockTransport()
	mock.InsertCard(testCard())
	mock.ShortRead = true
	session := selectCard(t, mock)
	if st := session.Authenticate(RecordAuthBlock, KeyFactory); !st.OK() {
		t.Fatalf("Authenticate() = %v", st)
	}

	if _, st := session.ReadBlock(RecordBlock); st != StatusProtocolError {
		t.Errorf("short ReadBlock() = %v, want protocol error", st)
	}
	if session.State() != StateAuthenticated {
		t.Errorf("state after length mismatch = %v, want authenticated (unchanged)", session.State())
	}
}

func TestSessionWriteRead_FullScenario(t *testing.T) {
	mock := NewMockTransport()
	mock.InsertCard(CardID{UID: []byte{1, 2, 3, 4}, SAK: 0x08})
	session := NewSession(mock)

	if present, st := session.Detect(); !present || !st.OK() {
		t.Fatalf("Detect() = %v, %v", present, st)
	}
	card, st := session.Select()
	if !st.OK() {
		t.Fatalf("Select() = %v", st)
	}
	if card.Type() != CardTypeClassic1K {
		t.Fatalf("card type = %v, want classic 1K", card.Type())
	}
	if st := session.Authenticate(7, KeyFactory); !st.OK() {
		t.Fatalf("Authenticate(7) = %v", st)
	}

	written := Record{Cookie: 0x12345678, Version: 1, Folder: 3, Mode: 1}
	if st := session.WriteBlock(7, written); !st.OK() {
		t.Fatalf("WriteBlock() = %v", st)
	}
	got, st := session.ReadBlock(7)
	if !st.OK() {
		t.Fatalf("ReadBlock() = %v", st)
	}
	if got != written {
		t.Errorf("read back %+v, want %+v", got, written)
	}
}

func TestSessionEnd(t *testing.T) {
	mock := NewMockTransport()
	mock.InsertCard(testCard())

	states := []func(*Session){
		func(s *Session) {}, // absent
		func(s *Session) { s.Detect() },
		func(s *Session) { s.Detect(); s.Select() },
		func(s *Session) { s.Detect(); s.Select(); s.Authenticate(RecordAuthBlock, KeyFactory) },
	}

	for i, prepare := range states {
		session := NewSession(mock)
		prepare(session)
		if st := session.End(); !st.OK() {
			t.Errorf("case %d: End() = %v", i, st)
		}
		if session.State() != StateAbsent {
			t.Errorf("case %d: state after End() = %v, want absent", i, session.State())
		}
		if session.Card().Valid() {
			t.Errorf("case %d: card identifier not cleared", i)
		}
		// Idempotent.
		if st := session.End(); !st.OK() {
			t.Errorf("case %d: second End() = %v", i, st)
		}
	}
}

func TestSessionCardRemovedMidSession(t *testing.T) {
	mock := NewMockTransport()
	mock.InsertCard(testCard())
	session := selectCard(t, mock)
	if st := session.Authenticate(RecordAuthBlock, KeyFactory); !st.OK() {
		t.Fatalf("Authenticate() = %v", st)
	}

	mock.RemoveCard()
	if _, st := session.ReadBlock(RecordBlock); st.OK() {
		t.Error("ReadBlock() succeeded after card removal")
	}
	if session.State() != StateAbsent {
		t.Errorf("state after removal = %v, want absent", session.State())
	}
}

func TestSessionEvents(t *testing.T) {
	mock := NewMockTransport()
	mock.InsertCard(testCard())
	session := NewSession(mock)

	session.Detect()
	session.Select()
	session.Authenticate(RecordAuthBlock, KeyZero)    // rejected key -> error event
	session.Authenticate(RecordAuthBlock, KeyFactory) // -> authenticated event
	session.End()                                     // -> absent event

	want := []EventKind{EventPresent, EventError, EventAuthenticated, EventAbsent}
	for i, kind := range want {
		select {
		case ev := <-session.Events():
			if ev.Kind != kind {
				t.Errorf("event %d = %v, want %v", i, ev.Kind, kind)
			}
			if kind == EventError && ev.Status != StatusAuthenticationFailed {
				t.Errorf("error event status = %v, want authentication failed", ev.Status)
			}
		default:
			t.Fatalf("missing event %d (%v)", i, kind)
		}
	}
}

func TestStatusErr(t *testing.T) {
	if StatusOk.Err() != nil {
		t.Error("StatusOk.Err() should be nil")
	}
	err := StatusTimeout.Err()
	if err == nil {
		t.Fatal("StatusTimeout.Err() should not be nil")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Status != StatusTimeout {
		t.Errorf("unexpected error %v", err)
	}
	if !errors.Is(err, StatusTimeout.Err()) {
		t.Error("errors.Is should match equal statuses")
	}
}
