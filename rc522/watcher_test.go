package rc522

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func testWatcher(t *testing.T, mock *MockTransport) *Watcher {
	t.Helper()
	watcher, err := NewWatcher(WatcherConfig{
		Opener: TransportOpenerFunc(func() (Transport, error) {
			return mock, nil
		}),
		PollInterval: 5 * time.Millisecond,
	}, log.New(os.Stderr, "[watcher-test] ", log.LstdFlags))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	watcher.Start()
	t.Cleanup(watcher.Stop)
	return watcher
}

func waitCardEvent(t *testing.T, w *Watcher) CardEvent {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for card event")
		return CardEvent{}
	}
}

func TestWatcherReadsRecordOnCardArrival(t *testing.T) {
	mock := NewMockTransport()
	want := Record{Cookie: CookieKlangbox, Version: 2, Folder: 7, Mode: ModeAudiobook}
	mock.LoadRecord(RecordBlock, want)

	watcher := testWatcher(t, mock)

	mock.InsertCard(CardID{UID: []byte{0xDE, 0xAD, 0xBE, 0xEF}, SAK: 0x08})

	ev := waitCardEvent(t, watcher)
	if ev.Err != nil {
		t.Fatalf("card event error: %v", ev.Err)
	}
	if ev.Record == nil || *ev.Record != want {
		t.Errorf("record = %+v, want %+v", ev.Record, want)
	}
	if ev.CardType != CardTypeClassic1K {
		t.Errorf("card type = %v, want classic 1K", ev.CardType)
	}
	if ev.Card.String() != "DE:AD:BE:EF" {
		t.Errorf("uid = %q", ev.Card.String())
	}
}

func TestWatcherEmitsRemoval(t *testing.T) {
	mock := NewMockTransport()
	mock.LoadRecord(RecordBlock, Record{Cookie: CookieKlangbox, Mode: ModeAlbum})
	watcher := testWatcher(t, mock)

	mock.InsertCard(testCard())
	if ev := waitCardEvent(t, watcher); ev.Removed {
		t.Fatal("first event should be an arrival")
	}

	mock.RemoveCard()
	ev := waitCardEvent(t, watcher)
	if !ev.Removed {
		t.Errorf("expected removal event, got %+v", ev)
	}
}

func TestWatcherUnsupportedCardType(t *testing.T) {
	mock := NewMockTransport()
	watcher := testWatcher(t, mock)

	mock.InsertCard(CardID{UID: []byte{1, 2, 3, 4, 5, 6, 7}, SAK: 0x00}) // Ultralight

	ev := waitCardEvent(t, watcher)
	if ev.Err == nil {
		t.Error("expected an error event for an ultralight card")
	}
	if ev.Record != nil {
		t.Errorf("record should be nil, got %+v", ev.Record)
	}
}

func TestWatcherQueuedWrite(t *testing.T) {
	mock := NewMockTransport()
	mock.LoadRecord(RecordBlock, Record{Cookie: CookieKlangbox, Folder: 1, Mode: ModeAlbum})
	watcher := testWatcher(t, mock)

	mock.InsertCard(testCard())
	waitCardEvent(t, watcher) // arrival with the old record

	update := Record{Cookie: CookieKlangbox, Version: 1, Folder: 9, Mode: ModeParty}
	if err := watcher.QueueWrite(update); err != nil {
		t.Fatalf("QueueWrite failed: %v", err)
	}

	select {
	case result := <-watcher.WriteResults():
		if !result.Status.OK() {
			t.Fatalf("write result = %v", result.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write result")
	}

	// The write is followed by a re-read broadcast of the new record.
	ev := waitCardEvent(t, watcher)
	if ev.Record == nil || *ev.Record != update {
		t.Errorf("record after write = %+v, want %+v", ev.Record, update)
	}
	if got := mock.BlockData(RecordBlock); DecodeBlock(got[:]) != update {
		t.Errorf("card block holds %+v, want %+v", DecodeBlock(got[:]), update)
	}
}

func TestWatcherQueueWriteValidates(t *testing.T) {
	mock := NewMockTransport()
	watcher, err := NewWatcher(WatcherConfig{
		Opener: TransportOpenerFunc(func() (Transport, error) { return mock, nil }),
	}, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	if err := watcher.QueueWrite(Record{Mode: 0}); err == nil {
		t.Error("expected validation error for mode 0")
	}
	if err := watcher.QueueWrite(Record{Mode: ModeAlbum}); err != nil {
		t.Errorf("QueueWrite failed: %v", err)
	}
	if err := watcher.QueueWrite(Record{Mode: ModeParty}); err == nil {
		t.Error("expected error for second pending write")
	}
}

func TestWatcherReconnects(t *testing.T) {
	mock := NewMockTransport()
	mock.LoadRecord(RecordBlock, Record{Cookie: CookieKlangbox, Mode: ModeAlbum})

	var attempts atomic.Int32
	watcher, err := NewWatcher(WatcherConfig{
		Opener: TransportOpenerFunc(func() (Transport, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("reader unplugged")
			}
			return mock, nil
		}),
		PollInterval: 5 * time.Millisecond,
	}, log.New(os.Stderr, "[watcher-test] ", log.LstdFlags))
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	watcher.Start()
	t.Cleanup(watcher.Stop)

	mock.InsertCard(testCard())
	ev := waitCardEvent(t, watcher)
	if ev.Err != nil {
		t.Fatalf("card event error after reconnect: %v", ev.Err)
	}
	if got := attempts.Load(); got < 2 {
		t.Errorf("opener attempts = %d, want at least 2", got)
	}
}

func TestWatcherRequiresOpener(t *testing.T) {
	if _, err := NewWatcher(WatcherConfig{}, nil); err == nil {
		t.Error("expected error for missing opener")
	}
}

func ExampleWatcher() {
	mock := NewMockTransport()
	mock.LoadRecord(RecordBlock, Record{Cookie: CookieKlangbox, Folder: 3, Mode: ModeAlbum})

	watcher, _ := NewWatcher(WatcherConfig{
		Opener:       TransportOpenerFunc(func() (Transport, error) { return mock, nil }),
		PollInterval: time.Millisecond,
	}, nil)
	watcher.Start()
	defer watcher.Stop()

	mock.InsertCard(CardID{UID: []byte{1, 2, 3, 4}, SAK: 0x08})
	ev := <-watcher.Events()
	fmt.Printf("folder %d\n", ev.Record.Folder)
	// Output: folder 3
}
