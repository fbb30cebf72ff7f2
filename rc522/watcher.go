package rc522

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// Polling intervals and limits.
const (
	DefaultPollInterval    = 100 * time.Millisecond
	ReconnectMaxInterval   = 30 * time.Second
	ReconnectStartInterval = 500 * time.Millisecond
)

// TransportOpener opens a transport to the physical reader. The watcher
// re-opens through it whenever the device drops.
type TransportOpener interface {
	OpenTransport() (Transport, error)
}

// TransportOpenerFunc adapts a function to the TransportOpener interface.
type TransportOpenerFunc func() (Transport, error)

func (f TransportOpenerFunc) OpenTransport() (Transport, error) {
	return f()
}

// CardEvent is broadcast whenever a card arrives, leaves, or fails to
// yield a record.
type CardEvent struct {
	Card      CardID
	CardType  CardType
	Record    *Record // nil when no record could be read
	Removed   bool    // true when the card left the field
	Err       error
	ScannedAt time.Time
}

// ErrWritePending is returned by QueueWrite while a previous write has
// not been applied yet.
var ErrWritePending = errors.New("a write is already pending")

// WriteResult reports the outcome of a queued record write.
type WriteResult struct {
	Record Record
	Status Status
	Err    error
}

// ReaderStatus describes the reader connection for status consumers.
type ReaderStatus struct {
	Connected   bool   `json:"connected"`
	CardPresent bool   `json:"cardPresent"`
	Message     string `json:"message"`
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	// Opener provides transports to the physical reader.
	Opener TransportOpener
	// Keys are tried in order when authenticating the record sector.
	// Defaults to DefaultKeys.
	Keys []Key
	// AuthBlock is the block presented during authentication.
	// Defaults to RecordAuthBlock.
	AuthBlock byte
	// RecordBlock is the block holding the record.
	// Defaults to RecordBlock.
	RecordBlock byte
	// PollInterval is the field polling period.
	// Defaults to DefaultPollInterval.
	PollInterval time.Duration
}

// Watcher runs the card session protocol in a background worker: it polls
// the field, runs detect/select/authenticate/read for each new card,
// applies queued writes while a card is present, and broadcasts card
// events and reader status. One watcher owns one reader.
type Watcher struct {
	cfg     WatcherConfig
	logger  *log.Logger
	session *Session

	transport Transport
	closer    interface{ Close() error }

	dataChan   chan CardEvent
	statusChan chan ReaderStatus
	writeChan  chan WriteResult
	stopChan   chan struct{}
	workerWg   sync.WaitGroup
	stopOnce   sync.Once

	mu           sync.Mutex
	pendingWrite *Record
	lastStatus   ReaderStatus

	// presence tracking, owned by the worker goroutine
	currentUID  string
	currentCard CardID
	currentType CardType
	connected   bool
}

// NewWatcher creates a watcher; Start launches its worker.
func NewWatcher(cfg WatcherConfig, logger *log.Logger) (*Watcher, error) {
	if cfg.Opener == nil {
		return nil, fmt.Errorf("watcher needs a transport opener")
	}
	if len(cfg.Keys) == 0 {
		cfg.Keys = DefaultKeys
	}
	if cfg.AuthBlock == 0 {
		cfg.AuthBlock = RecordAuthBlock
	}
	if cfg.RecordBlock == 0 {
		cfg.RecordBlock = RecordBlock
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		cfg:        cfg,
		logger:     logger,
		dataChan:   make(chan CardEvent, 4),
		statusChan: make(chan ReaderStatus, 1),
		writeChan:  make(chan WriteResult, 1),
		stopChan:   make(chan struct{}),
	}, nil
}

// Events returns the channel card events are broadcast on.
func (w *Watcher) Events() <-chan CardEvent {
	return w.dataChan
}

// StatusUpdates returns the channel reader status updates are broadcast on.
func (w *Watcher) StatusUpdates() <-chan ReaderStatus {
	return w.statusChan
}

// WriteResults returns the channel queued-write outcomes are delivered on.
func (w *Watcher) WriteResults() <-chan WriteResult {
	return w.writeChan
}

// QueueWrite schedules the record to be written to the next present card
// (or to the card currently in the field). Only one write may be pending.
func (w *Watcher) QueueWrite(r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pendingWrite != nil {
		return ErrWritePending
	}
	w.pendingWrite = &r
	return nil
}

// Start launches the polling worker.
func (w *Watcher) Start() {
	w.workerWg.Add(1)
	go w.worker()
}

// Stop signals the worker and waits for it to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.workerWg.Wait()
}

func (w *Watcher) worker() {
	defer w.workerWg.Done()
	defer w.dropTransport("worker stopped")

	reconnect := backoff.NewExponentialBackOff()
	reconnect.InitialInterval = ReconnectStartInterval
	reconnect.MaxInterval = ReconnectMaxInterval
	reconnect.MaxElapsedTime = 0 // keep trying until stopped

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
		}

		if w.session == nil {
			if !w.connect(reconnect) {
				continue
			}
		}
		w.poll()
	}
}

// connect tries to open a transport; on failure it sleeps the current
// backoff interval (or until stopped).
func (w *Watcher) connect(reconnect *backoff.ExponentialBackOff) bool {
	transport, err := w.cfg.Opener.OpenTransport()
	if err != nil {
		wait := reconnect.NextBackOff()
		w.logger.Printf("Reader connect failed: %v (retrying in %s)", err, wait)
		w.broadcastStatus(ReaderStatus{Message: fmt.Sprintf("Connect failed: %v", err)})
		select {
		case <-w.stopChan:
		case <-time.After(wait):
		}
		return false
	}
	reconnect.Reset()
	w.transport = transport
	if closer, ok := transport.(interface{ Close() error }); ok {
		w.closer = closer
	}
	w.session = NewSession(transport)
	w.connected = true
	w.broadcastStatus(ReaderStatus{Connected: true, Message: "Reader connected"})
	return true
}

func (w *Watcher) dropTransport(reason string) {
	if w.session != nil {
		w.session.End()
		w.session = nil
	}
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			w.logger.Printf("Transport close error: %v", err)
		}
		w.closer = nil
	}
	w.transport = nil
	if w.connected {
		w.connected = false
		w.currentUID = ""
		w.currentCard = CardID{}
		w.broadcastStatus(ReaderStatus{Message: reason})
	}
}

// poll runs one protocol cycle against the field.
func (w *Watcher) poll() {
	present, st := w.session.Detect()
	if !st.OK() {
		if st == StatusProtocolError || st == StatusTimeout {
			// The reader itself may be gone; reconnect from scratch.
			w.logger.Printf("Detect failed (%s), dropping reader connection", st)
			w.dropTransport("Reader lost")
			return
		}
		return
	}

	if !present {
		if w.currentUID != "" {
			w.logger.Printf("Card removed: %s", w.currentUID)
			w.broadcast(CardEvent{
				Card:      w.currentCard,
				CardType:  w.currentType,
				Removed:   true,
				ScannedAt: time.Now(),
			})
			w.broadcastStatus(ReaderStatus{Connected: true, Message: "Card removed"})
			w.currentUID = ""
			w.currentCard = CardID{}
		}
		return
	}

	w.mu.Lock()
	pending := w.pendingWrite
	w.mu.Unlock()

	// Already handled this card and nothing to write.
	if w.currentUID != "" && pending == nil {
		return
	}

	w.processCard(pending)
}

// processCard runs select/classify/authenticate and then the read (and
// optionally the queued write) against the card in the field.
func (w *Watcher) processCard(pending *Record) {
	defer w.session.End()

	card, st := w.session.Select()
	if !st.OK() {
		// Selection failures are common while the card is entering or
		// leaving the field; retry on the next poll.
		return
	}

	cardType := card.Type()
	seen := w.currentUID == card.String()
	w.currentUID = card.String()
	w.currentCard = card
	w.currentType = cardType

	if !seen {
		w.logger.Printf("Card detected: %s (%s)", card, cardType)
		w.broadcastStatus(ReaderStatus{Connected: true, CardPresent: true,
			Message: fmt.Sprintf("Card detected (UID: %s)", card)})
	}

	if !cardType.SupportsRecord() {
		if !seen {
			w.broadcast(CardEvent{
				Card:      card,
				CardType:  cardType,
				Err:       fmt.Errorf("card type %q cannot hold a record", cardType),
				ScannedAt: time.Now(),
			})
		}
		return
	}

	if st := w.authenticate(); !st.OK() {
		if !seen {
			w.broadcast(CardEvent{
				Card:      card,
				CardType:  cardType,
				Err:       st.Err(),
				ScannedAt: time.Now(),
			})
		}
		return
	}

	if pending != nil {
		w.applyWrite(*pending)
	}

	record, st := w.session.ReadBlock(w.cfg.RecordBlock)
	if !st.OK() {
		w.broadcast(CardEvent{Card: card, CardType: cardType, Err: st.Err(), ScannedAt: time.Now()})
		return
	}
	if !seen || pending != nil {
		w.broadcast(CardEvent{Card: card, CardType: cardType, Record: &record, ScannedAt: time.Now()})
	}
}

// authenticate tries the configured keys in order.
func (w *Watcher) authenticate() Status {
	st := StatusAuthenticationFailed
	for _, key := range w.cfg.Keys {
		st = w.session.Authenticate(w.cfg.AuthBlock, key)
		if st.OK() {
			return st
		}
		if st != StatusAuthenticationFailed {
			// Session-destroying failure; no point trying further keys.
			return st
		}
	}
	return st
}

// applyWrite performs the queued write and reports the outcome.
func (w *Watcher) applyWrite(r Record) {
	st := w.session.WriteBlock(w.cfg.RecordBlock, r)

	w.mu.Lock()
	w.pendingWrite = nil
	w.mu.Unlock()

	result := WriteResult{Record: r, Status: st, Err: st.Err()}
	select {
	case w.writeChan <- result:
	default:
		w.logger.Printf("Write result dropped: no listener (status %s)", st)
	}
	if st.OK() {
		w.logger.Printf("Record written: folder %d mode %d", r.Folder, r.Mode)
	} else {
		w.logger.Printf("Record write failed: %s", st)
	}
}

func (w *Watcher) broadcast(ev CardEvent) {
	select {
	case w.dataChan <- ev:
	default:
		w.logger.Println("Warning: card event channel full, event dropped")
	}
}

func (w *Watcher) broadcastStatus(status ReaderStatus) {
	w.mu.Lock()
	w.lastStatus = status
	w.mu.Unlock()
	select {
	case w.statusChan <- status:
	default:
	}
}

// Status returns the most recently broadcast reader status.
func (w *Watcher) Status() ReaderStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastStatus
}
