package feedback

import (
	"log"
	"sync"
	"time"

	"github.com/klangbox/card-agent/rc522"
)

// DefaultFrameInterval is the animation step rate.
const DefaultFrameInterval = 50 * time.Millisecond

// Strip pushes a computed frame to the physical pixels. Implementations
// wrap the LED hardware; NullStrip discards frames.
type Strip interface {
	Show(frame []Color)
}

// NullStrip is a Strip that renders nowhere.
type NullStrip struct{}

func (NullStrip) Show([]Color) {}

// Driver animates a Ring from the card watcher's event stream. It owns a
// worker goroutine stepping the animation and translating card events into
// phases.
type Driver struct {
	ring     *Ring
	strip    Strip
	logger   *log.Logger
	interval time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewDriver creates a driver for the given ring and strip.
func NewDriver(ring *Ring, strip Strip, logger *log.Logger) *Driver {
	if strip == nil {
		strip = NullStrip{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{
		ring:     ring,
		strip:    strip,
		logger:   logger,
		interval: DefaultFrameInterval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the animation worker consuming the given event stream.
func (d *Driver) Start(events <-chan rc522.CardEvent) {
	d.wg.Add(1)
	go d.worker(events)
}

// Stop halts the animation worker.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopChan)
	})
	d.wg.Wait()
}

func (d *Driver) worker(events <-chan rc522.CardEvent) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// Boot frame, then settle into idle.
	d.strip.Show(d.ring.Tick())
	d.ring.SetPhase(PhaseIdle)

	for {
		select {
		case <-d.stopChan:
			d.ring.SetPhase(PhaseIdle)
			d.strip.Show(d.ring.Tick())
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.ring.SetPhase(PhaseForEvent(ev))
		case <-ticker.C:
			d.strip.Show(d.ring.Tick())
		}
	}
}

// PhaseForEvent maps a card event onto the animation phase showing it.
func PhaseForEvent(ev rc522.CardEvent) Phase {
	switch {
	case ev.Removed:
		return PhaseIdle
	case ev.Err != nil:
		return PhaseError
	case ev.Record != nil && ev.Record.Mode == rc522.ModeAdmin:
		return PhaseAdmin
	case ev.Record != nil:
		return PhasePlaying
	default:
		return PhasePresent
	}
}
