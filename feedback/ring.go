// Package feedback renders card session activity as LED ring animations.
// It consumes the events the card watcher broadcasts and computes pixel
// frames; pushing frames to actual hardware is behind the Strip interface,
// so the package runs headless in tests and on development machines.
package feedback

// Color is one RGB pixel value.
type Color struct {
	R, G, B uint8
}

// Scale dims the color by s/255.
func (c Color) Scale(s uint8) Color {
	return Color{
		R: uint8(uint16(c.R) * uint16(s) / 255),
		G: uint8(uint16(c.G) * uint16(s) / 255),
		B: uint8(uint16(c.B) * uint16(s) / 255),
	}
}

var (
	Red   = Color{R: 255}
	Green = Color{G: 255}
	Blue  = Color{B: 255}
	Off   = Color{}
)

// Phase is the animation the ring is currently showing.
type Phase int

const (
	// PhaseStartup shows solid red while the agent boots.
	PhaseStartup Phase = iota
	// PhaseIdle pulses green while waiting for a card.
	PhaseIdle
	// PhasePresent pulses red while a card is being processed.
	PhasePresent
	// PhasePlaying cycles the rainbow while a record is active.
	PhasePlaying
	// PhasePaused freezes the current frame.
	PhasePaused
	// PhaseAdmin pulses blue for admin-mode cards.
	PhaseAdmin
	// PhaseError flashes red.
	PhaseError
)

var phaseNames = map[Phase]string{
	PhaseStartup: "startup",
	PhaseIdle:    "idle",
	PhasePresent: "present",
	PhasePlaying: "playing",
	PhasePaused:  "paused",
	PhaseAdmin:   "admin",
	PhaseError:   "error",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Pulse parameters.
const (
	maxBrightness     = 16
	brightnessStep    = 2
	rainbowBrightness = 80
)

// Ring computes animation frames for a pixel ring. Not safe for
// concurrent use; the Driver owns it.
type Ring struct {
	pixels int
	phase  Phase

	// pulse state
	brightness int
	rising     bool

	// rainbow state
	pixelCycle int

	frame []Color
}

// NewRing creates a ring model with the given pixel count.
func NewRing(pixels int) *Ring {
	return &Ring{
		pixels: pixels,
		phase:  PhaseStartup,
		rising: true,
		frame:  make([]Color, pixels),
	}
}

// Phase returns the current animation phase.
func (r *Ring) Phase() Phase {
	return r.phase
}

// SetPhase switches the animation. Switching resets the pulse so the new
// color fades in from dark.
func (r *Ring) SetPhase(p Phase) {
	if r.phase == p {
		return
	}
	r.phase = p
	r.brightness = 0
	r.rising = true
}

// Tick advances the animation one step and returns the frame to show.
// The returned slice is reused between calls.
func (r *Ring) Tick() []Color {
	switch r.phase {
	case PhaseStartup:
		r.fill(Red)
	case PhaseIdle:
		r.pulse(Green)
	case PhasePresent:
		r.pulse(Red)
	case PhaseAdmin:
		r.pulse(Blue)
	case PhasePlaying:
		r.rainbow()
	case PhasePaused:
		// keep the last frame
	case PhaseError:
		r.flash(Red)
	}
	return r.frame
}

func (r *Ring) fill(c Color) {
	for i := range r.frame {
		r.frame[i] = c
	}
}

// pulse breathes the color between dark and maxBrightness.
func (r *Ring) pulse(c Color) {
	if r.rising {
		r.brightness += brightnessStep
		if r.brightness >= maxBrightness {
			r.brightness = maxBrightness
			r.rising = false
		}
	} else {
		r.brightness -= brightnessStep
		if r.brightness <= 0 {
			r.brightness = 0
			r.rising = true
		}
	}
	r.fill(c.Scale(uint8(r.brightness * 255 / maxBrightness)))
}

// flash alternates the color on and off at full step rate.
func (r *Ring) flash(c Color) {
	r.rising = !r.rising
	if r.rising {
		r.fill(Off)
	} else {
		r.fill(c)
	}
}

// rainbow cycles a color wheel around the ring.
func (r *Ring) rainbow() {
	for i := range r.frame {
		pos := byte((i*256/max(r.pixels, 1) + r.pixelCycle) & 255)
		r.frame[i] = Wheel(pos).Scale(rainbowBrightness)
	}
	r.pixelCycle = (r.pixelCycle + 1) & 255
}

// Wheel maps 0..255 onto the color wheel red -> green -> blue -> red.
func Wheel(pos byte) Color {
	pos = 255 - pos
	switch {
	case pos < 85:
		return Color{R: 255 - pos*3, G: 0, B: pos * 3}
	case pos < 170:
		pos -= 85
		return Color{R: 0, G: pos * 3, B: 255 - pos*3}
	default:
		pos -= 170
		return Color{R: pos * 3, G: 255 - pos*3, B: 0}
	}
}
