// Package playback sequences sentence units through a synthesis backend and
// exposes transport controls with one consistent state machine for every
// backend.
package playback

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/metrics"
	"github.com/dgnsrekt/readaloud/internal/sentence"
)

// State is the transport state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Speed and volume bounds.
const (
	MinSpeed     = 0.5
	MaxSpeed     = 2.0
	DefaultSpeed = 1.0
	SpeedStep    = 0.25
	VolumeStep   = 0.1
)

// QuickSpeeds are the preset rates offered as one-key shortcuts.
var QuickSpeeds = []float64{0.75, 1.0, 1.25, 1.5, 2.0}

// Observer receives controller notifications. Callbacks run on the
// goroutine that caused the change, never while the controller is locked,
// so they may call back into the controller.
type Observer struct {
	OnStateChange    func(State)
	OnSentenceChange func(index, total int)
	OnError          func(error)
}

// Status is a point-in-time view of the controller.
type Status struct {
	State    State
	Index    int
	Total    int
	Sentence string
	Speed    float64
	Volume   float64
	Muted    bool
	Voice    string
	Backend  string
}

// Progress returns Index/Total, or 0 for an empty document.
func (s Status) Progress() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Index) / float64(s.Total)
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers notification callbacks.
func WithObserver(o Observer) Option { return func(c *Controller) { c.observer = o } }

// WithSpeed sets the initial speed.
func WithSpeed(v float64) Option { return func(c *Controller) { c.speed = clampSpeed(v) } }

// WithVolume sets the initial volume.
func WithVolume(v float64) Option { return func(c *Controller) { c.volume = clampVolume(v) } }

// WithVoice sets the initial remote voice.
func WithVoice(v string) Option { return func(c *Controller) { c.voice = v } }

// Controller owns the sentence sequence, the transport state and the audio
// output. All methods are safe for concurrent use and never panic on
// invalid input; out-of-range values are clamped.
type Controller struct {
	mu sync.Mutex

	output   audio.Output
	backend  Backend
	observer Observer

	sentences []string
	index     int
	state     State

	speed  float64
	volume float64
	muted  bool
	voice  string

	nextID uint64
	active activeUnit
	closed bool
}

// New creates a stopped controller. The controller takes ownership of out
// and b and releases both in Close.
func New(out audio.Output, b Backend, opts ...Option) *Controller {
	c := &Controller{
		output:  out,
		backend: b,
		speed:   DefaultSpeed,
		volume:  1,
	}
	for _, opt := range opts {
		opt(c)
	}
	b.SetVolume(c.effectiveVolume())
	return c
}

// notes collects observer calls made while locked so they can run after
// the lock is released.
type notes []func()

func (n *notes) state(o Observer, s State) {
	if o.OnStateChange != nil {
		*n = append(*n, func() { o.OnStateChange(s) })
	}
}

func (n *notes) sentence(o Observer, index, total int) {
	if o.OnSentenceChange != nil {
		*n = append(*n, func() { o.OnSentenceChange(index, total) })
	}
}

func (n *notes) err(o Observer, err error) {
	if o.OnError != nil {
		*n = append(*n, func() { o.OnError(err) })
	}
}

func (c *Controller) apply(fn func(n *notes)) {
	var n notes
	c.mu.Lock()
	if !c.closed {
		fn(&n)
	}
	c.mu.Unlock()
	for _, f := range n {
		f()
	}
}

// Load replaces the document text, cancelling any active unit, and returns
// the number of sentences. Empty or whitespace-only text leaves the
// controls inert.
func (c *Controller) Load(text string) int {
	sentences := sentence.Segment(text)
	c.apply(func(n *notes) {
		c.cancelLocked()
		c.sentences = sentences
		c.setIndex(n, 0, true)
		c.setState(n, Stopped)
	})
	log.Debug("Document loaded", "sentences", len(sentences))
	return len(sentences)
}

// Unload discards the document and cancels any active unit.
func (c *Controller) Unload() {
	c.Load("")
}

// Play starts or resumes playback. From Stopped it starts at the current
// index. From Paused it resumes the suspended unit, or restarts the current
// sentence when the backend has nothing to resume.
func (c *Controller) Play() {
	c.apply(func(n *notes) {
		if len(c.sentences) == 0 {
			return
		}
		switch c.state {
		case Playing:
			return
		case Paused:
			if c.active.get() != 0 {
				err := c.backend.Resume()
				if err == nil {
					c.setState(n, Playing)
					return
				}
				if !errors.Is(err, ErrNothingToResume) {
					log.Debug("Resume failed, restarting sentence", "err", err)
				}
				c.cancelLocked()
			}
		}
		c.startLocked()
		c.setState(n, Playing)
	})
}

// Pause suspends the active unit and keeps the index.
func (c *Controller) Pause() {
	c.apply(func(n *notes) {
		if c.state != Playing {
			return
		}
		if err := c.backend.Pause(); err != nil {
			// A backend that cannot suspend is silenced instead; Play will
			// restart the sentence.
			log.Debug("Pause failed, cancelling unit", "err", err)
			c.cancelLocked()
		}
		c.setState(n, Paused)
	})
}

// TogglePlay plays when stopped or paused and pauses when playing.
func (c *Controller) TogglePlay() {
	if c.Status().State == Playing {
		c.Pause()
		return
	}
	c.Play()
}

// Stop cancels the active unit and rewinds to the first sentence.
func (c *Controller) Stop() {
	c.apply(func(n *notes) {
		c.cancelLocked()
		c.setIndex(n, 0, false)
		c.setState(n, Stopped)
	})
}

// SkipForward moves to the next sentence. It is a no-op on the last one.
func (c *Controller) SkipForward() { c.skip(1) }

// SkipBack moves to the previous sentence. It is a no-op on the first one.
func (c *Controller) SkipBack() { c.skip(-1) }

// JumpTo moves to sentence i, clamped to the document.
func (c *Controller) JumpTo(i int) {
	c.apply(func(n *notes) {
		c.moveLocked(n, i)
	})
}

func (c *Controller) skip(delta int) {
	c.apply(func(n *notes) {
		c.moveLocked(n, c.index+delta)
	})
}

func (c *Controller) moveLocked(n *notes, target int) {
	total := len(c.sentences)
	if total == 0 {
		return
	}
	target = max(0, min(target, total-1))
	if target == c.index {
		return
	}

	c.setIndex(n, target, false)
	switch c.state {
	case Playing:
		c.cancelLocked()
		c.startLocked()
	case Paused:
		// The suspended unit belongs to the old sentence; Play restarts here.
		c.cancelLocked()
	}
}

// SetSpeed clamps v to [MinSpeed, MaxSpeed] and stores it. On a backend
// with live speed the current sentence restarts at the new rate. Otherwise
// ErrUnsupported is returned while a sentence is active and the new speed
// applies from the next sentence.
func (c *Controller) SetSpeed(v float64) error {
	var err error
	c.apply(func(n *notes) {
		v = clampSpeed(v)
		if v == c.speed {
			return
		}
		c.speed = v

		if c.state == Stopped {
			return
		}
		if !c.backend.LiveSpeed() {
			err = fmt.Errorf("speed change on %s backend: %w", c.backend.Name(), ErrUnsupported)
			return
		}
		c.cancelLocked()
		if c.state == Playing {
			c.startLocked()
		}
	})
	return err
}

// AdjustSpeed changes the speed by delta steps of SpeedStep.
func (c *Controller) AdjustSpeed(steps int) error {
	return c.SetSpeed(c.Status().Speed + float64(steps)*SpeedStep)
}

// SetVolume clamps v to [0, 1] and applies it live unless muted.
func (c *Controller) SetVolume(v float64) {
	c.apply(func(*notes) {
		c.volume = clampVolume(v)
		c.backend.SetVolume(c.effectiveVolume())
	})
}

// AdjustVolume changes the volume by delta steps of VolumeStep.
func (c *Controller) AdjustVolume(steps int) {
	c.SetVolume(c.Status().Volume + float64(steps)*VolumeStep)
}

// ToggleMute flips the mute flag. The stored volume is left untouched.
func (c *Controller) ToggleMute() {
	c.apply(func(*notes) {
		c.muted = !c.muted
		c.backend.SetVolume(c.effectiveVolume())
	})
}

// SetVoice selects the remote voice for later units.
func (c *Controller) SetVoice(v string) {
	c.apply(func(*notes) { c.voice = v })
}

// SetBackend swaps the synthesis backend and closes the previous one. A
// playing document continues at the current sentence on the new backend.
func (c *Controller) SetBackend(b Backend) {
	var old Backend
	c.apply(func(*notes) {
		c.cancelLocked()
		old = c.backend
		c.backend = b
		b.SetVolume(c.effectiveVolume())
		if c.state == Playing {
			c.startLocked()
		}
	})
	if old != nil && old != b {
		if err := old.Close(); err != nil {
			log.Warn("Closing previous backend failed", "backend", old.Name(), "err", err)
		}
	}
}

// EffectiveVolume is the level actually sent to the output.
func (c *Controller) EffectiveVolume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effectiveVolume()
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		State:   c.state,
		Index:   c.index,
		Total:   len(c.sentences),
		Speed:   c.speed,
		Volume:  c.volume,
		Muted:   c.muted,
		Voice:   c.voice,
		Backend: c.backend.Name(),
	}
	if c.index < len(c.sentences) {
		s.Sentence = c.sentences[c.index]
	}
	return s
}

// Sentences returns the current sentence sequence.
func (c *Controller) Sentences() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sentences...)
}

// Close cancels playback and releases the backend and the audio output.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.cancelLocked()
	c.closed = true
	c.state = Stopped
	b, out := c.backend, c.output
	c.mu.Unlock()

	errs := []error{b.Close()}
	if out != nil {
		errs = append(errs, out.Close())
	}
	return errors.Join(errs...)
}

// startLocked begins a unit for the current index.
func (c *Controller) startLocked() {
	c.nextID++
	u := Unit{
		ID:     c.nextID,
		Index:  c.index,
		Text:   c.sentences[c.index],
		Speed:  c.speed,
		Volume: c.effectiveVolume(),
		Voice:  c.voice,
		active: &c.active,
	}
	c.active.set(u.ID, u.Index)

	name := c.backend.Name()
	metrics.UnitStarted(name)
	log.Debug("Unit started", "backend", name, "unit", u.ID, "index", u.Index, "speed", u.Speed)

	c.backend.Start(u, func(err error) { c.complete(u, err) })
}

// cancelLocked cancels the active unit, if any.
func (c *Controller) cancelLocked() {
	if id := c.active.get(); id != 0 {
		c.active.clear()
		c.backend.Cancel()
		metrics.UnitCanceled(c.backend.Name())
		log.Debug("Unit cancelled", "unit", id)
	}
}

// complete handles a backend's report for unit u.
func (c *Controller) complete(u Unit, err error) {
	c.apply(func(n *notes) {
		if !c.active.is(u.ID, u.Index) {
			// Superseded units never drive a transition.
			return
		}
		c.active.clear()
		name := c.backend.Name()

		if err != nil {
			if errors.Is(err, ErrCanceled) {
				return
			}
			metrics.PlaybackError(name)
			log.Error("Playback failed", "backend", name, "index", u.Index, "err", err)
			c.setState(n, Stopped)
			n.err(c.observer, &Error{Backend: name, Index: u.Index, Err: err})
			return
		}

		metrics.UnitCompleted(name)
		if u.Index >= len(c.sentences)-1 {
			c.setIndex(n, 0, false)
			c.setState(n, Stopped)
			return
		}
		c.setIndex(n, u.Index+1, false)
		if c.state != Playing {
			// Finished just after Pause; Play starts here.
			return
		}
		c.startLocked()
	})
}

func (c *Controller) setState(n *notes, s State) {
	if c.state == s {
		return
	}
	c.state = s
	n.state(c.observer, s)
}

func (c *Controller) setIndex(n *notes, i int, force bool) {
	if c.index == i && !force {
		return
	}
	c.index = i
	n.sentence(c.observer, i, len(c.sentences))
}

func (c *Controller) effectiveVolume() float64 {
	if c.muted {
		return 0
	}
	return c.volume
}

func clampSpeed(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultSpeed
	}
	return math.Max(MinSpeed, math.Min(MaxSpeed, v))
}

func clampVolume(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
