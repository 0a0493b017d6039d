package playback

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrCanceled marks a unit that was deliberately stopped. It is never
	// reported to observers.
	ErrCanceled = errors.New("playback unit canceled")

	// ErrUnsupported is returned when the active backend cannot honor a
	// control, such as a live speed change on the remote backend.
	ErrUnsupported = errors.New("not supported by this backend")

	// ErrNothingToResume is returned by Backend.Resume when no suspended unit
	// exists. The controller then restarts the current sentence.
	ErrNothingToResume = errors.New("nothing to resume")
)

// Unit is one synthesis-and-playback operation for exactly one sentence.
type Unit struct {
	ID     uint64
	Index  int
	Text   string
	Speed  float64
	Volume float64 // effective volume: zero while muted
	Voice  string

	active *activeUnit
}

// Current reports whether the unit is still the one the controller is
// waiting on. Backends use it to drop results for superseded sentences. It
// never blocks, so it is safe to call from any backend method.
func (u Unit) Current() bool {
	if u.active == nil {
		return true
	}
	return u.active.is(u.ID, u.Index)
}

// Backend synthesizes and plays sentence units.
//
// Start must return promptly and must not call done before returning. done
// is called at most once per unit, from another goroutine; it may be skipped
// for a unit that is no longer current. Backends must not hold their own
// locks while calling done.
type Backend interface {
	Name() string
	Start(u Unit, done func(error))
	// Pause suspends the active unit.
	Pause() error
	// Resume continues a paused unit or returns ErrNothingToResume.
	Resume() error
	// Cancel ends the active unit. Its done, if called, receives ErrCanceled.
	Cancel()
	// SetVolume applies an effective volume to the active and later units.
	SetVolume(v float64)
	// LiveSpeed reports whether speed changes take effect by restarting the
	// current sentence. Backends that return false keep the new speed for
	// the next unit only.
	LiveSpeed() bool
	Close() error
}

// Error is what observers receive when a unit fails.
type Error struct {
	Backend string
	Index   int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s playback of sentence %d: %v", e.Backend, e.Index+1, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// activeUnit holds the ID and index of the unit the controller currently
// accepts completions from. Zero ID means none.
type activeUnit struct {
	id    atomic.Uint64
	index atomic.Int64
}

func (a *activeUnit) set(id uint64, index int) {
	a.index.Store(int64(index))
	a.id.Store(id)
}

func (a *activeUnit) clear() { a.id.Store(0) }

func (a *activeUnit) is(id uint64, index int) bool {
	return id != 0 && a.id.Load() == id && a.index.Load() == int64(index)
}

func (a *activeUnit) get() uint64 { return a.id.Load() }
