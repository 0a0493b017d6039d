package playback

import (
	"errors"
	"sync"
	"testing"

	"github.com/dgnsrekt/readaloud/internal/audio"
)

// fakeBackend records started units and lets tests finish them by hand.
type fakeBackend struct {
	mu sync.Mutex

	name     string
	live     bool
	started  []Unit
	dones    []func(error)
	paused   bool
	resumeOK bool
	pauseErr error
	cancels  int
	volumes  []float64
	closed   bool
}

func newFake(live bool) *fakeBackend {
	return &fakeBackend{name: "fake", live: live, resumeOK: true}
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Start(u Unit, done func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, u)
	f.dones = append(f.dones, done)
	f.paused = false
}

func (f *fakeBackend) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pauseErr != nil {
		return f.pauseErr
	}
	f.paused = true
	return nil
}

func (f *fakeBackend) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resumeOK || !f.paused {
		return ErrNothingToResume
	}
	f.paused = false
	return nil
}

func (f *fakeBackend) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	f.paused = false
}

func (f *fakeBackend) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, v)
}

func (f *fakeBackend) LiveSpeed() bool { return f.live }

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBackend) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func (f *fakeBackend) unit(i int) Unit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started[i]
}

func (f *fakeBackend) last() Unit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started[len(f.started)-1]
}

// finish reports err for the i-th started unit.
func (f *fakeBackend) finish(i int, err error) {
	f.mu.Lock()
	done := f.dones[i]
	f.mu.Unlock()
	done(err)
}

func (f *fakeBackend) finishLast(err error) {
	f.finish(f.startCount()-1, err)
}

func (f *fakeBackend) lastVolume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volumes[len(f.volumes)-1]
}

type recorder struct {
	mu        sync.Mutex
	states    []State
	sentences []int
	errs      []error
}

func (r *recorder) observer() Observer {
	return Observer{
		OnStateChange: func(s State) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
		OnSentenceChange: func(i, _ int) {
			r.mu.Lock()
			r.sentences = append(r.sentences, i)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func newController(t *testing.T, b Backend, opts ...Option) *Controller {
	t.Helper()
	c := New(audio.NewMockPlayer(audio.MockCallbacks{}), b, opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPlayThroughDocument(t *testing.T) {
	fb := newFake(true)
	rec := &recorder{}
	c := newController(t, fb, WithObserver(rec.observer()))

	if n := c.Load("Hello world. How are you? Great!"); n != 3 {
		t.Fatalf("Load() = %d, want 3", n)
	}

	c.Play()
	if got := c.Status(); got.State != Playing || got.Index != 0 {
		t.Fatalf("after Play: %+v", got)
	}
	if fb.last().Text != "Hello world." {
		t.Errorf("first unit text = %q", fb.last().Text)
	}

	fb.finishLast(nil)
	if got := c.Status(); got.Index != 1 || got.State != Playing {
		t.Fatalf("after first completion: %+v", got)
	}
	fb.finishLast(nil)
	fb.finishLast(nil)

	got := c.Status()
	if got.State != Stopped || got.Index != 0 {
		t.Errorf("after last completion: state=%v index=%d, want stopped at 0", got.State, got.Index)
	}
	if n := fb.startCount(); n != 3 {
		t.Errorf("units started = %d, want 3", n)
	}

	wantStates := []State{Playing, Stopped}
	if len(rec.states) != len(wantStates) {
		t.Fatalf("states = %v, want %v", rec.states, wantStates)
	}
	for i, s := range wantStates {
		if rec.states[i] != s {
			t.Errorf("states[%d] = %v, want %v", i, rec.states[i], s)
		}
	}
}

func TestCompletionCountMatchesSentences(t *testing.T) {
	for _, n := range []int{1, 2, 5, 8} {
		fb := newFake(true)
		c := newController(t, fb)

		text := ""
		for i := 0; i < n; i++ {
			text += "Sentence number. "
		}
		if got := c.Load(text); got != n {
			t.Fatalf("Load() = %d, want %d", got, n)
		}

		c.Play()
		for i := 0; i < n; i++ {
			fb.finishLast(nil)
		}
		st := c.Status()
		if st.State != Stopped || st.Index != 0 {
			t.Errorf("n=%d: %v at %d, want stopped at 0", n, st.State, st.Index)
		}
		if fb.startCount() > n {
			t.Errorf("n=%d: %d units started", n, fb.startCount())
		}
	}
}

func TestSkipBounds(t *testing.T) {
	fb := newFake(true)
	c := newController(t, fb)
	c.Load("One. Two. Three.")

	c.Play()
	c.SkipBack()
	if got := c.Status().Index; got != 0 {
		t.Errorf("SkipBack at 0: index = %d", got)
	}
	if fb.startCount() != 1 {
		t.Errorf("SkipBack at 0 restarted unit: %d starts", fb.startCount())
	}

	c.SkipForward()
	c.SkipForward()
	c.SkipForward()
	st := c.Status()
	if st.Index != 2 {
		t.Errorf("index = %d, want 2", st.Index)
	}
	if fb.startCount() != 3 {
		t.Errorf("starts = %d, want 3", fb.startCount())
	}
	if fb.last().Text != "Three." {
		t.Errorf("last unit = %q", fb.last().Text)
	}
}

func TestSkipWhileStoppedAndPaused(t *testing.T) {
	fb := newFake(true)
	c := newController(t, fb)
	c.Load("One. Two. Three.")

	c.SkipForward()
	if st := c.Status(); st.Index != 1 || st.State != Stopped {
		t.Errorf("stopped skip: %+v", st)
	}
	if fb.startCount() != 0 {
		t.Errorf("stopped skip started a unit")
	}

	c.Play()
	c.Pause()
	c.SkipForward()
	if st := c.Status(); st.Index != 2 || st.State != Paused {
		t.Errorf("paused skip: %+v", st)
	}

	c.Play()
	if fb.startCount() != 2 || fb.last().Index != 2 {
		t.Errorf("resume after paused skip should restart at 2, got %d starts, last %d", fb.startCount(), fb.last().Index)
	}
}

func TestPauseResume(t *testing.T) {
	fb := newFake(true)
	c := newController(t, fb)
	c.Load("One. Two.")

	c.Play()
	c.Pause()
	if c.Status().State != Paused {
		t.Fatal("want paused")
	}
	c.Play()
	if c.Status().State != Playing {
		t.Fatal("want playing")
	}
	if fb.startCount() != 1 {
		t.Errorf("resume restarted unit: %d starts", fb.startCount())
	}
}

func TestResumeFallsBackToRestart(t *testing.T) {
	fb := newFake(true)
	fb.resumeOK = false
	c := newController(t, fb)
	c.Load("One. Two.")

	c.Play()
	c.Pause()
	c.Play()
	if fb.startCount() != 2 {
		t.Fatalf("starts = %d, want restart", fb.startCount())
	}
	if fb.last().Index != 0 {
		t.Errorf("restart index = %d", fb.last().Index)
	}
	// The first unit is superseded and cannot advance the document.
	fb.finish(0, nil)
	if c.Status().Index != 0 {
		t.Errorf("stale completion advanced index")
	}
}

func TestPauseFailureCancels(t *testing.T) {
	fb := newFake(true)
	fb.pauseErr = errors.New("device busy")
	c := newController(t, fb)
	c.Load("One. Two.")

	c.Play()
	c.Pause()
	if c.Status().State != Paused || fb.cancels != 1 {
		t.Errorf("state=%v cancels=%d", c.Status().State, fb.cancels)
	}
	c.Play()
	if fb.startCount() != 2 {
		t.Errorf("starts = %d, want 2", fb.startCount())
	}
}

func TestStop(t *testing.T) {
	fb := newFake(true)
	c := newController(t, fb)
	c.Load("One. Two. Three.")

	c.Play()
	fb.finishLast(nil)
	c.Stop()
	st := c.Status()
	if st.State != Stopped || st.Index != 0 {
		t.Errorf("after Stop: %+v", st)
	}

	// Completion of the cancelled unit must not restart anything.
	fb.finishLast(nil)
	if c.Status().State != Stopped || fb.startCount() != 2 {
		t.Errorf("stale completion after stop changed state")
	}
}

func TestStaleCompletionAfterSkip(t *testing.T) {
	fb := newFake(false)
	c := newController(t, fb)
	c.Load("A. B. C. D. E. F.")

	c.JumpTo(2)
	c.Play()
	c.SkipForward()
	c.SkipForward()

	if st := c.Status(); st.Index != 4 {
		t.Fatalf("index = %d, want 4", st.Index)
	}

	// Result for sentence 2 arrives late.
	fb.finish(0, nil)
	if st := c.Status(); st.Index != 4 || st.State != Playing {
		t.Errorf("late result moved controller: %+v", st)
	}
	fb.finish(1, errors.New("late failure"))
	if st := c.Status(); st.State != Playing {
		t.Errorf("late failure stopped controller: %+v", st)
	}

	fb.finishLast(nil)
	if st := c.Status(); st.Index != 5 {
		t.Errorf("current completion: index = %d, want 5", st.Index)
	}
}

func TestUnitCurrent(t *testing.T) {
	fb := newFake(true)
	c := newController(t, fb)
	c.Load("One. Two.")

	c.Play()
	first := fb.unit(0)
	if !first.Current() {
		t.Fatal("first unit should be current")
	}
	c.SkipForward()
	if first.Current() {
		t.Error("skipped unit still current")
	}
	if !fb.last().Current() {
		t.Error("new unit not current")
	}
	c.Stop()
	if fb.last().Current() {
		t.Error("unit current after stop")
	}
}

func TestErrorStopsAndReports(t *testing.T) {
	fb := newFake(true)
	rec := &recorder{}
	c := newController(t, fb, WithObserver(rec.observer()))
	c.Load("One. Two. Three.")

	c.Play()
	fb.finishLast(nil)
	boom := errors.New("synthesis failed")
	fb.finishLast(boom)

	st := c.Status()
	if st.State != Stopped {
		t.Errorf("state = %v, want stopped", st.State)
	}
	if st.Index != 1 {
		t.Errorf("index = %d, want failed sentence kept", st.Index)
	}
	if len(rec.errs) != 1 {
		t.Fatalf("errors = %v", rec.errs)
	}
	var pe *Error
	if !errors.As(rec.errs[0], &pe) || pe.Index != 1 || !errors.Is(pe, boom) {
		t.Errorf("reported error = %v", rec.errs[0])
	}
}

func TestCanceledIsSilent(t *testing.T) {
	fb := newFake(true)
	rec := &recorder{}
	c := newController(t, fb, WithObserver(rec.observer()))
	c.Load("One. Two.")

	c.Play()
	fb.finishLast(ErrCanceled)
	if len(rec.errs) != 0 {
		t.Errorf("cancel reported: %v", rec.errs)
	}
}

func TestEmptyDocument(t *testing.T) {
	for _, text := range []string{"", "   \n\t "} {
		fb := newFake(true)
		c := newController(t, fb)
		if n := c.Load(text); n != 0 {
			t.Fatalf("Load(%q) = %d", text, n)
		}
		c.Play()
		c.SkipForward()
		c.SkipBack()
		c.TogglePlay()
		if st := c.Status(); st.State != Stopped || st.Total != 0 || st.Progress() != 0 {
			t.Errorf("empty document: %+v", st)
		}
		if fb.startCount() != 0 {
			t.Errorf("empty document started %d units", fb.startCount())
		}
	}
}

func TestMute(t *testing.T) {
	fb := newFake(true)
	c := newController(t, fb, WithVolume(0.6))
	c.Load("One. Two.")
	c.Play()

	c.ToggleMute()
	st := c.Status()
	if !st.Muted || st.Volume != 0.6 || c.EffectiveVolume() != 0 {
		t.Errorf("muted: %+v effective=%v", st, c.EffectiveVolume())
	}
	if fb.lastVolume() != 0 {
		t.Errorf("backend volume = %v, want 0", fb.lastVolume())
	}

	c.ToggleMute()
	if c.EffectiveVolume() != 0.6 || fb.lastVolume() != 0.6 {
		t.Errorf("unmuted effective=%v backend=%v", c.EffectiveVolume(), fb.lastVolume())
	}
	if fb.startCount() != 1 {
		t.Errorf("mute restarted playback")
	}
}

func TestSetVolumeWhileMuted(t *testing.T) {
	fb := newFake(true)
	c := newController(t, fb, WithVolume(0.6))
	c.Load("One. Two.")
	c.Play()

	c.ToggleMute()
	c.SetVolume(0.3)
	if st := c.Status(); st.Volume != 0.3 || !st.Muted {
		t.Errorf("stored: %+v", st)
	}
	if fb.lastVolume() != 0 {
		t.Errorf("backend volume while muted = %v, want 0", fb.lastVolume())
	}

	c.ToggleMute()
	if fb.lastVolume() != 0.3 {
		t.Errorf("backend volume after unmute = %v, want 0.3", fb.lastVolume())
	}
	if fb.startCount() != 1 {
		t.Errorf("volume change restarted playback: %d starts", fb.startCount())
	}
}

func TestCompletionAfterPause(t *testing.T) {
	fb := newFake(true)
	c := newController(t, fb)
	c.Load("One. Two. Three.")

	c.Play()
	c.Pause()
	// The clip ended before the backend saw the pause.
	fb.finish(0, nil)

	st := c.Status()
	if st.State != Paused || st.Index != 1 {
		t.Fatalf("after completion: state=%v index=%d", st.State, st.Index)
	}
	if fb.startCount() != 1 {
		t.Fatalf("unit started while paused: %d starts", fb.startCount())
	}

	c.Play()
	if c.Status().State != Playing {
		t.Errorf("play: state = %v", c.Status().State)
	}
	if fb.startCount() != 2 || fb.last().Index != 1 {
		t.Errorf("play started %d units, last index %d", fb.startCount(), fb.last().Index)
	}

	// Pausing on the last sentence rewinds once it completes.
	c.SkipForward()
	c.Pause()
	fb.finishLast(nil)
	if st := c.Status(); st.Index != 0 || st.State != Stopped {
		t.Errorf("last sentence: state=%v index=%d", st.State, st.Index)
	}
}

func TestClamping(t *testing.T) {
	fb := newFake(true)
	c := newController(t, fb)

	tests := []struct {
		in, speed, volume float64
	}{
		{in: -1, speed: MinSpeed, volume: 0},
		{in: 0.75, speed: 0.75, volume: 0.75},
		{in: 3, speed: MaxSpeed, volume: 1},
	}
	for _, tt := range tests {
		_ = c.SetSpeed(tt.in)
		c.SetVolume(tt.in)
		st := c.Status()
		if st.Speed != tt.speed || st.Volume != tt.volume {
			t.Errorf("in=%v: speed=%v volume=%v", tt.in, st.Speed, st.Volume)
		}
	}
}

func TestSetSpeed(t *testing.T) {
	t.Run("live backend restarts sentence", func(t *testing.T) {
		fb := newFake(true)
		c := newController(t, fb)
		c.Load("One. Two.")
		c.Play()

		if err := c.SetSpeed(1.5); err != nil {
			t.Fatalf("SetSpeed() error = %v", err)
		}
		if fb.startCount() != 2 || fb.last().Speed != 1.5 || fb.last().Index != 0 {
			t.Errorf("restart unit = %+v", fb.last())
		}
	})

	t.Run("non-live backend defers", func(t *testing.T) {
		fb := newFake(false)
		c := newController(t, fb)
		c.Load("One. Two.")
		c.Play()

		err := c.SetSpeed(1.5)
		if !errors.Is(err, ErrUnsupported) {
			t.Fatalf("SetSpeed() error = %v, want ErrUnsupported", err)
		}
		if fb.startCount() != 1 {
			t.Errorf("non-live backend restarted")
		}
		fb.finishLast(nil)
		if fb.last().Speed != 1.5 {
			t.Errorf("next unit speed = %v, want 1.5", fb.last().Speed)
		}
	})

	t.Run("stopped stores speed", func(t *testing.T) {
		fb := newFake(false)
		c := newController(t, fb)
		c.Load("One.")
		if err := c.SetSpeed(0.75); err != nil {
			t.Fatalf("SetSpeed() error = %v", err)
		}
		c.Play()
		if fb.last().Speed != 0.75 {
			t.Errorf("speed = %v", fb.last().Speed)
		}
	})
}

func TestSetBackend(t *testing.T) {
	a, b := newFake(true), newFake(false)
	b.name = "other"
	c := newController(t, a)
	c.Load("One. Two.")
	c.Play()

	c.SetBackend(b)
	if !a.closed {
		t.Error("old backend not closed")
	}
	if b.startCount() != 1 || c.Status().Backend != "other" {
		t.Errorf("new backend did not take over")
	}
	a.finishLast(nil)
	if c.Status().Index != 0 {
		t.Error("old backend completion advanced index")
	}
}

func TestReloadCancels(t *testing.T) {
	fb := newFake(true)
	c := newController(t, fb)
	c.Load("One. Two.")
	c.Play()

	c.Load("Three. Four. Five.")
	st := c.Status()
	if st.State != Stopped || st.Total != 3 || st.Index != 0 {
		t.Errorf("after reload: %+v", st)
	}
	fb.finish(0, nil)
	if c.Status().State != Stopped {
		t.Error("stale completion after reload")
	}
}

func TestClose(t *testing.T) {
	fb := newFake(true)
	out := audio.NewMockPlayer(audio.MockCallbacks{})
	c := New(out, fb)
	c.Load("One.")
	c.Play()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fb.closed {
		t.Error("backend not closed")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	// Controls after close are inert.
	c.Play()
	fb.finishLast(nil)
	if fb.startCount() != 1 {
		t.Error("controller started unit after close")
	}
}
