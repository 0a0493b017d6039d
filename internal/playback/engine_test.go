package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/cache"
)

// gatedSource returns PCM only when the test releases it. It ignores
// cancellation, like a remote request that cannot be aborted.
type gatedSource struct {
	mu      sync.Mutex
	release chan struct{}
	calls   int
	err     error
}

func newGatedSource() *gatedSource {
	return &gatedSource{release: make(chan struct{}, 16)}
}

func (s *gatedSource) Name() string    { return "gated" }
func (s *gatedSource) LiveSpeed() bool { return false }
func (s *gatedSource) Close() error    { return nil }

func (s *gatedSource) Synthesize(_ context.Context, u Unit) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-s.release
	if s.err != nil {
		return nil, s.err
	}
	return []byte(u.Text + "!"), nil // even length keeps frames aligned
}

func (s *gatedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEnginePlaysAndReports(t *testing.T) {
	src := newGatedSource()
	out := audio.NewMockPlayer(audio.MockCallbacks{})
	e := NewEngine(src, out, nil)

	got := make(chan error, 1)
	e.Start(Unit{ID: 1, Text: "Hi.", Volume: 0.4}, func(err error) { got <- err })
	src.release <- struct{}{}

	waitFor(t, "clip", func() bool { return out.PlayCount() == 1 })
	if string(out.Last().PCM) != "Hi.!" {
		t.Errorf("played %q", out.Last().PCM)
	}
	if out.Volume() != 0.4 {
		t.Errorf("volume = %v", out.Volume())
	}
	out.Last().Finish()

	select {
	case err := <-got:
		if err != nil {
			t.Errorf("done error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("done not called")
	}
}

func TestEngineDropsStaleResult(t *testing.T) {
	src := newGatedSource()
	out := audio.NewMockPlayer(audio.MockCallbacks{})
	e := NewEngine(src, out, nil)

	var mu sync.Mutex
	var reports []error
	e.Start(Unit{ID: 1, Text: "Old.."}, func(err error) {
		mu.Lock()
		reports = append(reports, err)
		mu.Unlock()
	})
	waitFor(t, "first request", func() bool { return src.callCount() == 1 })

	e.Cancel()
	src.release <- struct{}{}

	// The late result must never reach the speaker.
	time.Sleep(20 * time.Millisecond)
	if out.PlayCount() != 0 {
		t.Fatal("stale clip was played")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 0 {
		t.Errorf("stale unit reported %v", reports)
	}
}

func TestEnginePauseDuringSynthesis(t *testing.T) {
	src := newGatedSource()
	out := audio.NewMockPlayer(audio.MockCallbacks{})
	e := NewEngine(src, out, nil)

	e.Start(Unit{ID: 1, Text: "Held."}, func(error) {})
	if err := e.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	src.release <- struct{}{}

	time.Sleep(20 * time.Millisecond)
	if out.PlayCount() != 0 {
		t.Fatal("clip played while paused")
	}

	if err := e.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	waitFor(t, "held clip", func() bool { return out.PlayCount() == 1 })
}

func TestEnginePauseResumeClip(t *testing.T) {
	src := newGatedSource()
	out := audio.NewMockPlayer(audio.MockCallbacks{})
	e := NewEngine(src, out, nil)

	if err := e.Resume(); !errors.Is(err, ErrNothingToResume) {
		t.Errorf("Resume() with nothing = %v", err)
	}

	e.Start(Unit{ID: 1, Text: "Now"}, func(error) {})
	src.release <- struct{}{}
	waitFor(t, "clip", func() bool { return out.PlayCount() == 1 })

	if err := e.Pause(); err != nil {
		t.Fatal(err)
	}
	clip := out.Last()
	if !clip.Paused() {
		t.Error("clip not paused")
	}
	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}
	if clip.Paused() {
		t.Error("clip not resumed")
	}
}

func TestEngineSynthesisError(t *testing.T) {
	src := newGatedSource()
	src.err = errors.New("server down")
	e := NewEngine(src, audio.NewMockPlayer(audio.MockCallbacks{}), nil)

	got := make(chan error, 1)
	e.Start(Unit{ID: 1, Text: "x"}, func(err error) { got <- err })
	src.release <- struct{}{}

	select {
	case err := <-got:
		if !errors.Is(err, src.err) {
			t.Errorf("done error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("done not called")
	}
}

func TestEngineCancelStopsClip(t *testing.T) {
	src := newGatedSource()
	out := audio.NewMockPlayer(audio.MockCallbacks{})
	e := NewEngine(src, out, nil)

	got := make(chan error, 1)
	e.Start(Unit{ID: 1, Text: "Long."}, func(err error) { got <- err })
	src.release <- struct{}{}
	waitFor(t, "clip", func() bool { return out.PlayCount() == 1 })

	e.Cancel()
	if !out.Last().Ended() {
		t.Error("clip still playing after cancel")
	}
	select {
	case err := <-got:
		if !errors.Is(err, ErrCanceled) {
			t.Errorf("done error = %v, want ErrCanceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("done not called")
	}
}

func TestEngineUsesCache(t *testing.T) {
	cfg := cache.DefaultConfig()
	cfg.DiskPath = t.TempDir()
	cfg.CleanupInterval = 0
	clips, err := cache.NewClipCache(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer clips.Close()

	src := newGatedSource()
	out := audio.NewMockPlayer(audio.MockCallbacks{})
	e := NewEngine(src, out, clips)

	u := Unit{ID: 1, Text: "Cached.", Speed: 1, Voice: "Rachel"}
	e.Start(u, func(error) {})
	src.release <- struct{}{}
	waitFor(t, "first clip", func() bool { return out.PlayCount() == 1 })

	u.ID = 2
	e.Start(u, func(error) {})
	waitFor(t, "cached clip", func() bool { return out.PlayCount() == 2 })
	if src.callCount() != 1 {
		t.Errorf("synthesized %d times, want 1", src.callCount())
	}
}
