package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/internal/metrics"
)

var errNothingPlaying = errors.New("nothing playing")

// Source turns one unit into PCM in audio.OutputFormat.
type Source interface {
	Name() string
	Synthesize(ctx context.Context, u Unit) ([]byte, error)
	// LiveSpeed reports whether a speed change can be rendered by
	// synthesizing the sentence again.
	LiveSpeed() bool
	Close() error
}

// Engine is a Backend that synthesizes through a Source, caches the result
// and plays it on a shared Output. One unit is in flight at a time.
type Engine struct {
	src   Source
	out   audio.Output
	cache *cache.ClipCache

	mu  sync.Mutex
	cur *job
}

type job struct {
	unit   Unit
	done   func(error)
	cancel context.CancelFunc

	clip     audio.Clip
	pending  []byte // synthesized while paused
	paused   bool
	canceled bool
	reported bool
}

// NewEngine creates an Engine. clips may be nil to disable caching.
func NewEngine(src Source, out audio.Output, clips *cache.ClipCache) *Engine {
	return &Engine{src: src, out: out, cache: clips}
}

func (e *Engine) Name() string { return e.src.Name() }

func (e *Engine) LiveSpeed() bool { return e.src.LiveSpeed() }

// Start cancels any previous unit and begins synthesis for u.
func (e *Engine) Start(u Unit, done func(error)) {
	e.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{unit: u, done: done, cancel: cancel}

	e.mu.Lock()
	e.cur = j
	e.mu.Unlock()

	e.out.SetVolume(u.Volume)
	go e.run(ctx, j)
}

func (e *Engine) run(ctx context.Context, j *job) {
	defer j.cancel()

	pcm, err := e.render(ctx, j.unit)
	if err != nil {
		if ctx.Err() != nil {
			e.finish(j, ErrCanceled)
			return
		}
		if e.stale(j) {
			return
		}
		e.finish(j, err)
		return
	}

	e.mu.Lock()
	if j.canceled || e.cur != j || !j.unit.Current() {
		e.mu.Unlock()
		metrics.StaleResult(e.Name())
		log.Debug("Dropped stale clip", "backend", e.Name(), "unit", j.unit.ID, "index", j.unit.Index)
		return
	}
	if j.paused {
		j.pending = pcm
		e.mu.Unlock()
		return
	}
	err = e.playLocked(j, pcm)
	e.mu.Unlock()
	if err != nil {
		e.finish(j, err)
	}
}

// render returns cached PCM or synthesizes and caches it.
func (e *Engine) render(ctx context.Context, u Unit) ([]byte, error) {
	key := cache.Key(e.Name(), u.Text, u.Voice, u.Speed)
	if e.cache != nil {
		if pcm, ok := e.cache.Get(key); ok {
			return pcm, nil
		}
	}

	start := time.Now()
	pcm, err := e.src.Synthesize(ctx, u)
	if err != nil {
		return nil, err
	}
	metrics.ObserveSynthesis(e.Name(), start)

	if err := audio.OutputFormat.Validate(pcm); err != nil {
		return nil, fmt.Errorf("%s produced unusable audio: %w", e.Name(), err)
	}
	if e.cache != nil {
		e.cache.Put(key, pcm)
	}
	return pcm, nil
}

func (e *Engine) stale(j *job) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if j.canceled || e.cur != j || !j.unit.Current() {
		metrics.StaleResult(e.Name())
		return true
	}
	return false
}

// playLocked starts pcm on the output and waits for it in the background.
func (e *Engine) playLocked(j *job, pcm []byte) error {
	clip, err := e.out.Play(pcm)
	if err != nil {
		return fmt.Errorf("failed to play clip: %w", err)
	}
	j.clip = clip
	go func() {
		<-clip.Done()
		err := clip.Err()
		if errors.Is(err, audio.ErrStopped) {
			err = ErrCanceled
		}
		e.finish(j, err)
	}()
	return nil
}

// finish reports err for j once.
func (e *Engine) finish(j *job, err error) {
	e.mu.Lock()
	if j.reported {
		e.mu.Unlock()
		return
	}
	j.reported = true
	if e.cur == j {
		e.cur = nil
	}
	e.mu.Unlock()

	j.done(err)
}

// Pause suspends the clip, or holds the clip that is still being
// synthesized until Resume.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	j := e.cur
	if j == nil {
		return errNothingPlaying
	}
	if j.clip != nil {
		j.clip.Pause()
	}
	j.paused = true
	return nil
}

// Resume continues the paused clip or starts the clip that arrived while
// paused.
func (e *Engine) Resume() error {
	e.mu.Lock()
	j := e.cur
	if j == nil || !j.paused {
		e.mu.Unlock()
		return ErrNothingToResume
	}
	j.paused = false

	var err error
	switch {
	case j.clip != nil:
		j.clip.Resume()
	case j.pending != nil:
		pcm := j.pending
		j.pending = nil
		err = e.playLocked(j, pcm)
	}
	e.mu.Unlock()

	if err != nil {
		e.finish(j, err)
	}
	return nil
}

// Cancel ends the current unit. Synthesis that ignores cancellation keeps
// running and its result is dropped.
func (e *Engine) Cancel() {
	e.mu.Lock()
	j := e.cur
	if j == nil {
		e.mu.Unlock()
		return
	}
	e.cur = nil
	j.canceled = true
	j.pending = nil
	clip := j.clip
	e.mu.Unlock()

	j.cancel()
	if clip != nil {
		clip.Stop()
	}
}

func (e *Engine) SetVolume(v float64) { e.out.SetVolume(v) }

// Close cancels the current unit and closes the source. The output belongs
// to the caller.
func (e *Engine) Close() error {
	e.Cancel()
	return e.src.Close()
}

var _ Backend = (*Engine)(nil)
