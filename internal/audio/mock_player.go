package audio

import (
	"math"
	"sync"
	"time"
)

// MockPlayer is an Output that produces no sound. Clips stay "playing" until
// the test finishes them with Finish or Fail, or until AutoFinish elapses.
type MockPlayer struct {
	// PlayErr, when set, is returned by every Play call.
	PlayErr error

	// AutoFinish ends each clip after the given delay when positive.
	AutoFinish time.Duration

	callbacks MockCallbacks

	mu     sync.Mutex
	clips  []*MockClip
	volume float64
	closed bool
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay func(c *MockClip)
	OnStop func(c *MockClip)
}

// NewMockPlayer creates a mock output at full volume.
func NewMockPlayer(callbacks MockCallbacks) *MockPlayer {
	return &MockPlayer{volume: 1, callbacks: callbacks}
}

// Play records pcm and starts a clip. The previous clip is stopped.
func (m *MockPlayer) Play(pcm []byte) (Clip, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.PlayErr != nil {
		m.mu.Unlock()
		return nil, m.PlayErr
	}
	if len(pcm) == 0 {
		m.mu.Unlock()
		return nil, ErrEmptyAudio
	}
	var prev *MockClip
	if n := len(m.clips); n > 0 {
		prev = m.clips[n-1]
	}

	c := &MockClip{
		PCM:  append([]byte(nil), pcm...),
		done: make(chan struct{}),
		onStop: func(c *MockClip) {
			if m.callbacks.OnStop != nil {
				m.callbacks.OnStop(c)
			}
		},
	}
	m.clips = append(m.clips, c)
	auto := m.AutoFinish
	m.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	if auto > 0 {
		time.AfterFunc(auto, c.Finish)
	}
	if m.callbacks.OnPlay != nil {
		m.callbacks.OnPlay(c)
	}
	return c, nil
}

// SetVolume records the output level.
func (m *MockPlayer) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = math.Max(0, math.Min(1, v))
}

// Volume returns the last level set.
func (m *MockPlayer) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// Close stops the current clip and rejects further playback.
func (m *MockPlayer) Close() error {
	m.mu.Lock()
	m.closed = true
	var last *MockClip
	if n := len(m.clips); n > 0 {
		last = m.clips[n-1]
	}
	m.mu.Unlock()

	if last != nil {
		last.Stop()
	}
	return nil
}

// Clips returns every clip played so far.
func (m *MockPlayer) Clips() []*MockClip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockClip(nil), m.clips...)
}

// Last returns the most recent clip or nil.
func (m *MockPlayer) Last() *MockClip {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clips) == 0 {
		return nil
	}
	return m.clips[len(m.clips)-1]
}

// PlayCount returns the number of clips started.
func (m *MockPlayer) PlayCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clips)
}

// MockClip is a clip whose lifetime the test controls.
type MockClip struct {
	PCM []byte

	mu     sync.Mutex
	paused bool
	err    error
	pauses int

	done   chan struct{}
	once   sync.Once
	onStop func(*MockClip)
}

func (c *MockClip) Done() <-chan struct{} { return c.done }

func (c *MockClip) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *MockClip) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	c.pauses++
}

func (c *MockClip) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

func (c *MockClip) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// PauseCount returns how many times Pause was called.
func (c *MockClip) PauseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauses
}

func (c *MockClip) Stop() {
	if c.end(ErrStopped) && c.onStop != nil {
		c.onStop(c)
	}
}

// Finish ends the clip as if it played to the end.
func (c *MockClip) Finish() { c.end(nil) }

// Fail ends the clip with a device error.
func (c *MockClip) Fail(err error) { c.end(err) }

// Ended reports whether the clip is over.
func (c *MockClip) Ended() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *MockClip) end(err error) bool {
	ended := false
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
		ended = true
	})
	return ended
}

var (
	_ Output = (*MockPlayer)(nil)
	_ Clip   = (*MockClip)(nil)
)
