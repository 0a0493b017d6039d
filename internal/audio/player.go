package audio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

var (
	// ErrEmptyAudio is returned when a clip has no samples.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrStopped is reported by a clip that was stopped before it finished.
	ErrStopped = errors.New("playback stopped")

	// ErrClosed is returned when playing through a closed output.
	ErrClosed = errors.New("audio output is closed")

	// ErrDeviceInUse is returned when a second oto context is requested.
	// oto allows exactly one context per process.
	ErrDeviceInUse = errors.New("audio device already opened by this process")
)

// Output is an audio device that plays one PCM clip at a time. Starting a
// clip stops the previous one.
type Output interface {
	Play(pcm []byte) (Clip, error)
	SetVolume(v float64)
	Volume() float64
	Close() error
}

// Clip is a single PCM buffer handed to an Output.
type Clip interface {
	// Done is closed once the clip ends, naturally or not.
	Done() <-chan struct{}
	// Err reports why the clip ended: nil when it played to the end,
	// ErrStopped when it was stopped, or a device error.
	Err() error
	Pause()
	Resume()
	Stop()
	Paused() bool
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	Format     Format
	BufferSize int           // device buffer in bytes
	PollEvery  time.Duration // completion polling interval
}

// DefaultPlayerConfig returns the configuration used by the application.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		Format:     OutputFormat,
		BufferSize: 4096,
		PollEvery:  20 * time.Millisecond,
	}
}

func validateConfig(config PlayerConfig) error {
	f := config.Format
	if f.SampleRate != 44100 && f.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", f.BitDepth)
	}
	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	if config.PollEvery <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

var contextOpened atomic.Bool

// Player plays clips through the single oto context of the process.
type Player struct {
	context *oto.Context
	config  PlayerConfig

	mu      sync.Mutex
	current *otoClip
	closed  bool

	volume atomic.Uint64 // math.Float64bits
}

// NewPlayer opens the audio device. It may be called once per process.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if !contextOpened.CompareAndSwap(false, true) {
		return nil, ErrDeviceInUse
	}

	f := config.Format
	op := &oto.NewContextOptions{
		SampleRate:   f.SampleRate,
		ChannelCount: f.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(config.BufferSize) * time.Second / time.Duration(f.SampleRate*f.FrameSize()),
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		contextOpened.Store(false)
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	p := &Player{context: ctx, config: config}
	p.volume.Store(math.Float64bits(1))
	log.Debug("audio device ready", "rate", f.SampleRate, "channels", f.Channels)
	return p, nil
}

// Play stops the current clip and starts pcm.
func (p *Player) Play(pcm []byte) (Clip, error) {
	if err := p.config.Format.Validate(pcm); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.current != nil {
		p.current.Stop()
	}

	// The clip owns its copy so the samples stay reachable while oto reads them.
	data := make([]byte, len(pcm))
	copy(data, pcm)

	player := p.context.NewPlayer(bytes.NewReader(data))
	player.SetVolume(p.Volume())

	c := &otoClip{
		player: player,
		data:   data,
		done:   make(chan struct{}),
	}
	p.current = c

	player.Play()
	go c.watch(p.config.PollEvery)

	return c, nil
}

// SetVolume sets the output level for the current and future clips.
func (p *Player) SetVolume(v float64) {
	v = math.Max(0, math.Min(1, v))
	p.volume.Store(math.Float64bits(v))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.setVolume(v)
	}
}

// Volume returns the output level.
func (p *Player) Volume() float64 {
	return math.Float64frombits(p.volume.Load())
}

// Close stops playback. The oto context itself lives until the process exits.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.current != nil {
		p.current.Stop()
		p.current = nil
	}
	return nil
}

type otoClip struct {
	player *oto.Player
	data   []byte

	mu     sync.Mutex
	paused bool
	err    error

	done chan struct{}
	once sync.Once
}

func (c *otoClip) Done() <-chan struct{} { return c.done }

func (c *otoClip) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *otoClip) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *otoClip) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished() || c.paused {
		return
	}
	c.paused = true
	c.player.Pause()
}

func (c *otoClip) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished() || !c.paused {
		return
	}
	c.paused = false
	c.player.Play()
}

func (c *otoClip) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishLocked(ErrStopped)
}

func (c *otoClip) setVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finished() {
		c.player.SetVolume(v)
	}
}

func (c *otoClip) finished() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *otoClip) finishLocked(err error) {
	c.once.Do(func() {
		c.err = err
		c.player.Pause()
		c.data = nil
		close(c.done)
	})
}

// watch polls the oto player until it drains its reader. oto has no
// completion callback, so IsPlaying going false while not paused is the
// end-of-clip signal.
func (c *otoClip) watch(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-t.C:
		}

		c.mu.Lock()
		if !c.paused {
			if err := c.player.Err(); err != nil {
				c.finishLocked(fmt.Errorf("audio device: %w", err))
			} else if !c.player.IsPlaying() {
				c.finishLocked(nil)
			}
		}
		c.mu.Unlock()
	}
}

var (
	_ Output = (*Player)(nil)
	_ Clip   = (*otoClip)(nil)
)
