// Package remote synthesizes speech through the reader service's TTS
// endpoint.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/api"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/internal/metrics"
	"github.com/dgnsrekt/readaloud/internal/playback"
	"golang.org/x/time/rate"
)

// Name identifies the remote backend in logs, metrics and cache keys.
const Name = "remote"

// Speaker fetches encoded speech for one sentence.
type Speaker interface {
	GenerateSpeech(ctx context.Context, req api.SpeechRequest) (*api.Speech, error)
}

// Config configures the remote source.
type Config struct {
	Provider string        // api.ProviderElevenLabs or api.ProviderGTTS
	Timeout  time.Duration // per request including decoding, default 30s
	Rate     rate.Limit    // requests per second, default 2
	Burst    int           // default 1
}

// Source requests audio from the service and decodes it locally. In-flight
// requests are never aborted; the engine drops results that arrive after
// the unit was superseded.
type Source struct {
	speaker  Speaker
	decoder  *audio.Decoder
	limiter  *rate.Limiter
	provider string
	timeout  time.Duration
}

// NewSource returns a remote Source. decoder may be nil to use ffmpeg.
func NewSource(speaker Speaker, decoder *audio.Decoder, config Config) *Source {
	if config.Provider == "" {
		config.Provider = api.ProviderElevenLabs
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Rate <= 0 {
		config.Rate = 2
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if decoder == nil {
		decoder = audio.NewDecoder()
	}
	return &Source{
		speaker:  speaker,
		decoder:  decoder,
		limiter:  rate.NewLimiter(config.Rate, config.Burst),
		provider: config.Provider,
		timeout:  config.Timeout,
	}
}

func (s *Source) Name() string { return Name }

// LiveSpeed is false: a new speed applies from the next sentence.
func (s *Source) LiveSpeed() bool { return false }

// Synthesize requests u from the service. Every failure wraps
// api.ErrGenerationFailed.
func (s *Source) Synthesize(ctx context.Context, u playback.Unit) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrGenerationFailed, err)
	}

	voice := u.Voice
	if voice == "" {
		voice = api.DefaultVoice
	}
	speech, err := s.speaker.GenerateSpeech(ctx, api.SpeechRequest{
		Text:     u.Text,
		Voice:    voice,
		Provider: s.provider,
		Speed:    u.Speed,
	})
	if err != nil {
		if !errors.Is(err, api.ErrGenerationFailed) {
			err = fmt.Errorf("%w: %w", api.ErrGenerationFailed, err)
		}
		return nil, err
	}
	if !u.Current() {
		// Skip decoding audio nobody will hear.
		metrics.StaleResult(Name)
		return nil, fmt.Errorf("%w: unit %d superseded", api.ErrGenerationFailed, u.ID)
	}

	pcm, err := s.decoder.Decode(ctx, speech.Audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrGenerationFailed, err)
	}
	log.Debug("Remote clip ready", "index", u.Index, "format", speech.Format, "bytes", len(pcm))
	return pcm, nil
}

func (s *Source) Close() error { return nil }

// New returns the remote playback backend.
func New(speaker Speaker, config Config, out audio.Output, clips *cache.ClipCache) *playback.Engine {
	return playback.NewEngine(NewSource(speaker, nil, config), out, clips)
}
