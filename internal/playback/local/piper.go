// Package local synthesizes speech on this machine with the Piper engine.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/internal/playback"
)

// Name identifies the local backend in logs, metrics and cache keys.
const Name = "local"

const (
	maxTextSize  = 5000
	maxAudioSize = 10 * 1024 * 1024
)

// Config describes a Piper installation.
type Config struct {
	Binary     string        // default "piper"
	ModelPath  string        // .onnx voice model, required
	ConfigPath string        // defaults to the model path with a .json extension
	Speaker    string        // optional speaker ID for multi-speaker models
	Timeout    time.Duration // per sentence, default 10s
}

// Piper is a playback.Source that runs one piper process per sentence with
// the text attached to stdin before the process starts.
type Piper struct {
	config Config
	runner audio.Runner
}

// NewPiper checks config and returns a Piper source. runner may be nil to
// use real subprocesses.
func NewPiper(config Config, runner audio.Runner) (*Piper, error) {
	if config.ModelPath == "" {
		return nil, errors.New("piper model path is required")
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("piper model not found: %w", err)
	}
	if config.ConfigPath == "" {
		config.ConfigPath = strings.TrimSuffix(config.ModelPath, filepath.Ext(config.ModelPath)) + ".json"
	}
	if config.Binary == "" {
		config.Binary = "piper"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if runner == nil {
		runner = audio.ExecRunner{}
	}
	return &Piper{config: config, runner: runner}, nil
}

func (p *Piper) Name() string { return Name }

// LiveSpeed is true: Piper renders a new length scale on every run.
func (p *Piper) LiveSpeed() bool { return true }

// Synthesize renders u.Text at u.Speed and resamples it to the output format.
func (p *Piper) Synthesize(ctx context.Context, u playback.Unit) ([]byte, error) {
	if strings.TrimSpace(u.Text) == "" {
		return nil, errors.New("text cannot be empty")
	}
	if len(u.Text) > maxTextSize {
		return nil, fmt.Errorf("text too long: %d characters (max %d)", len(u.Text), maxTextSize)
	}

	raw, err := p.runner.Run(ctx, audio.Command{
		Name:    p.config.Binary,
		Args:    p.args(u.Speed),
		Stdin:   []byte(u.Text),
		Timeout: p.config.Timeout,
		MaxOut:  maxAudioSize,
	})
	if err != nil {
		return nil, fmt.Errorf("piper synthesis: %w", err)
	}
	if len(raw)%2 == 1 {
		raw = raw[:len(raw)-1]
	}
	return audio.Resample(raw, audio.PiperFormat, audio.OutputFormat)
}

// args maps speed onto Piper's length scale: 2x speed is scale 0.5.
func (p *Piper) args(speed float64) []string {
	if speed <= 0 {
		speed = 1
	}
	args := []string{
		"--model", p.config.ModelPath,
		"--config", p.config.ConfigPath,
		"--output-raw",
		"--length-scale", fmt.Sprintf("%.2f", 1/speed),
	}
	if p.config.Speaker != "" {
		args = append(args, "--speaker", p.config.Speaker)
	}
	return args
}

// Validate checks that the binary is on PATH.
func (p *Piper) Validate() error {
	return audio.LookPath(p.config.Binary)
}

func (p *Piper) Close() error { return nil }

// New returns the local playback backend.
func New(config Config, out audio.Output, clips *cache.ClipCache) (*playback.Engine, error) {
	p, err := NewPiper(config, nil)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return playback.NewEngine(p, out, clips), nil
}
