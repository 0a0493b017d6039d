package audio

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Decoder turns compressed audio (mp3 from the remote service) into PCM in
// OutputFormat using ffmpeg.
type Decoder struct {
	Binary  string
	Timeout time.Duration
	Runner  Runner
}

// NewDecoder returns a Decoder that shells out to ffmpeg.
func NewDecoder() *Decoder {
	return &Decoder{
		Binary:  "ffmpeg",
		Timeout: 15 * time.Second,
		Runner:  ExecRunner{},
	}
}

// Decode converts encoded audio read from stdin into mono 16-bit PCM.
func (d *Decoder) Decode(ctx context.Context, encoded []byte) ([]byte, error) {
	if len(encoded) == 0 {
		return nil, ErrEmptyAudio
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(OutputFormat.SampleRate),
		"-ac", strconv.Itoa(OutputFormat.Channels),
		"pipe:1",
	}

	pcm, err := d.Runner.Run(ctx, Command{
		Name:    d.Binary,
		Args:    args,
		Stdin:   encoded,
		Timeout: d.Timeout,
		MaxOut:  100 * 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	// ffmpeg may leave a dangling odd byte on truncated input.
	if fs := OutputFormat.FrameSize(); len(pcm)%fs != 0 {
		pcm = pcm[:len(pcm)-len(pcm)%fs]
	}
	return pcm, nil
}
