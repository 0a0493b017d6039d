package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Format describes signed little-endian PCM audio.
type Format struct {
	SampleRate int // 44100 or 48000 Hz for output; any positive rate for input
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // 16 bits per sample
}

// OutputFormat is the format the output device is opened with. Every clip
// handed to a Player must already be in this format.
var OutputFormat = Format{SampleRate: 44100, Channels: 1, BitDepth: 16}

// PiperFormat is the raw output format of the piper engine.
var PiperFormat = Format{SampleRate: 22050, Channels: 1, BitDepth: 16}

// FrameSize returns the number of bytes per sample frame.
func (f Format) FrameSize() int {
	return f.BitDepth / 8 * f.Channels
}

// Duration returns the playing time of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 || f.FrameSize() <= 0 {
		return 0
	}
	frames := n / f.FrameSize()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Validate checks that pcm is non-empty and frame aligned.
func (f Format) Validate(pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}
	if f.FrameSize() == 0 || len(pcm)%f.FrameSize() != 0 {
		return fmt.Errorf("pcm length %d is not aligned to %d-byte frames", len(pcm), f.FrameSize())
	}
	return nil
}

// Resample converts 16-bit PCM between sample rates using linear
// interpolation. Channel count and bit depth must match.
func Resample(pcm []byte, from, to Format) ([]byte, error) {
	if from.Channels != to.Channels {
		return nil, errors.New("channel count conversion not supported")
	}
	if from.BitDepth != 16 || to.BitDepth != 16 {
		return nil, errors.New("only 16-bit pcm can be resampled")
	}
	if from.SampleRate == to.SampleRate {
		return pcm, nil
	}
	if from.SampleRate <= 0 || to.SampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}

	ch := from.Channels
	inFrames := len(pcm) / from.FrameSize()
	if inFrames == 0 {
		return []byte{}, nil
	}

	ratio := float64(to.SampleRate) / float64(from.SampleRate)
	outFrames := int(float64(inFrames) * ratio)
	out := make([]byte, outFrames*to.FrameSize())

	sample := func(frame, c int) float64 {
		off := (frame*ch + c) * 2
		return float64(int16(binary.LittleEndian.Uint16(pcm[off:])))
	}

	for i := 0; i < outFrames; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		frac := pos - float64(idx)
		for c := 0; c < ch; c++ {
			var v float64
			if idx >= inFrames-1 {
				v = sample(inFrames-1, c)
			} else {
				v = sample(idx, c)*(1-frac) + sample(idx+1, c)*frac
			}
			off := (i*ch + c) * 2
			binary.LittleEndian.PutUint16(out[off:], uint16(int16(v)))
		}
	}

	return out, nil
}
