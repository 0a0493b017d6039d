package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
)

// ErrGenerationFailed is returned for every speech generation failure:
// transport errors, non-2xx statuses, success=false and malformed payloads.
var ErrGenerationFailed = errors.New("speech generation failed")

// Providers accepted by the generate endpoint.
const (
	ProviderElevenLabs = "elevenlabs"
	ProviderGTTS       = "gtts"
)

// DefaultVoice is the voice requested when none is configured.
const DefaultVoice = "Rachel"

// Voices maps the voice names the server accepts to ElevenLabs voice IDs.
// Names not in this table are passed through unchanged.
var Voices = map[string]string{
	"Bill":    "pqHfZKP75CvOlQylNhV4",
	"Lily":    "pFZP5JQG7iQjIQuC4Bku",
	"Daniel":  "onwK4e9ZLuTAKqWW03F9",
	"Brian":   "nPczCjzI2devNBz1zQrb",
	"Chris":   "iP95p4xoKVk53GoZ742B",
	"Eric":    "cjVigY5qzO86Huf0OWal",
	"Jessica": "cgSgspJ2msm6clMCkdW9",
	"Will":    "bIHbv24MWmeRgasZH58o",
	"Matilda": "rExE9yKIg1WjnnlVkGX",
	"Alice":   "Xb7hH8MSUJpSbSDYk0k2",
	"Liam":    "TX3LPaxmHKxFdv7VOQHJ",
	"Harry":   "SOYHLrjzK2X1ezoPC6cr",
	"River":   "SAz9YHcvj6GT2YYXdXww",
	"Callum":  "N2lVS1w4EtoT3dr4eOWO",
	"George":  "JBFqnCBsd6RMkjVDRZzb",
	"Charlie": "IKne3meq5aSn9XLyUdCD",
	"Laura":   "FGY2WhTYpPnrIDTdsKH5",
	"Sarah":   "EXAVITQu4vr4xnSDxMaL",
	"Roger":   "CwhRBWXzGAHq8TQ4Fs17",
}

// Voice describes one server voice.
type Voice struct {
	ID       string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// BuiltinVoices returns the static voice table sorted by name.
func BuiltinVoices() []Voice {
	vs := make([]Voice, 0, len(Voices))
	for name, id := range Voices {
		vs = append(vs, Voice{ID: id, Name: name, Category: "premade"})
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].Name < vs[j].Name })
	return vs
}

// SpeechRequest is the generate endpoint payload.
type SpeechRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Provider string  `json:"provider"`
	Speed    float64 `json:"speed"`
}

type speechResponse struct {
	Success   bool   `json:"success"`
	AudioData string `json:"audio_data"`
	Format    string `json:"format"`
	Error     string `json:"error"`
}

// Speech is decoded generate endpoint output.
type Speech struct {
	Audio  []byte
	Format string // "mp3"
}

// GenerateSpeech synthesizes one sentence on the server. Any failure wraps
// ErrGenerationFailed.
func (c *Client) GenerateSpeech(ctx context.Context, req SpeechRequest) (*Speech, error) {
	if req.Provider == "" {
		req.Provider = ProviderElevenLabs
	}
	if req.Voice == "" {
		req.Voice = DefaultVoice
	}

	var resp speechResponse
	if err := c.postJSON(ctx, "/api/tts/generate", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "server reported failure"
		}
		return nil, fmt.Errorf("%w: %s", ErrGenerationFailed, msg)
	}
	if resp.AudioData == "" {
		return nil, fmt.Errorf("%w: %w: empty audio_data", ErrGenerationFailed, ErrMalformedResponse)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioData)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrGenerationFailed, ErrMalformedResponse, err)
	}
	format := resp.Format
	if format == "" {
		format = "mp3"
	}
	return &Speech{Audio: audio, Format: format}, nil
}

// ListVoices fetches the voices available on the server.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	var resp struct {
		Success bool    `json:"success"`
		Voices  []Voice `json:"voices"`
		Error   string  `json:"error"`
	}
	if err := c.getJSON(ctx, "/api/tts/voices", &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("list voices: %s", resp.Error)
	}
	return resp.Voices, nil
}
