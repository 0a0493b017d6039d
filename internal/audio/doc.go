// Package audio owns the process-wide audio output device. It plays one
// 16-bit PCM clip at a time through oto/v3, reports clip completion, and
// provides the subprocess and decoding helpers the synthesis backends use to
// turn engine output into PCM.
package audio
