// Package audio provides the PCM codec shared by the capture and playback
// pipelines: base64 wire encoding for JSON transports, 16-bit little-endian
// PCM conversion helpers and playable buffer construction.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedPayload is returned when a wire payload cannot be decoded into
// PCM samples. Callers should drop the offending chunk and continue; a single
// bad chunk never invalidates the stream.
var ErrMalformedPayload = errors.New("audio: malformed payload")

// Encode encodes raw bytes into the standard base64 alphabet used on the wire.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode decodes a base64 wire payload back into raw bytes. Invalid input is
// reported as [ErrMalformedPayload].
func Decode(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedPayload, err)
	}
	return data, nil
}

// Buffer holds decoded PCM audio as normalized float32 samples in [-1, 1],
// de-interleaved into one slice per channel.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// NumSamples returns the per-channel sample count.
func (b *Buffer) NumSamples() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback duration of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.NumSamples()) * time.Second / time.Duration(b.SampleRate)
}

// PCM16 re-interleaves the buffer back into 16-bit little-endian PCM bytes.
// Samples are clamped to [-1, 1] before scaling.
func (b *Buffer) PCM16() []byte {
	n := b.NumSamples()
	ch := len(b.Channels)
	out := make([]byte, n*ch*2)
	for i := range n {
		for c := range ch {
			s := b.Channels[c][i]
			if s > 1 {
				s = 1
			} else if s < -1 {
				s = -1
			}
			v := int16(s * 32767)
			binary.LittleEndian.PutUint16(out[(i*ch+c)*2:], uint16(v))
		}
	}
	return out
}

// BuildBuffer converts raw 16-bit little-endian PCM into a normalized,
// de-interleaved [Buffer]. The byte length must be a whole number of
// interleaved frames; anything else is [ErrMalformedPayload].
func BuildBuffer(raw []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: invalid format %dHz/%dch", ErrMalformedPayload, sampleRate, channels)
	}
	frameBytes := channels * 2
	if len(raw) == 0 || len(raw)%frameBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-byte frames", ErrMalformedPayload, len(raw), frameBytes)
	}

	frames := len(raw) / frameBytes
	buf := &Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for c := range channels {
		buf.Channels[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range channels {
			v := int16(binary.LittleEndian.Uint16(raw[(i*channels+c)*2:]))
			buf.Channels[c][i] = float32(v) / 32768
		}
	}
	return buf, nil
}

// Int16ToBytes converts int16 samples into little-endian PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// BytesToInt16 converts little-endian PCM bytes into int16 samples.
// A trailing odd byte is dropped.
func BytesToInt16(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out
}
