// Package capture implements per-speaker audio buffering for a voice
// session.
//
// Inbound transport packets are validated by a [Codec], appended to a
// per-speaker [Buffer], and flushed as [types.AudioChunk] values according
// to a [FlushPolicy] (inactivity timeout, energy gating or voice activity
// detection). The [Router] ties the three together and is the only type
// the rest of the application talks to.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Transport frame format. Discord voice delivers 20 ms Opus frames that
// decode to 960 samples per channel at 48 kHz stereo.
const (
	DefaultSampleRate      = 48000
	DefaultChannels        = 2
	DefaultSamplesPerFrame = 960
)

// ErrMalformedFrame is returned by [Codec.Decode] when a payload does not
// contain exactly one frame of 16-bit PCM.
var ErrMalformedFrame = errors.New("capture: malformed frame")

// Codec validates and converts raw transport payloads to PCM sample frames.
// The zero value is not usable; construct with [NewCodec].
type Codec struct {
	sampleRate      int
	channels        int
	samplesPerFrame int
}

// NewCodec returns a Codec for the given frame format. Non-positive
// arguments fall back to the transport defaults.
func NewCodec(sampleRate, channels, samplesPerFrame int) Codec {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	if samplesPerFrame <= 0 {
		samplesPerFrame = DefaultSamplesPerFrame
	}
	return Codec{sampleRate: sampleRate, channels: channels, samplesPerFrame: samplesPerFrame}
}

// SampleRate returns the sample rate in Hz.
func (c Codec) SampleRate() int { return c.sampleRate }

// Channels returns the interleaved channel count.
func (c Codec) Channels() int { return c.channels }

// FrameSamples returns the number of int16 samples in one frame across all
// channels.
func (c Codec) FrameSamples() int { return c.samplesPerFrame * c.channels }

// FrameBytes returns the exact payload size of one frame in bytes.
func (c Codec) FrameBytes() int { return c.FrameSamples() * 2 }

// Decode converts a raw payload into interleaved int16 samples. Payloads
// whose length is not exactly [Codec.FrameBytes] fail with an error
// wrapping [ErrMalformedFrame].
func (c Codec) Decode(raw []byte) ([]int16, error) {
	if len(raw) != c.FrameBytes() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedFrame, len(raw), c.FrameBytes())
	}
	samples := make([]int16, c.FrameSamples())
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}
	return samples, nil
}

// Encode converts interleaved int16 samples back to little-endian bytes.
func (c Codec) Encode(samples []int16) []byte {
	return encodeSamples(samples)
}

// Energy returns the sum of absolute sample values, the measure the energy
// flush policy compares against its silence threshold.
func Energy(samples []int16) int64 {
	var sum int64
	for _, s := range samples {
		v := int64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum
}

// encodeSamples serialises int16 samples as 16-bit little-endian PCM.
func encodeSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(s))
	}
	return out
}
