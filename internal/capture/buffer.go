package capture

// Buffer accumulates fixed-size PCM frames for one speaker in a
// preallocated store. It tracks a write cursor p in frames, 0 <= p <= cap,
// and enforces the hard-cap flush: when fewer than margin frame slots
// remain before a write, the buffered audio is flushed first so a write can
// never overrun the store.
//
// Buffer is not safe for concurrent use; the owning policy sink serialises
// access.
type Buffer struct {
	samples      []int16
	frameSamples int
	capFrames    int
	marginFrames int
	p            int
}

// NewBuffer returns a Buffer holding up to capacityFrames frames of
// frameSamples samples each. marginFrames is clamped to [1, capacityFrames).
func NewBuffer(capacityFrames, marginFrames, frameSamples int) *Buffer {
	if capacityFrames < 1 {
		capacityFrames = 1
	}
	if marginFrames < 1 {
		marginFrames = 1
	}
	if marginFrames >= capacityFrames {
		marginFrames = capacityFrames - 1
		if marginFrames < 1 {
			marginFrames = 1
		}
	}
	return &Buffer{
		samples:      make([]int16, capacityFrames*frameSamples),
		frameSamples: frameSamples,
		capFrames:    capacityFrames,
		marginFrames: marginFrames,
	}
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int { return b.p }

// Cap returns the buffer capacity in frames.
func (b *Buffer) Cap() int { return b.capFrames }

// Append copies one frame into the buffer. When the hard cap is reached
// (p > cap - margin before the write) the buffered audio is flushed first
// and returned; otherwise flushed is nil. frames is the frame count of the
// returned flush.
func (b *Buffer) Append(frame []int16) (flushed []byte, frames int) {
	if b.p > b.capFrames-b.marginFrames {
		flushed, frames = b.Flush()
	}
	copy(b.samples[b.p*b.frameSamples:(b.p+1)*b.frameSamples], frame)
	b.p++
	return flushed, frames
}

// Flush returns the buffered audio as 16-bit little-endian PCM and resets
// the cursor. An empty buffer yields (nil, 0). The returned slice is a
// fresh copy; the backing store is reused.
func (b *Buffer) Flush() (pcm []byte, frames int) {
	if b.p == 0 {
		return nil, 0
	}
	frames = b.p
	pcm = encodeSamples(b.samples[:b.p*b.frameSamples])
	b.p = 0
	return pcm, frames
}
