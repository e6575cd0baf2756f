package audiocore

// AudioBuffer is a reusable non-interleaved float32 buffer. All channels share
// one backing allocation; resizing within the allocated capacity only moves the
// channel views and never allocates.
type AudioBuffer struct {
	data        []float32
	channels    [][]float32
	numChannels int
	numFrames   int
	frameCap    int
}

// NewAudioBuffer allocates a buffer of the given shape, zeroed.
func NewAudioBuffer(numChannels, numFrames int) *AudioBuffer {
	b := &AudioBuffer{}
	b.SetSize(numChannels, numFrames)
	return b
}

// SetSize sets the buffer shape and zeroes the active region. It allocates
// only when the shape exceeds the current capacity, so it must not be called
// from the audio callback; use Fit there.
func (b *AudioBuffer) SetSize(numChannels, numFrames int) {
	numChannels = max(numChannels, 0)
	numFrames = max(numFrames, 0)

	if numChannels > cap(b.channels) || numFrames > b.frameCap {
		frameCap := max(numFrames, b.frameCap)
		chanCap := max(numChannels, cap(b.channels))
		b.data = make([]float32, chanCap*frameCap)
		b.channels = make([][]float32, 0, chanCap)
		b.frameCap = frameCap
	}

	b.numChannels = numChannels
	b.numFrames = numFrames
	b.channels = b.channels[:numChannels]
	for c := range numChannels {
		start := c * b.frameCap
		b.channels[c] = b.data[start : start+numFrames : start+b.frameCap]
	}
	b.Clear()
}

// Fit reshapes the buffer within its existing capacity without allocating.
// It returns false and leaves the shape unchanged when the request does not fit.
func (b *AudioBuffer) Fit(numChannels, numFrames int) bool {
	if numChannels < 0 || numFrames < 0 || numChannels > cap(b.channels) || numFrames > b.frameCap {
		return false
	}
	if numChannels == b.numChannels && numFrames == b.numFrames {
		return true
	}
	b.numChannels = numChannels
	b.numFrames = numFrames
	b.channels = b.channels[:numChannels]
	for c := range numChannels {
		start := c * b.frameCap
		b.channels[c] = b.data[start : start+numFrames : start+b.frameCap]
	}
	return true
}

// NumChannels returns the active channel count.
func (b *AudioBuffer) NumChannels() int { return b.numChannels }

// NumFrames returns the active frame count.
func (b *AudioBuffer) NumFrames() int { return b.numFrames }

// ChannelCapacity returns how many channels fit without reallocating.
func (b *AudioBuffer) ChannelCapacity() int { return cap(b.channels) }

// FrameCapacity returns how many frames per channel fit without reallocating.
func (b *AudioBuffer) FrameCapacity() int { return b.frameCap }

// Channel returns the samples of channel c, or nil when c is out of range.
// The slice aliases the buffer.
func (b *AudioBuffer) Channel(c int) []float32 {
	if c < 0 || c >= b.numChannels {
		return nil
	}
	return b.channels[c]
}

// Channels returns all active channel slices. The result aliases the buffer.
func (b *AudioBuffer) Channels() [][]float32 {
	return b.channels
}

// Clear zeroes the active region.
func (b *AudioBuffer) Clear() {
	for _, ch := range b.channels {
		clear(ch)
	}
}

// ChannelData is a non-owning view over per-channel sample slices supplied by a
// device binding for one callback. Building one does not allocate. A nil entry
// means the platform supplied no buffer for that channel.
type ChannelData struct {
	chans  [][]float32
	frames int
}

// NewChannelData wraps chans as a view of frames samples per channel.
func NewChannelData(chans [][]float32, frames int) ChannelData {
	return ChannelData{chans: chans, frames: max(frames, 0)}
}

// NumChannels returns the number of channel slots, including nil ones.
func (d ChannelData) NumChannels() int { return len(d.chans) }

// Frames returns the number of samples per channel for this callback.
func (d ChannelData) Frames() int { return d.frames }

// Channel returns exactly Frames() samples of channel c, or nil when the slot is
// out of range, nil, or shorter than the frame count.
func (d ChannelData) Channel(c int) []float32 {
	if c < 0 || c >= len(d.chans) {
		return nil
	}
	ch := d.chans[c]
	if len(ch) < d.frames {
		return nil
	}
	return ch[:d.frames]
}
