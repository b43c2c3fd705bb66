package common

// SlidingWindow cuts a continuous sample stream into fixed-size frames
// advanced by hopSize samples. A hop larger than the window skips the
// samples in between.
type SlidingWindow struct {
	buffer     []float64
	windowSize int
	hopSize    int
	writePos   int
	skip       int
}

// NewSlidingWindow creates a new sliding window. A non-positive hop means
// no overlap (hop == windowSize).
func NewSlidingWindow(windowSize, hopSize int) *SlidingWindow {
	if hopSize <= 0 {
		hopSize = windowSize
	}
	return &SlidingWindow{
		buffer:     make([]float64, windowSize),
		windowSize: windowSize,
		hopSize:    hopSize,
	}
}

// AddSamples adds samples and returns the frames completed by them. Each
// returned frame is a fresh slice owned by the caller.
func (sw *SlidingWindow) AddSamples(samples []float64) [][]float64 {
	var frames [][]float64

	for _, sample := range samples {
		if sw.skip > 0 {
			sw.skip--
			continue
		}

		sw.buffer[sw.writePos] = sample
		sw.writePos++

		if sw.writePos < sw.windowSize {
			continue
		}

		frame := make([]float64, sw.windowSize)
		copy(frame, sw.buffer)
		frames = append(frames, frame)

		if sw.hopSize < sw.windowSize {
			// Overlap: shift buffer left by hopSize
			copy(sw.buffer, sw.buffer[sw.hopSize:])
			sw.writePos = sw.windowSize - sw.hopSize
		} else {
			sw.writePos = 0
			sw.skip = sw.hopSize - sw.windowSize
		}
	}

	return frames
}

// Pending returns the number of buffered samples not yet emitted in a frame
func (sw *SlidingWindow) Pending() int {
	return sw.writePos
}

// Reset clears the sliding window
func (sw *SlidingWindow) Reset() {
	sw.writePos = 0
	sw.skip = 0
	for i := range sw.buffer {
		sw.buffer[i] = 0.0
	}
}

// WindowSize returns the window size
func (sw *SlidingWindow) WindowSize() int {
	return sw.windowSize
}

// HopSize returns the hop size
func (sw *SlidingWindow) HopSize() int {
	return sw.hopSize
}
