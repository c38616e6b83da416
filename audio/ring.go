// Package audio implements the PCM side of HAP playback: a PTS-tracked ring
// buffer bridging the decode thread and an audio device callback, raw PCM
// sample conversion, and the producer that keeps the buffer fed.
package audio

import "sync"

// PTSTolerance is the slack allowed between a requested presentation time
// and the buffer's start PTS before ReadAtPTS discards or refuses samples.
// It absorbs the ~20ms granularity of decoded audio chunks without constant
// micro-adjustment.
const PTSTolerance = 0.025

// Ring is a fixed-capacity circular buffer of interleaved float PCM frames.
//
// One producer appends frames while up to one consumer pops them, on
// different goroutines; a single mutex guards the cursors and the PTS
// bookkeeping. One frame slot is reserved to disambiguate full from empty,
// so usable capacity is capacity-1 frames.
//
// StartPTS is the presentation time of the frame at the read cursor; EndPTS
// is the presentation time immediately after the most recently written
// frame.
type Ring struct {
	mu       sync.Mutex
	buf      []float32
	capacity int // frames, including the reserved slot
	readPos  int // frame index
	writePos int // frame index
	startPTS float64
	endPTS   float64

	sampleRate int
	channels   int
}

// NewRing allocates a ring holding seconds of audio at the given rate and
// channel count.
func NewRing(sampleRate, channels int, seconds float64) *Ring {
	frames := int(float64(sampleRate)*seconds) + 1
	if frames < 2 {
		frames = 2
	}
	return &Ring{
		buf:        make([]float32, frames*channels),
		capacity:   frames,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Channels returns the interleaved channel count.
func (r *Ring) Channels() int { return r.channels }

// SampleRate returns the sample rate in Hz.
func (r *Ring) SampleRate() int { return r.sampleRate }

// CapacityFrames returns the usable capacity in frames.
func (r *Ring) CapacityFrames() int { return r.capacity - 1 }

// UsedFrames returns the number of buffered frames.
func (r *Ring) UsedFrames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used()
}

func (r *Ring) used() int {
	return (r.writePos - r.readPos + r.capacity) % r.capacity
}

// FreeFrames returns the number of frames that can be written without
// overrunning the reserved slot.
func (r *Ring) FreeFrames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capacity - 1 - r.used()
}

// StartPTS returns the presentation time of the oldest buffered frame.
func (r *Ring) StartPTS() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startPTS
}

// EndPTS returns the presentation time following the newest buffered frame.
func (r *Ring) EndPTS() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.endPTS
}

// Reset discards all buffered frames and rebases both PTS cursors to pts.
// Called on seek and loop restart.
func (r *Ring) Reset(pts float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readPos = 0
	r.writePos = 0
	r.startPTS = pts
	r.endPTS = pts
}

// Write appends whole frames from samples (len must be a multiple of the
// channel count) and advances EndPTS. Returns the number of frames
// accepted; frames beyond the free capacity are dropped.
func (r *Ring) Write(samples []float32) int {
	frames := len(samples) / r.channels
	if frames == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	free := r.capacity - 1 - r.used()
	if frames > free {
		frames = free
	}

	for i := 0; i < frames; i++ {
		base := r.writePos * r.channels
		copy(r.buf[base:base+r.channels], samples[i*r.channels:(i+1)*r.channels])
		r.writePos = (r.writePos + 1) % r.capacity
	}
	r.endPTS += float64(frames) / float64(r.sampleRate)
	return frames
}

// Read pops up to maxFrames frames into dst in FIFO order and advances
// StartPTS by the frames consumed. Any shortfall in dst (up to maxFrames
// frames) is zero-filled. Never blocks; returns the frames actually read.
func (r *Ring) Read(dst []float32, maxFrames int) int {
	r.mu.Lock()
	n := r.pop(dst, maxFrames)
	r.mu.Unlock()

	for i := n * r.channels; i < maxFrames*r.channels && i < len(dst); i++ {
		dst[i] = 0
	}
	return n
}

// pop removes up to maxFrames frames into dst. Caller holds the lock.
func (r *Ring) pop(dst []float32, maxFrames int) int {
	frames := r.used()
	if frames > maxFrames {
		frames = maxFrames
	}
	if max := len(dst) / r.channels; frames > max {
		frames = max
	}

	for i := 0; i < frames; i++ {
		base := r.readPos * r.channels
		copy(dst[i*r.channels:(i+1)*r.channels], r.buf[base:base+r.channels])
		r.readPos = (r.readPos + 1) % r.capacity
	}
	r.startPTS += float64(frames) / float64(r.sampleRate)
	return frames
}

// discard drops frames from the read side. Caller holds the lock.
func (r *Ring) discard(frames int) {
	if used := r.used(); frames > used {
		frames = used
	}
	r.readPos = (r.readPos + frames) % r.capacity
	r.startPTS += float64(frames) / float64(r.sampleRate)
}

// ReadAtPTS pops up to maxFrames frames aligned to targetPTS, the
// presentation time the caller is about to display.
//
//   - targetPTS beyond EndPTS: the video is ahead of all buffered audio;
//     returns 0 (caller retries after more audio is produced).
//   - targetPTS more than PTSTolerance before StartPTS: the requested audio
//     was already consumed; returns 0 (a gap, not an error).
//   - targetPTS more than PTSTolerance past StartPTS: frames are discarded
//     until StartPTS reaches targetPTS, then the read proceeds.
//
// Discarded frames are dropped, not interpolated, so a heavily skewed
// caller can produce small audible gaps.
func (r *Ring) ReadAtPTS(dst []float32, targetPTS float64, maxFrames int) int {
	r.mu.Lock()

	if r.used() == 0 || targetPTS > r.endPTS {
		r.mu.Unlock()
		return 0
	}
	if targetPTS < r.startPTS-PTSTolerance {
		r.mu.Unlock()
		return 0
	}
	if ahead := targetPTS - r.startPTS; ahead > PTSTolerance {
		r.discard(int(ahead * float64(r.sampleRate)))
	}

	n := r.pop(dst, maxFrames)
	r.mu.Unlock()
	return n
}
