package audio

import (
	"fmt"
	"sync"
)

// Device is an audio output sink. PushSamples is called from the producer
// (update) thread; position and buffer queries may come from any thread.
// Implementations wrap a platform audio API; SimDevice is an in-memory
// stand-in for tests.
type Device interface {
	// PushSamples queues interleaved float frames for playback.
	PushSamples(samples []float32) error
	// Play starts or resumes output.
	Play()
	// Pause halts output without discarding queued samples.
	Pause()
	// Flush discards all queued samples.
	Flush()
	// PlaybackPosition returns seconds of audio actually played since the
	// device was opened or last flushed.
	PlaybackPosition() float64
	// BufferedFrames returns the number of queued but unplayed frames.
	BufferedFrames() uint32
	Close() error
}

// DeviceOpener creates a Device for the given stream parameters. A nil
// opener or an opener error downgrades playback to video-only.
type DeviceOpener func(sampleRate, channels int) (Device, error)

// SimDevice is a Device whose playback position only advances when the
// test calls Advance. Pushed samples are retained for inspection.
type SimDevice struct {
	// FailPush makes every PushSamples call return an error.
	FailPush bool

	mu         sync.Mutex
	sampleRate int
	channels   int
	playing    bool
	closed     bool
	queued     []float32
	played     int // frames
}

// NewSimDevice returns a stopped device for the given stream parameters.
func NewSimDevice(sampleRate, channels int) *SimDevice {
	return &SimDevice{sampleRate: sampleRate, channels: channels}
}

func (d *SimDevice) PushSamples(samples []float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("audio: push on closed device")
	}
	if d.FailPush {
		return fmt.Errorf("audio: simulated push failure")
	}
	d.queued = append(d.queued, samples...)
	return nil
}

func (d *SimDevice) Play() {
	d.mu.Lock()
	d.playing = true
	d.mu.Unlock()
}

func (d *SimDevice) Pause() {
	d.mu.Lock()
	d.playing = false
	d.mu.Unlock()
}

func (d *SimDevice) Flush() {
	d.mu.Lock()
	d.queued = d.queued[:0]
	d.played = 0
	d.mu.Unlock()
}

func (d *SimDevice) PlaybackPosition() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return float64(d.played) / float64(d.sampleRate)
}

func (d *SimDevice) BufferedFrames() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(len(d.queued) / d.channels)
}

func (d *SimDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.playing = false
	d.queued = nil
	d.mu.Unlock()
	return nil
}

// Advance plays through up to seconds of queued audio, moving the
// playback position. Position does not move while paused or when the
// queue is empty, matching a real device starved of samples.
func (d *SimDevice) Advance(seconds float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.playing {
		return
	}
	frames := int(seconds * float64(d.sampleRate))
	if max := len(d.queued) / d.channels; frames > max {
		frames = max
	}
	d.queued = d.queued[frames*d.channels:]
	d.played += frames
}

// Playing reports whether the device is running.
func (d *SimDevice) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

// Queued returns a copy of the unplayed samples.
func (d *SimDevice) Queued() []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]float32, len(d.queued))
	copy(out, d.queued)
	return out
}
