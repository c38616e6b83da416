package audio

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
)

// ChunkSource yields decoded PCM chunks in presentation order. NextChunk
// returns io.EOF when the track is exhausted; Seek repositions the read
// cursor to the chunk covering pts.
type ChunkSource interface {
	NextChunk() (samples []float32, pts float64, err error)
	Seek(pts float64) error
}

// FeederConfig configures a Feeder. Source and Ring are required; Device
// is optional and enables the internal playback path.
type FeederConfig struct {
	Source  ChunkSource
	Ring    *Ring
	Device  Device
	Looping bool
	Logger  *slog.Logger
}

// Feeder is the single producer of the audio path. Feed is called from the
// update thread; it pulls chunks from the source and delivers them either
// to the owned output device or to the ring buffer, until occupancy
// reaches half the ring capacity.
//
// When the source hits end of stream while looping, the feeder marks a
// pending restart and performs the Seek(0) on the next Feed call, outside
// the ring lock. SetVolume and SetInternalAudio may be called from any
// thread; everything else belongs to the update thread.
type Feeder struct {
	src    ChunkSource
	ring   *Ring
	device Device
	log    *slog.Logger

	volumeBits atomic.Uint64
	internal   atomic.Bool

	looping   bool
	needsLoop bool
	exhausted bool

	scratch []float32
}

// NewFeeder wires a feeder to its source and sinks. The internal device
// path starts enabled whenever a device is present.
func NewFeeder(cfg FeederConfig) (*Feeder, error) {
	if cfg.Source == nil {
		return nil, errors.New("audio: feeder requires a chunk source")
	}
	if cfg.Ring == nil {
		return nil, errors.New("audio: feeder requires a ring buffer")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	f := &Feeder{
		src:     cfg.Source,
		ring:    cfg.Ring,
		device:  cfg.Device,
		log:     logger.With("component", "audio_feeder"),
		looping: cfg.Looping,
	}
	f.volumeBits.Store(math.Float64bits(1.0))
	f.internal.Store(cfg.Device != nil)
	return f, nil
}

// SetVolume sets the gain applied on the device path, clamped to [0, 1].
// The ring path is unscaled; external consumers apply their own gain.
func (f *Feeder) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	f.volumeBits.Store(math.Float64bits(v))
}

// Volume returns the current device-path gain.
func (f *Feeder) Volume() float64 {
	return math.Float64frombits(f.volumeBits.Load())
}

// SetInternalAudio switches between pushing samples to the owned device
// (true) and buffering them in the ring for external reads (false). A
// feeder without a device always uses the ring.
func (f *Feeder) SetInternalAudio(enabled bool) {
	f.internal.Store(enabled && f.device != nil)
}

// SetLooping changes end-of-stream behavior for subsequent feeds.
func (f *Feeder) SetLooping(looping bool) { f.looping = looping }

// Exhausted reports whether the source ended with looping disabled.
func (f *Feeder) Exhausted() bool { return f.exhausted }

// Reset discards buffered audio on both paths, rebases the ring PTS to
// pts, and repositions the source. Called on seek and loop restart.
func (f *Feeder) Reset(pts float64) error {
	f.ring.Reset(pts)
	if f.device != nil {
		f.device.Flush()
	}
	f.needsLoop = false
	f.exhausted = false
	return f.src.Seek(pts)
}

// Feed tops the active sink up to the target occupancy. Chunk read errors
// are logged and end the call; playback continues with what is buffered.
func (f *Feeder) Feed() {
	if f.needsLoop {
		f.needsLoop = false
		if err := f.src.Seek(0); err != nil {
			f.log.Warn("audio loop restart failed", "error", err)
			f.exhausted = true
			return
		}
		f.ring.Reset(0)
		if f.device != nil {
			f.device.Flush()
		}
	}
	if f.exhausted {
		return
	}

	target := f.ring.CapacityFrames() / 2
	for f.occupancy() < target {
		samples, _, err := f.src.NextChunk()
		if errors.Is(err, io.EOF) {
			if f.looping {
				f.needsLoop = true
			} else {
				f.exhausted = true
			}
			return
		}
		if err != nil {
			f.log.Warn("audio chunk read failed", "error", err)
			return
		}
		f.deliver(samples)
	}
}

func (f *Feeder) occupancy() int {
	if f.internal.Load() {
		return int(f.device.BufferedFrames())
	}
	return f.ring.UsedFrames()
}

func (f *Feeder) deliver(samples []float32) {
	if !f.internal.Load() {
		f.ring.Write(samples)
		return
	}
	vol := float32(f.Volume())
	if vol != 1.0 {
		if cap(f.scratch) < len(samples) {
			f.scratch = make([]float32, len(samples))
		}
		f.scratch = f.scratch[:len(samples)]
		for i, s := range samples {
			f.scratch[i] = s * vol
		}
		samples = f.scratch
	}
	if err := f.device.PushSamples(samples); err != nil {
		f.log.Warn("audio device push failed", "error", err)
	}
}
