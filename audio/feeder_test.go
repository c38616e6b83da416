package audio

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves fixed-size chunks of constant-valued frames.
type fakeSource struct {
	sampleRate  int
	channels    int
	chunkFrames int
	chunks      int
	cursor      int
	nextErr     error
	seeks       []float64
}

func (s *fakeSource) NextChunk() ([]float32, float64, error) {
	if s.nextErr != nil {
		err := s.nextErr
		s.nextErr = nil
		return nil, 0, err
	}
	if s.cursor >= s.chunks {
		return nil, 0, io.EOF
	}
	pts := float64(s.cursor*s.chunkFrames) / float64(s.sampleRate)
	samples := make([]float32, s.chunkFrames*s.channels)
	for i := range samples {
		samples[i] = float32(s.cursor + 1)
	}
	s.cursor++
	return samples, pts, nil
}

func (s *fakeSource) Seek(pts float64) error {
	s.seeks = append(s.seeks, pts)
	s.cursor = int(pts * float64(s.sampleRate) / float64(s.chunkFrames))
	return nil
}

func newTestFeeder(t *testing.T, cfg FeederConfig) *Feeder {
	t.Helper()
	f, err := NewFeeder(cfg)
	require.NoError(t, err)
	return f
}

func TestFeederFillsRingToTarget(t *testing.T) {
	t.Parallel()

	src := &fakeSource{sampleRate: 1000, channels: 1, chunkFrames: 100, chunks: 10}
	ring := NewRing(1000, 1, 1.0) // 1000 usable frames, target 500
	f := newTestFeeder(t, FeederConfig{Source: src, Ring: ring})

	f.Feed()
	assert.Equal(t, 500, ring.UsedFrames())
	assert.False(t, f.Exhausted())

	// Draining and feeding again tops the ring back up.
	dst := make([]float32, 300)
	ring.Read(dst, 300)
	f.Feed()
	assert.Equal(t, 500, ring.UsedFrames())
}

func TestFeederExhaustsWithoutLooping(t *testing.T) {
	t.Parallel()

	src := &fakeSource{sampleRate: 1000, channels: 1, chunkFrames: 100, chunks: 2}
	ring := NewRing(1000, 1, 1.0)
	f := newTestFeeder(t, FeederConfig{Source: src, Ring: ring})

	f.Feed()
	assert.Equal(t, 200, ring.UsedFrames())
	assert.True(t, f.Exhausted())

	// Further feeds are no-ops.
	f.Feed()
	assert.Equal(t, 200, ring.UsedFrames())
	assert.Empty(t, src.seeks)
}

func TestFeederLoopRestart(t *testing.T) {
	t.Parallel()

	src := &fakeSource{sampleRate: 1000, channels: 1, chunkFrames: 100, chunks: 2}
	ring := NewRing(1000, 1, 1.0)
	f := newTestFeeder(t, FeederConfig{Source: src, Ring: ring, Looping: true})

	f.Feed()
	require.Equal(t, 200, ring.UsedFrames())
	require.False(t, f.Exhausted())

	dst := make([]float32, 200)
	ring.Read(dst, 200)
	require.InDelta(t, 0.2, ring.StartPTS(), 1e-9)

	// The restart happens on the next feed, rewinding the source and
	// rebasing the ring PTS to zero.
	f.Feed()
	assert.Equal(t, []float64{0}, src.seeks)
	assert.Equal(t, 200, ring.UsedFrames())
	assert.Equal(t, 0.0, ring.StartPTS())
	assert.InDelta(t, 0.2, ring.EndPTS(), 1e-9)
	assert.False(t, f.Exhausted())
}

func TestFeederChunkErrorEndsFeed(t *testing.T) {
	t.Parallel()

	src := &fakeSource{sampleRate: 1000, channels: 1, chunkFrames: 100, chunks: 10,
		nextErr: errors.New("bad sample")}
	ring := NewRing(1000, 1, 1.0)
	f := newTestFeeder(t, FeederConfig{Source: src, Ring: ring})

	f.Feed()
	assert.Equal(t, 0, ring.UsedFrames())
	assert.False(t, f.Exhausted())

	// The error was transient; the next feed proceeds.
	f.Feed()
	assert.Equal(t, 500, ring.UsedFrames())
}

func TestFeederDevicePathAppliesVolume(t *testing.T) {
	t.Parallel()

	src := &fakeSource{sampleRate: 1000, channels: 2, chunkFrames: 100, chunks: 10}
	ring := NewRing(1000, 2, 0.4) // target 200 frames
	dev := NewSimDevice(1000, 2)
	f := newTestFeeder(t, FeederConfig{Source: src, Ring: ring, Device: dev})
	f.SetVolume(0.5)

	f.Feed()
	assert.Equal(t, 0, ring.UsedFrames())
	assert.Equal(t, uint32(200), dev.BufferedFrames())
	queued := dev.Queued()
	assert.Equal(t, float32(0.5), queued[0]) // chunk value 1.0 scaled
}

func TestFeederExternalModeUsesRing(t *testing.T) {
	t.Parallel()

	src := &fakeSource{sampleRate: 1000, channels: 1, chunkFrames: 100, chunks: 10}
	ring := NewRing(1000, 1, 0.4)
	dev := NewSimDevice(1000, 1)
	f := newTestFeeder(t, FeederConfig{Source: src, Ring: ring, Device: dev})
	f.SetInternalAudio(false)

	f.Feed()
	assert.Equal(t, uint32(0), dev.BufferedFrames())
	assert.Equal(t, 200, ring.UsedFrames())
}

func TestFeederReset(t *testing.T) {
	t.Parallel()

	src := &fakeSource{sampleRate: 1000, channels: 1, chunkFrames: 100, chunks: 10}
	ring := NewRing(1000, 1, 1.0)
	f := newTestFeeder(t, FeederConfig{Source: src, Ring: ring})

	f.Feed()
	require.NoError(t, f.Reset(0.3))
	assert.Equal(t, 0, ring.UsedFrames())
	assert.Equal(t, 0.3, ring.StartPTS())
	assert.Equal(t, []float64{0.3}, src.seeks)

	f.Feed()
	assert.Equal(t, 500, ring.UsedFrames())
	assert.InDelta(t, 0.8, ring.EndPTS(), 1e-9)
}

func TestFeederVolumeClamped(t *testing.T) {
	t.Parallel()

	f := newTestFeeder(t, FeederConfig{
		Source: &fakeSource{sampleRate: 1000, channels: 1, chunkFrames: 10, chunks: 1},
		Ring:   NewRing(1000, 1, 0.1),
	})
	f.SetVolume(1.7)
	assert.Equal(t, 1.0, f.Volume())
	f.SetVolume(-0.2)
	assert.Equal(t, 0.0, f.Volume())
}

func TestSimDeviceAdvance(t *testing.T) {
	t.Parallel()

	dev := NewSimDevice(1000, 2)
	require.NoError(t, dev.PushSamples(make([]float32, 200))) // 100 frames

	// Paused devices do not move.
	dev.Advance(0.05)
	assert.Equal(t, 0.0, dev.PlaybackPosition())

	dev.Play()
	dev.Advance(0.05)
	assert.Equal(t, 0.05, dev.PlaybackPosition())
	assert.Equal(t, uint32(50), dev.BufferedFrames())

	// A starved device stalls at the end of its queue.
	dev.Advance(1.0)
	assert.Equal(t, 0.1, dev.PlaybackPosition())
	assert.Equal(t, uint32(0), dev.BufferedFrames())
}
