package player

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickvid/hap/audio"
	"github.com/quickvid/hap/gpu"
)

func writeMovie(t *testing.T, spec movieSpec) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mov")
	require.NoError(t, os.WriteFile(path, buildMovie(spec), 0o644))
	return path
}

func TestPlayerOpensOnUpdateAndAutoPlays(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := writeMovie(t, movieSpec{videoFrames: 5})
	clock := newFakeClock()
	p := New(Config{GPU: gpu.NewMemDevice(), Now: clock.now, Logger: testLogger()})
	defer p.Close()

	p.File(path).Loop(true).Volume(0.8)
	assert.Equal(t, Stopped, p.State())

	require.NoError(t, p.Update(ctx))
	assert.Equal(t, Playing, p.State())
	assert.InDelta(t, 0.2, p.Duration(), 1e-9)
	assert.True(t, p.Decoder().Looping())
	assert.Len(t, p.Textures(), 1)
}

func TestPlayerAutoPlayDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := writeMovie(t, movieSpec{videoFrames: 3})
	p := New(Config{GPU: gpu.NewMemDevice(), Logger: testLogger()}).AutoPlay(false)
	defer p.Close()

	require.NoError(t, p.File(path).Update(ctx))
	assert.Equal(t, Opened, p.State())

	require.NoError(t, p.Play())
	assert.Equal(t, Playing, p.State())
}

func TestPlayerOpenErrorSurfaces(t *testing.T) {
	t.Parallel()

	p := New(Config{GPU: gpu.NewMemDevice(), Logger: testLogger()})
	defer p.Close()

	err := p.File(filepath.Join(t.TempDir(), "missing.mov")).Update(context.Background())
	assert.Error(t, err)
	assert.Equal(t, Stopped, p.State())

	// The failed path is not retried on the next tick.
	assert.NoError(t, p.Update(context.Background()))
}

func TestPlayerSpeedScalesClockAndMutesAudio(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := writeMovie(t, movieSpec{videoFrames: 5, audioChunks: 6})
	var dev *audio.SimDevice
	clock := newFakeClock()
	p := New(Config{
		GPU:         gpu.NewMemDevice(),
		Now:         clock.now,
		AudioDevice: simOpener(&dev),
		Logger:      testLogger(),
	})
	defer p.Close()

	p.Speed(2.0).File(path)
	require.NoError(t, p.Update(ctx))
	require.Equal(t, Playing, p.State())
	require.Equal(t, 2.0, p.Decoder().Speed())

	// Scaled playback runs on the wall clock: 0.05s of real time covers
	// two 0.04s frames.
	clock.advance(0.05)
	require.NoError(t, p.Update(ctx))
	assert.Equal(t, 2, p.Decoder().CurrentFrame())

	// Audio pushed while scaled is muted.
	dev.Advance(0.5)
	require.NoError(t, p.Update(ctx))
	queued := dev.Queued()
	require.NotEmpty(t, queued)
	assert.Equal(t, float32(0), queued[0])
}

func TestPlayerRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := writeMovie(t, movieSpec{videoFrames: 3})
	clock := newFakeClock()
	p := New(Config{GPU: gpu.NewMemDevice(), Now: clock.now, Logger: testLogger()})
	defer p.Close()

	require.NoError(t, p.File(path).Update(ctx))
	clock.advance(1.0)
	require.NoError(t, p.Update(ctx))
	require.NoError(t, p.Update(ctx))
	require.Equal(t, Finished, p.State())

	require.NoError(t, p.Restart(ctx))
	assert.Equal(t, Playing, p.State())
	assert.Equal(t, 0, p.Decoder().CurrentFrame())
	assert.Equal(t, 0.0, p.CurrentTime())
}

func TestHAPProviderProbe(t *testing.T) {
	t.Parallel()

	hap := writeMovie(t, movieSpec{videoFrames: 2})
	other := writeMovie(t, movieSpec{videoFrames: 2, videoCodec: "avc1"})

	p := HAPProvider{}
	assert.True(t, p.CanOpen(hap))
	assert.False(t, p.CanOpen(other))
	assert.False(t, p.CanOpen(filepath.Join(t.TempDir(), "nope.mov")))
}

func TestOpenFileProviderSelection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := Config{GPU: gpu.NewMemDevice(), Logger: testLogger()}

	d, err := OpenFile(ctx, writeMovie(t, movieSpec{videoFrames: 2}), cfg)
	require.NoError(t, err)
	assert.Equal(t, Opened, d.State())
	require.NoError(t, d.Close())

	_, err = OpenFile(ctx, writeMovie(t, movieSpec{videoFrames: 2, videoCodec: "avc1"}), cfg)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testLogger())
	cfg := Config{GPU: gpu.NewMemDevice(), Logger: testLogger()}

	id1, err := r.Add(New(cfg))
	require.NoError(t, err)
	id2, err := r.Add(New(cfg))
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
	assert.Equal(t, 2, r.Len())
	assert.ElementsMatch(t, []string{id1, id2}, r.IDs())

	got, ok := r.Get(id1)
	require.True(t, ok)
	assert.NotNil(t, got)

	require.NoError(t, r.Remove(id1))
	assert.Equal(t, 1, r.Len())
	assert.Error(t, r.Remove(id1))

	require.NoError(t, r.Close())
	assert.Equal(t, 0, r.Len())
	_, err = r.Add(New(cfg))
	assert.Error(t, err)
}
