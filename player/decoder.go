package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/quickvid/hap/audio"
	"github.com/quickvid/hap/gpu"
	"github.com/quickvid/hap/media"
	"github.com/quickvid/hap/mov"
)

// maxFrameSkips bounds late-frame catch-up per update tick. Unbounded
// skipping under sustained decode slowness could spin through the whole
// remaining file in one tick.
const maxFrameSkips = 5

const defaultRingSeconds = 0.5

var (
	ErrNotOpen          = errors.New("player: no file open")
	ErrAlreadyOpen      = errors.New("player: decoder already open")
	ErrUnsupportedCodec = errors.New("player: unsupported video codec")
)

// Config configures a Decoder. GPU is required; the zero value of every
// other field is usable.
type Config struct {
	// GPU receives the decoded textures.
	GPU gpu.Device
	// Codec decodes compressed frames. Nil selects the HAP codec.
	Codec FrameCodec
	// AudioDevice opens the output device for internal audio playback.
	// Nil leaves audio available only through the external read calls.
	AudioDevice audio.DeviceOpener
	// RingSeconds sizes the audio ring buffer. Defaults to 0.5s.
	RingSeconds float64
	// Looping restarts playback at end of stream.
	Looping bool
	Logger  *slog.Logger
	// Now overrides the clock source.
	Now func() time.Time
}

// Stats are cumulative playback counters, readable from any thread.
type Stats struct {
	FramesDecoded uint64
	FramesSkipped uint64
	// ConsecutiveFailures counts decode failures since the last good
	// frame. A steadily rising value means the file is bad past the
	// current position.
	ConsecutiveFailures uint64
}

// Decoder plays one HAP file: it owns the parsed container, the GPU
// textures holding the current frame, and the audio path. All methods
// except the audio reads, Stats, and SetVolume must be called from the
// single thread driving Update.
type Decoder struct {
	log       *slog.Logger
	gpu       gpu.Device
	codec     FrameCodec
	openAudio audio.DeviceOpener
	now       func() time.Time

	ringSeconds float64
	looping     bool
	speed       float64

	state  State
	src    io.ReaderAt
	closer io.Closer
	file   *mov.File
	video  *mov.Track

	textures  []gpu.Texture
	frameBufs [][]byte
	strides   []int
	rows      []int
	extent    gpu.Extent
	sampleBuf []byte

	cursor        int
	clock         float64
	nextFrameTime float64
	lastTick      time.Time

	hasAudio       bool
	ring           *audio.Ring
	feeder         *audio.Feeder
	device         audio.Device
	audioClockBase float64
	devPosBase     float64

	framesDecoded  atomic.Uint64
	framesSkipped  atomic.Uint64
	consecFailures atomic.Uint64
}

// NewDecoder returns a Decoder in the Stopped state.
func NewDecoder(cfg Config) (*Decoder, error) {
	if cfg.GPU == nil {
		return nil, errors.New("player: config requires a GPU device")
	}
	codec := cfg.Codec
	if codec == nil {
		codec = NewHAPFrameCodec()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ringSeconds := cfg.RingSeconds
	if ringSeconds <= 0 {
		ringSeconds = defaultRingSeconds
	}
	return &Decoder{
		log:         logger.With("component", "decoder"),
		gpu:         cfg.GPU,
		codec:       codec,
		openAudio:   cfg.AudioDevice,
		now:         now,
		ringSeconds: ringSeconds,
		looping:     cfg.Looping,
		speed:       1.0,
	}, nil
}

// Open parses the file at path, uploads frame 0, and primes the audio
// path. A failed Open leaves the decoder Stopped and fully closed.
func (d *Decoder) Open(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := d.OpenReader(ctx, f, st.Size()); err != nil {
		f.Close()
		return err
	}
	d.closer = f
	return nil
}

// OpenReader is Open over an in-memory or otherwise pre-opened byte
// source. The caller keeps ownership of r.
func (d *Decoder) OpenReader(ctx context.Context, r io.ReaderAt, size int64) error {
	if d.state != Stopped {
		return ErrAlreadyOpen
	}

	file, err := mov.Parse(io.NewSectionReader(r, 0, size), size)
	if err != nil {
		return fmt.Errorf("parse container: %w", err)
	}
	video := file.VideoTrack()
	if video == nil || len(video.Samples) == 0 {
		return mov.ErrNoVideoTrack
	}
	if !mov.IsHAPCodec(video.Codec) {
		return fmt.Errorf("%w: %s", ErrUnsupportedCodec, video.Codec)
	}

	d.src = r
	d.file = file
	d.video = video

	if err := d.setupTextures(ctx); err != nil {
		d.teardown()
		return err
	}
	d.setupAudio()

	d.cursor = 0
	d.clock = 0
	d.nextFrameTime = d.sampleEnd(0)
	d.state = Opened
	d.log.Info("opened",
		"codec", video.Codec.String(),
		"size", fmt.Sprintf("%dx%d", video.Width, video.Height),
		"frames", len(video.Samples),
		"audio", d.hasAudio)
	return nil
}

// setupTextures probes frame 0 for the texture layout, creates the GPU
// textures and reusable frame buffers, and uploads frame 0.
func (d *Decoder) setupTextures(ctx context.Context) error {
	if err := d.readSample(0); err != nil {
		return err
	}
	info, err := d.codec.Probe(d.sampleBuf)
	if err != nil {
		return fmt.Errorf("probe frame 0: %w", err)
	}

	w, h := d.video.Width, d.video.Height
	d.extent = gpu.Extent{Width: w, Height: h}
	for _, format := range info.Textures {
		tex, err := d.gpu.CreateTexture(w, h, format)
		if err != nil {
			return fmt.Errorf("create %s texture: %w", format, err)
		}
		d.textures = append(d.textures, tex)
		d.frameBufs = append(d.frameBufs, make([]byte, gpu.FrameSize(w, h, format)))
		d.strides = append(d.strides, gpu.BytesPerRow(w, format))
		d.rows = append(d.rows, gpu.RowsPerImage(h, format))
	}

	if err := d.decodeAndUpload(ctx, 0); err != nil {
		return fmt.Errorf("decode frame 0: %w", err)
	}
	return nil
}

// setupAudio wires the ring, device, and feeder for the audio track, if
// any. Device open failure downgrades to video-only playback.
func (d *Decoder) setupAudio() {
	track := d.file.AudioTrack()
	if track == nil {
		return
	}

	var dev audio.Device
	if d.openAudio != nil {
		var err error
		dev, err = d.openAudio(track.SampleRate, track.Channels)
		if err != nil {
			d.log.Warn("audio device init failed, continuing without audio", "error", err)
			return
		}
	}

	ring := audio.NewRing(track.SampleRate, track.Channels, d.ringSeconds)
	feeder, err := audio.NewFeeder(audio.FeederConfig{
		Source:  newTrackSource(d.src, track),
		Ring:    ring,
		Device:  dev,
		Looping: d.looping,
		Logger:  d.log,
	})
	if err != nil {
		d.log.Warn("audio setup failed, continuing without audio", "error", err)
		if dev != nil {
			dev.Close()
		}
		return
	}

	d.ring = ring
	d.feeder = feeder
	d.device = dev
	d.hasAudio = true
	feeder.Feed()
}

// Play starts or resumes playback. From Finished it restarts only when
// looping is enabled.
func (d *Decoder) Play() error {
	switch d.state {
	case Stopped:
		return ErrNotOpen
	case Playing:
		return nil
	case Finished:
		if !d.looping {
			return nil
		}
		d.restart(context.Background())
	}
	d.state = Playing
	d.lastTick = d.now()
	if d.device != nil {
		d.device.Play()
	}
	d.rebaseAudioClock()
	return nil
}

// Pause freezes the clock, keeping the sample cursor and buffered audio.
func (d *Decoder) Pause() {
	if d.state != Playing {
		return
	}
	d.state = Paused
	if d.device != nil {
		d.device.Pause()
	}
}

// Seek clamps t to [0, duration], decodes and uploads the frame at the
// clamped time, and re-primes the audio path before returning.
func (d *Decoder) Seek(ctx context.Context, t float64) error {
	if d.state == Stopped {
		return ErrNotOpen
	}
	if t < 0 {
		t = 0
	}
	if dur := d.video.DurationSeconds(); t > dur {
		t = dur
	}

	d.cursor = d.video.SampleIndexAt(t)
	if err := d.decodeAndUpload(ctx, d.cursor); err != nil {
		d.noteDecodeFailure(d.cursor, err)
	}
	d.clock = t
	d.nextFrameTime = t
	d.lastTick = d.now()

	if d.feeder != nil {
		if err := d.feeder.Reset(t); err != nil {
			d.log.Warn("audio seek failed", "error", err)
		}
		d.feeder.Feed()
	}
	d.rebaseAudioClock()

	if d.state == Finished {
		d.state = Paused
	}
	return nil
}

// Update is the per-frame tick: it advances the clock, feeds audio, and
// decodes or skips video frames that have come due. Call it once per
// render loop iteration from the owning thread.
func (d *Decoder) Update(ctx context.Context) error {
	if d.state == Stopped {
		return ErrNotOpen
	}
	if d.state != Playing {
		return nil
	}
	if d.feeder != nil {
		d.feeder.Feed()
	}

	now := d.now()
	if d.audioMaster() {
		d.clock = d.audioClockBase + (d.device.PlaybackPosition() - d.devPosBase)
	} else {
		d.clock += now.Sub(d.lastTick).Seconds() * d.speed
	}
	d.lastTick = now

	if d.clock < d.nextFrameTime {
		return nil
	}

	next := d.cursor + 1
	if next >= len(d.video.Samples) {
		d.finishOrLoop(ctx)
		return nil
	}

	// Skip frames whose presentation window already passed, up to the
	// per-tick bound, then present whichever frame is selected.
	start := d.video.SampleStart(next)
	skips := 0
	for skips < maxFrameSkips && next+1 < len(d.video.Samples) {
		end := start + d.sampleDuration(next)
		if end >= d.clock {
			break
		}
		start = end
		next++
		skips++
	}
	if skips > 0 {
		d.framesSkipped.Add(uint64(skips))
		d.log.Debug("skipped late frames", "count", skips, "clock", d.clock)
	}

	if err := d.decodeAndUpload(ctx, next); err != nil {
		d.noteDecodeFailure(next, err)
	}
	d.cursor = next
	d.nextFrameTime = start + d.sampleDuration(next)
	return nil
}

// finishOrLoop handles the clock passing the last frame's end.
func (d *Decoder) finishOrLoop(ctx context.Context) {
	if d.looping {
		d.restart(ctx)
		return
	}
	d.state = Finished
	if d.device != nil {
		d.device.Pause()
	}
	d.log.Info("finished", "frames_decoded", d.framesDecoded.Load())
}

// restart rewinds both the video cursor and the audio path to zero.
func (d *Decoder) restart(ctx context.Context) {
	d.cursor = 0
	d.clock = 0
	d.nextFrameTime = d.sampleEnd(0)
	d.lastTick = d.now()
	if err := d.decodeAndUpload(ctx, 0); err != nil {
		d.noteDecodeFailure(0, err)
	}
	if d.feeder != nil {
		if err := d.feeder.Reset(0); err != nil {
			d.log.Warn("audio loop restart failed", "error", err)
		}
		d.feeder.Feed()
	}
	d.rebaseAudioClock()
}

// Close releases textures, the audio device, and the container reader.
// Safe to call in any state, including repeatedly.
func (d *Decoder) Close() error {
	d.teardown()
	var err error
	if d.closer != nil {
		err = d.closer.Close()
		d.closer = nil
	}
	d.state = Stopped
	return err
}

func (d *Decoder) teardown() {
	for _, tex := range d.textures {
		tex.Release()
	}
	d.textures = nil
	d.frameBufs = nil
	d.strides = nil
	d.rows = nil
	if d.device != nil {
		d.device.Close()
		d.device = nil
	}
	d.ring = nil
	d.feeder = nil
	d.hasAudio = false
	d.file = nil
	d.video = nil
	d.src = nil
	d.cursor = 0
	d.clock = 0
	d.nextFrameTime = 0
}

// audioMaster reports whether the audio device position drives the clock.
// Wall clock takes over when audio is absent or time is scaled.
func (d *Decoder) audioMaster() bool {
	return d.hasAudio && d.device != nil && d.speed == 1.0
}

func (d *Decoder) rebaseAudioClock() {
	if d.device != nil {
		d.audioClockBase = d.clock
		d.devPosBase = d.device.PlaybackPosition()
	}
}

// readSample reads sample i of the video track into the reusable buffer.
func (d *Decoder) readSample(i int) error {
	smp := d.video.Samples[i]
	if cap(d.sampleBuf) < int(smp.Size) {
		d.sampleBuf = make([]byte, smp.Size)
	}
	d.sampleBuf = d.sampleBuf[:smp.Size]
	if _, err := d.src.ReadAt(d.sampleBuf, smp.Offset); err != nil {
		return fmt.Errorf("read sample %d: %w", i, err)
	}
	return nil
}

// decodeAndUpload reads, decodes, and uploads video sample i into the
// decoder's textures.
func (d *Decoder) decodeAndUpload(ctx context.Context, i int) error {
	if err := d.readSample(i); err != nil {
		return err
	}
	for ti, tex := range d.textures {
		n, err := d.codec.DecodeTexture(ctx, d.sampleBuf, ti, d.frameBufs[ti])
		if err != nil {
			return fmt.Errorf("decode sample %d texture %d: %w", i, ti, err)
		}
		if err := tex.Write(d.frameBufs[ti][:n], d.strides[ti], d.rows[ti], d.extent); err != nil {
			return fmt.Errorf("upload sample %d texture %d: %w", i, ti, err)
		}
	}
	d.framesDecoded.Add(1)
	d.consecFailures.Store(0)
	return nil
}

// noteDecodeFailure records a transient per-frame error. Playback
// continues with the previous frame still displayed.
func (d *Decoder) noteDecodeFailure(i int, err error) {
	d.consecFailures.Add(1)
	d.log.Warn("frame decode failed", "sample", i, "error", err)
}

func (d *Decoder) sampleDuration(i int) float64 {
	dur := float64(d.video.Samples[i].Duration) / float64(d.video.Timescale)
	if dur <= 0 {
		if fps := d.video.FrameRate(); fps > 0 {
			dur = 1 / fps
		}
	}
	return dur
}

func (d *Decoder) sampleEnd(i int) float64 {
	return d.video.SampleStart(i) + d.sampleDuration(i)
}

// State returns the lifecycle state.
func (d *Decoder) State() State { return d.state }

// CurrentTime returns the playback clock in seconds.
func (d *Decoder) CurrentTime() float64 { return d.clock }

// Duration returns the video track duration in seconds, 0 when closed.
func (d *Decoder) Duration() float64 {
	if d.video == nil {
		return 0
	}
	return d.video.DurationSeconds()
}

// CurrentFrame returns the index of the displayed sample.
func (d *Decoder) CurrentFrame() int { return d.cursor }

// Textures returns the textures holding the current frame, in plane
// order. Owned by the decoder; released on Close.
func (d *Decoder) Textures() []gpu.Texture { return d.textures }

// HasAudio reports whether an audio path is active.
func (d *Decoder) HasAudio() bool { return d.hasAudio }

// AudioBuffer exposes the ring for PTS inspection; nil without audio.
func (d *Decoder) AudioBuffer() *audio.Ring { return d.ring }

// VideoInfo describes the open video track.
func (d *Decoder) VideoInfo() media.VideoInfo {
	if d.file == nil {
		return media.VideoInfo{}
	}
	return d.file.VideoInfo()
}

// AudioInfo describes the open audio track.
func (d *Decoder) AudioInfo() media.AudioInfo {
	if d.file == nil {
		return media.AudioInfo{}
	}
	return d.file.AudioInfo()
}

// SetLooping changes end-of-stream behavior.
func (d *Decoder) SetLooping(looping bool) {
	d.looping = looping
	if d.feeder != nil {
		d.feeder.SetLooping(looping)
	}
}

// Looping reports the loop setting.
func (d *Decoder) Looping() bool { return d.looping }

// SetSpeed scales the wall clock. Any speed other than 1.0 detaches the
// clock from the audio device.
func (d *Decoder) SetSpeed(speed float64) {
	if speed <= 0 {
		return
	}
	wasMaster := d.audioMaster()
	d.speed = speed
	if wasMaster && !d.audioMaster() {
		d.lastTick = d.now()
	}
	d.rebaseAudioClock()
}

// Speed returns the clock scale.
func (d *Decoder) Speed() float64 { return d.speed }

// SetVolume sets the internal audio path gain in [0, 1].
func (d *Decoder) SetVolume(v float64) {
	if d.feeder != nil {
		d.feeder.SetVolume(v)
	}
}

// SetInternalAudioEnabled switches between device output (true) and the
// external read calls (false).
func (d *Decoder) SetInternalAudioEnabled(enabled bool) {
	if d.feeder != nil {
		d.feeder.SetInternalAudio(enabled)
	}
}

// ReadAudioSamples pops up to maxFrames frames of buffered audio in FIFO
// order, zero-filling any shortfall. Callable from an audio callback
// thread.
func (d *Decoder) ReadAudioSamples(dst []float32, maxFrames int) int {
	if d.ring == nil {
		return 0
	}
	return d.ring.Read(dst, maxFrames)
}

// ReadAudioSamplesForPTS pops buffered audio aligned to the given video
// presentation time. Callable from an audio callback thread.
func (d *Decoder) ReadAudioSamplesForPTS(dst []float32, targetPTS float64, maxFrames int) int {
	if d.ring == nil {
		return 0
	}
	return d.ring.ReadAtPTS(dst, targetPTS, maxFrames)
}

// Stats returns cumulative playback counters.
func (d *Decoder) Stats() Stats {
	return Stats{
		FramesDecoded:       d.framesDecoded.Load(),
		FramesSkipped:       d.framesSkipped.Load(),
		ConsecutiveFailures: d.consecFailures.Load(),
	}
}
