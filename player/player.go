package player

import (
	"context"
	"log/slog"

	"github.com/quickvid/hap/gpu"
)

// Player is the host-facing playback operator: a fluent wrapper around one
// Decoder that defers file opening to the update loop and re-applies its
// settings across file changes. The configuration methods return the
// receiver for chaining and may be called before any file is set.
type Player struct {
	log       *slog.Logger
	cfg       Config
	providers []Provider

	dec      *Decoder
	pending  string
	loop     bool
	volume   float64
	speed    float64
	autoPlay bool
}

// New returns an idle player. Providers default to DefaultProviders.
func New(cfg Config, providers ...Provider) *Player {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(providers) == 0 {
		providers = DefaultProviders()
	}
	return &Player{
		log:       logger.With("component", "player"),
		cfg:       cfg,
		providers: providers,
		volume:    1.0,
		speed:     1.0,
		autoPlay:  true,
	}
}

// File schedules path to be opened on the next Update, replacing any open
// file.
func (p *Player) File(path string) *Player {
	p.pending = path
	return p
}

// Loop sets end-of-stream behavior.
func (p *Player) Loop(loop bool) *Player {
	p.loop = loop
	if p.dec != nil {
		p.dec.SetLooping(loop)
	}
	return p
}

// Volume sets the internal audio gain in [0, 1].
func (p *Player) Volume(v float64) *Player {
	p.volume = v
	p.applyAudio()
	return p
}

// Speed scales playback rate. Scaled playback runs on the wall clock with
// audio muted; pitch correction is not attempted.
func (p *Player) Speed(s float64) *Player {
	if s <= 0 {
		return p
	}
	p.speed = s
	if p.dec != nil {
		p.dec.SetSpeed(s)
	}
	p.applyAudio()
	return p
}

// AutoPlay controls whether a newly opened file starts playing on its
// first update. Defaults to true.
func (p *Player) AutoPlay(auto bool) *Player {
	p.autoPlay = auto
	return p
}

func (p *Player) applyAudio() {
	if p.dec == nil {
		return
	}
	v := p.volume
	if p.speed != 1.0 {
		v = 0
	}
	p.dec.SetVolume(v)
}

// Update opens any pending file, then advances playback by one tick.
func (p *Player) Update(ctx context.Context) error {
	if p.pending != "" {
		path := p.pending
		p.pending = ""
		if err := p.openFile(ctx, path); err != nil {
			return err
		}
	}
	if p.dec == nil {
		return nil
	}
	return p.dec.Update(ctx)
}

func (p *Player) openFile(ctx context.Context, path string) error {
	if p.dec != nil {
		p.dec.Close()
		p.dec = nil
	}

	cfg := p.cfg
	cfg.Looping = p.loop
	dec, err := OpenFile(ctx, path, cfg, p.providers...)
	if err != nil {
		p.log.Error("open failed", "path", path, "error", err)
		return err
	}
	p.dec = dec
	p.dec.SetSpeed(p.speed)
	p.applyAudio()
	p.log.Info("file opened", "path", path, "duration", dec.Duration())

	if p.autoPlay {
		return p.dec.Play()
	}
	return nil
}

// Restart seeks to zero and resumes playback.
func (p *Player) Restart(ctx context.Context) error {
	if p.dec == nil {
		return ErrNotOpen
	}
	if err := p.dec.Seek(ctx, 0); err != nil {
		return err
	}
	return p.dec.Play()
}

// Play resumes a paused or opened file.
func (p *Player) Play() error {
	if p.dec == nil {
		return ErrNotOpen
	}
	return p.dec.Play()
}

// Pause freezes playback.
func (p *Player) Pause() {
	if p.dec != nil {
		p.dec.Pause()
	}
}

// Seek moves playback to t seconds, clamped to the file duration.
func (p *Player) Seek(ctx context.Context, t float64) error {
	if p.dec == nil {
		return ErrNotOpen
	}
	return p.dec.Seek(ctx, t)
}

// State returns the decoder state; Stopped when no file is open.
func (p *Player) State() State {
	if p.dec == nil {
		return Stopped
	}
	return p.dec.State()
}

// CurrentTime returns the playback clock in seconds.
func (p *Player) CurrentTime() float64 {
	if p.dec == nil {
		return 0
	}
	return p.dec.CurrentTime()
}

// Duration returns the open file's duration in seconds.
func (p *Player) Duration() float64 {
	if p.dec == nil {
		return 0
	}
	return p.dec.Duration()
}

// Textures returns the current frame's textures; nil when idle.
func (p *Player) Textures() []gpu.Texture {
	if p.dec == nil {
		return nil
	}
	return p.dec.Textures()
}

// Decoder exposes the underlying decoder; nil when idle.
func (p *Player) Decoder() *Decoder { return p.dec }

// Close releases the open file and returns the player to idle.
func (p *Player) Close() error {
	p.pending = ""
	if p.dec == nil {
		return nil
	}
	err := p.dec.Close()
	p.dec = nil
	return err
}
