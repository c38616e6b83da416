package player

import (
	"context"
	"fmt"
	"os"

	"github.com/quickvid/hap/mov"
)

// Provider is one playback backend. Providers are tried in order and the
// first one whose CanOpen probe accepts the file opens it.
type Provider interface {
	Name() string
	// CanOpen cheaply decides whether this provider handles the file.
	CanOpen(path string) bool
	Open(ctx context.Context, path string, cfg Config) (*Decoder, error)
}

// HAPProvider opens QuickTime files whose video track carries a HAP codec
// tag. The probe parses the container headers only.
type HAPProvider struct{}

func (HAPProvider) Name() string { return "hap" }

func (HAPProvider) CanOpen(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return false
	}
	file, err := mov.Parse(f, st.Size())
	if err != nil {
		return false
	}
	track := file.VideoTrack()
	return track != nil && mov.IsHAPCodec(track.Codec)
}

func (HAPProvider) Open(ctx context.Context, path string, cfg Config) (*Decoder, error) {
	d, err := NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := d.Open(ctx, path); err != nil {
		return nil, err
	}
	return d, nil
}

// DefaultProviders is the built-in backend order.
func DefaultProviders() []Provider {
	return []Provider{HAPProvider{}}
}

// OpenFile opens path with the first provider that accepts it.
func OpenFile(ctx context.Context, path string, cfg Config, providers ...Provider) (*Decoder, error) {
	if len(providers) == 0 {
		providers = DefaultProviders()
	}
	for _, p := range providers {
		if !p.CanOpen(path) {
			continue
		}
		d, err := p.Open(ctx, path, cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
		return d, nil
	}
	return nil, fmt.Errorf("player: no provider accepts %s", path)
}
