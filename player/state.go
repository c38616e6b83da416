// Package player drives HAP playback: it walks a parsed container's sample
// table on an update-tick clock, decodes frames through a texture codec,
// uploads them to GPU textures, and keeps the audio path fed and in sync.
package player

import "fmt"

// State is the decoder lifecycle state.
type State int

const (
	// Stopped is the zero state: nothing open, safe to Open.
	Stopped State = iota
	// Opened holds the first frame uploaded, playback not started.
	Opened
	// Playing advances the clock on every update tick.
	Playing
	// Paused preserves the sample cursor with the clock frozen.
	Paused
	// Finished is reached at end of stream with looping disabled.
	Finished
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Opened:
		return "opened"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
