// Package media defines the shared descriptive types that flow through the
// hap processing pipeline, from container parsing through playback.
package media

import "fmt"

// FourCC is a four-character code identifying a codec, handler, or box type
// in a QuickTime container.
type FourCC string

// String returns the code with non-printable bytes escaped, suitable for logs.
func (f FourCC) String() string {
	for i := 0; i < len(f); i++ {
		if f[i] < 0x20 || f[i] > 0x7e {
			return fmt.Sprintf("%q", string(f))
		}
	}
	return string(f)
}

// VideoInfo describes the video track of an opened file: everything the
// playback layer needs to schedule and size frames.
type VideoInfo struct {
	Width      int
	Height     int
	FrameRate  float64
	Duration   float64 // seconds
	FrameCount int
	Codec      FourCC
}

// AudioInfo describes the audio track of an opened file. Zero value means
// the file carries no playable audio.
type AudioInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Codec         FourCC
}

// Valid reports whether the track description is usable for PCM extraction.
func (a AudioInfo) Valid() bool {
	return a.SampleRate > 0 && a.Channels > 0 && a.BitsPerSample > 0
}
