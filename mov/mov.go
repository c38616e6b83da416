// Package mov parses the QuickTime/MP4 box structure of HAP movie files.
//
// The parser walks just enough of the container to expose per-track timing,
// codec identity, and a flat list of sample locations. Sample payloads are
// never read: the playback layer reads them on demand using the offsets
// recorded here. Parsing is hand-rolled on big-endian reads so the library
// carries no container dependency.
package mov

import "github.com/quickvid/hap/media"

// Video codec tags recognized as HAP variants.
const (
	CodecHap1 media.FourCC = "Hap1" // Hap (DXT1)
	CodecHap5 media.FourCC = "Hap5" // Hap Alpha (DXT5)
	CodecHapY media.FourCC = "HapY" // Hap Q (scaled YCoCg DXT5)
	CodecHapM media.FourCC = "HapM" // Hap Q Alpha (YCoCg DXT5 + RGTC1)
	CodecHapA media.FourCC = "HapA" // Hap Alpha-Only (RGTC1)
)

// Audio codec tags recognized as uncompressed PCM variants.
const (
	CodecSowt media.FourCC = "sowt" // little-endian signed integer
	CodecTwos media.FourCC = "twos" // big-endian signed integer
	CodecLPCM media.FourCC = "lpcm" // linear PCM, signed 16-bit little endian
	CodecIn24 media.FourCC = "in24" // big-endian signed 24-bit integer
	CodecIn32 media.FourCC = "in32" // big-endian signed 32-bit integer
	CodecFl32 media.FourCC = "fl32" // big-endian 32-bit float
	CodecFl64 media.FourCC = "fl64" // big-endian 64-bit float
)

// IsHAPCodec reports whether tag names a HAP video codec variant.
func IsHAPCodec(tag media.FourCC) bool {
	switch tag {
	case CodecHap1, CodecHap5, CodecHapY, CodecHapM, CodecHapA:
		return true
	}
	return false
}

// IsPCMCodec reports whether tag names a PCM audio variant the audio layer
// can convert to float samples.
func IsPCMCodec(tag media.FourCC) bool {
	switch tag {
	case CodecSowt, CodecTwos, CodecLPCM, CodecIn24, CodecIn32, CodecFl32, CodecFl64:
		return true
	}
	return false
}

// Sample addresses one encoded video frame or one chunk of encoded audio
// inside the container file. Samples are computed once at parse time from
// the stbl tables and are immutable afterwards.
type Sample struct {
	Offset   int64  // byte offset from the start of the file
	Size     uint32 // byte size
	Duration uint32 // duration in track-timescale ticks
}

// Track is one media track of a parsed file, with its samples in
// presentation order.
type Track struct {
	ID        uint32
	Timescale uint32
	Duration  uint64 // in track-timescale ticks
	IsVideo   bool
	IsAudio   bool
	Codec     media.FourCC

	// Video only, from the track header (16.16 fixed point in the file).
	Width  int
	Height int

	// Audio only, from the sample description.
	SampleRate    int
	Channels      int
	BitsPerSample int
	BytesPerFrame int

	Samples []Sample
}

// DurationSeconds returns the track duration in seconds, 0 if the track
// has no timescale.
func (t *Track) DurationSeconds() float64 {
	if t.Timescale == 0 {
		return 0
	}
	return float64(t.Duration) / float64(t.Timescale)
}

// SampleStart returns the presentation start time in seconds of sample i,
// by accumulating the durations of the samples before it.
func (t *Track) SampleStart(i int) float64 {
	if t.Timescale == 0 {
		return 0
	}
	var ticks uint64
	for j := 0; j < i && j < len(t.Samples); j++ {
		ticks += uint64(t.Samples[j].Duration)
	}
	return float64(ticks) / float64(t.Timescale)
}

// SampleIndexAt returns the index of the last sample whose start time is at
// or before target (seconds). target at or past the end of the track returns
// the last sample; a track with no samples returns 0.
func (t *Track) SampleIndexAt(target float64) int {
	if len(t.Samples) == 0 || t.Timescale == 0 || target <= 0 {
		return 0
	}
	var ticks uint64
	for i, s := range t.Samples {
		next := ticks + uint64(s.Duration)
		if float64(next)/float64(t.Timescale) > target {
			return i
		}
		ticks = next
	}
	return len(t.Samples) - 1
}

// FrameRate estimates frames per second from the sample count and the
// track duration. Returns 0 when the duration is unknown.
func (t *Track) FrameRate() float64 {
	sec := t.DurationSeconds()
	if sec <= 0 {
		return 0
	}
	return float64(len(t.Samples)) / sec
}

// File is a parsed container: movie-level timing plus all recognized tracks.
type File struct {
	Timescale uint32
	Duration  uint64 // in movie-timescale ticks
	Tracks    []*Track
}

// DurationSeconds returns the movie duration in seconds.
func (f *File) DurationSeconds() float64 {
	if f.Timescale == 0 {
		return 0
	}
	return float64(f.Duration) / float64(f.Timescale)
}

// VideoTrack returns the first video track with samples, or nil.
func (f *File) VideoTrack() *Track {
	for _, t := range f.Tracks {
		if t.IsVideo && len(t.Samples) > 0 {
			return t
		}
	}
	return nil
}

// AudioTrack returns the first audio track with samples and a usable PCM
// sample description, or nil. Files whose audio track carries an
// unrecognized codec are treated as video-only.
func (f *File) AudioTrack() *Track {
	for _, t := range f.Tracks {
		if t.IsAudio && len(t.Samples) > 0 && IsPCMCodec(t.Codec) &&
			t.SampleRate > 0 && t.Channels > 0 {
			return t
		}
	}
	return nil
}

// VideoInfo summarizes the video track for the playback layer.
func (f *File) VideoInfo() media.VideoInfo {
	t := f.VideoTrack()
	if t == nil {
		return media.VideoInfo{}
	}
	return media.VideoInfo{
		Width:      t.Width,
		Height:     t.Height,
		FrameRate:  t.FrameRate(),
		Duration:   t.DurationSeconds(),
		FrameCount: len(t.Samples),
		Codec:      t.Codec,
	}
}

// AudioInfo summarizes the audio track, zero value when there is none.
func (f *File) AudioInfo() media.AudioInfo {
	t := f.AudioTrack()
	if t == nil {
		return media.AudioInfo{}
	}
	return media.AudioInfo{
		SampleRate:    t.SampleRate,
		Channels:      t.Channels,
		BitsPerSample: t.BitsPerSample,
		Codec:         t.Codec,
	}
}
