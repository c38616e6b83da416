package player

import (
	"fmt"
	"io"

	"github.com/quickvid/hap/audio"
	"github.com/quickvid/hap/mov"
)

// trackSource feeds a container audio track to the audio feeder, one
// sample (chunk) at a time, converting raw PCM to float on the way out.
// It reads through an io.ReaderAt so it never disturbs the video path's
// file position.
type trackSource struct {
	r      io.ReaderAt
	track  *mov.Track
	cursor int
	buf    []byte
}

var _ audio.ChunkSource = (*trackSource)(nil)

func newTrackSource(r io.ReaderAt, track *mov.Track) *trackSource {
	return &trackSource{r: r, track: track}
}

func (s *trackSource) NextChunk() ([]float32, float64, error) {
	if s.cursor >= len(s.track.Samples) {
		return nil, 0, io.EOF
	}
	smp := s.track.Samples[s.cursor]
	pts := s.track.SampleStart(s.cursor)

	if cap(s.buf) < int(smp.Size) {
		s.buf = make([]byte, smp.Size)
	}
	s.buf = s.buf[:smp.Size]
	if _, err := s.r.ReadAt(s.buf, smp.Offset); err != nil {
		return nil, 0, fmt.Errorf("read audio sample %d: %w", s.cursor, err)
	}
	s.cursor++

	samples, err := audio.DecodePCM(s.track.Codec, s.track.BitsPerSample, s.track.Channels, s.buf)
	if err != nil {
		return nil, 0, fmt.Errorf("audio sample %d: %w", s.cursor-1, err)
	}
	return samples, pts, nil
}

func (s *trackSource) Seek(pts float64) error {
	if pts <= 0 {
		s.cursor = 0
		return nil
	}
	s.cursor = s.track.SampleIndexAt(pts)
	return nil
}
