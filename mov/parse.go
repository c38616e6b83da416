package mov

import (
	"errors"
	"fmt"
	"io"

	"github.com/quickvid/hap/media"
)

// Sentinel errors for structural parse failures. Callers distinguish them
// with errors.Is.
var (
	ErrNoMoov       = errors.New("mov: no moov box found")
	ErrNoVideoTrack = errors.New("mov: no playable video track")
)

// ParseError indicates a malformed or truncated box. It records which box
// was being parsed when the error occurred.
type ParseError struct {
	Box media.FourCC
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mov: parse %s box: %v", e.Box, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func boxErr(box media.FourCC, format string, args ...any) error {
	return &ParseError{Box: box, Err: fmt.Errorf(format, args...)}
}

// box is one parsed box header. end is the file offset one past the payload.
type box struct {
	typ media.FourCC
	end int64
}

// readBox reads one box header at the current position. containerEnd bounds
// size-0 boxes ("extends to end of container"); size 1 means the real size
// follows as a 64-bit field.
func readBox(r *byteReader, containerEnd int64) (box, error) {
	start := r.offset()
	size := int64(r.u32())
	typ := r.fourCC()
	if err := r.err(); err != nil {
		return box{}, err
	}

	switch size {
	case 0:
		size = containerEnd - start
	case 1:
		size = int64(r.u64())
		if err := r.err(); err != nil {
			return box{}, err
		}
	}
	if size < 8 || start+size > containerEnd {
		return box{}, boxErr(typ, "invalid size %d at offset %d", size, start)
	}
	return box{typ: typ, end: start + size}, nil
}

// Parse walks the box structure of the container in r, which holds size
// bytes. It returns a File describing every recognized track, or a
// structural error. A file without a playable video track fails with
// ErrNoVideoTrack; a missing or malformed audio track is not an error, the
// file is simply exposed as video-only.
func Parse(r io.ReadSeeker, size int64) (*File, error) {
	br, err := newByteReader(r)
	if err != nil {
		return nil, err
	}
	br.seekTo(0)

	for br.offset() < size {
		b, err := readBox(br, size)
		if err != nil {
			return nil, err
		}
		if b.typ == "moov" {
			f := &File{}
			if err := parseMoov(br, b.end, f); err != nil {
				return nil, err
			}
			if f.VideoTrack() == nil {
				return nil, ErrNoVideoTrack
			}
			return f, nil
		}
		br.seekTo(b.end)
		if err := br.err(); err != nil {
			return nil, err
		}
	}
	return nil, ErrNoMoov
}

func parseMoov(r *byteReader, end int64, f *File) error {
	for r.offset() < end {
		b, err := readBox(r, end)
		if err != nil {
			return err
		}

		switch b.typ {
		case "mvhd":
			version := r.u8()
			r.skip(3) // flags
			if version == 1 {
				r.skip(16) // creation + modification time
				f.Timescale = r.u32()
				f.Duration = r.u64()
			} else {
				r.skip(8)
				f.Timescale = r.u32()
				f.Duration = uint64(r.u32())
			}
			if err := r.err(); err != nil {
				return &ParseError{Box: "mvhd", Err: err}
			}
		case "trak":
			t := &Track{}
			if err := parseTrak(r, b.end, t); err != nil {
				return err
			}
			f.Tracks = append(f.Tracks, t)
		}

		r.seekTo(b.end)
		if err := r.err(); err != nil {
			return err
		}
	}
	return nil
}

func parseTrak(r *byteReader, end int64, t *Track) error {
	for r.offset() < end {
		b, err := readBox(r, end)
		if err != nil {
			return err
		}

		switch b.typ {
		case "tkhd":
			version := r.u8()
			r.skip(3) // flags
			if version == 1 {
				r.skip(16)
				t.ID = r.u32()
				r.skip(4) // reserved
				r.skip(8) // duration
			} else {
				r.skip(8)
				t.ID = r.u32()
				r.skip(4)
				r.skip(4)
			}
			// reserved(8) + layer(2) + alternate_group(2) + volume(2) +
			// reserved(2) + matrix(36)
			r.skip(52)
			t.Width = fixed1616(r.u32())
			t.Height = fixed1616(r.u32())
			if err := r.err(); err != nil {
				return &ParseError{Box: "tkhd", Err: err}
			}
		case "mdia":
			if err := parseMdia(r, b.end, t); err != nil {
				return err
			}
		}

		r.seekTo(b.end)
		if err := r.err(); err != nil {
			return err
		}
	}
	return nil
}

func parseMdia(r *byteReader, end int64, t *Track) error {
	for r.offset() < end {
		b, err := readBox(r, end)
		if err != nil {
			return err
		}

		switch b.typ {
		case "mdhd":
			version := r.u8()
			r.skip(3) // flags
			if version == 1 {
				r.skip(16)
				t.Timescale = r.u32()
				t.Duration = r.u64()
			} else {
				r.skip(8)
				t.Timescale = r.u32()
				t.Duration = uint64(r.u32())
			}
			if err := r.err(); err != nil {
				return &ParseError{Box: "mdhd", Err: err}
			}
		case "hdlr":
			r.skip(4) // version + flags
			r.skip(4) // predefined
			switch r.fourCC() {
			case "vide":
				t.IsVideo = true
			case "soun":
				t.IsAudio = true
			}
			if err := r.err(); err != nil {
				return &ParseError{Box: "hdlr", Err: err}
			}
		case "minf":
			if err := parseMinf(r, b.end, t); err != nil {
				return err
			}
		}

		r.seekTo(b.end)
		if err := r.err(); err != nil {
			return err
		}
	}
	return nil
}

func parseMinf(r *byteReader, end int64, t *Track) error {
	for r.offset() < end {
		b, err := readBox(r, end)
		if err != nil {
			return err
		}
		if b.typ == "stbl" {
			if err := parseStbl(r, b.end, t); err != nil {
				return err
			}
		}
		r.seekTo(b.end)
		if err := r.err(); err != nil {
			return err
		}
	}
	return nil
}

// stscEntry is one run of the sample-to-chunk table: starting at firstChunk
// (1-based), every chunk holds samplesPerChunk samples.
type stscEntry struct {
	firstChunk      uint32
	samplesPerChunk uint32
}

func parseStbl(r *byteReader, end int64, t *Track) error {
	var (
		durations    []uint32
		sizes        []uint32
		defaultSize  uint32
		sampleCount  uint32
		stsc         []stscEntry
		chunkOffsets []int64
	)

	for r.offset() < end {
		b, err := readBox(r, end)
		if err != nil {
			return err
		}

		switch b.typ {
		case "stsd":
			if err := parseStsd(r, b.end, t); err != nil {
				return err
			}
		case "stts":
			r.skip(4) // version + flags
			n := r.u32()
			if err := checkEntryCount(r, b, n, 8); err != nil {
				return err
			}
			for i := uint32(0); i < n; i++ {
				count := r.u32()
				delta := r.u32()
				if count > maxSamples-uint32(len(durations)) {
					return boxErr(b.typ, "run-length count %d overflows sample table", count)
				}
				for j := uint32(0); j < count; j++ {
					durations = append(durations, delta)
				}
			}
			if err := r.err(); err != nil {
				return &ParseError{Box: "stts", Err: err}
			}
		case "stsz":
			r.skip(4)
			defaultSize = r.u32()
			sampleCount = r.u32()
			if defaultSize == 0 {
				if err := checkEntryCount(r, b, sampleCount, 4); err != nil {
					return err
				}
				sizes = make([]uint32, sampleCount)
				for i := range sizes {
					sizes[i] = r.u32()
				}
			}
			if err := r.err(); err != nil {
				return &ParseError{Box: "stsz", Err: err}
			}
		case "stsc":
			r.skip(4)
			n := r.u32()
			if err := checkEntryCount(r, b, n, 12); err != nil {
				return err
			}
			stsc = make([]stscEntry, n)
			for i := range stsc {
				stsc[i].firstChunk = r.u32()
				stsc[i].samplesPerChunk = r.u32()
				r.skip(4) // sample description index
			}
			if err := r.err(); err != nil {
				return &ParseError{Box: "stsc", Err: err}
			}
		case "stco":
			r.skip(4)
			n := r.u32()
			if err := checkEntryCount(r, b, n, 4); err != nil {
				return err
			}
			chunkOffsets = make([]int64, n)
			for i := range chunkOffsets {
				chunkOffsets[i] = int64(r.u32())
			}
			if err := r.err(); err != nil {
				return &ParseError{Box: "stco", Err: err}
			}
		case "co64":
			r.skip(4)
			n := r.u32()
			if err := checkEntryCount(r, b, n, 8); err != nil {
				return err
			}
			chunkOffsets = make([]int64, n)
			for i := range chunkOffsets {
				chunkOffsets[i] = int64(r.u64())
			}
			if err := r.err(); err != nil {
				return &ParseError{Box: "co64", Err: err}
			}
		}

		r.seekTo(b.end)
		if err := r.err(); err != nil {
			return err
		}
	}

	buildSamples(t, durations, sizes, defaultSize, sampleCount, stsc, chunkOffsets)
	return nil
}

// maxSamples bounds run-length expansion so a corrupt table cannot allocate
// unbounded memory.
const maxSamples = 1 << 24

// checkEntryCount rejects table entry counts that cannot fit inside the
// declared box payload, catching truncated or corrupt tables before any
// allocation.
func checkEntryCount(r *byteReader, b box, n uint32, entrySize int64) error {
	remaining := b.end - r.offset()
	if int64(n)*entrySize > remaining {
		return boxErr(b.typ, "entry count %d exceeds box payload (%d bytes)", n, remaining)
	}
	return nil
}

func parseStsd(r *byteReader, end int64, t *Track) error {
	r.skip(4) // version + flags
	n := r.u32()
	if err := r.err(); err != nil {
		return &ParseError{Box: "stsd", Err: err}
	}
	if n == 0 {
		return nil
	}

	entryStart := r.offset()
	descSize := int64(r.u32())
	t.Codec = r.fourCC()
	r.skip(6) // reserved
	r.skip(2) // data reference index
	if err := r.err(); err != nil {
		return &ParseError{Box: "stsd", Err: err}
	}
	if descSize < 16 || entryStart+descSize > end {
		return boxErr("stsd", "invalid sample description size %d", descSize)
	}

	// Audio sample entries additionally carry the PCM layout. A short or
	// malformed audio entry is tolerated: the track keeps its codec tag but
	// is not exposed as playable audio.
	if t.IsAudio {
		r.skip(2) // version
		r.skip(6) // revision level + vendor
		channels := r.u16()
		bits := r.u16()
		r.skip(4) // compression ID + packet size
		rate := fixed1616(r.u32())
		if r.err() == nil {
			t.Channels = int(channels)
			t.BitsPerSample = int(bits)
			t.SampleRate = rate
			if channels > 0 && bits > 0 {
				t.BytesPerFrame = int(bits) / 8 * int(channels)
			}
		} else {
			r.fail = nil
			r.seekTo(entryStart + descSize)
		}
	}
	return nil
}

// buildSamples reconstructs the flat per-sample list by walking chunks in
// order, expanding the sample-to-chunk runs, and accumulating byte offsets
// within each chunk.
func buildSamples(t *Track, durations, sizes []uint32, defaultSize, sampleCount uint32, stsc []stscEntry, chunkOffsets []int64) {
	if defaultSize != 0 && sampleCount == 0 {
		// Fixed-size tables still declare the sample count.
		return
	}
	if sampleCount == 0 || len(chunkOffsets) == 0 {
		return
	}

	samples := make([]Sample, 0, sampleCount)
	idx := uint32(0)

	for chunk := 0; chunk < len(chunkOffsets) && idx < sampleCount; chunk++ {
		samplesInChunk := uint32(1)
		for _, e := range stsc {
			if uint32(chunk) >= e.firstChunk-1 { // 1-based chunk numbering
				samplesInChunk = e.samplesPerChunk
			}
		}

		offset := chunkOffsets[chunk]
		for s := uint32(0); s < samplesInChunk && idx < sampleCount; s++ {
			size := defaultSize
			if size == 0 {
				size = sizes[idx]
			}
			duration := uint32(1)
			if int(idx) < len(durations) {
				duration = durations[idx]
			}
			samples = append(samples, Sample{Offset: offset, Size: size, Duration: duration})
			offset += int64(size)
			idx++
		}
	}

	t.Samples = samples
}
