package mov

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/quickvid/hap/media"
)

// byteReader wraps the container byte source with big-endian integer reads
// and a sticky error, so box parsers can read fields without per-call error
// plumbing. The first failure poisons every later read; callers check err()
// at box boundaries.
type byteReader struct {
	r    io.ReadSeeker
	pos  int64
	fail error
}

func newByteReader(r io.ReadSeeker) (*byteReader, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("mov: seek: %w", err)
	}
	return &byteReader{r: r, pos: pos}, nil
}

func (b *byteReader) err() error { return b.fail }

func (b *byteReader) offset() int64 { return b.pos }

func (b *byteReader) read(buf []byte) {
	if b.fail != nil {
		return
	}
	if _, err := io.ReadFull(b.r, buf); err != nil {
		b.fail = fmt.Errorf("mov: read at %d: %w", b.pos, err)
		return
	}
	b.pos += int64(len(buf))
}

func (b *byteReader) u8() uint8 {
	var buf [1]byte
	b.read(buf[:])
	return buf[0]
}

func (b *byteReader) u16() uint16 {
	var buf [2]byte
	b.read(buf[:])
	return binary.BigEndian.Uint16(buf[:])
}

func (b *byteReader) u32() uint32 {
	var buf [4]byte
	b.read(buf[:])
	return binary.BigEndian.Uint32(buf[:])
}

func (b *byteReader) u64() uint64 {
	var buf [8]byte
	b.read(buf[:])
	return binary.BigEndian.Uint64(buf[:])
}

func (b *byteReader) fourCC() media.FourCC {
	var buf [4]byte
	b.read(buf[:])
	if b.fail != nil {
		return ""
	}
	return media.FourCC(buf[:])
}

func (b *byteReader) skip(n int64) {
	b.seekTo(b.pos + n)
}

func (b *byteReader) seekTo(off int64) {
	if b.fail != nil {
		return
	}
	if _, err := b.r.Seek(off, io.SeekStart); err != nil {
		b.fail = fmt.Errorf("mov: seek to %d: %w", off, err)
		return
	}
	b.pos = off
}

// fixed1616 converts a 16.16 fixed-point field to its integer part.
func fixed1616(v uint32) int {
	return int(v >> 16)
}
