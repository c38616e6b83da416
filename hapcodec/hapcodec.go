// Package hapcodec decodes HAP video frames to raw DXT/BC block data.
//
// A HAP frame is a sequence of sections, each a little-endian header (24-bit
// size plus an 8-bit type) followed by payload. The type byte's high nibble
// selects the compressor applied to the DXT payload (none, Snappy, or
// "complex" chunked compression) and the low nibble the texture format.
// Hap Q Alpha frames wrap two texture sections in a multi-image section.
//
// Decoding is pure Go. Chunked frames decode their chunks concurrently,
// bounded by Parallelism.
package hapcodec

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/golang/snappy"
	"golang.org/x/sync/errgroup"
)

// Section type high-nibble compressor values.
const (
	compressorNone    = 0xA
	compressorSnappy  = 0xB
	compressorComplex = 0xC
)

// TextureFormat is the low nibble of a texture section type.
type TextureFormat byte

const (
	FormatRGBDXT1    TextureFormat = 0xB // Hap
	FormatRGBADXT5   TextureFormat = 0xE // Hap Alpha
	FormatYCoCgDXT5  TextureFormat = 0xA // Hap Q
	FormatAlphaRGTC1 TextureFormat = 0x1 // Hap Alpha-Only, and the alpha plane of Hap Q Alpha
)

// String returns the conventional name of the format.
func (f TextureFormat) String() string {
	switch f {
	case FormatRGBDXT1:
		return "RGB_DXT1"
	case FormatRGBADXT5:
		return "RGBA_DXT5"
	case FormatYCoCgDXT5:
		return "YCoCg_DXT5"
	case FormatAlphaRGTC1:
		return "Alpha_RGTC1"
	default:
		return fmt.Sprintf("TextureFormat(0x%X)", byte(f))
	}
}

// BytesPerBlock returns the storage size of one 4x4 block in this format.
func (f TextureFormat) BytesPerBlock() int {
	switch f {
	case FormatRGBDXT1, FormatAlphaRGTC1:
		return 8
	case FormatRGBADXT5, FormatYCoCgDXT5:
		return 16
	default:
		return 0
	}
}

// Section types that are not texture sections.
const (
	sectionMultiImage         = 0x0D
	sectionDecodeInstructions = 0x01
	sectionChunkCompressors   = 0x02
	sectionChunkSizes         = 0x03
	sectionChunkOffsets       = 0x04
)

// Per-chunk second-stage compressor bytes inside a complex section.
const (
	chunkNone   = 0x0A
	chunkSnappy = 0x0B
)

var (
	ErrShortFrame     = errors.New("hapcodec: truncated frame")
	ErrUnknownFormat  = errors.New("hapcodec: unrecognized texture format")
	ErrBadInstruction = errors.New("hapcodec: malformed decode instructions")
	ErrBufferTooSmall = errors.New("hapcodec: output buffer too small")
	ErrTextureIndex   = errors.New("hapcodec: texture index out of range")
)

// Info is the result of probing a frame without decoding it.
type Info struct {
	TextureCount int
	Formats      []TextureFormat
}

// section is one parsed section: type byte plus payload bounds.
type section struct {
	typ     byte
	payload []byte
}

// readSection parses the section at the start of b and returns it together
// with the remainder of b after the section.
func readSection(b []byte) (section, []byte, error) {
	if len(b) < 4 {
		return section{}, nil, ErrShortFrame
	}
	size := int(b[0]) | int(b[1])<<8 | int(b[2])<<16
	typ := b[3]
	b = b[4:]
	if size == 0 {
		// Extended size: a full little-endian uint32 follows the header.
		if len(b) < 4 {
			return section{}, nil, ErrShortFrame
		}
		size = int(b[0]) | int(b[1])<<8 | int(b[2])<<16 | int(b[3])<<24
		b = b[4:]
	}
	if size < 0 || size > len(b) {
		return section{}, nil, fmt.Errorf("%w: section size %d exceeds %d remaining bytes", ErrShortFrame, size, len(b))
	}
	return section{typ: typ, payload: b[:size]}, b[size:], nil
}

// textureSections returns the texture sections of a frame in order: either
// the single top-level section, or the members of a multi-image section.
func textureSections(frame []byte) ([]section, error) {
	top, _, err := readSection(frame)
	if err != nil {
		return nil, err
	}
	if top.typ != sectionMultiImage {
		return []section{top}, nil
	}

	var out []section
	rest := top.payload
	for len(rest) > 0 {
		var s section
		s, rest, err = readSection(rest)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty multi-image section", ErrShortFrame)
	}
	return out, nil
}

func sectionFormat(typ byte) (TextureFormat, error) {
	f := TextureFormat(typ & 0x0F)
	switch f {
	case FormatRGBDXT1, FormatRGBADXT5, FormatYCoCgDXT5, FormatAlphaRGTC1:
	default:
		return 0, fmt.Errorf("%w: section type 0x%02X", ErrUnknownFormat, typ)
	}
	switch typ >> 4 {
	case compressorNone, compressorSnappy, compressorComplex:
	default:
		return 0, fmt.Errorf("%w: section type 0x%02X", ErrUnknownFormat, typ)
	}
	return f, nil
}

// Codec decodes HAP frames. The zero value is ready to use; Parallelism
// bounds concurrent chunk decompression (0 means GOMAXPROCS).
type Codec struct {
	Parallelism int
}

// New returns a Codec with default parallelism.
func New() *Codec {
	return &Codec{}
}

// Probe inspects frame and reports how many textures it holds and their
// formats, without decompressing any payload.
func (c *Codec) Probe(frame []byte) (Info, error) {
	sections, err := textureSections(frame)
	if err != nil {
		return Info{}, err
	}
	info := Info{TextureCount: len(sections)}
	for _, s := range sections {
		f, err := sectionFormat(s.typ)
		if err != nil {
			return Info{}, err
		}
		info.Formats = append(info.Formats, f)
	}
	return info, nil
}

// Decode decompresses the first (or only) texture of frame into dst and
// returns the number of bytes written and the texture format.
func (c *Codec) Decode(ctx context.Context, frame, dst []byte) (int, TextureFormat, error) {
	return c.DecodeTexture(ctx, frame, 0, dst)
}

// DecodeTexture decompresses texture index of frame into dst. dst must be
// sized for the full frame (block-aligned width*height in the texture's
// block format); decoding never allocates per-frame output.
func (c *Codec) DecodeTexture(ctx context.Context, frame []byte, index int, dst []byte) (int, TextureFormat, error) {
	sections, err := textureSections(frame)
	if err != nil {
		return 0, 0, err
	}
	if index < 0 || index >= len(sections) {
		return 0, 0, fmt.Errorf("%w: %d of %d", ErrTextureIndex, index, len(sections))
	}
	s := sections[index]
	format, err := sectionFormat(s.typ)
	if err != nil {
		return 0, 0, err
	}

	var n int
	switch s.typ >> 4 {
	case compressorNone:
		if len(s.payload) > len(dst) {
			return 0, 0, fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, len(s.payload), len(dst))
		}
		n = copy(dst, s.payload)
	case compressorSnappy:
		n, err = decodeSnappy(s.payload, dst)
	case compressorComplex:
		n, err = c.decodeChunked(ctx, s.payload, dst)
	}
	if err != nil {
		return 0, 0, err
	}
	return n, format, nil
}

func decodeSnappy(src, dst []byte) (int, error) {
	want, err := snappy.DecodedLen(src)
	if err != nil {
		return 0, fmt.Errorf("hapcodec: snappy: %w", err)
	}
	if want > len(dst) {
		return 0, fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, want, len(dst))
	}
	out, err := snappy.Decode(dst, src)
	if err != nil {
		return 0, fmt.Errorf("hapcodec: snappy: %w", err)
	}
	return len(out), nil
}

// chunk is one unit of a complex section: a compressed span of the section
// data and the output span it decodes into.
type chunk struct {
	compressor byte
	src        []byte
	dst        []byte
}

// decodeChunked handles a complex section: a Decode Instructions container
// describing per-chunk second-stage compressors, sizes, and optionally
// offsets, followed by the chunk data itself. Chunks decompress
// concurrently since each owns a disjoint output span.
func (c *Codec) decodeChunked(ctx context.Context, payload, dst []byte) (int, error) {
	instr, rest, err := readSection(payload)
	if err != nil {
		return 0, err
	}
	if instr.typ != sectionDecodeInstructions {
		return 0, fmt.Errorf("%w: expected decode instructions, got section 0x%02X", ErrBadInstruction, instr.typ)
	}

	var compressors []byte
	var sizes []uint32
	var offsets []uint32

	inner := instr.payload
	for len(inner) > 0 {
		var s section
		s, inner, err = readSection(inner)
		if err != nil {
			return 0, err
		}
		switch s.typ {
		case sectionChunkCompressors:
			compressors = s.payload
		case sectionChunkSizes:
			if len(s.payload)%4 != 0 {
				return 0, fmt.Errorf("%w: chunk size table length %d", ErrBadInstruction, len(s.payload))
			}
			sizes = make([]uint32, len(s.payload)/4)
			for i := range sizes {
				p := s.payload[i*4:]
				sizes[i] = uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
			}
		case sectionChunkOffsets:
			if len(s.payload)%4 != 0 {
				return 0, fmt.Errorf("%w: chunk offset table length %d", ErrBadInstruction, len(s.payload))
			}
			offsets = make([]uint32, len(s.payload)/4)
			for i := range offsets {
				p := s.payload[i*4:]
				offsets[i] = uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24
			}
		}
	}

	if len(compressors) == 0 || len(sizes) != len(compressors) {
		return 0, fmt.Errorf("%w: %d compressors, %d sizes", ErrBadInstruction, len(compressors), len(sizes))
	}
	if offsets != nil && len(offsets) != len(compressors) {
		return 0, fmt.Errorf("%w: %d offsets for %d chunks", ErrBadInstruction, len(offsets), len(compressors))
	}

	// Lay out input and output spans up front; decoded chunk lengths are
	// known without decompressing (Snappy streams carry their length).
	chunks := make([]chunk, len(compressors))
	srcOff := 0
	dstOff := 0
	for i := range chunks {
		size := int(sizes[i])
		start := srcOff
		if offsets != nil {
			start = int(offsets[i])
		}
		if start < 0 || start+size > len(rest) {
			return 0, fmt.Errorf("%w: chunk %d spans [%d:%d] of %d data bytes", ErrShortFrame, i, start, start+size, len(rest))
		}
		src := rest[start : start+size]

		var decoded int
		switch compressors[i] {
		case chunkNone:
			decoded = size
		case chunkSnappy:
			decoded, err = snappy.DecodedLen(src)
			if err != nil {
				return 0, fmt.Errorf("hapcodec: chunk %d: %w", i, err)
			}
		default:
			return 0, fmt.Errorf("%w: chunk compressor 0x%02X", ErrBadInstruction, compressors[i])
		}
		if dstOff+decoded > len(dst) {
			return 0, fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, dstOff+decoded, len(dst))
		}

		chunks[i] = chunk{
			compressor: compressors[i],
			src:        src,
			dst:        dst[dstOff : dstOff+decoded],
		}
		srcOff = start + size
		dstOff += decoded
	}

	g, ctx := errgroup.WithContext(ctx)
	limit := c.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)

	for i := range chunks {
		ck := &chunks[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			switch ck.compressor {
			case chunkNone:
				copy(ck.dst, ck.src)
			case chunkSnappy:
				if _, err := snappy.Decode(ck.dst, ck.src); err != nil {
					return fmt.Errorf("hapcodec: snappy chunk: %w", err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return dstOff, nil
}
