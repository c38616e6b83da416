package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/quickvid/hap/media"
	"github.com/quickvid/hap/mov"
)

// DecodePCM converts one raw audio sample chunk to interleaved float32
// samples in [-1, 1], according to the track's codec tag, bit depth, and
// channel count. A trailing partial frame is dropped.
//
// Integer formats scale by their full-scale value; 'twos' and the inNN
// variants are big-endian, 'sowt' and 'lpcm' little-endian.
func DecodePCM(codec media.FourCC, bits, channels int, data []byte) ([]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}

	var out []float32
	switch codec {
	case mov.CodecSowt, mov.CodecLPCM:
		switch bits {
		case 16:
			out = decodeInt16(data, binary.LittleEndian)
		case 8:
			out = decodeInt8(data)
		default:
			return nil, fmt.Errorf("audio: %s with %d bits per sample unsupported", codec, bits)
		}
	case mov.CodecTwos:
		switch bits {
		case 16:
			out = decodeInt16(data, binary.BigEndian)
		case 8:
			out = decodeInt8(data)
		default:
			return nil, fmt.Errorf("audio: %s with %d bits per sample unsupported", codec, bits)
		}
	case mov.CodecIn24:
		out = decodeInt24BE(data)
	case mov.CodecIn32:
		out = decodeInt32BE(data)
	case mov.CodecFl32:
		out = decodeFloat32BE(data)
	case mov.CodecFl64:
		out = decodeFloat64BE(data)
	default:
		return nil, fmt.Errorf("audio: unsupported PCM codec %s", codec)
	}
	return out[:len(out)-len(out)%channels], nil
}

func decodeInt8(data []byte) []float32 {
	out := make([]float32, len(data))
	for i, b := range data {
		out[i] = float32(int8(b)) / 128
	}
	return out
}

func decodeInt16(data []byte, order binary.ByteOrder) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(order.Uint16(data[i*2:]))) / 32768
	}
	return out
}

func decodeInt24BE(data []byte) []float32 {
	n := len(data) / 3
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		p := data[i*3:]
		v := int32(p[0])<<16 | int32(p[1])<<8 | int32(p[2])
		if v&0x800000 != 0 {
			v -= 1 << 24
		}
		out[i] = float32(v) / 8388608
	}
	return out
}

func decodeInt32BE(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int32(binary.BigEndian.Uint32(data[i*4:]))) / 2147483648
	}
	return out
}

func decodeFloat32BE(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(data[i*4:]))
	}
	return out
}

func decodeFloat64BE(data []byte) []float32 {
	n := len(data) / 8
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(math.Float64frombits(binary.BigEndian.Uint64(data[i*8:])))
	}
	return out
}
