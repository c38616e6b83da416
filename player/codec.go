package player

import (
	"context"
	"fmt"

	"github.com/quickvid/hap/gpu"
	"github.com/quickvid/hap/hapcodec"
)

// FrameInfo describes the textures a compressed frame decodes into, in
// upload order. Most frames carry one texture; Hap Q Alpha carries a color
// plane and an alpha plane.
type FrameInfo struct {
	Textures []gpu.TextureFormat
}

// FrameCodec turns compressed frame bytes into GPU block data. Probe must
// not decompress payloads; DecodeTexture writes texture index of the frame
// into dst and returns the bytes written.
type FrameCodec interface {
	Probe(frame []byte) (FrameInfo, error)
	DecodeTexture(ctx context.Context, frame []byte, index int, dst []byte) (int, error)
}

// hapFrameCodec adapts the pure-Go HAP codec to FrameCodec.
type hapFrameCodec struct {
	codec *hapcodec.Codec
}

// NewHAPFrameCodec returns the default FrameCodec for HAP video.
func NewHAPFrameCodec() FrameCodec {
	return &hapFrameCodec{codec: hapcodec.New()}
}

func (h *hapFrameCodec) Probe(frame []byte) (FrameInfo, error) {
	info, err := h.codec.Probe(frame)
	if err != nil {
		return FrameInfo{}, err
	}
	out := FrameInfo{Textures: make([]gpu.TextureFormat, 0, info.TextureCount)}
	for _, f := range info.Formats {
		gf, err := textureFormat(f)
		if err != nil {
			return FrameInfo{}, err
		}
		out.Textures = append(out.Textures, gf)
	}
	return out, nil
}

func (h *hapFrameCodec) DecodeTexture(ctx context.Context, frame []byte, index int, dst []byte) (int, error) {
	n, _, err := h.codec.DecodeTexture(ctx, frame, index, dst)
	return n, err
}

// textureFormat maps a HAP texture format to the GPU block format it is
// uploaded as.
func textureFormat(f hapcodec.TextureFormat) (gpu.TextureFormat, error) {
	switch f {
	case hapcodec.FormatRGBDXT1:
		return gpu.FormatBC1, nil
	case hapcodec.FormatRGBADXT5, hapcodec.FormatYCoCgDXT5:
		return gpu.FormatBC3, nil
	case hapcodec.FormatAlphaRGTC1:
		return gpu.FormatBC4, nil
	default:
		return gpu.FormatUnknown, fmt.Errorf("player: no GPU format for %s", f)
	}
}
