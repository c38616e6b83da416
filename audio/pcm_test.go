package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickvid/hap/media"
	"github.com/quickvid/hap/mov"
)

func TestDecodePCM(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		codec    media.FourCC
		bits     int
		channels int
		data     []byte
		want     []float32
	}{
		{
			name:  "sowt 16-bit little endian",
			codec: mov.CodecSowt, bits: 16, channels: 1,
			data: []byte{0x00, 0x40, 0x00, 0xC0}, // 16384, -16384
			want: []float32{0.5, -0.5},
		},
		{
			name:  "twos 16-bit big endian",
			codec: mov.CodecTwos, bits: 16, channels: 1,
			data: []byte{0x40, 0x00, 0x80, 0x00}, // 16384, -32768
			want: []float32{0.5, -1.0},
		},
		{
			name:  "twos 8-bit",
			codec: mov.CodecTwos, bits: 8, channels: 2,
			data: []byte{0x40, 0xC0}, // 64, -64
			want: []float32{0.5, -0.5},
		},
		{
			name:  "in24 sign extension",
			codec: mov.CodecIn24, bits: 24, channels: 1,
			data: []byte{0x40, 0x00, 0x00, 0xC0, 0x00, 0x00},
			want: []float32{0.5, -0.5},
		},
		{
			name:  "in32",
			codec: mov.CodecIn32, bits: 32, channels: 1,
			data: []byte{0x40, 0x00, 0x00, 0x00, 0x80, 0x00, 0x00, 0x00},
			want: []float32{0.5, -1.0},
		},
		{
			name:  "fl32",
			codec: mov.CodecFl32, bits: 32, channels: 1,
			data: []byte{0x3F, 0x00, 0x00, 0x00, 0xBF, 0x00, 0x00, 0x00},
			want: []float32{0.5, -0.5},
		},
		{
			name:  "fl64",
			codec: mov.CodecFl64, bits: 64, channels: 1,
			data: []byte{
				0x3F, 0xE0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
				0xBF, 0xE0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
			},
			want: []float32{0.5, -0.5},
		},
		{
			name:  "partial trailing frame dropped",
			codec: mov.CodecSowt, bits: 16, channels: 2,
			data: []byte{0x00, 0x40, 0x00, 0x40, 0x00, 0x40}, // 3 samples, stereo
			want: []float32{0.5, 0.5},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodePCM(tt.codec, tt.bits, tt.channels, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodePCMErrors(t *testing.T) {
	t.Parallel()

	_, err := DecodePCM("mp4a", 16, 2, make([]byte, 8))
	assert.Error(t, err)

	_, err = DecodePCM(mov.CodecSowt, 12, 2, make([]byte, 8))
	assert.Error(t, err)

	_, err = DecodePCM(mov.CodecSowt, 16, 0, make([]byte, 8))
	assert.Error(t, err)
}
