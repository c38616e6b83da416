package gpu

import "testing"

func TestFrameSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		w, h   int
		format TextureFormat
		want   int
	}{
		{"bc1 aligned", 64, 64, FormatBC1, 16 * 16 * 8},
		{"bc3 aligned", 64, 64, FormatBC3, 16 * 16 * 16},
		{"bc4 aligned", 64, 64, FormatBC4, 16 * 16 * 8},
		{"bc1 unaligned rounds up", 65, 33, FormatBC1, 17 * 9 * 8},
		{"bc3 tiny", 1, 1, FormatBC3, 16},
		{"rgba8", 80, 60, FormatRGBA8, 80 * 60 * 4},
		{"unknown", 64, 64, FormatUnknown, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FrameSize(tt.w, tt.h, tt.format); got != tt.want {
				t.Errorf("FrameSize(%d, %d, %v) = %d, want %d", tt.w, tt.h, tt.format, got, tt.want)
			}
		})
	}
}

func TestBytesPerRow(t *testing.T) {
	t.Parallel()

	if got := BytesPerRow(65, FormatBC1); got != 17*8 {
		t.Errorf("BytesPerRow(65, BC1) = %d, want %d", got, 17*8)
	}
	if got := BytesPerRow(64, FormatBC3); got != 16*16 {
		t.Errorf("BytesPerRow(64, BC3) = %d, want %d", got, 16*16)
	}
	if got := BytesPerRow(10, FormatRGBA8); got != 40 {
		t.Errorf("BytesPerRow(10, RGBA8) = %d, want 40", got)
	}
}

func TestMemTextureWriteValidation(t *testing.T) {
	t.Parallel()

	d := NewMemDevice()
	tex, err := d.CreateTexture(8, 8, FormatBC1)
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	mt := tex.(*MemTexture)

	frame := make([]byte, FrameSize(8, 8, FormatBC1))
	frame[0] = 0xAB

	if err := tex.Write(frame, BytesPerRow(8, FormatBC1), RowsPerImage(8, FormatBC1), Extent{8, 8}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if mt.Data[0] != 0xAB {
		t.Error("written data not visible in texture")
	}

	// Wrong stride must be rejected: mis-sized uploads corrupt frames silently
	// on real devices.
	if err := tex.Write(frame, 999, RowsPerImage(8, FormatBC1), Extent{8, 8}); err == nil {
		t.Error("expected error for wrong bytesPerRow")
	}
	if err := tex.Write(frame[:4], BytesPerRow(8, FormatBC1), RowsPerImage(8, FormatBC1), Extent{8, 8}); err == nil {
		t.Error("expected error for short data")
	}

	tex.Release()
	if err := tex.Write(frame, BytesPerRow(8, FormatBC1), RowsPerImage(8, FormatBC1), Extent{8, 8}); err == nil {
		t.Error("expected error writing to released texture")
	}
	if d.Live() != 0 {
		t.Errorf("Live() = %d after release, want 0", d.Live())
	}
}
