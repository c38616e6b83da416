// Package gpu defines the texture collaborator interface the playback layer
// uploads decoded frames through, along with the block-compressed format
// arithmetic shared by the codec and the uploader.
//
// The package deliberately knows nothing about any particular graphics API.
// A host engine adapts its device and queue objects to Device and Texture;
// tests use MemDevice.
package gpu

import "fmt"

// TextureFormat identifies the pixel layout of an uploaded frame.
type TextureFormat int

const (
	FormatUnknown TextureFormat = iota
	FormatBC1                   // RGB, 8 bytes per 4x4 block (DXT1)
	FormatBC3                   // RGBA or YCoCg, 16 bytes per 4x4 block (DXT5)
	FormatBC4                   // single channel, 8 bytes per 4x4 block (RGTC1)
	FormatRGBA8                 // uncompressed, 4 bytes per pixel
)

// String returns the format name as used in logs and the probe tool.
func (f TextureFormat) String() string {
	switch f {
	case FormatBC1:
		return "BC1"
	case FormatBC3:
		return "BC3"
	case FormatBC4:
		return "BC4"
	case FormatRGBA8:
		return "RGBA8"
	default:
		return fmt.Sprintf("TextureFormat(%d)", int(f))
	}
}

// Compressed reports whether the format is block-compressed.
func (f TextureFormat) Compressed() bool {
	return f == FormatBC1 || f == FormatBC3 || f == FormatBC4
}

// BytesPerBlock returns the storage size of one 4x4 block for compressed
// formats, or 0 for uncompressed and unknown formats.
func (f TextureFormat) BytesPerBlock() int {
	switch f {
	case FormatBC1, FormatBC4:
		return 8
	case FormatBC3:
		return 16
	default:
		return 0
	}
}

// BlocksX returns the number of 4x4 blocks needed to cover width pixels.
func BlocksX(width int) int { return (width + 3) / 4 }

// BlocksY returns the number of 4x4 blocks needed to cover height pixels.
func BlocksY(height int) int { return (height + 3) / 4 }

// FrameSize returns the byte size of one full frame of the given dimensions
// in the given format: block-aligned for compressed formats, width*height*4
// for RGBA8. Returns 0 for unknown formats.
func FrameSize(width, height int, f TextureFormat) int {
	if f == FormatRGBA8 {
		return width * height * 4
	}
	if bpb := f.BytesPerBlock(); bpb > 0 {
		return BlocksX(width) * BlocksY(height) * bpb
	}
	return 0
}

// BytesPerRow returns the upload stride for one row of blocks (or pixels,
// for RGBA8) at the given width.
func BytesPerRow(width int, f TextureFormat) int {
	if f == FormatRGBA8 {
		return width * 4
	}
	return BlocksX(width) * f.BytesPerBlock()
}

// RowsPerImage returns the number of rows passed to a texture write: block
// rows for compressed formats, pixel rows for RGBA8.
func RowsPerImage(height int, f TextureFormat) int {
	if f == FormatRGBA8 {
		return height
	}
	return BlocksY(height)
}

// Extent describes the region of a texture write. The playback layer always
// writes whole frames, so Width and Height match the texture dimensions.
type Extent struct {
	Width  int
	Height int
}

// Texture is one 2D texture owned by the host device.
type Texture interface {
	// Write uploads data as one region covering extent, with the given
	// row stride and row count. data must hold at least
	// bytesPerRow*rowsPerImage bytes.
	Write(data []byte, bytesPerRow, rowsPerImage int, extent Extent) error

	// Release frees the texture. The texture must not be used afterwards.
	Release()
}

// Device creates textures. Implementations adapt a real graphics device;
// CreateTexture failures are fatal to opening a video.
type Device interface {
	CreateTexture(width, height int, format TextureFormat) (Texture, error)
}
