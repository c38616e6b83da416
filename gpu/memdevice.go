package gpu

import (
	"fmt"
	"sync"
)

// MemDevice is an in-memory Device. It backs tests and headless tools that
// want to drive the playback pipeline without a graphics API.
type MemDevice struct {
	mu       sync.Mutex
	textures []*MemTexture

	// FailCreate, when set, makes CreateTexture return an error. Used by
	// tests exercising the open-failure path.
	FailCreate bool
}

// NewMemDevice creates an empty in-memory device.
func NewMemDevice() *MemDevice {
	return &MemDevice{}
}

// CreateTexture allocates an in-memory texture sized for the format.
func (d *MemDevice) CreateTexture(width, height int, format TextureFormat) (Texture, error) {
	if d.FailCreate {
		return nil, fmt.Errorf("gpu: texture creation failed")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("gpu: invalid texture size %dx%d", width, height)
	}
	size := FrameSize(width, height, format)
	if size == 0 {
		return nil, fmt.Errorf("gpu: unsupported texture format %v", format)
	}

	t := &MemTexture{
		Width:  width,
		Height: height,
		Format: format,
		Data:   make([]byte, size),
	}

	d.mu.Lock()
	d.textures = append(d.textures, t)
	d.mu.Unlock()
	return t, nil
}

// Live returns the number of textures created and not yet released.
func (d *MemDevice) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.textures {
		if !t.released {
			n++
		}
	}
	return n
}

// MemTexture holds the most recently written frame bytes.
type MemTexture struct {
	Width  int
	Height int
	Format TextureFormat
	Data   []byte
	Writes int

	released bool
}

// Write copies the frame bytes, validating the stride arithmetic against
// the texture's own dimensions.
func (t *MemTexture) Write(data []byte, bytesPerRow, rowsPerImage int, extent Extent) error {
	if t.released {
		return fmt.Errorf("gpu: write to released texture")
	}
	if extent.Width != t.Width || extent.Height != t.Height {
		return fmt.Errorf("gpu: extent %dx%d does not match texture %dx%d",
			extent.Width, extent.Height, t.Width, t.Height)
	}
	if want := BytesPerRow(t.Width, t.Format); bytesPerRow != want {
		return fmt.Errorf("gpu: bytesPerRow %d, want %d", bytesPerRow, want)
	}
	if want := RowsPerImage(t.Height, t.Format); rowsPerImage != want {
		return fmt.Errorf("gpu: rowsPerImage %d, want %d", rowsPerImage, want)
	}
	if len(data) < bytesPerRow*rowsPerImage {
		return fmt.Errorf("gpu: short write: %d bytes for %d", len(data), bytesPerRow*rowsPerImage)
	}
	copy(t.Data, data[:bytesPerRow*rowsPerImage])
	t.Writes++
	return nil
}

// Release marks the texture released; later writes fail.
func (t *MemTexture) Release() {
	t.released = true
}
