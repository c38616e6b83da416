package player

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/quickvid/hap/audio"
)

// Synthetic movie assembly: an mdat of real HAP frames (and PCM chunks)
// followed by a moov describing them. Box payloads are built inner-first
// so every box carries a correct 32-bit size.

func be16(v uint16) []byte { b := make([]byte, 2); binary.BigEndian.PutUint16(b, v); return b }
func be32(v uint32) []byte { b := make([]byte, 4); binary.BigEndian.PutUint32(b, v); return b }
func be64(v uint64) []byte { b := make([]byte, 8); binary.BigEndian.PutUint64(b, v); return b }

func mkBox(typ string, parts ...[]byte) []byte {
	var payload []byte
	for _, p := range parts {
		payload = append(payload, p...)
	}
	out := be32(uint32(8 + len(payload)))
	out = append(out, typ...)
	return append(out, payload...)
}

// hapFrame builds an uncompressed single-texture HAP frame. sectionType
// selects compressor and format nibbles, e.g. 0xAB for stored DXT1.
func hapFrame(sectionType byte, payload []byte) []byte {
	out := []byte{
		byte(len(payload)), byte(len(payload) >> 8), byte(len(payload) >> 16),
		sectionType,
	}
	return append(out, payload...)
}

// bc1Frame is a 4x4 stored-DXT1 frame whose first payload byte tags the
// frame index.
func bc1Frame(tag byte) []byte {
	payload := make([]byte, 8)
	payload[0] = tag
	return hapFrame(0xAB, payload)
}

const (
	movieTimescale  = 25 // one tick per frame: 0.04s frame duration
	audioRate       = 1000
	audioChunkLen   = 100 // PCM frames per container sample
	audioChunkBytes = audioChunkLen * 2
)

type movieSpec struct {
	videoFrames int
	audioChunks int    // 0 for video-only
	videoCodec  string // defaults to Hap1
}

// buildMovie assembles a playable 4x4 movie in memory.
func buildMovie(spec movieSpec) []byte {
	codec := spec.videoCodec
	if codec == "" {
		codec = "Hap1"
	}

	var mdat []byte
	videoOffsets := make([]uint32, 0, spec.videoFrames)
	videoSizes := make([]uint32, 0, spec.videoFrames)
	for i := 0; i < spec.videoFrames; i++ {
		frame := bc1Frame(byte(i))
		videoOffsets = append(videoOffsets, uint32(8+len(mdat)))
		videoSizes = append(videoSizes, uint32(len(frame)))
		mdat = append(mdat, frame...)
	}
	audioOffsets := make([]uint32, 0, spec.audioChunks)
	for i := 0; i < spec.audioChunks; i++ {
		audioOffsets = append(audioOffsets, uint32(8+len(mdat)))
		chunk := make([]byte, audioChunkBytes)
		for j := 0; j < audioChunkLen; j++ {
			binary.LittleEndian.PutUint16(chunk[j*2:], 0x4000) // 0.5
		}
		mdat = append(mdat, chunk...)
	}

	videoDesc := append(be32(86), []byte(codec)...)
	videoDesc = append(videoDesc, make([]byte, 78)...)
	videoStbl := mkBox("stbl",
		mkBox("stsd", []byte{0, 0, 0, 0}, be32(1), videoDesc),
		sttsBox(uint32(spec.videoFrames), 1),
		stszBox(videoSizes),
		stscBox(1, uint32(spec.videoFrames)),
		stcoBox(videoOffsets),
	)
	traks := [][]byte{mkBox("trak",
		tkhdBox(1, 4<<16, 4<<16),
		mkBox("mdia",
			mdhdBox(movieTimescale, uint32(spec.videoFrames)),
			hdlrBox("vide"),
			mkBox("minf", videoStbl),
		),
	)}

	if spec.audioChunks > 0 {
		var entry []byte
		entry = append(entry, []byte("sowt")...)
		entry = append(entry, make([]byte, 6)...) // reserved
		entry = append(entry, be16(1)...)         // data reference index
		entry = append(entry, be16(0)...)         // version
		entry = append(entry, make([]byte, 6)...) // revision + vendor
		entry = append(entry, be16(1)...)         // channels
		entry = append(entry, be16(16)...)        // bits
		entry = append(entry, be32(0)...)         // compression + packet size
		entry = append(entry, be32(audioRate<<16)...)
		desc := append(be32(uint32(4+len(entry))), entry...)

		sizes := make([]uint32, spec.audioChunks)
		for i := range sizes {
			sizes[i] = audioChunkBytes
		}
		audioStbl := mkBox("stbl",
			mkBox("stsd", []byte{0, 0, 0, 0}, be32(1), desc),
			sttsBox(uint32(spec.audioChunks), audioChunkLen),
			stszBox(sizes),
			stscBox(1, uint32(spec.audioChunks)),
			stcoBox(audioOffsets),
		)
		traks = append(traks, mkBox("trak",
			tkhdBox(2, 0, 0),
			mkBox("mdia",
				mdhdBox(audioRate, uint32(spec.audioChunks*audioChunkLen)),
				hdlrBox("soun"),
				mkBox("minf", audioStbl),
			),
		))
	}

	moovParts := [][]byte{mkBox("mvhd",
		[]byte{0, 0, 0, 0},
		be32(0), be32(0),
		be32(600),
		be32(600*uint32(spec.videoFrames)/movieTimescale),
	)}
	moovParts = append(moovParts, traks...)

	out := mkBox("mdat", mdat)
	return append(out, mkBox("moov", moovParts...)...)
}

func tkhdBox(trackID, width, height uint32) []byte {
	return mkBox("tkhd",
		[]byte{0, 0, 0, 0},
		be32(0), be32(0),
		be32(trackID),
		be32(0),
		be32(0),
		be64(0),
		be16(0), be16(0), be16(0), be16(0),
		make([]byte, 36),
		be32(width),
		be32(height),
	)
}

func mdhdBox(timescale, duration uint32) []byte {
	return mkBox("mdhd",
		[]byte{0, 0, 0, 0},
		be32(0), be32(0),
		be32(timescale),
		be32(duration),
	)
}

func hdlrBox(handler string) []byte {
	return mkBox("hdlr", []byte{0, 0, 0, 0}, be32(0), []byte(handler))
}

func sttsBox(count, duration uint32) []byte {
	return mkBox("stts", []byte{0, 0, 0, 0}, be32(1), be32(count), be32(duration))
}

func stszBox(sizes []uint32) []byte {
	parts := [][]byte{{0, 0, 0, 0}, be32(0), be32(uint32(len(sizes)))}
	for _, s := range sizes {
		parts = append(parts, be32(s))
	}
	return mkBox("stsz", parts...)
}

func stscBox(firstChunk, samplesPerChunk uint32) []byte {
	return mkBox("stsc", []byte{0, 0, 0, 0}, be32(1),
		be32(firstChunk), be32(samplesPerChunk), be32(1))
}

func stcoBox(offsets []uint32) []byte {
	parts := [][]byte{{0, 0, 0, 0}, be32(uint32(len(offsets)))}
	for _, o := range offsets {
		parts = append(parts, be32(o))
	}
	return mkBox("stco", parts...)
}

// fakeClock is an injectable Now source advanced by hand.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1000, 0)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(seconds float64) {
	c.mu.Lock()
	c.t = c.t.Add(time.Duration(seconds * float64(time.Second)))
	c.mu.Unlock()
}

// simOpener returns a DeviceOpener handing out one SimDevice and captures
// it for the test.
func simOpener(capture **audio.SimDevice) audio.DeviceOpener {
	return func(sampleRate, channels int) (audio.Device, error) {
		dev := audio.NewSimDevice(sampleRate, channels)
		*capture = dev
		return dev, nil
	}
}
