// happrobe inspects HAP QuickTime files: movie timing, per-track codec
// and sample-table summaries, and the texture layout of the first frame.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/quickvid/hap/gpu"
	"github.com/quickvid/hap/hapcodec"
	"github.com/quickvid/hap/mov"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		dumpSamples bool
		maxSamples  int
	)

	cmd := &cobra.Command{
		Use:     "happrobe <file.mov>",
		Short:   "Inspect a HAP QuickTime file",
		Args:    cobra.ExactArgs(1),
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return probe(cmd, args[0], dumpSamples, maxSamples)
		},
	}
	cmd.Flags().BoolVar(&dumpSamples, "samples", false, "dump the per-track sample tables")
	cmd.Flags().IntVar(&maxSamples, "max-samples", 20, "sample table rows to print per track (0 for all)")
	cmd.SilenceUsage = true
	return cmd
}

func probe(cmd *cobra.Command, path string, dumpSamples bool, maxSamples int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}

	file, err := mov.Parse(f, st.Size())
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d bytes, timescale %d, duration %.3fs, %d tracks\n",
		path, st.Size(), file.Timescale, file.DurationSeconds(), len(file.Tracks))

	for _, track := range file.Tracks {
		printTrack(out, track)
		if dumpSamples {
			printSamples(out, track, maxSamples)
		}
	}

	if video := file.VideoTrack(); video != nil && mov.IsHAPCodec(video.Codec) {
		if err := printFrameLayout(out, f, video); err != nil {
			slog.Warn("frame probe failed", "error", err)
		}
	}
	return nil
}

func printTrack(out io.Writer, track *mov.Track) {
	switch {
	case track.IsVideo:
		fmt.Fprintf(out, "track %d video: codec %s, %dx%d, %.2f fps, %d samples, %.3fs\n",
			track.ID, track.Codec, track.Width, track.Height,
			track.FrameRate(), len(track.Samples), track.DurationSeconds())
	case track.IsAudio:
		fmt.Fprintf(out, "track %d audio: codec %s, %d Hz, %d ch, %d bit, %d samples, %.3fs\n",
			track.ID, track.Codec, track.SampleRate, track.Channels,
			track.BitsPerSample, len(track.Samples), track.DurationSeconds())
	default:
		fmt.Fprintf(out, "track %d: codec %s, %d samples\n",
			track.ID, track.Codec, len(track.Samples))
	}
}

func printSamples(out io.Writer, track *mov.Track, max int) {
	n := len(track.Samples)
	if max > 0 && n > max {
		n = max
	}
	for i := 0; i < n; i++ {
		s := track.Samples[i]
		fmt.Fprintf(out, "  sample %d: offset %d, size %d, duration %d, start %.3fs\n",
			i, s.Offset, s.Size, s.Duration, track.SampleStart(i))
	}
	if n < len(track.Samples) {
		fmt.Fprintf(out, "  ... %d more\n", len(track.Samples)-n)
	}
}

// printFrameLayout probes the first video frame for its texture formats
// and the GPU upload sizes they imply.
func printFrameLayout(out io.Writer, f *os.File, video *mov.Track) error {
	smp := video.Samples[0]
	frame := make([]byte, smp.Size)
	if _, err := f.ReadAt(frame, smp.Offset); err != nil {
		return err
	}

	info, err := hapcodec.New().Probe(frame)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "frame 0: %d texture(s)\n", info.TextureCount)
	for i, format := range info.Formats {
		fmt.Fprintf(out, "  texture %d: %s, %d bytes/block, %d bytes decoded\n",
			i, format, format.BytesPerBlock(), decodedSize(video, format))
	}
	return nil
}

func decodedSize(video *mov.Track, format hapcodec.TextureFormat) int {
	blockBytes := format.BytesPerBlock()
	return gpu.BlocksX(video.Width) * gpu.BlocksY(video.Height) * blockBytes
}
