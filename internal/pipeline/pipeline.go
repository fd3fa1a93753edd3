// Package pipeline orchestrates a compression or decompression session:
// scanning the input directory, running frames through the decision
// engine and frame codec, writing compressed records, and reporting
// session statistics.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"lwir-compressor/internal/codec"
	"lwir-compressor/internal/config"
	"lwir-compressor/internal/decision"
	"lwir-compressor/internal/progress"
	"lwir-compressor/internal/residual"
)

// ErrInterrupted is returned when the stop callback fires between
// frames; the caller maps it to exit code 130.
var ErrInterrupted = errors.New("interrupted")

// Pipeline runs one compression session over a frame sequence.
type Pipeline struct {
	cfg    config.Config
	verify bool
	stop   func() bool

	stats SessionStats
}

// New creates a pipeline for the given configuration.
func New(cfg config.Config) *Pipeline {
	return &Pipeline{cfg: cfg, stop: func() bool { return false }}
}

// SetStop installs an interruption probe checked between frames.
func (p *Pipeline) SetStop(fn func() bool) {
	if fn != nil {
		p.stop = fn
	}
}

// SetVerify enables decoding every emitted record through an
// independent decoder and comparing against the encoder's reference.
func (p *Pipeline) SetVerify(v bool) { p.verify = v }

// Stats returns the session statistics accumulated so far.
func (p *Pipeline) Stats() *SessionStats { return &p.stats }

// Run compresses every frame in the input directory.
func (p *Pipeline) Run() error {
	files, err := p.scanInput()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	fmt.Println("=== LWIR Compression Pipeline ===")
	fmt.Printf("Input: %s\n", p.cfg.InputDir)
	fmt.Printf("Output: %s\n", p.cfg.OutputDir)
	fmt.Printf("GOP Period: %d frames\n", p.cfg.GOPPeriod)
	fmt.Printf("Keyframe NEAR: %d\n", p.cfg.KeyframeNear)
	fmt.Printf("Residual NEAR: %d\n", p.cfg.ResidualNear)
	fmt.Printf("Quantization Q: %g, T: %d, fp_bits: %d\n", p.cfg.QuantQ, p.cfg.DeadZoneT, p.cfg.FPBits)
	fmt.Printf("Found %d input frames\n\n", len(files))

	logger, err := progress.NewErrorLogger(filepath.Join(p.cfg.OutputDir, "errors.log"))
	if err != nil {
		return err
	}
	defer logger.Close()

	var arc *archiveWriter
	if p.cfg.Archive {
		arc, err = newArchiveWriter(filepath.Join(p.cfg.OutputDir, ArchiveName))
		if err != nil {
			return err
		}
	}

	var csv *os.File
	if p.cfg.WriteFrameStats {
		csv, err = os.Create(filepath.Join(p.cfg.OutputDir, "frame_stats.csv"))
		if err != nil {
			return p.finish(fmt.Errorf("create frame stats: %w", err), logger, arc)
		}
		defer csv.Close()
		fmt.Fprintln(csv, CSVHeader())
	}

	enc := codec.NewEncoder()
	engine := decision.New(p.cfg.DecisionConfig())
	var verifier *codec.Decoder
	if p.verify {
		verifier = codec.NewDecoder()
	}
	qp := residual.NewQuantParams(p.cfg.DeadZoneT, p.cfg.QuantQ, p.cfg.FPBits)

	var diff, quant []int16
	for i, path := range files {
		if p.stop() {
			fmt.Println("\nInterrupt received, stopping...")
			return p.finish(ErrInterrupted, logger, arc)
		}

		frame, err := LoadPNG(path)
		if err != nil {
			if ferr := p.frameError(uint32(i), path, err, logger); ferr != nil {
				return p.finish(ferr, logger, arc)
			}
			continue
		}
		frame.Index = uint32(i)

		// Decision features are always computed against the real
		// closed-loop reference; the engine never sees made-up stats.
		var stats residual.Stats
		var hist residual.Histogram
		useResidualStats := enc.HasReference() && len(enc.Reference()) == frame.PixelCount()
		if useResidualStats {
			diff = growI16(diff, frame.PixelCount())
			quant = growI16(quant, frame.PixelCount())
			residual.Diff(frame.Samples, enc.Reference(), diff)
			quantized := quant
			if err := residual.Quantize(diff, quant, qp); err != nil {
				quantized = nil
			}
			stats = residual.ComputeStats(diff, p.cfg.DeadZoneT, quantized)
			if p.cfg.WriteFrameStats {
				hist.Accumulate(diff)
			}
		}

		keyframe := true
		if useResidualStats {
			keyframe = engine.Decide(stats, frame.Index) == decision.UseIntra
		}

		start := time.Now()
		rec, err := enc.Encode(frame, keyframe, p.cfg.KeyframeNear, p.cfg.ResidualNear, qp, p.cfg.Enable12BitMode)
		elapsed := time.Since(start)
		if err != nil {
			if ferr := p.frameError(frame.Index, path, err, logger); ferr != nil {
				return p.finish(ferr, logger, arc)
			}
			continue
		}

		engine.Update(len(rec.Data), frame.Width, frame.Height, keyframe)

		if arc != nil {
			err = arc.WriteRecord(rec)
		} else {
			err = writeRecordFile(p.cfg.OutputDir, rec)
		}
		if err != nil {
			return p.finish(fmt.Errorf("frame %d: %w", frame.Index, err), logger, arc)
		}

		if verifier != nil {
			if err := p.verifyRecord(verifier, rec, enc.Reference()); err != nil {
				return p.finish(err, logger, arc)
			}
		}

		errStats := residual.ComputeErrorStats(frame.Samples, enc.Reference())
		fs := FrameStats{
			FrameIndex:      frame.Index,
			Keyframe:        keyframe,
			ResidualP95:     stats.P95,
			ResidualP99:     stats.P99,
			QuantEntropy:    stats.EntropyBits,
			OriginalBytes:   frame.PixelCount() * 2,
			CompressedBytes: len(rec.Data),
			EncodeTimeMS:    float64(elapsed.Microseconds()) / 1000.0,
			MaxError:        errStats.MaxError,
			MeanError:       errStats.MeanError,
			RMSE:            errStats.RMSE,
		}
		if fs.CompressedBytes > 0 {
			fs.Ratio = float64(fs.OriginalBytes) / float64(fs.CompressedBytes)
		}
		if p.cfg.WriteFrameStats && useResidualStats {
			fs.ResidualMean = hist.Mean()
			fs.ResidualStdDev = hist.StdDev()
			fs.ResidualMax = hist.Max()
			fs.ResidualEntropy = hist.Entropy()
		}
		p.stats.AddFrame(fs)
		if csv != nil {
			fmt.Fprintln(csv, fs.CSVRow())
		}

		mode := "RESIDUAL"
		if keyframe {
			mode = "KEYFRAME"
		}
		fmt.Printf("Frame %6d [%s] | %d bytes | %.2fx | %.1f ms\n",
			frame.Index, mode, fs.CompressedBytes, fs.Ratio, fs.EncodeTimeMS)
	}

	return p.finish(nil, logger, arc)
}

// finish flushes outputs, prints the summary, and writes the session
// JSON; err (possibly nil) is passed through.
func (p *Pipeline) finish(err error, logger *progress.ErrorLogger, arc *archiveWriter) error {
	if arc != nil {
		if cerr := arc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	if p.stats.Frames > 0 {
		p.printSummary()
		if jerr := p.stats.WriteJSON(filepath.Join(p.cfg.OutputDir, "compression_stats.json"), p.cfg); jerr != nil && err == nil {
			err = jerr
		}
	}
	if logger.Count() > 0 {
		fmt.Println(logger.Summary())
	}
	return err
}

func (p *Pipeline) printSummary() {
	s := &p.stats
	fmt.Println()
	fmt.Println("=== Compression Summary ===")
	fmt.Printf("Frames processed: %d (%d keyframes, %d residual)\n",
		s.Frames, s.Keyframes, s.ResidualFrames)
	fmt.Printf("Original size: %.2f MB\n", float64(s.OriginalBytes)/1024/1024)
	fmt.Printf("Compressed size: %.2f MB\n", float64(s.CompressedBytes)/1024/1024)
	fmt.Printf("Overall compression ratio: %.2fx\n", s.CompressionRatio())
	fmt.Printf("Average encode time: %.2f ms/frame\n", s.AvgEncodeMS())
	fmt.Printf("Throughput: %.1f fps\n", s.ThroughputFPS())
}

// frameError handles a recoverable per-frame failure according to the
// configured policy; a non-nil return aborts the run.
func (p *Pipeline) frameError(index uint32, path string, err error, logger *progress.ErrorLogger) error {
	logger.Log(index, path, err.Error())
	if p.cfg.OnFrameError == config.OnErrorSkip {
		fmt.Fprintf(os.Stderr, "Frame %6d skipped: %v\n", index, err)
		return nil
	}
	return fmt.Errorf("frame %d (%s): %w", index, filepath.Base(path), err)
}

// verifyRecord decodes the record on an independent decoder and checks
// its reference against the encoder's. A divergence is structural: the
// closed loop is broken and every later residual would be poisoned.
func (p *Pipeline) verifyRecord(dec *codec.Decoder, rec *codec.Record, encRef []uint16) error {
	out, err := dec.Decode(rec)
	if err != nil {
		return fmt.Errorf("verify: decode frame %d: %w", rec.Index, err)
	}
	for i := range encRef {
		if out.Samples[i] != encRef[i] {
			return fmt.Errorf("verify: frame %d: encoder/decoder divergence at pixel %d (%d vs %d)",
				rec.Index, i, encRef[i], out.Samples[i])
		}
	}
	return nil
}

func (p *Pipeline) scanInput() ([]string, error) {
	info, err := os.Stat(p.cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path is not a directory: %s", p.cfg.InputDir)
	}
	glob := p.cfg.InputGlob
	if glob == "" {
		glob = "*.png"
	}
	files, err := filepath.Glob(filepath.Join(p.cfg.InputDir, glob))
	if err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input frames matching %q in %s", glob, p.cfg.InputDir)
	}
	sort.Strings(files)
	return files, nil
}

func writeRecordFile(dir string, rec *codec.Record) error {
	path := filepath.Join(dir, fmt.Sprintf("frame_%06d.lwir", rec.Index))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := rec.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func growI16(buf []int16, n int) []int16 {
	if cap(buf) < n {
		return make([]int16, n)
	}
	return buf[:n]
}

// RunDecode decompresses a directory of .lwir records or an archive
// into 16-bit grayscale PNGs.
func (p *Pipeline) RunDecode() error {
	if err := os.MkdirAll(p.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	next, closeSrc, total, err := p.openRecordSource()
	if err != nil {
		return err
	}
	defer closeSrc()

	var bar *progress.Bar
	if total > 0 {
		bar = progress.NewBar(50)
	}

	dec := codec.NewDecoder()
	count := 0
	for {
		if p.stop() {
			fmt.Println("\nInterrupt received, stopping...")
			return ErrInterrupted
		}
		rec, err := next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}
		frame, err := dec.Decode(rec)
		if err != nil {
			return fmt.Errorf("decode frame %d: %w", rec.Index, err)
		}
		out := filepath.Join(p.cfg.OutputDir, fmt.Sprintf("frame_%06d.png", rec.Index))
		if err := WritePNG(out, frame); err != nil {
			return err
		}
		count++
		if bar != nil {
			bar.Update(count, total)
		}
	}
	if bar != nil {
		bar.Finish(total)
	}

	fmt.Printf("Decoded %d frames to %s\n", count, p.cfg.OutputDir)
	return nil
}

// openRecordSource returns an iterator over compressed records: either
// the archive file (when input points at one, or archive mode is set)
// or the sorted .lwir files of the input directory. The returned total
// is 0 when the record count is not known up front (archive mode).
func (p *Pipeline) openRecordSource() (func() (*codec.Record, error), func(), int, error) {
	input := p.cfg.InputDir
	if info, err := os.Stat(input); err == nil && !info.IsDir() {
		return openArchiveSource(input)
	}
	if p.cfg.Archive {
		return openArchiveSource(filepath.Join(input, ArchiveName))
	}

	files, err := filepath.Glob(filepath.Join(input, "*.lwir"))
	if err != nil || len(files) == 0 {
		return nil, nil, 0, fmt.Errorf("no .lwir records in %s", input)
	}
	sort.Strings(files)

	i := 0
	next := func() (*codec.Record, error) {
		if i >= len(files) {
			return nil, io.EOF
		}
		path := files[i]
		i++
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		rec, err := codec.ReadRecord(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return rec, nil
	}
	return next, func() {}, len(files), nil
}

func openArchiveSource(path string) (func() (*codec.Record, error), func(), int, error) {
	ar, err := newArchiveReader(path)
	if err != nil {
		return nil, nil, 0, err
	}
	return ar.Next, func() { ar.Close() }, 0, nil
}
