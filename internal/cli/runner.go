// Package cli wires command line options into a configured compression
// or decompression run.
package cli

import (
	"errors"
	"fmt"

	"lwir-compressor/internal/config"
	"lwir-compressor/internal/pipeline"
)

// ErrInterrupted is surfaced to main for the 130 exit code.
var ErrInterrupted = pipeline.ErrInterrupted

// Options holds the parsed command line.
type Options struct {
	ConfigFile string
	Profile    string

	InputDir  string
	OutputDir string

	// Overrides are applied on top of the config file when Set is true.
	GOP          flagU32
	KeyframeNear flagU32
	ResidualNear flagU32
	QuantQ       flagF64
	DeadZone     flagU32
	FPBits       flagU32
	Archive      bool

	Decode bool
	Verify bool

	// Stop is polled between frames for interrupt handling.
	Stop func() bool
}

// flagU32 is an optional uint32 flag value.
type flagU32 struct {
	Set   bool
	Value uint32
}

// flagF64 is an optional float64 flag value.
type flagF64 struct {
	Set   bool
	Value float64
}

// SetU32 marks an override.
func (o *Options) SetU32(dst *flagU32, v uint32) { dst.Set = true; dst.Value = v }

// SetF64 marks an override.
func (o *Options) SetF64(dst *flagF64, v float64) { dst.Set = true; dst.Value = v }

// BuildConfig resolves the effective configuration: defaults, then the
// config file (with optional profile), then explicit flag overrides.
func BuildConfig(opts Options) (config.Config, error) {
	cfg := config.Default()

	if opts.ConfigFile != "" {
		loaded, err := config.Load(opts.ConfigFile, opts.Profile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	} else if opts.Profile != "" {
		return cfg, fmt.Errorf("--profile requires --config")
	}

	if opts.InputDir != "" {
		cfg.InputDir = opts.InputDir
	}
	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}
	if opts.GOP.Set {
		cfg.GOPPeriod = opts.GOP.Value
	}
	if opts.KeyframeNear.Set {
		cfg.KeyframeNear = opts.KeyframeNear.Value
	}
	if opts.ResidualNear.Set {
		cfg.ResidualNear = opts.ResidualNear.Value
	}
	if opts.QuantQ.Set {
		cfg.QuantQ = opts.QuantQ.Value
	}
	if opts.DeadZone.Set {
		cfg.DeadZoneT = opts.DeadZone.Value
	}
	if opts.FPBits.Set {
		cfg.FPBits = opts.FPBits.Value
	}
	if opts.Archive {
		cfg.Archive = true
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Run executes the requested operation.
func Run(opts Options) error {
	cfg, err := BuildConfig(opts)
	if err != nil {
		return err
	}

	p := pipeline.New(cfg)
	p.SetStop(opts.Stop)
	p.SetVerify(opts.Verify)

	if opts.Decode {
		err = p.RunDecode()
	} else {
		err = p.Run()
	}
	if errors.Is(err, pipeline.ErrInterrupted) {
		return ErrInterrupted
	}
	return err
}

// Usage is the CLI help text.
const Usage = `LWIR Compression Tool - Temporal Residual + JPEG-LS Encoding

USAGE:
  lwir-compress --config <yaml_file> [--profile <name>]
  lwir-compress --input <dir> --output <dir> [options]

OPTIONS:
  --config <path>        Load configuration from YAML file
  --profile <name>       Use a named profile from the config file
  --input <dir>          Input directory of 16-bit grayscale PNG frames
  --output <dir>         Output directory for compressed frames
  --gop <N>              GOP period (frames between forced keyframes)
  --keyframe-near <N>    NEAR parameter for keyframes (0 = lossless)
  --residual-near <N>    NEAR parameter for residual frames
  --quant-q <Q>          Residual quantization step Q (> 0)
  --dead-zone <T>        Dead-zone threshold T
  --fp-bits <N>          Fixed-point fractional bits (1-16)
  --archive              Write one zstd archive instead of per-frame files
  --decode               Decode compressed records back to PNG frames
  --verify               Decode every emitted frame and check it against
                         the encoder reference (closed-loop check)
  --help                 Show this help message

EXAMPLES:
  lwir-compress --config example_config.yaml
  lwir-compress --config config.yaml --profile high_quality
  lwir-compress --input frames/ --output compressed/ --gop 60
  lwir-compress --decode --input compressed/ --output decoded/

EXIT CODES:
  0    success
  1    configuration or IO failure
  130  interrupted`

// PrintUsage writes the help text to stdout.
func PrintUsage() {
	fmt.Println(Usage)
}
