package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"lwir-compressor/internal/cli"
)

func main() {
	configFile := flag.String("config", "", "YAML configuration file")
	profile := flag.String("profile", "", "Profile name within the config file")
	input := flag.String("input", "", "Input directory of PNG frames")
	output := flag.String("output", "", "Output directory for compressed frames")

	gop := flag.Uint("gop", 0, "GOP period (frames between keyframes)")
	keyframeNear := flag.Uint("keyframe-near", 0, "NEAR parameter for keyframes")
	residualNear := flag.Uint("residual-near", 0, "NEAR parameter for residual frames")
	quantQ := flag.Float64("quant-q", 0, "Quantization step Q")
	deadZone := flag.Uint("dead-zone", 0, "Dead-zone threshold T")
	fpBits := flag.Uint("fp-bits", 0, "Fixed-point fractional bits")
	archive := flag.Bool("archive", false, "Write a single zstd archive")

	decode := flag.Bool("decode", false, "Decode compressed records to PNG")
	verify := flag.Bool("verify", false, "Check decoder agreement while encoding")

	help := flag.Bool("help", false, "Show help message")

	flag.Usage = func() {
		cli.PrintUsage()
	}
	flag.Parse()

	if *help {
		cli.PrintUsage()
		return
	}
	if *configFile == "" && *input == "" {
		fmt.Fprintln(os.Stderr, "Error: must specify either --config or --input/--output")
		cli.PrintUsage()
		os.Exit(1)
	}

	opts := cli.Options{
		ConfigFile: *configFile,
		Profile:    *profile,
		InputDir:   *input,
		OutputDir:  *output,
		Archive:    *archive,
		Decode:     *decode,
		Verify:     *verify,
	}

	// Only flags the user actually passed override the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "gop":
			opts.SetU32(&opts.GOP, uint32(*gop))
		case "keyframe-near":
			opts.SetU32(&opts.KeyframeNear, uint32(*keyframeNear))
		case "residual-near":
			opts.SetU32(&opts.ResidualNear, uint32(*residualNear))
		case "quant-q":
			opts.SetF64(&opts.QuantQ, *quantQ)
		case "dead-zone":
			opts.SetU32(&opts.DeadZone, uint32(*deadZone))
		case "fp-bits":
			opts.SetU32(&opts.FPBits, uint32(*fpBits))
		}
	})

	var interrupted atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		interrupted.Store(true)
	}()
	opts.Stop = interrupted.Load

	if err := cli.Run(opts); err != nil {
		if errors.Is(err, cli.ErrInterrupted) {
			fmt.Fprintln(os.Stderr, "Compression interrupted by user")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
