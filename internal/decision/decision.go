// Package decision selects intra vs residual encoding per frame with a
// three-stage policy: periodic keyframe forcing, statistical heuristics
// that catch scene changes and FFC/NUC events, and a rate comparison
// with hysteresis driven by exponential moving averages of the observed
// bits per pixel.
package decision

import "lwir-compressor/internal/residual"

// Mode is the per-frame encoding decision.
type Mode int

const (
	UseIntra Mode = iota
	UseResidual
)

func (m Mode) String() string {
	if m == UseIntra {
		return "USE_INTRA"
	}
	return "USE_RESIDUAL"
}

// Config holds the decision thresholds. Zero values are not meaningful;
// construct with DefaultConfig and override.
type Config struct {
	GOPPeriod     uint32  // force a keyframe every N frames
	ZeroMassMin   float64 // force intra below this fraction of small residuals
	MeanAbsMax    float64 // force intra above this mean |r|
	P95Max        float64
	P99Max        float64
	EntropyMax    float64 // bits per symbol
	MarginBPP     float64 // slack added to the residual rate proxy
	HysteresisBPP float64 // stickiness around the intra EMA
	EMAAlpha      float64 // smoothing factor, sensible range [0.1, 0.2]
}

// DefaultConfig returns the thresholds tuned for 640x512 LWIR sequences.
func DefaultConfig() Config {
	return Config{
		GOPPeriod:     60,
		ZeroMassMin:   0.75,
		MeanAbsMax:    12.0,
		P95Max:        30.0,
		P99Max:        100.0,
		EntropyMax:    6.0,
		MarginBPP:     0.3,
		HysteresisBPP: 0.15,
		EMAAlpha:      0.1,
	}
}

// Engine tracks the minimal decision state: frames since the last
// keyframe, the last emitted mode, and the two rate EMAs. Decide is
// read-only; all mutation happens in Update, so a decision stream can
// be replayed from a log of residual statistics.
type Engine struct {
	cfg Config

	sinceKey uint32
	lastMode Mode

	emaIntra    float64
	emaResidual float64
	haveIntra   bool
	haveResid   bool
}

// New creates an engine. A zero GOPPeriod falls back to the default.
func New(cfg Config) *Engine {
	if cfg.GOPPeriod == 0 {
		cfg.GOPPeriod = DefaultConfig().GOPPeriod
	}
	return &Engine{cfg: cfg, lastMode: UseIntra}
}

// SinceKey returns the number of frames since the last keyframe.
func (e *Engine) SinceKey() uint32 { return e.sinceKey }

// IntraEMA returns the intra bits-per-pixel EMA and whether it is set.
func (e *Engine) IntraEMA() (float64, bool) { return e.emaIntra, e.haveIntra }

// ResidualEMA returns the residual bits-per-pixel EMA and whether it is set.
func (e *Engine) ResidualEMA() (float64, bool) { return e.emaResidual, e.haveResid }

// Decide returns the encoding mode for the frame with the given index
// and residual statistics. Stages run in order; the first to demand
// intra wins.
func (e *Engine) Decide(stats residual.Stats, frameIndex uint32) Mode {
	// Stage 1: periodic forcing.
	if e.sinceKey >= e.cfg.GOPPeriod || frameIndex%e.cfg.GOPPeriod == 0 {
		return UseIntra
	}

	// Stage 2: heuristics. Large or heavy-tailed residuals signal a
	// scene change or a flat-field correction event.
	if stats.ZeroMass < e.cfg.ZeroMassMin ||
		stats.MeanAbs > e.cfg.MeanAbsMax ||
		stats.P95 > e.cfg.P95Max ||
		stats.P99 > e.cfg.P99Max ||
		stats.EntropyBits > e.cfg.EntropyMax {
		return UseIntra
	}

	// Stage 3: rate proxy vs the intra EMA, with hysteresis. Without
	// history the residual path is the default.
	if !e.haveIntra {
		return UseResidual
	}
	threshold := e.emaIntra
	if e.lastMode == UseResidual {
		threshold -= e.cfg.HysteresisBPP
	} else {
		threshold += e.cfg.HysteresisBPP
	}
	if stats.BPSRes+e.cfg.MarginBPP >= threshold {
		return UseIntra
	}
	return UseResidual
}

// Update folds the actual compressed size of the emitted frame into the
// engine state. Must be called once per encoded frame.
func (e *Engine) Update(compressedBytes int, width, height uint32, keyframe bool) {
	bpp := float64(compressedBytes) * 8.0 / (float64(width) * float64(height))
	if keyframe {
		if !e.haveIntra {
			e.emaIntra = bpp
			e.haveIntra = true
		} else {
			e.emaIntra = e.cfg.EMAAlpha*bpp + (1-e.cfg.EMAAlpha)*e.emaIntra
		}
		e.sinceKey = 0
		e.lastMode = UseIntra
	} else {
		if !e.haveResid {
			e.emaResidual = bpp
			e.haveResid = true
		} else {
			e.emaResidual = e.cfg.EMAAlpha*bpp + (1-e.cfg.EMAAlpha)*e.emaResidual
		}
		e.sinceKey++
		e.lastMode = UseResidual
	}
}
