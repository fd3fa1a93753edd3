// Package config loads and validates the compression configuration from
// YAML files and CLI overrides. A config file may define multiple named
// profiles under a top-level "profiles" mapping; selecting one replaces
// the root configuration with that subtree.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lwir-compressor/internal/decision"
)

// Frame error policies.
const (
	OnErrorAbort = "abort"
	OnErrorSkip  = "skip"
)

// Config is the complete compression configuration.
type Config struct {
	InputDir  string `yaml:"input_dir"`
	OutputDir string `yaml:"output_dir"`

	GOPPeriod    uint32  `yaml:"gop_period"`
	KeyframeNear uint32  `yaml:"keyframe_near"`
	ResidualNear uint32  `yaml:"residual_near"`
	DeadZoneT    uint32  `yaml:"dead_zone_T"`
	QuantQ       float64 `yaml:"quant_Q"`
	FPBits       uint32  `yaml:"fp_bits"`

	Enable12BitMode bool `yaml:"enable_12bit_mode"`

	Archive         bool   `yaml:"archive"`
	InputGlob       string `yaml:"input_glob"`
	OnFrameError    string `yaml:"on_frame_error"`
	WriteFrameStats bool   `yaml:"write_frame_stats"`

	DecisionZeroMassMin      float64 `yaml:"decision_zero_mass_min"`
	DecisionMeanAbsMax       float64 `yaml:"decision_mean_abs_max"`
	DecisionP95Threshold     float64 `yaml:"decision_p95_threshold"`
	DecisionP99Threshold     float64 `yaml:"decision_p99_threshold"`
	DecisionEntropyThreshold float64 `yaml:"decision_entropy_threshold"`
	DecisionMarginBPP        float64 `yaml:"decision_margin_bpp"`
	DecisionHysteresisBPP    float64 `yaml:"decision_hysteresis_bpp"`
	DecisionEMAAlpha         float64 `yaml:"decision_ema_alpha"`
}

// Default returns the configuration defaults; YAML and flags override
// individual fields.
func Default() Config {
	d := decision.DefaultConfig()
	return Config{
		GOPPeriod:       60,
		KeyframeNear:    0,
		ResidualNear:    10,
		DeadZoneT:       2,
		QuantQ:          2.0,
		FPBits:          8,
		Enable12BitMode: true,
		InputGlob:       "*.png",
		OnFrameError:    OnErrorAbort,

		DecisionZeroMassMin:      d.ZeroMassMin,
		DecisionMeanAbsMax:       d.MeanAbsMax,
		DecisionP95Threshold:     d.P95Max,
		DecisionP99Threshold:     d.P99Max,
		DecisionEntropyThreshold: d.EntropyMax,
		DecisionMarginBPP:        d.MarginBPP,
		DecisionHysteresisBPP:    d.HysteresisBPP,
		DecisionEMAAlpha:         d.EMAAlpha,
	}
}

// DecisionConfig assembles the decision engine thresholds.
func (c *Config) DecisionConfig() decision.Config {
	return decision.Config{
		GOPPeriod:     c.GOPPeriod,
		ZeroMassMin:   c.DecisionZeroMassMin,
		MeanAbsMax:    c.DecisionMeanAbsMax,
		P95Max:        c.DecisionP95Threshold,
		P99Max:        c.DecisionP99Threshold,
		EntropyMax:    c.DecisionEntropyThreshold,
		MarginBPP:     c.DecisionMarginBPP,
		HysteresisBPP: c.DecisionHysteresisBPP,
		EMAAlpha:      c.DecisionEMAAlpha,
	}
}

// file mirrors the document structure just enough to find profiles.
type file struct {
	Profiles map[string]yaml.Node `yaml:"profiles"`
}

// Load reads a YAML config file, optionally selecting a named profile.
// The result starts from Default with the file's values layered on top.
func Load(path, profile string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if profile != "" {
		var f file
		if err := yaml.Unmarshal(data, &f); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		node, ok := f.Profiles[profile]
		if !ok {
			return cfg, fmt.Errorf("config %s has no profile %q", path, profile)
		}
		if err := node.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse profile %q: %w", profile, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate checks parameter ranges. Input and output paths are required
// for an encode run; decode-only callers validate paths themselves.
func (c *Config) Validate() error {
	if c.InputDir == "" || c.OutputDir == "" {
		return fmt.Errorf("input and output directories must be specified")
	}
	if c.GOPPeriod == 0 {
		return fmt.Errorf("gop_period must be > 0")
	}
	if c.QuantQ <= 0 {
		return fmt.Errorf("quant_Q must be > 0, got %v", c.QuantQ)
	}
	if c.FPBits < 1 || c.FPBits > 16 {
		return fmt.Errorf("fp_bits must be in [1, 16], got %d", c.FPBits)
	}
	if c.DeadZoneT >= 1<<15 {
		return fmt.Errorf("dead_zone_T must be < 32768, got %d", c.DeadZoneT)
	}
	if c.DecisionP95Threshold < 0 || c.DecisionP99Threshold < 0 {
		return fmt.Errorf("decision percentile thresholds must be >= 0")
	}
	if c.DecisionEntropyThreshold < 0 {
		return fmt.Errorf("decision_entropy_threshold must be >= 0")
	}
	if c.DecisionEMAAlpha <= 0 || c.DecisionEMAAlpha >= 1 {
		return fmt.Errorf("decision_ema_alpha must be in (0, 1), got %v", c.DecisionEMAAlpha)
	}
	if c.OnFrameError != OnErrorAbort && c.OnFrameError != OnErrorSkip {
		return fmt.Errorf("on_frame_error must be %q or %q, got %q", OnErrorAbort, OnErrorSkip, c.OnFrameError)
	}
	return nil
}
