package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"lwir-compressor/internal/config"
)

// FrameStats captures per-frame measurements for the optional CSV and
// the session aggregates.
type FrameStats struct {
	FrameIndex uint32
	Keyframe   bool

	ResidualMean    float64
	ResidualStdDev  float64
	ResidualP95     float64
	ResidualP99     float64
	ResidualMax     float64
	ResidualEntropy float64
	QuantEntropy    float64

	OriginalBytes   int
	CompressedBytes int
	Ratio           float64
	EncodeTimeMS    float64

	MaxError  float64
	MeanError float64
	RMSE      float64
}

// CSVHeader returns the column names for the per-frame stats file.
func CSVHeader() string {
	return "frame_index,is_keyframe," +
		"residual_mean,residual_stddev,residual_p95,residual_p99,residual_max,residual_entropy," +
		"quantized_entropy," +
		"original_bytes,compressed_bytes,compression_ratio," +
		"encode_time_ms," +
		"max_error,mean_error,rmse"
}

// CSVRow formats the stats as one CSV line.
func (fs *FrameStats) CSVRow() string {
	key := 0
	if fs.Keyframe {
		key = 1
	}
	return fmt.Sprintf("%d,%d,%.3f,%.3f,%.3f,%.3f,%.3f,%.3f,%.3f,%d,%d,%.3f,%.3f,%.3f,%.3f,%.3f",
		fs.FrameIndex, key,
		fs.ResidualMean, fs.ResidualStdDev, fs.ResidualP95, fs.ResidualP99,
		fs.ResidualMax, fs.ResidualEntropy,
		fs.QuantEntropy,
		fs.OriginalBytes, fs.CompressedBytes, fs.Ratio,
		fs.EncodeTimeMS,
		fs.MaxError, fs.MeanError, fs.RMSE)
}

// SessionStats aggregates over a whole run.
type SessionStats struct {
	Frames          uint32
	Keyframes       uint32
	ResidualFrames  uint32
	OriginalBytes   uint64
	CompressedBytes uint64

	sumEncodeMS float64
	sumMaxErr   float64
	sumRMSE     float64
}

// AddFrame folds one frame's stats into the session totals.
func (s *SessionStats) AddFrame(fs FrameStats) {
	s.Frames++
	if fs.Keyframe {
		s.Keyframes++
	} else {
		s.ResidualFrames++
	}
	s.OriginalBytes += uint64(fs.OriginalBytes)
	s.CompressedBytes += uint64(fs.CompressedBytes)
	s.sumEncodeMS += fs.EncodeTimeMS
	s.sumMaxErr += fs.MaxError
	s.sumRMSE += fs.RMSE
}

// CompressionRatio returns original/compressed (the "Nx" figure).
func (s *SessionStats) CompressionRatio() float64 {
	if s.CompressedBytes == 0 {
		return 0
	}
	return float64(s.OriginalBytes) / float64(s.CompressedBytes)
}

// AvgEncodeMS returns the mean per-frame encode time.
func (s *SessionStats) AvgEncodeMS() float64 {
	if s.Frames == 0 {
		return 0
	}
	return s.sumEncodeMS / float64(s.Frames)
}

// ThroughputFPS returns frames per second implied by the encode times.
func (s *SessionStats) ThroughputFPS() float64 {
	avg := s.AvgEncodeMS()
	if avg == 0 {
		return 0
	}
	return 1000.0 / avg
}

// AvgMaxError returns the mean of the per-frame max reconstruction errors.
func (s *SessionStats) AvgMaxError() float64 {
	if s.Frames == 0 {
		return 0
	}
	return s.sumMaxErr / float64(s.Frames)
}

// AvgRMSE returns the mean per-frame RMSE.
func (s *SessionStats) AvgRMSE() float64 {
	if s.Frames == 0 {
		return 0
	}
	return s.sumRMSE / float64(s.Frames)
}

// configEcho mirrors the effective configuration into the summary JSON.
type configEcho struct {
	GOPPeriod       uint32  `json:"gop_period"`
	KeyframeNear    uint32  `json:"keyframe_near"`
	ResidualNear    uint32  `json:"residual_near"`
	QuantQ          float64 `json:"quant_Q"`
	DeadZoneT       uint32  `json:"dead_zone_T"`
	FPBits          uint32  `json:"fp_bits"`
	Enable12BitMode bool    `json:"enable_12bit_mode"`
	Archive         bool    `json:"archive"`
}

// summary is the serialized session report.
type summary struct {
	Frames           uint32     `json:"frames"`
	Keyframes        uint32     `json:"keyframes"`
	ResidualFrames   uint32     `json:"residual_frames"`
	OriginalBytes    uint64     `json:"original_bytes"`
	CompressedBytes  uint64     `json:"compressed_bytes"`
	CompressionRatio float64    `json:"compression_ratio"`
	AvgEncodeTimeMS  float64    `json:"avg_encode_time_ms"`
	ThroughputFPS    float64    `json:"throughput_fps"`
	AvgMaxError      float64    `json:"avg_max_error"`
	AvgRMSE          float64    `json:"avg_rmse"`
	Config           configEcho `json:"config"`
}

// WriteJSON writes the session summary to path.
func (s *SessionStats) WriteJSON(path string, cfg config.Config) error {
	doc := summary{
		Frames:           s.Frames,
		Keyframes:        s.Keyframes,
		ResidualFrames:   s.ResidualFrames,
		OriginalBytes:    s.OriginalBytes,
		CompressedBytes:  s.CompressedBytes,
		CompressionRatio: s.CompressionRatio(),
		AvgEncodeTimeMS:  s.AvgEncodeMS(),
		ThroughputFPS:    s.ThroughputFPS(),
		AvgMaxError:      s.AvgMaxError(),
		AvgRMSE:          s.AvgRMSE(),
		Config: configEcho{
			GOPPeriod:       cfg.GOPPeriod,
			KeyframeNear:    cfg.KeyframeNear,
			ResidualNear:    cfg.ResidualNear,
			QuantQ:          cfg.QuantQ,
			DeadZoneT:       cfg.DeadZoneT,
			FPBits:          cfg.FPBits,
			Enable12BitMode: cfg.Enable12BitMode,
			Archive:         cfg.Archive,
		},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session stats: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write session stats: %w", err)
	}
	return nil
}
