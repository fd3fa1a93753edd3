// Package residual implements the temporal residual arithmetic for LWIR
// frame sequences: elementwise differencing against a reference frame,
// dead-zone quantization in fixed-point, centered dequantization, and
// saturating frame reconstruction.
package residual

import (
	"fmt"
	"math"
)

// BiasOffset shifts quantized symbols into unsigned space for the symbol
// codec. 32768 centers the int16 range on uint16.
const BiasOffset = 32768

// QuantParams holds the dead-zone quantizer configuration. Q is stored
// only as the fixed-point integer QFixed = round(Q * 2^FPBits); every
// consumer must derive Q from that integer so encoder and decoder round
// identically.
type QuantParams struct {
	DeadZoneT uint32
	QFixed    uint32
	FPBits    uint32
}

// NewQuantParams converts a floating-point step Q into fixed-point.
// fpBits must be in [1, 16] and Q > 0; violations are caught by config
// validation before params are constructed.
func NewQuantParams(deadZoneT uint32, q float64, fpBits uint32) QuantParams {
	return QuantParams{
		DeadZoneT: deadZoneT,
		QFixed:    uint32(q*float64(uint32(1)<<fpBits) + 0.5),
		FPBits:    fpBits,
	}
}

// Q returns the effective quantization step QFixed / 2^FPBits.
func (p QuantParams) Q() float64 {
	return float64(p.QFixed) / float64(uint32(1)<<p.FPBits)
}

// Diff computes out[i] = int16(current[i]) - int16(previous[i]).
// Wrap on overflow is intentional; reconstruction applies the exact
// inverse so no information is lost.
func Diff(current, previous []uint16, out []int16) {
	for i := range current {
		out[i] = int16(current[i]) - int16(previous[i])
	}
}

// Quantize applies the dead-zone quantizer to each residual:
//
//	a' = max(0, |r| - T)
//	q  = sign(r) * round(a' / Q)
//
// The division rounds half up using fixed-point arithmetic only.
// Returns an error if any quantized magnitude overflows int16; the
// caller must treat that as fatal for the frame.
func Quantize(res []int16, out []int16, p QuantParams) error {
	t := p.DeadZoneT
	for i, r := range res {
		s := int32(1)
		a := int32(r)
		if r < 0 {
			s = -1
			a = -a
		}
		var a2 uint32
		if uint32(a) > t {
			a2 = uint32(a) - t
		}
		q := (uint64(a2)<<p.FPBits + uint64(p.QFixed)/2) / uint64(p.QFixed)
		if q > 32767 {
			return fmt.Errorf("quantized magnitude %d exceeds int16 at sample %d (residual %d)", q, i, r)
		}
		out[i] = int16(s * int32(q))
	}
	return nil
}

// Dequantize reconstructs residual estimates with centered placement:
//
//	q == 0: r' = 0
//	else:   r' = sign(q) * (floor(|q| * Q) + floor(T/2))
//
// Zero symbols reconstruct exactly to zero so flat regions stay flat.
func Dequantize(quantized []int16, out []int16, p QuantParams) {
	tHalf := p.DeadZoneT / 2
	for i, q := range quantized {
		if q == 0 {
			out[i] = 0
			continue
		}
		s := int32(1)
		a := int64(q)
		if q < 0 {
			s = -1
			a = -a
		}
		mag := uint32(uint64(a)*uint64(p.QFixed)>>p.FPBits) + tHalf
		out[i] = int16(s * int32(mag))
	}
}

// Bias shifts signed symbols into unsigned space for the symbol codec.
func Bias(quantized []int16, out []uint16) {
	for i, q := range quantized {
		out[i] = uint16(int32(q) + BiasOffset)
	}
}

// Unbias is the inverse of Bias.
func Unbias(biased []uint16, out []int16) {
	for i, u := range biased {
		out[i] = int16(int32(u) - BiasOffset)
	}
}

// Reconstruct adds residual estimates to the previous frame, saturating
// to the valid 16-bit sample range.
func Reconstruct(res []int16, previous []uint16, out []uint16) {
	for i := range res {
		v := int32(previous[i]) + int32(res[i])
		if v < 0 {
			v = 0
		} else if v > 65535 {
			v = 65535
		}
		out[i] = uint16(v)
	}
}

// ErrorStats summarizes reconstruction error against the original frame.
type ErrorStats struct {
	MaxError  float64
	MeanError float64
	RMSE      float64
}

// ComputeErrorStats measures per-sample reconstruction error.
func ComputeErrorStats(original, reconstructed []uint16) ErrorStats {
	var stats ErrorStats
	if len(original) == 0 {
		return stats
	}
	var sum, sumSq float64
	for i := range original {
		err := float64(int32(original[i]) - int32(reconstructed[i]))
		if err < 0 {
			err = -err
		}
		sum += err
		sumSq += err * err
		if err > stats.MaxError {
			stats.MaxError = err
		}
	}
	n := float64(len(original))
	stats.MeanError = sum / n
	stats.RMSE = math.Sqrt(sumSq / n)
	return stats
}
