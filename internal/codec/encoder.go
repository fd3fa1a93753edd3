package codec

import (
	"fmt"

	"lwir-compressor/internal/bitdepth"
	"lwir-compressor/internal/residual"
)

// Encoder owns the encode-side reference frame and produces compressed
// frame records. It is not safe for concurrent use: every successful
// encode mutates the reference, and residual frames depend on strict
// ordering.
type Encoder struct {
	codec SymbolCodec

	reference []uint16
	refWidth  uint32
	refHeight uint32

	// scratch buffers, reused across frames
	mapped  []uint16
	diff    []int16
	quant   []int16
	rhat    []int16
	biased  []uint16
	rebuilt []uint16
}

// NewEncoder creates an encoder backed by the in-tree JPEG-LS codec.
func NewEncoder() *Encoder {
	return &Encoder{codec: JPEGLS{}}
}

// NewEncoderWith creates an encoder over a caller-supplied symbol codec.
func NewEncoderWith(sc SymbolCodec) *Encoder {
	return &Encoder{codec: sc}
}

// HasReference reports whether a reference frame is present.
func (e *Encoder) HasReference() bool { return e.reference != nil }

// Reference returns the current reference samples. Callers must treat
// the slice as read-only; it is the decoder-identical reconstruction of
// the last encoded frame.
func (e *Encoder) Reference() []uint16 { return e.reference }

// Reset clears the reference frame. The next frame must be a keyframe.
func (e *Encoder) Reset() {
	e.reference = nil
	e.refWidth = 0
	e.refHeight = 0
}

// Encode dispatches to the intra or residual path.
func (e *Encoder) Encode(f *Frame, keyframe bool, keyframeNear, residualNear uint32, qp residual.QuantParams, enable12Bit bool) (*Record, error) {
	if keyframe {
		return e.EncodeIntra(f, keyframeNear, enable12Bit)
	}
	return e.EncodeResidual(f, residualNear, qp)
}

// EncodeIntra encodes f as a self-contained keyframe. When 12-bit mode
// is enabled and the frame's value range is narrow enough, samples are
// range-mapped to 12 bits first. The emitted stream is then decoded
// back and stored as the new reference, so the reference is literally
// the decoder's reconstruction even at NEAR=0.
func (e *Encoder) EncodeIntra(f *Frame, near uint32, enable12Bit bool) (*Record, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid frame %d", f.Index)
	}

	rec := &Record{
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: f.Timestamp,
		Index:     f.Index,
		Keyframe:  true,
		Near:      near,
		RangeMax:  65535,
	}

	toEncode := f.Samples
	bits := 16
	var rm bitdepth.RangeMap
	if enable12Bit {
		rm = bitdepth.Compute(f.Samples)
		if rm.Beneficial() {
			e.mapped = grow16(e.mapped, f.PixelCount())
			bitdepth.MapTo12Bit(f.Samples, e.mapped, rm)
			toEncode = e.mapped
			bits = 12
			rec.UseRangeMap = true
			rec.RangeMin = rm.Min
			rec.RangeMax = rm.Max
		}
	}

	data, err := e.codec.Encode(toEncode, f.Width, f.Height, bits, int(near))
	if err != nil {
		return nil, err
	}
	rec.Data = data

	// Closed-loop refresh: the reference must match what a decoder
	// reconstructs from the emitted bytes, including the range-map
	// round-trip error.
	decoded, decBits, err := e.codec.Decode(data, f.Width, f.Height)
	if err != nil {
		return nil, fmt.Errorf("closed-loop keyframe decode: %w", err)
	}
	if rec.UseRangeMap {
		if decBits != 12 {
			return nil, &HeaderMismatchError{
				WantWidth: f.Width, WantHeight: f.Height,
				GotWidth: f.Width, GotHeight: f.Height, GotBits: decBits,
			}
		}
		unmapped := make([]uint16, f.PixelCount())
		bitdepth.MapFrom12Bit(decoded, unmapped, rm)
		decoded = unmapped
	}

	e.reference = decoded
	e.refWidth = f.Width
	e.refHeight = f.Height
	return rec, nil
}

// EncodeResidual encodes f as a quantized temporal difference against
// the reference. The reference is advanced to the decoder-identical
// reconstruction before returning.
func (e *Encoder) EncodeResidual(f *Frame, near uint32, qp residual.QuantParams) (*Record, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid frame %d", f.Index)
	}
	if e.reference == nil {
		return nil, ErrNoReference
	}
	if f.Width != e.refWidth || f.Height != e.refHeight {
		return nil, &DimensionMismatchError{
			WantWidth: e.refWidth, WantHeight: e.refHeight,
			GotWidth: f.Width, GotHeight: f.Height,
		}
	}

	n := f.PixelCount()
	e.diff = grow16s(e.diff, n)
	e.quant = grow16s(e.quant, n)
	e.rhat = grow16s(e.rhat, n)
	e.biased = grow16(e.biased, n)

	residual.Diff(f.Samples, e.reference, e.diff)
	if err := residual.Quantize(e.diff, e.quant, qp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	residual.Bias(e.quant, e.biased)

	data, err := e.codec.Encode(e.biased, f.Width, f.Height, 16, int(near))
	if err != nil {
		return nil, err
	}

	rec := &Record{
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: f.Timestamp,
		Index:     f.Index,
		Near:      near,
		QuantQ:    qp.Q(),
		DeadZoneT: qp.DeadZoneT,
		FPBits:    qp.FPBits,
		RangeMax:  65535,
		Data:      data,
	}

	// Closed-loop reconstruction. At NEAR=0 the symbol codec is exact,
	// so dequantizing the local symbols short-circuits a full decode
	// with a byte-identical result; at NEAR>0 the emitted stream must
	// be decoded to observe the codec's actual symbol errors.
	symbols := e.quant
	if near > 0 {
		decoded, decBits, err := e.codec.Decode(data, f.Width, f.Height)
		if err != nil {
			return nil, fmt.Errorf("closed-loop residual decode: %w", err)
		}
		if decBits != 16 {
			return nil, &HeaderMismatchError{
				WantWidth: f.Width, WantHeight: f.Height,
				GotWidth: f.Width, GotHeight: f.Height, GotBits: decBits,
			}
		}
		residual.Unbias(decoded, e.quant)
		symbols = e.quant
	}

	residual.Dequantize(symbols, e.rhat, qp)
	rebuilt := make([]uint16, n)
	residual.Reconstruct(e.rhat, e.reference, rebuilt)
	e.reference = rebuilt
	return rec, nil
}

func grow16(buf []uint16, n int) []uint16 {
	if cap(buf) < n {
		return make([]uint16, n)
	}
	return buf[:n]
}

func grow16s(buf []int16, n int) []int16 {
	if cap(buf) < n {
		return make([]int16, n)
	}
	return buf[:n]
}
