package codec

import (
	"fmt"

	"lwir-compressor/internal/bitdepth"
	"lwir-compressor/internal/residual"
)

// Decoder mirrors the encoder: it maintains its own reference frame and
// reconstructs frames from compressed records. Like the encoder it is
// single-sequence, single-goroutine state.
type Decoder struct {
	codec SymbolCodec

	reference []uint16
	refWidth  uint32
	refHeight uint32

	quant []int16
	rhat  []int16
}

// NewDecoder creates a decoder backed by the in-tree JPEG-LS codec.
func NewDecoder() *Decoder {
	return &Decoder{codec: JPEGLS{}}
}

// NewDecoderWith creates a decoder over a caller-supplied symbol codec.
func NewDecoderWith(sc SymbolCodec) *Decoder {
	return &Decoder{codec: sc}
}

// HasReference reports whether a reference frame is present.
func (d *Decoder) HasReference() bool { return d.reference != nil }

// Reference returns the current reference samples (read-only).
func (d *Decoder) Reference() []uint16 { return d.reference }

// Reset clears the reference frame. The next record must be a keyframe.
func (d *Decoder) Reset() {
	d.reference = nil
	d.refWidth = 0
	d.refHeight = 0
}

// Decode reconstructs one frame and advances the reference.
func (d *Decoder) Decode(rec *Record) (*Frame, error) {
	if rec.Keyframe {
		return d.decodeIntra(rec)
	}
	return d.decodeResidual(rec)
}

func (d *Decoder) decodeIntra(rec *Record) (*Frame, error) {
	decoded, bits, err := d.codec.Decode(rec.Data, rec.Width, rec.Height)
	if err != nil {
		return nil, err
	}

	if rec.UseRangeMap {
		if bits != 12 {
			return nil, &HeaderMismatchError{
				WantWidth: rec.Width, WantHeight: rec.Height,
				GotWidth: rec.Width, GotHeight: rec.Height, GotBits: bits,
			}
		}
		rm := bitdepth.RangeMap{Min: rec.RangeMin, Max: rec.RangeMax}
		unmapped := make([]uint16, len(decoded))
		bitdepth.MapFrom12Bit(decoded, unmapped, rm)
		decoded = unmapped
	}

	d.reference = decoded
	d.refWidth = rec.Width
	d.refHeight = rec.Height
	return d.emit(rec), nil
}

func (d *Decoder) decodeResidual(rec *Record) (*Frame, error) {
	if d.reference == nil {
		return nil, ErrNoReference
	}
	if rec.Width != d.refWidth || rec.Height != d.refHeight {
		return nil, &DimensionMismatchError{
			WantWidth: d.refWidth, WantHeight: d.refHeight,
			GotWidth: rec.Width, GotHeight: rec.Height,
		}
	}
	if rec.FPBits < 1 || rec.FPBits > 16 || rec.QuantQ <= 0 {
		return nil, fmt.Errorf("record %d: invalid quantization metadata Q=%v fp=%d",
			rec.Index, rec.QuantQ, rec.FPBits)
	}

	decoded, bits, err := d.codec.Decode(rec.Data, rec.Width, rec.Height)
	if err != nil {
		return nil, err
	}
	if bits != 16 {
		return nil, &HeaderMismatchError{
			WantWidth: rec.Width, WantHeight: rec.Height,
			GotWidth: rec.Width, GotHeight: rec.Height, GotBits: bits,
		}
	}

	n := len(decoded)
	d.quant = grow16s(d.quant, n)
	d.rhat = grow16s(d.rhat, n)

	// Q is rebuilt from the record's float, which is itself QFixed/2^fp,
	// so the fixed-point integer comes back exactly.
	qp := residual.NewQuantParams(rec.DeadZoneT, rec.QuantQ, rec.FPBits)

	residual.Unbias(decoded, d.quant)
	residual.Dequantize(d.quant, d.rhat, qp)
	rebuilt := make([]uint16, n)
	residual.Reconstruct(d.rhat, d.reference, rebuilt)

	d.reference = rebuilt
	d.refWidth = rec.Width
	d.refHeight = rec.Height
	return d.emit(rec), nil
}

// emit copies the reference into a caller-owned frame.
func (d *Decoder) emit(rec *Record) *Frame {
	out := make([]uint16, len(d.reference))
	copy(out, d.reference)
	return &Frame{
		Width:     rec.Width,
		Height:    rec.Height,
		Timestamp: rec.Timestamp,
		Index:     rec.Index,
		Samples:   out,
	}
}
