package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"lwir-compressor/internal/residual"
)

func testFrame(width, height uint32, index uint32, fill func(x, y int) uint16) *Frame {
	f := NewFrame(width, height)
	f.Index = index
	f.Timestamp = uint64(index) * 40000
	for y := 0; y < int(height); y++ {
		for x := 0; x < int(width); x++ {
			f.Samples[y*int(width)+x] = fill(x, y)
		}
	}
	return f
}

func defaultQuant() residual.QuantParams {
	return residual.NewQuantParams(2, 2.0, 8)
}

func TestIntraLosslessReference(t *testing.T) {
	enc := NewEncoder()
	f := testFrame(8, 6, 0, func(x, y int) uint16 { return uint16(30000 + x*13 + y*7) })

	rec, err := enc.EncodeIntra(f, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Keyframe {
		t.Error("intra record must set the keyframe flag")
	}
	if rec.QuantQ != 0 || rec.DeadZoneT != 0 || rec.FPBits != 0 {
		t.Error("intra record must zero the quantization triple")
	}
	ref := enc.Reference()
	for i := range f.Samples {
		if ref[i] != f.Samples[i] {
			t.Fatalf("NEAR=0 reference[%d] = %d, want %d", i, ref[i], f.Samples[i])
		}
	}
}

func TestIntraRangeMapMetadata(t *testing.T) {
	enc := NewEncoder()
	// Samples span [29134, 34436]: range 5302 < 32768, mapping is beneficial.
	f := testFrame(16, 8, 0, func(x, y int) uint16 {
		return uint16(29134 + (x+y*16)*5302/127)
	})

	rec, err := enc.EncodeIntra(f, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.UseRangeMap {
		t.Fatal("expected range mapping to be used")
	}
	if rec.RangeMin != 29134 || rec.RangeMax != 34436 {
		t.Errorf("range = [%d, %d], want [29134, 34436]", rec.RangeMin, rec.RangeMax)
	}

	// The reference absorbs the mapping error but stays within bound.
	bound := (int(rec.RangeMax-rec.RangeMin) + 4094) / 4095
	ref := enc.Reference()
	for i := range f.Samples {
		diff := int(ref[i]) - int(f.Samples[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > bound {
			t.Fatalf("reference[%d] error %d exceeds range-map bound %d", i, diff, bound)
		}
	}
}

func TestIntraWideRangeSkipsMapping(t *testing.T) {
	enc := NewEncoder()
	f := testFrame(8, 8, 0, func(x, y int) uint16 {
		if x == 0 && y == 0 {
			return 0
		}
		return 65535
	})
	rec, err := enc.EncodeIntra(f, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if rec.UseRangeMap {
		t.Error("range 65535 must not be mapped")
	}
}

func TestResidualRequiresReference(t *testing.T) {
	enc := NewEncoder()
	f := testFrame(4, 4, 0, func(x, y int) uint16 { return 100 })
	_, err := enc.EncodeResidual(f, 0, defaultQuant())
	if !errors.Is(err, ErrNoReference) {
		t.Errorf("err = %v, want ErrNoReference", err)
	}
}

func TestResidualDimensionMismatch(t *testing.T) {
	enc := NewEncoder()
	f := testFrame(4, 4, 0, func(x, y int) uint16 { return 100 })
	if _, err := enc.EncodeIntra(f, 0, false); err != nil {
		t.Fatal(err)
	}
	g := testFrame(8, 4, 1, func(x, y int) uint16 { return 100 })
	_, err := enc.EncodeResidual(g, 0, defaultQuant())
	var dm *DimensionMismatchError
	if !errors.As(err, &dm) {
		t.Errorf("err = %v, want DimensionMismatchError", err)
	}
}

func TestResidualConstantSequence(t *testing.T) {
	// Two identical frames: the residual record is small and the
	// reconstruction is exact.
	enc := NewEncoder()
	fill := func(x, y int) uint16 { return 1000 }
	f0 := testFrame(4, 2, 0, fill)
	f1 := testFrame(4, 2, 1, fill)

	intraRec, err := enc.EncodeIntra(f0, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	resRec, err := enc.EncodeResidual(f1, 0, defaultQuant())
	if err != nil {
		t.Fatal(err)
	}
	if resRec.Keyframe {
		t.Error("residual record must not set the keyframe flag")
	}
	if len(resRec.Data) >= len(intraRec.Data) {
		t.Errorf("all-zero residual (%d bytes) should beat the keyframe (%d bytes)",
			len(resRec.Data), len(intraRec.Data))
	}
	ref := enc.Reference()
	for i := range f1.Samples {
		if ref[i] != f1.Samples[i] {
			t.Fatalf("reference[%d] = %d, want %d", i, ref[i], f1.Samples[i])
		}
	}
}

func TestResidualSinglePixelChange(t *testing.T) {
	// +5 at one pixel with Q=2, T=2, fp=8 survives quantization exactly.
	enc := NewEncoder()
	f0 := testFrame(4, 2, 0, func(x, y int) uint16 { return 1000 })
	if _, err := enc.EncodeIntra(f0, 0, false); err != nil {
		t.Fatal(err)
	}
	f1 := testFrame(4, 2, 1, func(x, y int) uint16 {
		if x == 0 && y == 0 {
			return 1005
		}
		return 1000
	})
	if _, err := enc.EncodeResidual(f1, 0, defaultQuant()); err != nil {
		t.Fatal(err)
	}
	ref := enc.Reference()
	for i := range f1.Samples {
		if ref[i] != f1.Samples[i] {
			t.Fatalf("reference[%d] = %d, want %d", i, ref[i], f1.Samples[i])
		}
	}
}

func TestResidualDeadZoneDiscards(t *testing.T) {
	// A +2 change with T=2 lands inside the dead-zone: the reconstruction
	// keeps the previous value.
	enc := NewEncoder()
	f0 := testFrame(4, 2, 0, func(x, y int) uint16 { return 1000 })
	if _, err := enc.EncodeIntra(f0, 0, false); err != nil {
		t.Fatal(err)
	}
	f1 := testFrame(4, 2, 1, func(x, y int) uint16 {
		if x == 1 && y == 1 {
			return 1002
		}
		return 1000
	})
	if _, err := enc.EncodeResidual(f1, 0, defaultQuant()); err != nil {
		t.Fatal(err)
	}
	for i, v := range enc.Reference() {
		if v != 1000 {
			t.Fatalf("reference[%d] = %d, want 1000 (dead-zone discards)", i, v)
		}
	}
}

func TestResidualOverflowIsFatal(t *testing.T) {
	enc := NewEncoder()
	f0 := testFrame(4, 2, 0, func(x, y int) uint16 { return 0 })
	if _, err := enc.EncodeIntra(f0, 0, false); err != nil {
		t.Fatal(err)
	}
	f1 := testFrame(4, 2, 1, func(x, y int) uint16 { return 20000 })
	qp := residual.QuantParams{DeadZoneT: 0, QFixed: 1, FPBits: 8} // Q = 1/256
	_, err := enc.EncodeResidual(f1, 0, qp)
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("err = %v, want ErrOverflow", err)
	}
}

// encodeSequence runs frames through the encoder with a fixed I/R
// pattern and returns the emitted records.
func encodeSequence(t *testing.T, enc *Encoder, frames []*Frame, keyEvery int, keyNear, resNear uint32, qp residual.QuantParams, enable12 bool) []*Record {
	t.Helper()
	var recs []*Record
	for i, f := range frames {
		key := i%keyEvery == 0
		rec, err := enc.Encode(f, key, keyNear, resNear, qp, enable12)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		recs = append(recs, rec)
	}
	return recs
}

func makeSequence(n int, width, height uint32) []*Frame {
	frames := make([]*Frame, n)
	for i := range frames {
		idx := i
		frames[i] = testFrame(width, height, uint32(i), func(x, y int) uint16 {
			// Slow global drift plus a moving hot spot.
			v := 30000 + x*3 + y*2 + idx*4
			if x == (idx*2)%int(width) && y == idx%int(height) {
				v += 400
			}
			return uint16(v)
		})
	}
	return frames
}

func TestClosedLoopAgreementLossless(t *testing.T) {
	frames := makeSequence(12, 16, 12)
	enc := NewEncoder()
	dec := NewDecoder()
	qp := defaultQuant()

	for i, f := range frames {
		key := i%4 == 0
		rec, err := enc.Encode(f, key, 0, 0, qp, true)
		if err != nil {
			t.Fatalf("encode frame %d: %v", i, err)
		}
		out, err := dec.Decode(rec)
		if err != nil {
			t.Fatalf("decode frame %d: %v", i, err)
		}
		encRef := enc.Reference()
		decRef := dec.Reference()
		for j := range encRef {
			if encRef[j] != decRef[j] {
				t.Fatalf("frame %d: reference divergence at %d: enc=%d dec=%d",
					i, j, encRef[j], decRef[j])
			}
		}
		for j := range out.Samples {
			if out.Samples[j] != decRef[j] {
				t.Fatalf("frame %d: emitted frame differs from decoder reference", i)
			}
		}
	}
}

func TestClosedLoopAgreementNearLossless(t *testing.T) {
	frames := makeSequence(10, 12, 10)
	enc := NewEncoder()
	dec := NewDecoder()
	qp := residual.NewQuantParams(2, 1.5, 8)

	for i, f := range frames {
		key := i%5 == 0
		rec, err := enc.Encode(f, key, 2, 3, qp, true)
		if err != nil {
			t.Fatalf("encode frame %d: %v", i, err)
		}
		if _, err := dec.Decode(rec); err != nil {
			t.Fatalf("decode frame %d: %v", i, err)
		}
		encRef := enc.Reference()
		decRef := dec.Reference()
		for j := range encRef {
			if encRef[j] != decRef[j] {
				t.Fatalf("frame %d: NEAR>0 reference divergence at %d: enc=%d dec=%d",
					i, j, encRef[j], decRef[j])
			}
		}
	}
}

func TestClosedLoopThroughSerializedStream(t *testing.T) {
	// Serialize every record to one byte stream, then decode the stream
	// with a fresh decoder: the end-to-end path must agree too.
	frames := makeSequence(8, 10, 8)
	enc := NewEncoder()
	qp := defaultQuant()
	recs := encodeSequence(t, enc, frames, 4, 0, 0, qp, true)

	var stream bytes.Buffer
	for _, rec := range recs {
		if _, err := rec.WriteTo(&stream); err != nil {
			t.Fatal(err)
		}
	}

	dec := NewDecoder()
	for i := 0; ; i++ {
		rec, err := ReadRecord(&stream)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatalf("record %d: %v", i, err)
		}
		if _, err := dec.Decode(rec); err != nil {
			t.Fatalf("decode record %d: %v", i, err)
		}
	}
	encRef := enc.Reference()
	decRef := dec.Reference()
	for j := range encRef {
		if encRef[j] != decRef[j] {
			t.Fatalf("final reference divergence at %d", j)
		}
	}
}

func TestResetClearsReference(t *testing.T) {
	enc := NewEncoder()
	f := testFrame(4, 4, 0, func(x, y int) uint16 { return 500 })
	if _, err := enc.EncodeIntra(f, 0, false); err != nil {
		t.Fatal(err)
	}
	enc.Reset()
	if enc.HasReference() {
		t.Error("Reset must clear the reference")
	}
	if _, err := enc.EncodeResidual(f, 0, defaultQuant()); !errors.Is(err, ErrNoReference) {
		t.Errorf("err = %v, want ErrNoReference after Reset", err)
	}

	dec := NewDecoder()
	rec := &Record{Width: 4, Height: 4, QuantQ: 2, FPBits: 8}
	if _, err := dec.Decode(rec); !errors.Is(err, ErrNoReference) {
		t.Errorf("decoder err = %v, want ErrNoReference", err)
	}
}

func TestDecoderRejectsCorruptQuantMetadata(t *testing.T) {
	enc := NewEncoder()
	dec := NewDecoder()
	f0 := testFrame(4, 4, 0, func(x, y int) uint16 { return 500 })
	rec0, err := enc.EncodeIntra(f0, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.Decode(rec0); err != nil {
		t.Fatal(err)
	}
	f1 := testFrame(4, 4, 1, func(x, y int) uint16 { return 505 })
	rec1, err := enc.EncodeResidual(f1, 0, defaultQuant())
	if err != nil {
		t.Fatal(err)
	}
	rec1.FPBits = 40
	if _, err := dec.Decode(rec1); err == nil {
		t.Error("expected error for invalid fp_bits")
	}
}
