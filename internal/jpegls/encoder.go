package jpegls

import (
	"bytes"
	"fmt"
)

type encoder struct {
	p      *Params
	cm     *ContextModel
	ng     *neighborGetter
	bw     *bitWriter
	width  int
	height int
}

// Encode compresses width*height samples in row-major order at the
// given bit depth (2..16) and NEAR value. Samples must fit in the bit
// depth. The returned stream is framed SOI/SOF55/SOS .. EOI.
func Encode(samples []uint16, width, height, bits, near int) ([]byte, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("jpegls: invalid dimensions %dx%d", width, height)
	}
	if bits < 2 || bits > 16 {
		return nil, fmt.Errorf("jpegls: unsupported bit depth %d", bits)
	}
	if near < 0 || near > MaxNear {
		return nil, fmt.Errorf("jpegls: NEAR %d out of range [0, %d]", near, MaxNear)
	}
	if len(samples) != width*height {
		return nil, fmt.Errorf("jpegls: sample count %d, want %d", len(samples), width*height)
	}

	p := NewParams(bits, near)
	recon := make([]int, len(samples))
	for i, s := range samples {
		if int(s) > p.MaxVal {
			return nil, fmt.Errorf("jpegls: sample %d at index %d exceeds %d-bit range", s, i, bits)
		}
		recon[i] = int(s)
	}

	var buf bytes.Buffer
	buf.Grow(EstimatedSize(width, height, bits))
	writeSOI(&buf)
	writeSOF55(&buf, width, height, bits)
	writeSOS(&buf, near)

	e := &encoder{
		p:      p,
		cm:     NewContextModel(p),
		ng:     newNeighborGetter(recon, width, height, (p.MaxVal+1)/2),
		bw:     newBitWriter(&buf),
		width:  width,
		height: height,
	}
	e.encodeScan()
	e.bw.flush()
	writeEOI(&buf)

	return buf.Bytes(), nil
}

func (e *encoder) encodeScan() {
	for y := 0; y < e.height; y++ {
		e.cm.ResetRunIndex()
		x := 0
		for x < e.width {
			a, b, c, d := e.ng.neighbors(x, y)
			g1, g2, g3 := ComputeGradients(a, b, c, d)
			if flatGradients(g1, g2, g3, e.p.Near) {
				x += e.encodeRun(x, y, a)
			} else {
				e.encodeRegular(x, y, a, b, c, g1, g2, g3)
				x++
			}
		}
	}
}

// flatGradients reports whether the causal template is flat enough to
// enter run mode (every gradient within ±NEAR).
func flatGradients(g1, g2, g3, near int) bool {
	return iabs(g1) <= near && iabs(g2) <= near && iabs(g3) <= near
}

func (e *encoder) encodeRegular(x, y, a, b, c, g1, g2, g3 int) {
	actual := e.ng.get(x, y)
	idx, sign := e.cm.ContextFromGradients(g1, g2, g3)
	ctx := e.cm.Context(idx)

	px := correctPrediction(Predict(a, b, c), ctx.C, sign, e.p.MaxVal)

	errval := (actual - px) * sign
	errval = quantizeErrval(errval, e.p.Near)
	errval = reduceErrval(errval, e.p.Range)

	k := ctx.ComputeK(LimitK)
	encodeGolomb(e.bw, MapErrval(errval), k, e.p.Limit, e.p.Qbpp)
	ctx.Update(errval, e.p.Reset)

	e.ng.set(x, y, reconstructSample(px, errval, sign, e.p.Near, e.p.Range, e.p.MaxVal))
}

// encodeRun emits a run of samples matching the reference value a, plus
// the interrupting sample when the run ends before the line does.
// Returns the number of samples consumed. Matched samples reconstruct
// to the reference value, which the decoder reproduces by filling.
func (e *encoder) encodeRun(x, y, a int) int {
	runVal := a
	count := 0
	for x+count < e.width {
		v := e.ng.get(x+count, y)
		if iabs(v-runVal) > e.p.Near {
			break
		}
		e.ng.set(x+count, y, runVal)
		count++
	}

	cnt := count
	for cnt >= 1<<JTable[e.cm.RunIndex()] {
		e.bw.writeBit(1)
		cnt -= 1 << JTable[e.cm.RunIndex()]
		e.cm.IncrementRunIndex()
	}

	if x+count < e.width {
		// Interrupted by a mismatching sample: partial segment length,
		// then the interruption sample itself.
		e.bw.writeBit(0)
		e.bw.writeBits(cnt, JTable[e.cm.RunIndex()])
		e.encodeRunInterruption(x+count, y, runVal)
		return count + 1
	}

	// Run reached the end of the line; a lone 1 flags the leftover.
	if cnt > 0 {
		e.bw.writeBit(1)
	}
	return count
}

func (e *encoder) encodeRunInterruption(x, y, runVal int) {
	ra := runVal
	rb := ra
	if y > 0 {
		rb = e.ng.get(x, y-1)
	}

	ctxIdx := 0
	if iabs(ra-rb) > e.p.Near {
		ctxIdx = 1
	}
	px := rb
	sign := 1
	if ra < rb {
		sign = -1
	}

	actual := e.ng.get(x, y)
	errval := (actual - px) * sign
	errval = quantizeErrval(errval, e.p.Near)
	errval = reduceErrval(errval, e.p.Range)

	ctx := e.cm.RunContext(ctxIdx)
	k := ctx.ComputeK(LimitK)
	encodeGolomb(e.bw, MapErrval(errval), k, e.p.Limit, e.p.Qbpp)
	ctx.Update(errval, e.p.Reset)

	e.ng.set(x, y, reconstructSample(px, errval, sign, e.p.Near, e.p.Range, e.p.MaxVal))
	e.cm.DecrementRunIndex()
}

func iabs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
