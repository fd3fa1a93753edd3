package jpegls

import "fmt"

type decoder struct {
	p      *Params
	cm     *ContextModel
	ng     *neighborGetter
	br     *bitReader
	width  int
	height int
}

// Decode parses a stream produced by Encode and returns the
// reconstructed samples plus the parsed header. For NEAR=0 the samples
// equal the encoder input exactly; for NEAR>0 each sample is within
// NEAR of it.
func Decode(data []byte) ([]uint16, Header, error) {
	hdr, offset, err := parseHeader(data)
	if err != nil {
		return nil, hdr, err
	}
	if hdr.Bits < 2 || hdr.Bits > 16 {
		return nil, hdr, fmt.Errorf("jpegls: unsupported bit depth %d in header", hdr.Bits)
	}
	if hdr.Width <= 0 || hdr.Height <= 0 {
		return nil, hdr, fmt.Errorf("jpegls: invalid dimensions %dx%d in header", hdr.Width, hdr.Height)
	}

	p := NewParams(hdr.Bits, hdr.Near)
	recon := make([]int, hdr.Width*hdr.Height)
	d := &decoder{
		p:      p,
		cm:     NewContextModel(p),
		ng:     newNeighborGetter(recon, hdr.Width, hdr.Height, (p.MaxVal+1)/2),
		br:     newBitReader(data[offset:]),
		width:  hdr.Width,
		height: hdr.Height,
	}
	if err := d.decodeScan(); err != nil {
		return nil, hdr, err
	}

	samples := make([]uint16, len(recon))
	for i, v := range recon {
		samples[i] = uint16(v)
	}
	return samples, hdr, nil
}

func (d *decoder) decodeScan() error {
	for y := 0; y < d.height; y++ {
		d.cm.ResetRunIndex()
		x := 0
		for x < d.width {
			a, b, c, dd := d.ng.neighbors(x, y)
			g1, g2, g3 := ComputeGradients(a, b, c, dd)
			if flatGradients(g1, g2, g3, d.p.Near) {
				consumed, err := d.decodeRun(x, y, a)
				if err != nil {
					return err
				}
				x += consumed
			} else {
				if err := d.decodeRegular(x, y, a, b, c, g1, g2, g3); err != nil {
					return err
				}
				x++
			}
		}
	}
	return nil
}

func (d *decoder) decodeRegular(x, y, a, b, c, g1, g2, g3 int) error {
	idx, sign := d.cm.ContextFromGradients(g1, g2, g3)
	ctx := d.cm.Context(idx)

	px := correctPrediction(Predict(a, b, c), ctx.C, sign, d.p.MaxVal)

	k := ctx.ComputeK(LimitK)
	mapped, err := decodeGolomb(d.br, k, d.p.Limit, d.p.Qbpp)
	if err != nil {
		return err
	}
	errval := UnmapErrval(mapped)
	ctx.Update(errval, d.p.Reset)

	d.ng.set(x, y, reconstructSample(px, errval, sign, d.p.Near, d.p.Range, d.p.MaxVal))
	return nil
}

// decodeRun mirrors encodeRun: full segments arrive as 1 bits, a 0 bit
// introduces a partial segment length followed by the interruption
// sample, and a run that reaches the end of the line stops without a
// terminator once the line is full.
func (d *decoder) decodeRun(x, y, a int) (int, error) {
	runVal := a
	pos := x
	for pos < d.width {
		bit, err := d.br.readBit()
		if err != nil {
			return 0, err
		}
		if bit == 1 {
			seg := 1 << JTable[d.cm.RunIndex()]
			if seg <= d.width-pos {
				for i := 0; i < seg; i++ {
					d.ng.set(pos+i, y, runVal)
				}
				pos += seg
				d.cm.IncrementRunIndex()
				continue
			}
			// Leftover shorter than a full segment ran to end of line.
			for pos < d.width {
				d.ng.set(pos, y, runVal)
				pos++
			}
			break
		}

		cnt, err := d.br.readBits(JTable[d.cm.RunIndex()])
		if err != nil {
			return 0, err
		}
		if cnt > d.width-pos-1 {
			return 0, fmt.Errorf("jpegls: run length %d overruns line at (%d, %d)", cnt, pos, y)
		}
		for i := 0; i < cnt; i++ {
			d.ng.set(pos+i, y, runVal)
		}
		pos += cnt
		if err := d.decodeRunInterruption(pos, y, runVal); err != nil {
			return 0, err
		}
		pos++
		break
	}
	return pos - x, nil
}

func (d *decoder) decodeRunInterruption(x, y, runVal int) error {
	ra := runVal
	rb := ra
	if y > 0 {
		rb = d.ng.get(x, y-1)
	}

	ctxIdx := 0
	if iabs(ra-rb) > d.p.Near {
		ctxIdx = 1
	}
	px := rb
	sign := 1
	if ra < rb {
		sign = -1
	}

	ctx := d.cm.RunContext(ctxIdx)
	k := ctx.ComputeK(LimitK)
	mapped, err := decodeGolomb(d.br, k, d.p.Limit, d.p.Qbpp)
	if err != nil {
		return err
	}
	errval := UnmapErrval(mapped)
	ctx.Update(errval, d.p.Reset)

	d.ng.set(x, y, reconstructSample(px, errval, sign, d.p.Near, d.p.Range, d.p.MaxVal))
	d.cm.DecrementRunIndex()
	return nil
}
