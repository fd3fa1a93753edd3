package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Record is a compressed frame together with the metadata required to
// decode it. The serialized layout is little-endian throughout:
//
//	offset size field
//	0      4    width
//	4      4    height
//	8      8    timestamp
//	16     4    frame index
//	20     1    keyframe flag
//	21     4    near lossless
//	25     8    quantization step Q (float64; 0.0 on intra)
//	33     4    dead-zone T (0 on intra)
//	37     4    fixed-point bits (0 on intra)
//	41     1    range map used
//	42     2    range min
//	44     2    range max
//	46     4    compressed size N
//	50     N    opaque codec bytes
//
// QuantQ is always the reconstructed fixed-point value QFixed / 2^fp,
// never the step the user configured, so re-deriving QFixed from the
// record rounds identically on every decoder.
type Record struct {
	Width       uint32
	Height      uint32
	Timestamp   uint64
	Index       uint32
	Keyframe    bool
	Near        uint32
	QuantQ      float64
	DeadZoneT   uint32
	FPBits      uint32
	UseRangeMap bool
	RangeMin    uint16
	RangeMax    uint16
	Data        []byte
}

// HeaderSize is the fixed size of the serialized record header.
const HeaderSize = 50

// WriteTo serializes the record.
func (r *Record) WriteTo(w io.Writer) (int64, error) {
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], r.Width)
	binary.LittleEndian.PutUint32(hdr[4:], r.Height)
	binary.LittleEndian.PutUint64(hdr[8:], r.Timestamp)
	binary.LittleEndian.PutUint32(hdr[16:], r.Index)
	if r.Keyframe {
		hdr[20] = 1
	}
	binary.LittleEndian.PutUint32(hdr[21:], r.Near)
	binary.LittleEndian.PutUint64(hdr[25:], math.Float64bits(r.QuantQ))
	binary.LittleEndian.PutUint32(hdr[33:], r.DeadZoneT)
	binary.LittleEndian.PutUint32(hdr[37:], r.FPBits)
	if r.UseRangeMap {
		hdr[41] = 1
	}
	binary.LittleEndian.PutUint16(hdr[42:], r.RangeMin)
	binary.LittleEndian.PutUint16(hdr[44:], r.RangeMax)
	binary.LittleEndian.PutUint32(hdr[46:], uint32(len(r.Data)))

	n, err := w.Write(hdr[:])
	written := int64(n)
	if err != nil {
		return written, fmt.Errorf("write record header: %w", err)
	}
	n, err = w.Write(r.Data)
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("write record data: %w", err)
	}
	return written, nil
}

// ReadRecord deserializes one record. io.EOF is returned unwrapped when
// the reader is exhausted before the first header byte, so callers can
// detect a clean end of stream.
func ReadRecord(r io.Reader) (*Record, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read record header: %w", err)
	}
	if _, err := io.ReadFull(r, hdr[1:]); err != nil {
		return nil, fmt.Errorf("read record header: %w", err)
	}

	rec := &Record{
		Width:       binary.LittleEndian.Uint32(hdr[0:]),
		Height:      binary.LittleEndian.Uint32(hdr[4:]),
		Timestamp:   binary.LittleEndian.Uint64(hdr[8:]),
		Index:       binary.LittleEndian.Uint32(hdr[16:]),
		Keyframe:    hdr[20] != 0,
		Near:        binary.LittleEndian.Uint32(hdr[21:]),
		QuantQ:      math.Float64frombits(binary.LittleEndian.Uint64(hdr[25:])),
		DeadZoneT:   binary.LittleEndian.Uint32(hdr[33:]),
		FPBits:      binary.LittleEndian.Uint32(hdr[37:]),
		UseRangeMap: hdr[41] != 0,
		RangeMin:    binary.LittleEndian.Uint16(hdr[42:]),
		RangeMax:    binary.LittleEndian.Uint16(hdr[44:]),
	}

	if rec.Width == 0 || rec.Height == 0 {
		return nil, fmt.Errorf("record %d: invalid dimensions %dx%d", rec.Index, rec.Width, rec.Height)
	}
	size := binary.LittleEndian.Uint32(hdr[46:])
	rec.Data = make([]byte, size)
	if _, err := io.ReadFull(r, rec.Data); err != nil {
		return nil, fmt.Errorf("read record data (%d bytes): %w", size, err)
	}
	return rec, nil
}
