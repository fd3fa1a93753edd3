package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"
)

func sampleRecord() *Record {
	return &Record{
		Width:       640,
		Height:      512,
		Timestamp:   123456789,
		Index:       42,
		Keyframe:    false,
		Near:        10,
		QuantQ:      2.0,
		DeadZoneT:   2,
		FPBits:      8,
		UseRangeMap: false,
		RangeMin:    0,
		RangeMax:    65535,
		Data:        []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xFF},
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec := sampleRecord()
	var buf bytes.Buffer
	n, err := rec.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(HeaderSize+len(rec.Data)) {
		t.Errorf("wrote %d bytes, want %d", n, HeaderSize+len(rec.Data))
	}

	got, err := ReadRecord(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Width != rec.Width || got.Height != rec.Height ||
		got.Timestamp != rec.Timestamp || got.Index != rec.Index ||
		got.Keyframe != rec.Keyframe || got.Near != rec.Near ||
		got.QuantQ != rec.QuantQ || got.DeadZoneT != rec.DeadZoneT ||
		got.FPBits != rec.FPBits || got.UseRangeMap != rec.UseRangeMap ||
		got.RangeMin != rec.RangeMin || got.RangeMax != rec.RangeMax {
		t.Errorf("round trip mismatch: %+v vs %+v", got, rec)
	}
	if !bytes.Equal(got.Data, rec.Data) {
		t.Error("data mismatch after round trip")
	}
}

func TestRecordByteLayout(t *testing.T) {
	rec := sampleRecord()
	rec.Keyframe = true
	rec.UseRangeMap = true
	rec.RangeMin = 29134
	rec.RangeMax = 34436

	var buf bytes.Buffer
	if _, err := rec.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()

	if got := binary.LittleEndian.Uint32(b[0:]); got != 640 {
		t.Errorf("width at offset 0 = %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[4:]); got != 512 {
		t.Errorf("height at offset 4 = %d", got)
	}
	if got := binary.LittleEndian.Uint64(b[8:]); got != 123456789 {
		t.Errorf("timestamp at offset 8 = %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[16:]); got != 42 {
		t.Errorf("frame index at offset 16 = %d", got)
	}
	if b[20] != 1 {
		t.Errorf("keyframe flag at offset 20 = %d", b[20])
	}
	if got := binary.LittleEndian.Uint32(b[21:]); got != 10 {
		t.Errorf("near at offset 21 = %d", got)
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(b[25:])); got != 2.0 {
		t.Errorf("quant Q at offset 25 = %v", got)
	}
	if got := binary.LittleEndian.Uint32(b[33:]); got != 2 {
		t.Errorf("dead-zone T at offset 33 = %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[37:]); got != 8 {
		t.Errorf("fp bits at offset 37 = %d", got)
	}
	if b[41] != 1 {
		t.Errorf("use_range_map at offset 41 = %d", b[41])
	}
	if got := binary.LittleEndian.Uint16(b[42:]); got != 29134 {
		t.Errorf("range min at offset 42 = %d", got)
	}
	if got := binary.LittleEndian.Uint16(b[44:]); got != 34436 {
		t.Errorf("range max at offset 44 = %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[46:]); got != 5 {
		t.Errorf("compressed size at offset 46 = %d", got)
	}
	if !bytes.Equal(b[50:], rec.Data) {
		t.Error("payload at offset 50 mismatch")
	}
}

func TestReadRecordCleanEOF(t *testing.T) {
	var empty bytes.Buffer
	if _, err := ReadRecord(&empty); err != io.EOF {
		t.Errorf("err = %v, want io.EOF on empty stream", err)
	}
}

func TestReadRecordTruncated(t *testing.T) {
	rec := sampleRecord()
	var buf bytes.Buffer
	if _, err := rec.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()

	for _, cut := range []int{1, 10, HeaderSize - 1, HeaderSize + 2} {
		r := bytes.NewReader(b[:cut])
		if _, err := ReadRecord(r); err == nil || err == io.EOF {
			t.Errorf("cut at %d: err = %v, want truncation error", cut, err)
		}
	}
}

func TestReadRecordRejectsZeroDimensions(t *testing.T) {
	rec := sampleRecord()
	rec.Width = 0
	var buf bytes.Buffer
	if _, err := rec.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadRecord(&buf); err == nil {
		t.Error("expected error for zero width")
	}
}
