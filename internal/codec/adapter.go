package codec

import (
	"fmt"

	"lwir-compressor/internal/jpegls"
)

// SymbolCodec is the contract the frame codec holds over the entropy
// coder. Encode compresses unsigned samples at 12 or 16 bits with the
// given NEAR; Decode reverses it, verifying the embedded geometry and
// returning the stream's bit depth.
type SymbolCodec interface {
	Encode(samples []uint16, width, height uint32, bits, near int) ([]byte, error)
	Decode(data []byte, expectWidth, expectHeight uint32) ([]uint16, int, error)
}

// JPEGLS adapts the in-tree jpegls package to the SymbolCodec contract.
// It owns the sizing discipline: the destination is presized to the
// codec's estimate plus a 10% + 1 KiB safety margin and the returned
// slice holds only the bytes actually written.
type JPEGLS struct{}

// Encode compresses samples at the requested bit depth.
func (JPEGLS) Encode(samples []uint16, width, height uint32, bits, near int) ([]byte, error) {
	if bits != 12 && bits != 16 {
		return nil, &CodecFailureError{Op: "encode", Err: fmt.Errorf("bits per sample must be 12 or 16, got %d", bits)}
	}
	encoded, err := jpegls.Encode(samples, int(width), int(height), bits, near)
	if err != nil {
		return nil, &CodecFailureError{Op: "encode", Err: err}
	}
	estimate := jpegls.EstimatedSize(int(width), int(height), bits)
	dst := make([]byte, 0, estimate+estimate/10+1024)
	return append(dst, encoded...), nil
}

// Decode decompresses data, failing with HeaderMismatchError when the
// embedded dimensions or bit depth disagree with expectations.
func (JPEGLS) Decode(data []byte, expectWidth, expectHeight uint32) ([]uint16, int, error) {
	samples, hdr, err := jpegls.Decode(data)
	if err != nil {
		return nil, 0, &CodecFailureError{Op: "decode", Err: err}
	}
	if uint32(hdr.Width) != expectWidth || uint32(hdr.Height) != expectHeight ||
		(hdr.Bits != 12 && hdr.Bits != 16) {
		return nil, 0, &HeaderMismatchError{
			WantWidth:  expectWidth,
			WantHeight: expectHeight,
			GotWidth:   uint32(hdr.Width),
			GotHeight:  uint32(hdr.Height),
			GotBits:    hdr.Bits,
		}
	}
	return samples, hdr.Bits, nil
}
