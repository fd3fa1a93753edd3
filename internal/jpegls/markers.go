package jpegls

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// JPEG-LS marker codes.
const (
	markerSOI   = 0xD8 // start of image
	markerEOI   = 0xD9 // end of image
	markerSOF55 = 0xF7 // start of frame, JPEG-LS
	markerSOS   = 0xDA // start of scan
	markerLSE   = 0xF8 // preset parameters
	markerCOM   = 0xFE // comment
)

// Header carries the frame and scan parameters parsed from a JPEG-LS
// stream, as needed by the closed-loop pipeline.
type Header struct {
	Width  int
	Height int
	Bits   int
	Near   int
}

func writeSOI(buf *bytes.Buffer) {
	buf.Write([]byte{0xFF, markerSOI})
}

func writeEOI(buf *bytes.Buffer) {
	buf.Write([]byte{0xFF, markerEOI})
}

// writeSOF55 writes the JPEG-LS start of frame segment for a single
// component: length, precision P, height Y, width X, Nf=1, and one
// component entry (id 1, sampling 1:1, no quantization table).
func writeSOF55(buf *bytes.Buffer, width, height, bits int) {
	buf.Write([]byte{0xFF, markerSOF55})
	binary.Write(buf, binary.BigEndian, uint16(8+3))
	buf.WriteByte(byte(bits))
	binary.Write(buf, binary.BigEndian, uint16(height))
	binary.Write(buf, binary.BigEndian, uint16(width))
	buf.WriteByte(1)    // Nf
	buf.WriteByte(1)    // component id
	buf.WriteByte(0x11) // sampling factors
	buf.WriteByte(0)    // quantization table selector
}

// writeSOS writes the start of scan segment: one component, NEAR, plane
// interleave mode 0 and point transform 0.
func writeSOS(buf *bytes.Buffer, near int) {
	buf.Write([]byte{0xFF, markerSOS})
	binary.Write(buf, binary.BigEndian, uint16(6+2))
	buf.WriteByte(1) // Ns
	buf.WriteByte(1) // component selector
	buf.WriteByte(0) // table selectors
	buf.WriteByte(byte(near))
	buf.WriteByte(0) // ILV
	buf.WriteByte(0) // Pt
}

// parseHeader walks the marker segments up to and including SOS and
// returns the parsed header plus the offset where entropy-coded data
// begins.
func parseHeader(data []byte) (Header, int, error) {
	var hdr Header
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return hdr, 0, fmt.Errorf("jpegls: missing SOI marker")
	}

	pos := 2
	sawSOF := false
	for {
		if pos+4 > len(data) {
			return hdr, 0, fmt.Errorf("jpegls: truncated marker segment at offset %d", pos)
		}
		if data[pos] != 0xFF {
			return hdr, 0, fmt.Errorf("jpegls: expected marker at offset %d, found 0x%02X", pos, data[pos])
		}
		marker := data[pos+1]
		length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		if pos+2+length > len(data) {
			return hdr, 0, fmt.Errorf("jpegls: marker 0x%02X segment overruns data", marker)
		}

		switch marker {
		case markerSOF55:
			if length < 11 {
				return hdr, 0, fmt.Errorf("jpegls: SOF55 segment too short")
			}
			hdr.Bits = int(data[pos+4])
			hdr.Height = int(binary.BigEndian.Uint16(data[pos+5 : pos+7]))
			hdr.Width = int(binary.BigEndian.Uint16(data[pos+7 : pos+9]))
			if nf := int(data[pos+9]); nf != 1 {
				return hdr, 0, fmt.Errorf("jpegls: %d components, want 1", nf)
			}
			sawSOF = true
			pos += 2 + length

		case markerSOS:
			if !sawSOF {
				return hdr, 0, fmt.Errorf("jpegls: SOS before SOF55")
			}
			ns := int(data[pos+4])
			if ns != 1 {
				return hdr, 0, fmt.Errorf("jpegls: scan with %d components, want 1", ns)
			}
			nearOff := pos + 5 + 2*ns
			if nearOff+2 >= pos+2+length {
				return hdr, 0, fmt.Errorf("jpegls: SOS segment too short")
			}
			hdr.Near = int(data[nearOff])
			return hdr, pos + 2 + length, nil

		case markerLSE, markerCOM:
			pos += 2 + length

		default:
			// Application segments are tolerated, anything else is not.
			if marker >= 0xE0 && marker <= 0xEF {
				pos += 2 + length
				continue
			}
			return hdr, 0, fmt.Errorf("jpegls: unexpected marker 0x%02X", marker)
		}
	}
}
