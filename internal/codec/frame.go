// Package codec implements the closed-loop frame codec: keyframe and
// residual encoding against a reconstructed reference frame, the
// compressed frame record and its serialized layout, and the adapter
// over the JPEG-LS symbol codec.
package codec

// Frame is a single 16-bit grayscale LWIR frame.
type Frame struct {
	Width     uint32
	Height    uint32
	Timestamp uint64
	Index     uint32
	Samples   []uint16
}

// NewFrame allocates a zeroed frame of the given dimensions.
func NewFrame(width, height uint32) *Frame {
	return &Frame{
		Width:   width,
		Height:  height,
		Samples: make([]uint16, int(width)*int(height)),
	}
}

// PixelCount returns Width * Height.
func (f *Frame) PixelCount() int {
	return int(f.Width) * int(f.Height)
}

// Valid reports whether the frame has positive dimensions and a sample
// buffer of exactly Width*Height entries.
func (f *Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Samples) == f.PixelCount()
}
