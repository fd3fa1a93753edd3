package pipeline

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"lwir-compressor/internal/codec"
)

// LoadPNG reads a 16-bit grayscale PNG into a frame. Any other color
// model or bit depth is rejected; LWIR captures are stored as Gray16.
func LoadPNG(path string) (*codec.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	gray, ok := img.(*image.Gray16)
	if !ok {
		return nil, fmt.Errorf("%s: PNG must be 16-bit grayscale", path)
	}

	bounds := gray.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	frame := codec.NewFrame(uint32(width), uint32(height))

	// Gray16 stores big-endian sample bytes.
	for y := 0; y < height; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < width; x++ {
			frame.Samples[y*width+x] = uint16(row[2*x])<<8 | uint16(row[2*x+1])
		}
	}
	return frame, nil
}

// WritePNG writes a frame as a 16-bit grayscale PNG.
func WritePNG(path string, frame *codec.Frame) error {
	width := int(frame.Width)
	height := int(frame.Height)
	gray := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < width; x++ {
			s := frame.Samples[y*width+x]
			row[2*x] = byte(s >> 8)
			row[2*x+1] = byte(s)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, gray); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
