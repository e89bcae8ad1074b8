package video

import (
	"fmt"
	"image"
	"time"

	"golang.org/x/image/draw"
)

// Frame is a single decoded grayscale frame. A frame is owned by whichever
// pipeline stage is currently processing it and is never mutated in place.
type Frame struct {
	Width     int
	Height    int
	Pix       []uint8 // row-major, one byte per pixel
	Timestamp time.Time
	Seq       uint64
}

// At returns the pixel value at (x, y).
func (f *Frame) At(x, y int) uint8 {
	return f.Pix[y*f.Width+x]
}

// NewFrame allocates a zeroed frame with the given dimensions.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// FromImage converts a decoded image into a grayscale Frame, downscaling to
// at most maxWidth pixels wide (aspect preserved). maxWidth <= 0 disables
// scaling. Nearest-neighbor keeps the conversion cheap at stream rate.
func FromImage(img image.Image, maxWidth int) (*Frame, error) {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", bounds.Dx(), bounds.Dy())
	}

	width := bounds.Dx()
	height := bounds.Dy()
	if maxWidth > 0 && width > maxWidth {
		height = height * maxWidth / width
		width = maxWidth
		if height <= 0 {
			return nil, fmt.Errorf("image too narrow to scale to width %d", maxWidth)
		}
	}

	gray := image.NewGray(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(gray, gray.Bounds(), img, bounds, draw.Src, nil)

	frame := &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
	if gray.Stride == width {
		copy(frame.Pix, gray.Pix)
	} else {
		for y := 0; y < height; y++ {
			copy(frame.Pix[y*width:(y+1)*width], gray.Pix[y*gray.Stride:y*gray.Stride+width])
		}
	}
	return frame, nil
}
