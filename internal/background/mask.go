package background

// Mask is a binary foreground mask. Bits holds one byte per pixel, 1 for
// foreground and 0 for background.
type Mask struct {
	Width  int
	Height int
	Bits   []uint8
}

// NewMask allocates an all-background mask.
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Bits:   make([]uint8, width*height),
	}
}

// At returns whether the pixel at (x, y) is foreground.
func (m *Mask) At(x, y int) bool {
	return m.Bits[y*m.Width+x] != 0
}

// Count returns the number of foreground pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b != 0 {
			n++
		}
	}
	return n
}

// Denoise applies a morphological open with a 3x3 neighborhood, an erosion
// followed by a dilation. Isolated speckles vanish while larger regions keep
// their extent.
func (m *Mask) Denoise() *Mask {
	eroded := m.morph(true)
	return eroded.morph(false)
}

// morph erodes (erode=true) or dilates the mask with a 3x3 kernel. Pixels
// outside the frame count as background.
func (m *Mask) morph(erode bool) *Mask {
	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if erode {
				out.Bits[y*m.Width+x] = m.erodeAt(x, y)
			} else {
				out.Bits[y*m.Width+x] = m.dilateAt(x, y)
			}
		}
	}
	return out
}

func (m *Mask) erodeAt(x, y int) uint8 {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= m.Width || ny < 0 || ny >= m.Height {
				return 0
			}
			if m.Bits[ny*m.Width+nx] == 0 {
				return 0
			}
		}
	}
	return 1
}

func (m *Mask) dilateAt(x, y int) uint8 {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= m.Width || ny < 0 || ny >= m.Height {
				continue
			}
			if m.Bits[ny*m.Width+nx] != 0 {
				return 1
			}
		}
	}
	return 0
}
