// Package region groups foreground mask pixels into connected blobs.
package region

import (
	"sort"

	"scarecrow/internal/background"
)

// Region is one connected foreground blob. The bounding box is inclusive of
// MinX/MinY and exclusive of MaxX/MaxY.
type Region struct {
	MinX int `json:"minX"`
	MinY int `json:"minY"`
	MaxX int `json:"maxX"`
	MaxY int `json:"maxY"`
	// Area is the number of foreground pixels in the blob, not the
	// bounding box area.
	Area int `json:"area"`
}

// Width returns the bounding box width.
func (r Region) Width() int { return r.MaxX - r.MinX }

// Height returns the bounding box height.
func (r Region) Height() int { return r.MaxY - r.MinY }

// Extract finds all 8-connected foreground blobs with at least minArea
// pixels, largest first. Blobs touching diagonally merge into one region.
func Extract(mask *background.Mask, minArea int) []Region {
	if mask == nil || len(mask.Bits) == 0 {
		return nil
	}

	w, h := mask.Width, mask.Height
	visited := make([]bool, w*h)
	stack := make([]int, 0, 256)
	var regions []Region

	for start, bit := range mask.Bits {
		if bit == 0 || visited[start] {
			continue
		}

		r := Region{MinX: w, MinY: h}
		stack = append(stack[:0], start)
		visited[start] = true

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w

			r.Area++
			if x < r.MinX {
				r.MinX = x
			}
			if y < r.MinY {
				r.MinY = y
			}
			if x+1 > r.MaxX {
				r.MaxX = x + 1
			}
			if y+1 > r.MaxY {
				r.MaxY = y + 1
			}

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					nidx := ny*w + nx
					if mask.Bits[nidx] != 0 && !visited[nidx] {
						visited[nidx] = true
						stack = append(stack, nidx)
					}
				}
			}
		}

		if r.Area >= minArea {
			regions = append(regions, r)
		}
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Area > regions[j].Area
	})
	return regions
}

// TotalArea sums the pixel areas of the given regions.
func TotalArea(regions []Region) int {
	total := 0
	for _, r := range regions {
		total += r.Area
	}
	return total
}
