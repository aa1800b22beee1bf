// Package cloud selects the cloud-free pixels of a station mask using the
// Himawari L2 cloud property product.
package cloud

import (
	"github.com/pkg/errors"

	"github.com/rtm0/aodmatch/internal/grid"
)

// TypeField is the cloud-type classification variable.
const TypeField = "CLTYPE"

// Clear is the cloud type of a cloud-free pixel.
const Clear = 0

// Field is a cloud product: its own coordinate axes plus pixel access.
type Field interface {
	grid.Sampler
	Grid() grid.Grid
}

// Filter resamples the cloud type onto each pixel's coordinates by nearest
// neighbour on the cloud product's axes and reports which pixels are clear.
// Pixels outside the product's coverage, or with a missing classification,
// are not clear.
func Filter(f Field, pixels []grid.Pixel) ([]bool, error) {
	axes := f.Grid()
	keep := make([]bool, len(pixels))
	var idx []grid.Index
	var at []int
	for i, p := range pixels {
		r, ok := grid.Nearest(axes.Lat, p.Lat)
		if !ok {
			continue
		}
		c, ok := grid.Nearest(axes.Lon, p.Lon)
		if !ok {
			continue
		}
		idx = append(idx, grid.Index{Row: r, Col: c})
		at = append(at, i)
	}
	if len(idx) == 0 {
		return keep, nil
	}
	types, err := f.Sample(TypeField, idx)
	if err != nil {
		return nil, errors.Wrap(err, "cloud type")
	}
	for k, v := range types {
		if v == Clear {
			keep[at[k]] = true
		}
	}
	return keep, nil
}

// Select returns the pixels whose keep flag is set.
func Select(pixels []grid.Pixel, keep []bool) []grid.Pixel {
	var out []grid.Pixel
	for i, p := range pixels {
		if i < len(keep) && keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of set flags.
func Count(keep []bool) int {
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	return n
}
