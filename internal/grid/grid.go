// Package grid describes regular latitude/longitude grids and the pixels
// selected from them.
package grid

import (
	"math"
	"sort"
)

// EarthRadiusKm is the radius of the spherical earth used for distances.
const EarthRadiusKm = 6371.0

// Grid is a rectilinear grid given by its coordinate axes. Cell (row, col)
// is centred at (Lat[row], Lon[col]).
type Grid struct {
	Lat []float64
	Lon []float64
}

// Shape returns the number of rows and columns.
func (g Grid) Shape() (int, int) {
	return len(g.Lat), len(g.Lon)
}

// Index addresses one grid cell.
type Index struct {
	Row int
	Col int
}

// Pixel is a grid cell together with its coordinates.
type Pixel struct {
	Index
	Lat float64
	Lon float64
}

// Sampler reads named per-pixel fields of a gridded product.
type Sampler interface {
	// Sample returns the physical value of field at every index, in order.
	// Missing values are NaN.
	Sample(field string, idx []Index) ([]float64, error)
}

// Indices returns the grid indices of pixels.
func Indices(pixels []Pixel) []Index {
	idx := make([]Index, len(pixels))
	for i, p := range pixels {
		idx[i] = p.Index
	}
	return idx
}

// Haversine returns the great-circle distance in kilometres between two
// points given in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := phi2 - phi1
	dLambda := radians(lon2 - lon1)
	a := math.Pow(math.Sin(dPhi/2), 2) + math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(dLambda/2), 2)
	return EarthRadiusKm * 2 * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Nearest returns the index of the axis value closest to v. The axis must be
// monotonic (ascending or descending). ok is false when v lies outside the
// axis range or the axis is empty.
func Nearest(axis []float64, v float64) (i int, ok bool) {
	n := len(axis)
	if n == 0 || math.IsNaN(v) {
		return 0, false
	}
	lo, hi := axis[0], axis[n-1]
	desc := lo > hi
	if desc {
		lo, hi = hi, lo
	}
	if v < lo || v > hi {
		return 0, false
	}
	// First position whose value is at or past v in axis order.
	j := sort.Search(n, func(k int) bool {
		if desc {
			return axis[k] <= v
		}
		return axis[k] >= v
	})
	switch {
	case j == 0:
		return 0, true
	case j == n:
		return n - 1, true
	}
	if math.Abs(axis[j]-v) < math.Abs(v-axis[j-1]) {
		return j, true
	}
	return j - 1, true
}
