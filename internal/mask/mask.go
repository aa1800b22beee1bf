// Package mask precomputes, for every ground station, the grid pixels that lie
// within a fixed great-circle distance of it.
package mask

import (
	"log/slog"
	"math"

	"github.com/rtm0/aodmatch/internal/grid"
	"github.com/rtm0/aodmatch/internal/station"
)

// DefaultThresholdKm is the radius around a station within which pixels are
// kept.
const DefaultThresholdKm = 2.0

// Index maps station names to their nearby pixels for one grid geometry.
// Stations without any pixel inside the radius have no entry.
type Index struct {
	Rows        int
	Cols        int
	ThresholdKm float64

	order []string
	masks map[string][]grid.Pixel
}

// Compute builds the index by measuring the haversine distance from every
// station to every grid cell. Pixels are listed in row-major order.
func Compute(logger *slog.Logger, stations *station.Set, g grid.Grid, thresholdKm float64) *Index {
	rows, cols := g.Shape()
	idx := &Index{
		Rows:        rows,
		Cols:        cols,
		ThresholdKm: thresholdKm,
		masks:       make(map[string][]grid.Pixel),
	}
	// Great-circle distance is never shorter than the meridional distance, so
	// rows further than this in latitude cannot qualify.
	maxDLat := thresholdKm / grid.EarthRadiusKm * 180 / math.Pi * (1 + 1e-9)

	for _, st := range stations.All() {
		var pixels []grid.Pixel
		for r, lat := range g.Lat {
			if math.Abs(lat-st.Lat) > maxDLat {
				continue
			}
			for c, lon := range g.Lon {
				if grid.Haversine(st.Lat, st.Lon, lat, lon) <= thresholdKm {
					pixels = append(pixels, grid.Pixel{Index: grid.Index{Row: r, Col: c}, Lat: lat, Lon: lon})
				}
			}
		}
		if len(pixels) == 0 {
			logger.Warn("No nearby pixels, skipping station", "station", st.Name)
			continue
		}
		idx.add(st.Name, pixels)
		logger.Info("Station mask", "station", st.Name, "pixels", len(pixels))
	}
	return idx
}

func (idx *Index) add(name string, pixels []grid.Pixel) {
	if idx.masks == nil {
		idx.masks = make(map[string][]grid.Pixel)
	}
	if _, ok := idx.masks[name]; !ok {
		idx.order = append(idx.order, name)
	}
	idx.masks[name] = pixels
}

// Pixels returns the pixels near a station. ok is false when the station has
// no usable pixels.
func (idx *Index) Pixels(name string) ([]grid.Pixel, bool) {
	px, ok := idx.masks[name]
	return px, ok
}

// Stations returns the stations present in the index in insertion order.
func (idx *Index) Stations() []string {
	out := make([]string, len(idx.order))
	copy(out, idx.order)
	return out
}

// Len returns the total number of pixels over all stations.
func (idx *Index) Len() int {
	n := 0
	for _, px := range idx.masks {
		n += len(px)
	}
	return n
}

// Matches reports whether g has the shape the index was computed for.
func (idx *Index) Matches(g grid.Grid) bool {
	rows, cols := g.Shape()
	return rows == idx.Rows && cols == idx.Cols
}
