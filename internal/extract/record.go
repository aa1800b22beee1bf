package extract

import (
	"fmt"
	"time"
)

// Band layout of the Himawari AHI gridded product: bands 1-6 are reflective
// (albedo), bands 7-16 are thermal (brightness temperature).
const (
	NumReflective = 6
	FirstThermal  = 7
	NumThermal    = 10
)

// Record is the set of features derived from one cloud-free pixel near a
// station at one granule time.
type Record struct {
	// Dimensions
	Station string
	Time    time.Time
	Lat     float64
	Lon     float64

	// Features
	Rho [NumReflective]float64 // TOA reflectance, bands 1-6
	BT  [NumThermal]float64    // brightness temperature, bands 7-16
	SOZ float64                // solar zenith angle
	VZ  float64                // viewing zenith angle
	RA  float64                // relative azimuth, [0, 180]
}

// Features returns the numeric features in column order.
func (r *Record) Features() []float64 {
	out := make([]float64, 0, NumFeatures)
	out = append(out, r.Rho[:]...)
	out = append(out, r.BT[:]...)
	return append(out, r.SOZ, r.VZ, r.RA, r.Lat, r.Lon)
}

// SetFeatures is the inverse of Features.
func (r *Record) SetFeatures(v []float64) {
	copy(r.Rho[:], v[:NumReflective])
	copy(r.BT[:], v[NumReflective:NumReflective+NumThermal])
	rest := v[NumReflective+NumThermal:]
	r.SOZ, r.VZ, r.RA, r.Lat, r.Lon = rest[0], rest[1], rest[2], rest[3], rest[4]
}

// NumFeatures is the number of numeric columns of a record, coordinates
// included.
const NumFeatures = NumReflective + NumThermal + 5

// FeatureColumns names the numeric columns in order.
var FeatureColumns = featureColumns()

func featureColumns() []string {
	cols := make([]string, 0, NumFeatures)
	for b := 1; b <= NumReflective; b++ {
		cols = append(cols, fmt.Sprintf("rho_%02d", b))
	}
	for b := FirstThermal; b < FirstThermal+NumThermal; b++ {
		cols = append(cols, fmt.Sprintf("bt_%02d", b))
	}
	return append(cols, "SOZ", "VZ", "RA", "latitude", "longitude")
}

// AlbedoField returns the variable name of reflective band b.
func AlbedoField(b int) string {
	return fmt.Sprintf("albedo_%02d", b)
}

// BrightnessField returns the variable name of thermal band b.
func BrightnessField(b int) string {
	return fmt.Sprintf("tbb_%02d", b)
}

// Geometry variables.
const (
	SolarZenithField      = "SOZ"
	SolarAzimuthField     = "SOA"
	SatelliteZenithField  = "SAZ"
	SatelliteAzimuthField = "SAA"
)
