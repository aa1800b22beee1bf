package extract

import (
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/rtm0/aodmatch/internal/cloud"
	"github.com/rtm0/aodmatch/internal/grid"
	"github.com/rtm0/aodmatch/internal/mask"
	"github.com/rtm0/aodmatch/internal/station"
)

// Reflectance converts albedo to TOA reflectance for a solar zenith angle in
// degrees. It is NaN when the sun is at or below the horizon.
func Reflectance(albedo, soz float64) float64 {
	if math.IsNaN(soz) || soz >= 90 {
		return math.NaN()
	}
	cos := math.Cos(soz * math.Pi / 180)
	if cos <= 0 {
		return math.NaN()
	}
	return albedo / cos
}

// RelativeAzimuth returns the angle between two azimuths folded into
// [0, 180].
func RelativeAzimuth(a, b float64) float64 {
	ra := math.Abs(a - b)
	if ra > 180 {
		ra = 360 - ra
	}
	return ra
}

// Features derives one record per pixel from the observation.
func Features(obs grid.Sampler, name string, ts time.Time, pixels []grid.Pixel) ([]Record, error) {
	idx := grid.Indices(pixels)
	sample := func(field string) ([]float64, error) {
		v, err := obs.Sample(field, idx)
		if err != nil {
			return nil, errors.Wrapf(err, "sample %s", field)
		}
		if len(v) != len(idx) {
			return nil, errors.Errorf("sample %s: got %d values for %d pixels", field, len(v), len(idx))
		}
		return v, nil
	}

	recs := make([]Record, len(pixels))
	for i, p := range pixels {
		recs[i].Station = name
		recs[i].Time = ts
		recs[i].Lat = p.Lat
		recs[i].Lon = p.Lon
	}

	soz, err := sample(SolarZenithField)
	if err != nil {
		return nil, err
	}
	for b := 1; b <= NumReflective; b++ {
		albedo, err := sample(AlbedoField(b))
		if err != nil {
			return nil, err
		}
		for i := range recs {
			recs[i].Rho[b-1] = Reflectance(albedo[i], soz[i])
		}
	}
	for b := FirstThermal; b < FirstThermal+NumThermal; b++ {
		tbb, err := sample(BrightnessField(b))
		if err != nil {
			return nil, err
		}
		for i := range recs {
			recs[i].BT[b-FirstThermal] = tbb[i]
		}
	}
	saa, err := sample(SatelliteAzimuthField)
	if err != nil {
		return nil, err
	}
	soa, err := sample(SolarAzimuthField)
	if err != nil {
		return nil, err
	}
	saz, err := sample(SatelliteZenithField)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].SOZ = soz[i]
		recs[i].VZ = saz[i]
		recs[i].RA = RelativeAzimuth(saa[i], soa[i])
	}
	return recs, nil
}

// Granule extracts the cloud-free pixels of every station in the mask index
// from one observation and its cloud product. Stations are visited in set
// order; stations without a mask or without clear pixels contribute nothing.
func Granule(logger *slog.Logger, obs grid.Sampler, cl cloud.Field, stations *station.Set, masks *mask.Index, ts time.Time) ([]Record, error) {
	var all []Record
	for _, name := range stations.Names() {
		pixels, ok := masks.Pixels(name)
		if !ok {
			logger.Debug("Station not in mask index", "station", name)
			continue
		}
		keep, err := cloud.Filter(cl, pixels)
		if err != nil {
			return nil, errors.Wrapf(err, "station %s", name)
		}
		free := cloud.Select(pixels, keep)
		logger.Debug("Station pixels", "station", name, "nearby", len(pixels), "cloudFree", len(free))
		if len(free) == 0 {
			continue
		}
		recs, err := Features(obs, name, ts, free)
		if err != nil {
			return nil, errors.Wrapf(err, "station %s", name)
		}
		all = append(all, recs...)
	}
	return all, nil
}
