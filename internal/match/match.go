// Package match joins per-granule satellite features with AERONET ground
// measurements taken close in time.
package match

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/rtm0/aodmatch/internal/aeronet"
	"github.com/rtm0/aodmatch/internal/extract"
)

// DefaultTolerance is the half width of the matching window.
const DefaultTolerance = 30 * time.Minute

// Record is one matched (station, satellite time) pair. Sat holds the mean of
// the station's cloud-free pixels.
type Record struct {
	Sat     extract.Record
	AOD     float64
	AE      float64
	FMF     float64
	Matches int
}

// Matcher looks up ground measurements per station.
type Matcher struct {
	tolerance time.Duration
	ground    map[string][]aeronet.Measurement
}

// New indexes ground measurements by station.
func New(ground []aeronet.Measurement, tolerance time.Duration) *Matcher {
	m := &Matcher{
		tolerance: tolerance,
		ground:    make(map[string][]aeronet.Measurement),
	}
	for _, g := range ground {
		m.ground[g.Station] = append(m.ground[g.Station], g)
	}
	for _, gs := range m.ground {
		sort.SliceStable(gs, func(i, j int) bool { return gs[i].Time.Before(gs[j].Time) })
	}
	return m
}

// Stations returns the number of stations with ground data.
func (m *Matcher) Stations() int {
	return len(m.ground)
}

// Window returns the measurements of a station taken no more than the
// tolerance before or after t.
func (m *Matcher) Window(name string, t time.Time) []aeronet.Measurement {
	gs := m.ground[name]
	lo := t.Add(-m.tolerance)
	hi := t.Add(m.tolerance)
	i := sort.Search(len(gs), func(k int) bool { return !gs[k].Time.Before(lo) })
	j := sort.Search(len(gs), func(k int) bool { return gs[k].Time.After(hi) })
	return gs[i:j]
}

// Match reduces the pixels of each station to their mean and joins the
// result with the ground window around the satellite time, which is the time
// of the station's first pixel. Stations with no ground measurement in the
// window are dropped. Results are ordered by station name.
func (m *Matcher) Match(recs []extract.Record) []Record {
	groups := make(map[string][]extract.Record)
	for _, r := range recs {
		groups[r.Station] = append(groups[r.Station], r)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Record
	for _, name := range names {
		pixels := groups[name]
		ground := m.Window(name, pixels[0].Time)
		if len(ground) == 0 {
			continue
		}
		out = append(out, Record{
			Sat:     Average(pixels),
			AOD:     groundMean(ground, func(g aeronet.Measurement) float64 { return g.AOD }),
			AE:      groundMean(ground, func(g aeronet.Measurement) float64 { return g.AE }),
			FMF:     groundMean(ground, func(g aeronet.Measurement) float64 { return g.FMF }),
			Matches: len(ground),
		})
	}
	return out
}

// Average returns a record holding the mean of every feature over recs,
// ignoring NaN values, tagged with the first record's station and time.
func Average(recs []extract.Record) extract.Record {
	cols := make([][]float64, extract.NumFeatures)
	for _, r := range recs {
		for j, v := range r.Features() {
			cols[j] = append(cols[j], v)
		}
	}
	means := make([]float64, extract.NumFeatures)
	for j, c := range cols {
		means[j] = Mean(c)
	}
	out := extract.Record{Station: recs[0].Station, Time: recs[0].Time}
	out.SetFeatures(means)
	return out
}

func groundMean(gs []aeronet.Measurement, field func(aeronet.Measurement) float64) float64 {
	vs := make([]float64, len(gs))
	for i, g := range gs {
		vs[i] = field(g)
	}
	return Mean(vs)
}

// Mean returns the mean of the non-NaN values of vs, or NaN when there are
// none.
func Mean(vs []float64) float64 {
	kept := make([]float64, 0, len(vs))
	for _, v := range vs {
		if !math.IsNaN(v) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return math.NaN()
	}
	return stat.Mean(kept, nil)
}

// Sort orders records by satellite time, then station.
func Sort(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].Sat, recs[j].Sat
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return a.Station < b.Station
	})
}

// Run matches every extracted-pixel file in dir. Unreadable files are logged
// and skipped. The result is sorted by time, then station.
func Run(ctx context.Context, logger *slog.Logger, dir string, m *Matcher) ([]Record, error) {
	files, err := listCSV(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("Matching", "files", len(files), "groundStations", m.Stations())

	var out []Record
	start := time.Now()
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := extract.ReadFile(f)
		if err != nil {
			logger.Error("Could not read extracted file", "file", filepath.Base(f), "err", err)
			continue
		}
		if len(recs) == 0 {
			continue
		}
		out = append(out, m.Match(recs)...)
		if (i+1)%1000 == 0 {
			logger.Info("progress", "files", i+1, "matched", len(out), "in", time.Since(start).Round(time.Second))
		}
	}
	Sort(out)
	return out, nil
}

func listCSV(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".csv") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
