package match

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/aodmatch/internal/aeronet"
	"github.com/rtm0/aodmatch/internal/cloud"
	"github.com/rtm0/aodmatch/internal/extract"
	"github.com/rtm0/aodmatch/internal/grid"
	"github.com/rtm0/aodmatch/internal/mask"
	"github.com/rtm0/aodmatch/internal/station"
	"github.com/rtm0/aodmatch/internal/testutil"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

var t0 = time.Date(2019, 3, 14, 2, 30, 0, 0, time.UTC)

func pixel(name string, ts time.Time, rho1 float64) extract.Record {
	r := extract.Record{Station: name, Time: ts, Lat: 30, Lon: 120, SOZ: 40, VZ: 30, RA: 90}
	for i := range r.Rho {
		r.Rho[i] = rho1
	}
	for i := range r.BT {
		r.BT[i] = 290
	}
	return r
}

func TestWindowInclusive(t *testing.T) {
	ground := []aeronet.Measurement{
		{Station: "Kanpur", Time: t0.Add(-30 * time.Minute), AOD: 1},
		{Station: "Kanpur", Time: t0.Add(30 * time.Minute), AOD: 2},
		{Station: "Kanpur", Time: t0.Add(30*time.Minute + time.Second), AOD: 3},
		{Station: "Kanpur", Time: t0.Add(-30*time.Minute - time.Second), AOD: 4},
		{Station: "Lumbini", Time: t0, AOD: 5},
	}
	m := New(ground, DefaultTolerance)
	w := m.Window("Kanpur", t0)
	require.Len(t, w, 2)
	assert.Equal(t, 1.0, w[0].AOD)
	assert.Equal(t, 2.0, w[1].AOD)
	assert.Empty(t, m.Window("Osaka", t0))
}

func TestMatch(t *testing.T) {
	ground := []aeronet.Measurement{
		{Station: "Kanpur", Time: t0.Add(5 * time.Minute), AOD: 0.4, AE: 1.0, FMF: 0.6},
		{Station: "Kanpur", Time: t0.Add(-20 * time.Minute), AOD: 0.6, AE: math.NaN(), FMF: 0.8},
		{Station: "Lumbini", Time: t0.Add(2 * time.Hour), AOD: 0.3, AE: 1.0, FMF: 0.5},
	}
	recs := []extract.Record{
		pixel("Lumbini", t0, 0.3),
		pixel("Kanpur", t0, 0.1),
		pixel("Kanpur", t0, 0.3),
	}
	recs[2].Rho[0] = math.NaN()

	got := New(ground, DefaultTolerance).Match(recs)
	require.Len(t, got, 1)
	r := got[0]
	assert.Equal(t, "Kanpur", r.Sat.Station)
	assert.Equal(t, t0, r.Sat.Time)
	assert.Equal(t, 2, r.Matches)
	assert.InDelta(t, 0.5, r.AOD, 1e-12)
	assert.InDelta(t, 1.0, r.AE, 1e-12)
	assert.InDelta(t, 0.7, r.FMF, 1e-12)
	assert.InDelta(t, 0.1, r.Sat.Rho[0], 1e-12)
	assert.InDelta(t, 0.2, r.Sat.Rho[1], 1e-12)
	assert.Equal(t, 290.0, r.Sat.BT[3])
}

func TestAverageAllNaN(t *testing.T) {
	a := pixel("Kanpur", t0, math.NaN())
	avg := Average([]extract.Record{a, a})
	assert.True(t, math.IsNaN(avg.Rho[0]))
	assert.Equal(t, 40.0, avg.SOZ)
}

func TestSort(t *testing.T) {
	recs := []Record{
		{Sat: extract.Record{Station: "b", Time: t0.Add(time.Hour)}},
		{Sat: extract.Record{Station: "b", Time: t0}},
		{Sat: extract.Record{Station: "a", Time: t0.Add(time.Hour)}},
	}
	Sort(recs)
	assert.Equal(t, "b", recs[0].Sat.Station)
	assert.Equal(t, "a", recs[1].Sat.Station)
	assert.Equal(t, "b", recs[2].Sat.Station)
	assert.Equal(t, t0.Add(time.Hour), recs[2].Sat.Time)
}

func TestWriteCSV(t *testing.T) {
	r := Record{Sat: pixel("Kanpur", t0, 0.25), AOD: 0.5, AE: 1.25, FMF: math.NaN(), Matches: 3}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Record{r}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Datetime_sat,Station,rho_01,rho_02,rho_03,rho_04,rho_05,rho_06,"+
		"bt_07,bt_08,bt_09,bt_10,bt_11,bt_12,bt_13,bt_14,bt_15,bt_16,SOZ,VZ,RA,latitude,longitude,"+
		"AOD_ground_mean,AE_ground_mean,FMF_ground_mean,num_ground_matches", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2019-03-14 02:30:00,Kanpur,0.25,"))
	assert.True(t, strings.HasSuffix(lines[1], ",0.5,1.25,,3"))
}

// Three pixels lie within 2 km of the station and one of them is cloudy.
// Ground measurements 10 and 40 minutes after the granule leave one match.
func TestEndToEnd(t *testing.T) {
	axes := grid.Grid{
		Lat: []float64{30.0, 29.9},
		Lon: []float64{119.99, 120.0, 120.01},
	}
	stations, err := station.NewSet([]station.Station{{Name: "Taihu", Lat: 30.0, Lon: 120.0}})
	require.NoError(t, err)
	masks := mask.Compute(logger, stations, axes, mask.DefaultThresholdKm)
	px, _ := masks.Pixels("Taihu")
	require.Len(t, px, 3)

	fill := map[string]float64{
		extract.SolarZenithField:      60,
		extract.SolarAzimuthField:     10,
		extract.SatelliteZenithField:  35,
		extract.SatelliteAzimuthField: 350,
	}
	for b := 1; b <= extract.NumReflective; b++ {
		fill[extract.AlbedoField(b)] = 0.1
	}
	for b := extract.FirstThermal; b < extract.FirstThermal+extract.NumThermal; b++ {
		fill[extract.BrightnessField(b)] = 280
	}
	obs := testutil.NewMemDataset(axes, fill)
	obs.Set(extract.AlbedoField(1), 0, 0, 0.2)
	obs.Set(extract.AlbedoField(1), 0, 1, 0.3)
	cl := testutil.NewMemDataset(axes, map[string]float64{cloud.TypeField: cloud.Clear})
	cl.Set(cloud.TypeField, 0, 2, 1)

	recs, err := extract.Granule(logger, obs, cl, stations, masks, t0)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	dir := t.TempDir()
	require.NoError(t, extract.WriteFile(filepath.Join(dir, "toa_filtered_20190314_0230.csv"), recs))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	ground := []aeronet.Measurement{
		{Station: "Taihu", Time: t0.Add(10 * time.Minute), AOD: 0.42, AE: 1.3, FMF: 0.9},
		{Station: "Taihu", Time: t0.Add(40 * time.Minute), AOD: 0.8, AE: 1.1, FMF: 0.7},
	}
	got, err := Run(context.Background(), logger, dir, New(ground, DefaultTolerance))
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, 1, r.Matches)
	assert.Equal(t, 0.42, r.AOD)
	assert.InDelta(t, 0.5, r.Sat.Rho[0], 1e-9) // mean of 0.4 and 0.6
	assert.InDelta(t, 0.2, r.Sat.Rho[1], 1e-9)
	assert.InDelta(t, 20, r.Sat.RA, 1e-9)
	assert.InDelta(t, 119.995, r.Sat.Lon, 1e-9)

	path := filepath.Join(dir, "Final_Matched_Data.csv")
	require.NoError(t, WriteFile(path, got))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestRunMissingDir(t *testing.T) {
	_, err := Run(context.Background(), logger, filepath.Join(t.TempDir(), "nope"), New(nil, DefaultTolerance))
	assert.Error(t, err)
}

func TestMean(t *testing.T) {
	assert.InDelta(t, 0.5, Mean([]float64{0.4, math.NaN(), 0.6}), 1e-12)
	assert.True(t, math.IsNaN(Mean([]float64{math.NaN()})))
	assert.True(t, math.IsNaN(Mean(nil)))
}
