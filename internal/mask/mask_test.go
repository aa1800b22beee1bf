package mask

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/aodmatch/internal/grid"
	"github.com/rtm0/aodmatch/internal/himawari"
	"github.com/rtm0/aodmatch/internal/station"
	"github.com/rtm0/aodmatch/internal/testutil"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGrid() grid.Grid {
	// Descending latitudes as in Himawari products.
	return grid.Grid{
		Lat: testutil.Axis(26.62, -0.02, 12),
		Lon: testutil.Axis(80.12, 0.02, 12),
	}
}

func testStations(t *testing.T) *station.Set {
	s, err := station.NewSet([]station.Station{
		{Name: "Kanpur", Lat: 26.512, Lon: 80.231},
		{Name: "Far", Lat: 40, Lon: 100},
		{Name: "Edge", Lat: 26.40, Lon: 80.12},
	})
	require.NoError(t, err)
	return s
}

func TestCompute(t *testing.T) {
	g := testGrid()
	stations := testStations(t)
	idx := Compute(discard(), stations, g, DefaultThresholdKm)

	assert.Equal(t, 12, idx.Rows)
	assert.Equal(t, 12, idx.Cols)
	assert.Equal(t, []string{"Kanpur", "Edge"}, idx.Stations())

	_, ok := idx.Pixels("Far")
	assert.False(t, ok, "station without pixels must be absent")

	for _, name := range idx.Stations() {
		st, _ := stations.Get(name)
		pixels, ok := idx.Pixels(name)
		require.True(t, ok)
		require.NotEmpty(t, pixels)

		inMask := make(map[grid.Index]bool)
		for _, p := range pixels {
			inMask[p.Index] = true
			assert.Equal(t, g.Lat[p.Row], p.Lat)
			assert.Equal(t, g.Lon[p.Col], p.Lon)
			assert.LessOrEqual(t, grid.Haversine(st.Lat, st.Lon, p.Lat, p.Lon), DefaultThresholdKm)
		}
		// No qualifying pixel is left out.
		for r, lat := range g.Lat {
			for c, lon := range g.Lon {
				within := grid.Haversine(st.Lat, st.Lon, lat, lon) <= DefaultThresholdKm
				assert.Equal(t, within, inMask[grid.Index{Row: r, Col: c}], "%s (%d,%d)", name, r, c)
			}
		}
		// Row-major order.
		for i := 1; i < len(pixels); i++ {
			prev, cur := pixels[i-1], pixels[i]
			assert.True(t, prev.Row < cur.Row || (prev.Row == cur.Row && prev.Col < cur.Col))
		}
	}
	assert.True(t, idx.Matches(g))
	assert.False(t, idx.Matches(grid.Grid{Lat: g.Lat[:5], Lon: g.Lon}))
}

func TestComputeDeterministic(t *testing.T) {
	g := testGrid()
	a := Compute(discard(), testStations(t), g, DefaultThresholdKm)
	b := Compute(discard(), testStations(t), g, DefaultThresholdKm)
	assert.Equal(t, a, b)
}

func TestCacheRoundTrip(t *testing.T) {
	idx := Compute(discard(), testStations(t), testGrid(), DefaultThresholdKm)
	path := filepath.Join(t.TempDir(), "precomputed_masks.nc")

	require.NoError(t, Save(path, idx))
	got, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, idx.Rows, got.Rows)
	assert.Equal(t, idx.Cols, got.Cols)
	assert.Equal(t, idx.ThresholdKm, got.ThresholdKm)
	assert.Equal(t, idx.Stations(), got.Stations())
	for _, name := range idx.Stations() {
		want, _ := idx.Pixels(name)
		have, ok := got.Pixels(name)
		require.True(t, ok)
		assert.Equal(t, want, have)
	}

	// Regeneration overwrites the cache wholesale.
	s, err := station.NewSet([]station.Station{{Name: "Edge", Lat: 26.40, Lon: 80.12}})
	require.NoError(t, err)
	require.NoError(t, Save(path, Compute(discard(), s, testGrid(), 1.0)))
	got, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Edge"}, got.Stations())
	assert.Equal(t, 1.0, got.ThresholdKm)
}

func TestSaveEmpty(t *testing.T) {
	s, err := station.NewSet([]station.Station{{Name: "Far", Lat: 40, Lon: 100}})
	require.NoError(t, err)
	idx := Compute(discard(), s, testGrid(), DefaultThresholdKm)
	assert.Zero(t, idx.Len())
	assert.Error(t, Save(filepath.Join(t.TempDir(), "m.nc"), idx))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.nc"))
	assert.Error(t, err)
}

func TestNumericAttrForms(t *testing.T) {
	attrs, err := himawari.NewAttrs(
		[]string{"scalar", "single", "pair", "name"},
		map[string]any{
			"scalar": 2.5,
			"single": []float64{1.5},
			"pair":   []float64{1, 2},
			"name":   "Kanpur",
		})
	require.NoError(t, err)

	v, err := floatAttr(attrs, "scalar")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	v, err = floatAttr(attrs, "single")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	_, err = floatAttr(attrs, "pair")
	assert.Error(t, err)
	_, err = floatAttr(attrs, "name")
	assert.Error(t, err)
	_, err = floatAttr(attrs, "missing")
	assert.Error(t, err)
}
