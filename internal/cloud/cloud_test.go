package cloud

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rtm0/aodmatch/internal/grid"
	"github.com/rtm0/aodmatch/internal/testutil"
)

// The cloud product is coarser than the reflectance grid (0.05 vs 0.02 deg).
func cloudProduct() *testutil.MemDataset {
	axes := grid.Grid{
		Lat: testutil.Axis(27.0, -0.05, 10),
		Lon: testutil.Axis(80.0, 0.05, 10),
	}
	return testutil.NewMemDataset(axes, map[string]float64{TypeField: Clear})
}

func TestFilter(t *testing.T) {
	f := cloudProduct()
	pixels := []grid.Pixel{
		{Index: grid.Index{Row: 0, Col: 0}, Lat: 26.81, Lon: 80.11}, // nearest (26.80, 80.10) -> (4, 2)
		{Index: grid.Index{Row: 0, Col: 1}, Lat: 26.79, Lon: 80.14}, // nearest (26.80, 80.15) -> (4, 3)
		{Index: grid.Index{Row: 1, Col: 0}, Lat: 26.74, Lon: 80.11}, // nearest (26.75, 80.10) -> (5, 2)
	}
	f.Set(TypeField, 4, 3, 4) // cumulus over the second pixel

	keep, err := Filter(f, pixels)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, keep)

	free := Select(pixels, keep)
	assert.Len(t, free, 2)
	assert.Equal(t, 2, Count(keep))
	assert.Equal(t, pixels[0], free[0])
	assert.Equal(t, pixels[2], free[1])
}

func TestFilterSubset(t *testing.T) {
	f := cloudProduct()
	for r := 0; r < 10; r++ {
		for c := 0; c < 10; c++ {
			f.Set(TypeField, r, c, float64((r+c)%3))
		}
	}
	var pixels []grid.Pixel
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			pixels = append(pixels, grid.Pixel{Index: grid.Index{Row: r, Col: c}, Lat: 26.98 - float64(r)*0.02, Lon: 80.01 + float64(c)*0.02})
		}
	}
	keep, err := Filter(f, pixels)
	require.NoError(t, err)
	free := Select(pixels, keep)
	assert.LessOrEqual(t, len(free), len(pixels))

	all := make(map[grid.Index]bool)
	for _, p := range pixels {
		all[p.Index] = true
	}
	for _, p := range free {
		assert.True(t, all[p.Index])
	}
}

func TestFilterOutsideCoverage(t *testing.T) {
	f := cloudProduct()
	pixels := []grid.Pixel{
		{Lat: 30, Lon: 80.1},
		{Lat: 26.8, Lon: 70},
	}
	keep, err := Filter(f, pixels)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false}, keep)
}

func TestFilterMissingClassification(t *testing.T) {
	f := cloudProduct()
	f.Set(TypeField, 4, 2, math.NaN())
	keep, err := Filter(f, []grid.Pixel{{Lat: 26.80, Lon: 80.10}})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, keep)
}

type mockField struct {
	testutil.MockSampler
	axes grid.Grid
}

func (m *mockField) Grid() grid.Grid { return m.axes }

func TestFilterSampleError(t *testing.T) {
	f := &mockField{axes: cloudProduct().Axes}
	f.On("Sample", TypeField, mock.Anything).Return(nil, errors.New("read failed"))

	_, err := Filter(f, []grid.Pixel{{Lat: 26.80, Lon: 80.10}})
	assert.Error(t, err)
	f.AssertExpectations(t)
}

func TestFilterNoPixels(t *testing.T) {
	keep, err := Filter(cloudProduct(), nil)
	require.NoError(t, err)
	assert.Empty(t, keep)
	assert.Equal(t, 0, Count(keep))
}

func TestFilterFractionalTypeIsCloudy(t *testing.T) {
	f := cloudProduct()
	f.Set(TypeField, 4, 2, 0.4)
	f.Set(TypeField, 5, 2, -0.6)
	keep, err := Filter(f, []grid.Pixel{
		{Lat: 26.80, Lon: 80.10},
		{Lat: 26.75, Lon: 80.10},
		{Lat: 26.80, Lon: 80.15},
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, true}, keep)
}
