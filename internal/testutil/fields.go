// Package testutil holds fakes shared by package tests.
package testutil

import (
	"fmt"

	"github.com/stretchr/testify/mock"

	"github.com/rtm0/aodmatch/internal/grid"
)

// MemDataset is an in-memory gridded product. Fields are indexed [row][col].
type MemDataset struct {
	Axes   grid.Grid
	Fields map[string][][]float64
}

// NewMemDataset creates a dataset whose fields are all filled with the
// constant values in fill.
func NewMemDataset(axes grid.Grid, fill map[string]float64) *MemDataset {
	rows, cols := axes.Shape()
	d := &MemDataset{Axes: axes, Fields: make(map[string][][]float64)}
	for name, v := range fill {
		f := make([][]float64, rows)
		for r := range f {
			f[r] = make([]float64, cols)
			for c := range f[r] {
				f[r][c] = v
			}
		}
		d.Fields[name] = f
	}
	return d
}

// Set assigns one value.
func (d *MemDataset) Set(field string, row, col int, v float64) {
	d.Fields[field][row][col] = v
}

// Grid implements cloud.Field.
func (d *MemDataset) Grid() grid.Grid {
	return d.Axes
}

// Sample implements grid.Sampler.
func (d *MemDataset) Sample(field string, idx []grid.Index) ([]float64, error) {
	f, ok := d.Fields[field]
	if !ok {
		return nil, fmt.Errorf("variable %q not found", field)
	}
	out := make([]float64, len(idx))
	for i, ix := range idx {
		if ix.Row < 0 || ix.Row >= len(f) || ix.Col < 0 || ix.Col >= len(f[ix.Row]) {
			return nil, fmt.Errorf("%s index %+v out of range", field, ix)
		}
		out[i] = f[ix.Row][ix.Col]
	}
	return out, nil
}

// MockSampler is a testify mock of grid.Sampler.
type MockSampler struct {
	mock.Mock
}

func (m *MockSampler) Sample(field string, idx []grid.Index) ([]float64, error) {
	args := m.Called(field, idx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

// Axis returns n evenly spaced values starting at start.
func Axis(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// Close implements extract.Source.
func (d *MemDataset) Close() {}
