package himawari

import (
	"os"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/pkg/errors"
)

// Region is a latitude/longitude bounding box, inclusive on all sides.
type Region struct {
	LatMin float64 `mapstructure:"lat_min"`
	LatMax float64 `mapstructure:"lat_max"`
	LonMin float64 `mapstructure:"lon_min"`
	LonMax float64 `mapstructure:"lon_max"`
}

// Validate checks that the box is non-empty and within geographic bounds.
func (r Region) Validate() error {
	if r.LatMin >= r.LatMax || r.LonMin >= r.LonMax {
		return errors.Errorf("empty region %+v", r)
	}
	if r.LatMin < -90 || r.LatMax > 90 || r.LonMin < -180 || r.LonMax > 360 {
		return errors.Errorf("region %+v out of bounds", r)
	}
	return nil
}

// Crop writes the part of the granule at src that falls inside r to dst as a
// classic NetCDF file. Every (latitude, longitude) variable is cropped, the
// axes are cropped, and variables that do not depend on either axis are
// copied unchanged. Variables that use only one of the axes, or use them in a
// different layout, are left out and their names returned. dst is written
// through a temporary file and only appears once complete.
func Crop(src, dst string, r Region) (skipped []string, err error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	nc, err := netcdf.Open(src)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", src)
	}
	defer nc.Close()

	lat, err := axisValues(nc, LatitudeDim)
	if err != nil {
		return nil, err
	}
	lon, err := axisValues(nc, LongitudeDim)
	if err != nil {
		return nil, err
	}
	r0, r1 := span(lat, r.LatMin, r.LatMax)
	c0, c1 := span(lon, r.LonMin, r.LonMax)
	if r0 >= r1 || c0 >= c1 {
		return nil, errors.Errorf("%s does not intersect region %+v", src, r)
	}

	tmp := dst + ".part"
	cw, err := cdf.OpenWriter(tmp)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", tmp)
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	if global := nc.Attributes(); global != nil && len(global.Keys()) > 0 {
		attrs, err := writableAttrs(global)
		if err != nil {
			return nil, err
		}
		if attrs != nil {
			if err := cw.AddGlobalAttrs(attrs); err != nil {
				return nil, errors.Wrap(err, "global attributes")
			}
		}
	}

	for _, name := range nc.ListVariables() {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, errors.Wrapf(err, "variable %q", name)
		}
		dims := vg.Dimensions()
		attrs, err := writableAttrs(vg.Attributes())
		if err != nil {
			return nil, errors.Wrapf(err, "variable %q", name)
		}

		var values any
		switch {
		case name == LatitudeDim && len(dims) == 1:
			values, err = cropAxis(vg, r0, r1)
		case name == LongitudeDim && len(dims) == 1:
			values, err = cropAxis(vg, c0, c1)
		case len(dims) == 2 && dims[0] == LatitudeDim && dims[1] == LongitudeDim:
			var rows any
			rows, err = vg.GetSlice(int64(r0), int64(r1))
			if err == nil {
				values, err = cropCols(rows, c0, c1)
			}
		case !contains(dims, LatitudeDim) && !contains(dims, LongitudeDim):
			values, err = vg.Values()
		default:
			skipped = append(skipped, name)
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "crop %q", name)
		}
		if err := cw.AddVar(name, api.Variable{Values: values, Dimensions: dims, Attributes: attrs}); err != nil {
			return nil, errors.Wrapf(err, "write %q", name)
		}
	}

	if err := cw.Close(); err != nil {
		return nil, errors.Wrapf(err, "close %s", tmp)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return nil, errors.Wrapf(err, "rename %s", tmp)
	}
	committed = true
	return skipped, nil
}

// span returns the half-open index range of the contiguous run of axis
// values inside [lo, hi]. The axis may be ascending or descending.
func span(axis []float64, lo, hi float64) (int, int) {
	first, last := -1, -1
	for i, v := range axis {
		if v >= lo && v <= hi {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return 0, 0
	}
	return first, last + 1
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func cropAxis(vg api.VarGetter, begin, end int) (any, error) {
	return vg.GetSlice(int64(begin), int64(end))
}

func cropCols(v any, c0, c1 int) (any, error) {
	switch rows := v.(type) {
	case [][]int8:
		return subCols(rows, c0, c1), nil
	case [][]uint8:
		return subCols(rows, c0, c1), nil
	case [][]int16:
		return subCols(rows, c0, c1), nil
	case [][]uint16:
		return subCols(rows, c0, c1), nil
	case [][]int32:
		return subCols(rows, c0, c1), nil
	case [][]uint32:
		return subCols(rows, c0, c1), nil
	case [][]int64:
		return subCols(rows, c0, c1), nil
	case [][]uint64:
		return subCols(rows, c0, c1), nil
	case [][]float32:
		return subCols(rows, c0, c1), nil
	case [][]float64:
		return subCols(rows, c0, c1), nil
	}
	return nil, errors.Errorf("unsupported slice type %T", v)
}

func subCols[T any](rows [][]T, c0, c1 int) [][]T {
	out := make([][]T, len(rows))
	for i, row := range rows {
		out[i] = append([]T(nil), row[c0:c1]...)
	}
	return out
}

// writableAttrs keeps the attributes whose values a CDF file can hold.
func writableAttrs(am api.AttributeMap) (api.AttributeMap, error) {
	if am == nil {
		return nil, nil
	}
	var keys []string
	vals := make(map[string]any)
	for _, k := range am.Keys() {
		v, _ := am.Get(k)
		switch v.(type) {
		case string, int8, int16, int32, float32, float64,
			[]int8, []int16, []int32, []float32, []float64:
			keys = append(keys, k)
			vals[k] = v
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	m, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		return nil, errors.Wrap(err, "attributes")
	}
	return m, nil
}

// NewAttrs builds an ordered attribute map for writing.
func NewAttrs(keys []string, vals map[string]any) (api.AttributeMap, error) {
	m, err := util.NewOrderedMap(keys, vals)
	if err != nil {
		return nil, errors.Wrap(err, "attributes")
	}
	return m, nil
}
