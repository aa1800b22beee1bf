package himawari

import (
	"math"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/pkg/errors"

	"github.com/rtm0/aodmatch/internal/grid"
)

// Names of the coordinate axes in Himawari gridded products.
const (
	LatitudeDim  = "latitude"
	LongitudeDim = "longitude"
)

// Dataset gives pixel access to one gridded Himawari granule (L1 gridded
// full-disk data or the L2 cloud product). Rows are read lazily, one row at a
// time, and cached per variable.
type Dataset struct {
	path string
	nc   api.Group
	grid grid.Grid
	vars map[string]*variable
}

type variable struct {
	vg     api.VarGetter
	scale  float64
	offset float64
	fill   []float64
	cols   int
	rows   map[int][]float64
}

// Open opens a NetCDF granule and reads its coordinate axes.
func Open(path string) (*Dataset, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	d := &Dataset{path: path, nc: nc, vars: make(map[string]*variable)}
	d.grid.Lat, err = axisValues(nc, LatitudeDim)
	if err != nil {
		nc.Close()
		return nil, errors.Wrapf(err, "%s", path)
	}
	d.grid.Lon, err = axisValues(nc, LongitudeDim)
	if err != nil {
		nc.Close()
		return nil, errors.Wrapf(err, "%s", path)
	}
	return d, nil
}

func axisValues(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, errors.Wrapf(err, "axis %q", name)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, errors.Wrapf(err, "axis %q", name)
	}
	vals, err := toFloat64s(v)
	if err != nil {
		return nil, errors.Wrapf(err, "axis %q", name)
	}
	return vals, nil
}

// Close closes the underlying file.
func (d *Dataset) Close() {
	d.nc.Close()
}

// Path returns the file the dataset was opened from.
func (d *Dataset) Path() string {
	return d.path
}

// Grid returns the coordinate axes of the granule.
func (d *Dataset) Grid() grid.Grid {
	return d.grid
}

// Summary returns the summary information about the granule suitable for
// logging.
func (d *Dataset) Summary() []any {
	rows, cols := d.grid.Shape()
	return []any{
		"file", d.path,
		"rows", rows,
		"cols", cols,
		"vars", d.nc.ListVariables(),
	}
}

// Sample returns the decoded values of a 2D (latitude, longitude) variable at
// the given indices. scale_factor and add_offset are applied; _FillValue and
// missing_value become NaN.
func (d *Dataset) Sample(field string, idx []grid.Index) ([]float64, error) {
	v, err := d.variable(field)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(idx))
	for i, ix := range idx {
		row, err := v.row(ix.Row)
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d", field, ix.Row)
		}
		if ix.Col < 0 || ix.Col >= v.cols {
			return nil, errors.Errorf("%s column %d out of range [0, %d)", field, ix.Col, v.cols)
		}
		out[i] = row[ix.Col]
	}
	return out, nil
}

func (d *Dataset) variable(name string) (*variable, error) {
	if v, ok := d.vars[name]; ok {
		return v, nil
	}
	vg, err := d.nc.GetVarGetter(name)
	if err != nil {
		return nil, errors.Wrapf(err, "variable %q", name)
	}
	if dims := vg.Dimensions(); len(dims) != 2 {
		return nil, errors.Errorf("variable %q has %d dimensions, want 2", name, len(dims))
	}
	v := &variable{
		vg:    vg,
		scale: 1,
		cols:  len(d.grid.Lon),
		rows:  make(map[int][]float64),
	}
	if attrs := vg.Attributes(); attrs != nil {
		if f, ok := numberAttr(attrs, "scale_factor"); ok {
			v.scale = f
		}
		if f, ok := numberAttr(attrs, "add_offset"); ok {
			v.offset = f
		}
		for _, key := range []string{"_FillValue", "missing_value"} {
			if f, ok := numberAttr(attrs, key); ok {
				v.fill = append(v.fill, f)
			}
		}
	}
	d.vars[name] = v
	return v, nil
}

func (v *variable) row(r int) ([]float64, error) {
	if row, ok := v.rows[r]; ok {
		return row, nil
	}
	if r < 0 || int64(r) >= v.vg.Len() {
		return nil, errors.Errorf("row out of range [0, %d)", v.vg.Len())
	}
	s, err := v.vg.GetSlice(int64(r), int64(r)+1)
	if err != nil {
		return nil, err
	}
	raw, err := firstRow(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != v.cols {
		return nil, errors.Errorf("row has %d columns, longitude axis has %d", len(raw), v.cols)
	}
	for i, x := range raw {
		raw[i] = v.decode(x)
	}
	v.rows[r] = raw
	return raw, nil
}

func (v *variable) decode(x float64) float64 {
	if math.IsNaN(x) {
		return x
	}
	for _, f := range v.fill {
		if x == f {
			return math.NaN()
		}
	}
	return x*v.scale + v.offset
}

// numberAttr reads a numeric attribute stored either as a scalar or as a
// one-element array.
func numberAttr(attrs api.AttributeMap, key string) (float64, bool) {
	val, has := attrs.Get(key)
	if !has {
		return 0, false
	}
	if f, ok := toFloat64(val); ok {
		return f, true
	}
	vals, err := toFloat64s(val)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

type number interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

func convert[T number](xs []T) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case int8:
		return float64(x), true
	case uint8:
		return float64(x), true
	case int16:
		return float64(x), true
	case uint16:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func toFloat64s(v any) ([]float64, error) {
	switch xs := v.(type) {
	case []int8:
		return convert(xs), nil
	case []uint8:
		return convert(xs), nil
	case []int16:
		return convert(xs), nil
	case []uint16:
		return convert(xs), nil
	case []int32:
		return convert(xs), nil
	case []uint32:
		return convert(xs), nil
	case []int64:
		return convert(xs), nil
	case []uint64:
		return convert(xs), nil
	case []float32:
		return convert(xs), nil
	case []float64:
		return convert(xs), nil
	}
	return nil, errors.Errorf("unsupported value type %T", v)
}

func firstRow(v any) ([]float64, error) {
	switch rows := v.(type) {
	case [][]int8:
		return convertFirst(rows)
	case [][]uint8:
		return convertFirst(rows)
	case [][]int16:
		return convertFirst(rows)
	case [][]uint16:
		return convertFirst(rows)
	case [][]int32:
		return convertFirst(rows)
	case [][]uint32:
		return convertFirst(rows)
	case [][]int64:
		return convertFirst(rows)
	case [][]uint64:
		return convertFirst(rows)
	case [][]float32:
		return convertFirst(rows)
	case [][]float64:
		return convertFirst(rows)
	}
	return nil, errors.Errorf("unsupported slice type %T", v)
}

func convertFirst[T number](rows [][]T) ([]float64, error) {
	if len(rows) == 0 {
		return nil, errors.New("empty slice")
	}
	return convert(rows[0]), nil
}
