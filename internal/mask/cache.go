package mask

import (
	"os"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/pkg/errors"

	"github.com/rtm0/aodmatch/internal/grid"
	"github.com/rtm0/aodmatch/internal/himawari"
)

// Cache file layout: global attributes describe the grid and the station
// list, and one "pixel" dimension holds every station's pixels back to back.
const (
	attrRows      = "grid_rows"
	attrCols      = "grid_cols"
	attrThreshold = "threshold_km"
	attrStations  = "stations"
	pixelDim      = "pixel"
)

// Save writes idx to path, replacing any previous cache. The file appears
// only once fully written.
func Save(path string, idx *Index) error {
	var station, rows, cols []int32
	var lats, lons []float64
	for i, name := range idx.order {
		for _, p := range idx.masks[name] {
			station = append(station, int32(i))
			rows = append(rows, int32(p.Row))
			cols = append(cols, int32(p.Col))
			lats = append(lats, p.Lat)
			lons = append(lons, p.Lon)
		}
	}
	if len(station) == 0 {
		return errors.New("mask index has no pixels")
	}
	for _, name := range idx.order {
		if strings.Contains(name, ",") {
			return errors.Errorf("station name %q contains a comma", name)
		}
	}

	global, err := himawari.NewAttrs(
		[]string{attrRows, attrCols, attrThreshold, attrStations},
		map[string]any{
			attrRows:      int32(idx.Rows),
			attrCols:      int32(idx.Cols),
			attrThreshold: idx.ThresholdKm,
			attrStations:  strings.Join(idx.order, ","),
		})
	if err != nil {
		return err
	}

	tmp := path + ".part"
	cw, err := cdf.OpenWriter(tmp)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmp)
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	if err := cw.AddGlobalAttrs(global); err != nil {
		return errors.Wrap(err, "global attributes")
	}
	dims := []string{pixelDim}
	for _, v := range []struct {
		name   string
		values any
	}{
		{"station", station},
		{"row", rows},
		{"col", cols},
		{himawari.LatitudeDim, lats},
		{himawari.LongitudeDim, lons},
	} {
		if err := cw.AddVar(v.name, api.Variable{Values: v.values, Dimensions: dims}); err != nil {
			return errors.Wrapf(err, "write %q", v.name)
		}
	}
	if err := cw.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename %s", tmp)
	}
	committed = true
	return nil
}

// Load reads a cache written by Save.
func Load(path string) (*Index, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer nc.Close()

	attrs := nc.Attributes()
	if attrs == nil {
		return nil, errors.Errorf("%s: no global attributes", path)
	}
	idx := &Index{masks: make(map[string][]grid.Pixel)}
	r, err := intAttr(attrs, attrRows)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	c, err := intAttr(attrs, attrCols)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	idx.Rows, idx.Cols = int(r), int(c)
	idx.ThresholdKm, err = floatAttr(attrs, attrThreshold)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	v, ok := attrs.Get(attrStations)
	if !ok {
		return nil, errors.Errorf("%s: missing %q attribute", path, attrStations)
	}
	joined, ok := v.(string)
	if !ok {
		return nil, errors.Errorf("%s: %q is %T, want string", path, attrStations, v)
	}
	names := strings.Split(joined, ",")

	station, err := int32Var(nc, "station")
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	rows, err := int32Var(nc, "row")
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	cols, err := int32Var(nc, "col")
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	lats, err := float64Var(nc, himawari.LatitudeDim)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	lons, err := float64Var(nc, himawari.LongitudeDim)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	n := len(station)
	if len(rows) != n || len(cols) != n || len(lats) != n || len(lons) != n {
		return nil, errors.Errorf("%s: pixel variables have different lengths", path)
	}

	grouped := make([][]grid.Pixel, len(names))
	for i := 0; i < n; i++ {
		s := int(station[i])
		if s < 0 || s >= len(names) {
			return nil, errors.Errorf("%s: pixel %d refers to station #%d", path, i, s)
		}
		grouped[s] = append(grouped[s], grid.Pixel{
			Index: grid.Index{Row: int(rows[i]), Col: int(cols[i])},
			Lat:   lats[i],
			Lon:   lons[i],
		})
	}
	for i, name := range names {
		if len(grouped[i]) > 0 {
			idx.add(name, grouped[i])
		}
	}
	return idx, nil
}

func intAttr(attrs api.AttributeMap, key string) (int32, error) {
	v, ok := attrs.Get(key)
	if !ok {
		return 0, errors.Errorf("missing %q attribute", key)
	}
	switch x := v.(type) {
	case int32:
		return x, nil
	case []int32:
		if len(x) == 1 {
			return x[0], nil
		}
	}
	return 0, errors.Errorf("%q is %T, want int32", key, v)
}

func floatAttr(attrs api.AttributeMap, key string) (float64, error) {
	v, ok := attrs.Get(key)
	if !ok {
		return 0, errors.Errorf("missing %q attribute", key)
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case []float64:
		if len(x) == 1 {
			return x[0], nil
		}
	}
	return 0, errors.Errorf("%q is %T, want float64", key, v)
}

func int32Var(nc api.Group, name string) ([]int32, error) {
	v, err := nc.GetVariable(name)
	if err != nil {
		return nil, errors.Wrapf(err, "variable %q", name)
	}
	vals, ok := v.Values.([]int32)
	if !ok {
		return nil, errors.Errorf("variable %q is %T, want []int32", name, v.Values)
	}
	return vals, nil
}

func float64Var(nc api.Group, name string) ([]float64, error) {
	v, err := nc.GetVariable(name)
	if err != nil {
		return nil, errors.Wrapf(err, "variable %q", name)
	}
	vals, ok := v.Values.([]float64)
	if !ok {
		return nil, errors.Errorf("variable %q is %T, want []float64", name, v.Values)
	}
	return vals, nil
}
