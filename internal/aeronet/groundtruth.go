package aeronet

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rtm0/aodmatch/internal/station"
)

// DatetimeLayout is the layout of the datetime column of the ground-truth
// file.
const DatetimeLayout = "2006-01-02 15:04:05"

// GroundTruthColumns is the header of the ground-truth file.
var GroundTruthColumns = []string{"datetime", "AOD", "AE", "Date", "Time", "FMF", "latitude", "longitude", "station"}

// Measurement is one merged AERONET reading.
type Measurement struct {
	Station string
	Time    time.Time
	Date    string
	Hour    string
	AOD     float64
	AE      float64
	FMF     float64
	Lat     float64
	Lon     float64
}

// StationName derives the station name from an AERONET download folder
// such as "20190101_20191231_Hong_Kong_PolyU".
func StationName(folder string) string {
	parts := strings.SplitN(folder, "_", 3)
	return parts[len(parts)-1]
}

func firstWithSuffix(dir, suffix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", nil
}

// Combine merges every station folder found under aodRoot with the folder of
// the same name under sdaRoot. Folders lacking either file, or failing to
// parse, are logged and skipped. Coordinates come from stations and are NaN
// for stations it does not know.
func Combine(ctx context.Context, logger *slog.Logger, aodRoot, sdaRoot string, stations *station.Set) ([]Measurement, error) {
	entries, err := os.ReadDir(aodRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", aodRoot)
	}
	var all []Measurement
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		folder := e.Name()
		name := StationName(folder)
		recs, found, err := combineFolder(filepath.Join(aodRoot, folder), filepath.Join(sdaRoot, folder))
		if err != nil {
			logger.Error("Could not process station", "folder", folder, "err", err)
			continue
		}
		if !found {
			logger.Warn("Missing files, skipping", "folder", folder)
			continue
		}
		if len(recs) == 0 {
			logger.Warn("No rows left after merging", "folder", folder)
			continue
		}
		lat, lon := math.NaN(), math.NaN()
		if st, ok := stations.Get(name); ok {
			lat, lon = st.Lat, st.Lon
		} else {
			logger.Warn("Unknown station, coordinates left empty", "station", name)
		}
		for i := range recs {
			recs[i].Station = name
			recs[i].Lat = lat
			recs[i].Lon = lon
		}
		logger.Info("Processed", "station", name, "rows", len(recs))
		all = append(all, recs...)
	}
	return all, nil
}

// combineFolder merges the AOD and SDA files of one station. found is false
// when either file is absent.
func combineFolder(aodDir, sdaDir string) (recs []Measurement, found bool, err error) {
	aodPath, err := firstWithSuffix(aodDir, ".lev20")
	if err != nil {
		return nil, false, err
	}
	sdaPath, err := firstWithSuffix(sdaDir, ".ONEILL_lev20")
	if err != nil {
		return nil, false, err
	}
	if aodPath == "" || sdaPath == "" {
		return nil, false, nil
	}
	aod, err := ReadAODFile(aodPath)
	if err != nil {
		return nil, true, err
	}
	sda, err := ReadSDAFile(sdaPath)
	if err != nil {
		return nil, true, err
	}
	return Merge(aod, sda), true, nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// WriteGroundTruth writes measurements as CSV.
func WriteGroundTruth(w io.Writer, ms []Measurement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(GroundTruthColumns); err != nil {
		return err
	}
	for _, m := range ms {
		err := cw.Write([]string{
			m.Time.UTC().Format(DatetimeLayout),
			formatFloat(m.AOD),
			formatFloat(m.AE),
			m.Date,
			m.Hour,
			formatFloat(m.FMF),
			formatFloat(m.Lat),
			formatFloat(m.Lon),
			m.Station,
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGroundTruthFile writes measurements to path through a temporary file.
func WriteGroundTruthFile(path string, ms []Measurement) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmp)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()
	if err = WriteGroundTruth(f, ms); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "rename %s", tmp)
}

var datetimeLayouts = []string{DatetimeLayout, "2006-01-02T15:04:05", "2006-01-02 15:04", time.RFC3339}

func parseDatetime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, l := range datetimeLayouts {
		if t, err := time.ParseInLocation(l, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ReadGroundTruth reads a ground-truth CSV. Rows whose datetime cannot be
// parsed are dropped; unparseable numbers become NaN.
func ReadGroundTruth(r io.Reader) ([]Measurement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "header")
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	for _, c := range []string{"datetime", "AOD", "AE", "FMF", "station"} {
		if _, ok := pos[c]; !ok {
			return nil, errors.Errorf("missing column %q", c)
		}
	}
	get := func(row []string, col string) string {
		i, ok := pos[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var out []Measurement
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		ts, ok := parseDatetime(get(row, "datetime"))
		if !ok {
			continue
		}
		out = append(out, Measurement{
			Station: strings.TrimSpace(get(row, "station")),
			Time:    ts,
			Date:    get(row, "Date"),
			Hour:    get(row, "Time"),
			AOD:     parseFloat(get(row, "AOD")),
			AE:      parseFloat(get(row, "AE")),
			FMF:     parseFloat(get(row, "FMF")),
			Lat:     parseFloat(get(row, "latitude")),
			Lon:     parseFloat(get(row, "longitude")),
		})
	}
	return out, nil
}

// ReadGroundTruthFile reads a ground-truth CSV from disk.
func ReadGroundTruthFile(path string) ([]Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	ms, err := ReadGroundTruth(f)
	return ms, errors.Wrapf(err, "%s", path)
}
