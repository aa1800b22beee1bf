package extract

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Layouts of the Date and Time columns.
const (
	DateLayout = "02:01:2006"
	TimeLayout = "15:04:05"
)

// Columns is the header of an extracted-pixel file.
var Columns = append(append([]string(nil), FeatureColumns...), "Station", "Date", "Time")

// FormatFloat renders a value for CSV output. NaN is an empty field.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseFloat is the inverse of FormatFloat.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteCSV writes records with a header row.
func WriteCSV(w io.Writer, recs []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	row := make([]string, len(Columns))
	for i := range recs {
		r := &recs[i]
		for j, v := range r.Features() {
			row[j] = FormatFloat(v)
		}
		row[NumFeatures] = r.Station
		row[NumFeatures+1] = r.Time.Format(DateLayout)
		row[NumFeatures+2] = r.Time.Format(TimeLayout)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes records to path. The data goes to a temporary file in the
// same directory which is renamed into place once complete, so path either
// does not exist or holds a whole file.
func WriteFile(path string, recs []Record) (err error) {
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
	if err = WriteCSV(f, recs); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err = f.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", tmp)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp)
	}
	if err = os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename %s", tmp)
	}
	return nil
}

// ReadCSV reads records written by WriteCSV. Columns are located by name.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
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
	for _, c := range Columns {
		if _, ok := pos[c]; !ok {
			return nil, errors.Errorf("missing column %q", c)
		}
	}

	var recs []Record
	values := make([]float64, NumFeatures)
	line := 1
	for {
		line++
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		for j, c := range FeatureColumns {
			values[j], err = ParseFloat(row[pos[c]])
			if err != nil {
				return nil, errors.Wrapf(err, "line %d column %s", line, c)
			}
		}
		var rec Record
		rec.SetFeatures(values)
		rec.Station = row[pos["Station"]]
		ts := strings.TrimSpace(row[pos["Date"]]) + " " + strings.TrimSpace(row[pos["Time"]])
		rec.Time, err = time.ParseInLocation(DateLayout+" "+TimeLayout, ts, time.UTC)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// ReadFile reads an extracted-pixel file.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	recs, err := ReadCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return recs, nil
}
