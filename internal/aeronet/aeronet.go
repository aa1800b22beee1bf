// Package aeronet reads AERONET level 2.0 direct-sun (AOD) and spectral
// deconvolution (SDA) files and merges them into ground-truth measurements.
package aeronet

import (
	"bufio"
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrHeaderNotFound is returned when a file has no line with the header
// keyword.
var ErrHeaderNotFound = errors.New("header not found")

// Header keywords and column names of the two products.
const (
	AODKeyword = "Date(dd:mm:yyyy)"
	AODTime    = "Time(hh:mm:ss)"
	AODColumn  = "AOD_500nm"
	AEColumn   = "440-870_Angstrom_Exponent"

	SDAKeyword = "Date_(dd:mm:yyyy)"
	SDATime    = "Time_(hh:mm:ss)"
	FMFColumn  = "FineModeFraction_500nm[eta]"
)

const (
	dateLayout = "02:01:2006"
	timeLayout = "15:04:05"
)

// Spreadsheet serial day numbers count from this date.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// AOD is one row of a direct-sun file.
type AOD struct {
	Time time.Time
	Date string
	Hour string
	AOD  float64
	AE   float64
}

// SDA is one row of a spectral deconvolution file.
type SDA struct {
	Time time.Time
	FMF  float64
}

// FindHeader returns the zero-based number of the first line containing
// keyword.
func FindHeader(r io.Reader, keyword string) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 0; sc.Scan(); n++ {
		if strings.Contains(sc.Text(), keyword) {
			return n, nil
		}
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, errors.Wrapf(ErrHeaderNotFound, "%q", keyword)
}

// table is the comma-separated part of a file starting at its header line.
type table struct {
	pos  map[string]int
	rows [][]string
}

func readTable(r io.Reader, keyword string) (*table, error) {
	br := bufio.NewReader(r)
	var header string
	for {
		line, err := br.ReadString('\n')
		if strings.Contains(line, keyword) {
			header = line
			break
		}
		if err == io.EOF {
			return nil, errors.Wrapf(ErrHeaderNotFound, "%q", keyword)
		}
		if err != nil {
			return nil, err
		}
	}
	cr := csv.NewReader(io.MultiReader(strings.NewReader(header), br))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	t := &table{pos: make(map[string]int), rows: records[1:]}
	for i, h := range records[0] {
		t.pos[strings.TrimSpace(h)] = i
	}
	return t, nil
}

func (t *table) require(cols ...string) error {
	for _, c := range cols {
		if _, ok := t.pos[c]; !ok {
			return errors.Errorf("missing column %q", c)
		}
	}
	return nil
}

func (t *table) get(row []string, col string) string {
	i := t.pos[col]
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ParseTime combines a dd:mm:yyyy date and an hh:mm:ss time of day. A date
// written as a spreadsheet serial day number is also accepted.
func ParseTime(date, clock string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+clock, time.UTC)
	if err == nil {
		return t, nil
	}
	serial, serr := strconv.ParseFloat(date, 64)
	if serr != nil {
		return time.Time{}, err
	}
	tod, terr := time.ParseInLocation(timeLayout, clock, time.UTC)
	if terr != nil {
		return time.Time{}, terr
	}
	day := excelEpoch.AddDate(0, 0, int(math.Floor(serial)))
	return day.Add(time.Duration(tod.Hour())*time.Hour +
		time.Duration(tod.Minute())*time.Minute +
		time.Duration(tod.Second())*time.Second), nil
}

func parseValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ReadAOD parses a direct-sun file. Rows with an unparseable timestamp or
// value are dropped.
func ReadAOD(r io.Reader) ([]AOD, error) {
	t, err := readTable(r, AODKeyword)
	if err != nil {
		return nil, err
	}
	if err := t.require(AODKeyword, AODTime, AODColumn, AEColumn); err != nil {
		return nil, err
	}
	var out []AOD
	for _, row := range t.rows {
		rec := AOD{Date: t.get(row, AODKeyword), Hour: t.get(row, AODTime)}
		ts, err := ParseTime(rec.Date, rec.Hour)
		if err != nil {
			continue
		}
		rec.Time = ts
		var ok1, ok2 bool
		rec.AOD, ok1 = parseValue(t.get(row, AODColumn))
		rec.AE, ok2 = parseValue(t.get(row, AEColumn))
		if ok1 && ok2 {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ReadSDA parses a spectral deconvolution file. Rows with an unparseable
// timestamp or value are dropped.
func ReadSDA(r io.Reader) ([]SDA, error) {
	t, err := readTable(r, SDAKeyword)
	if err != nil {
		return nil, err
	}
	if err := t.require(SDAKeyword, SDATime, FMFColumn); err != nil {
		return nil, err
	}
	var out []SDA
	for _, row := range t.rows {
		ts, err := ParseTime(t.get(row, SDAKeyword), t.get(row, SDATime))
		if err != nil {
			continue
		}
		fmf, ok := parseValue(t.get(row, FMFColumn))
		if !ok {
			continue
		}
		out = append(out, SDA{Time: ts, FMF: fmf})
	}
	return out, nil
}

// ReadAODFile reads a direct-sun file from disk.
func ReadAODFile(path string) ([]AOD, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	recs, err := ReadAOD(f)
	return recs, errors.Wrapf(err, "%s", path)
}

// ReadSDAFile reads a spectral deconvolution file from disk.
func ReadSDAFile(path string) ([]SDA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	recs, err := ReadSDA(f)
	return recs, errors.Wrapf(err, "%s", path)
}

// Merge joins AOD and SDA rows on identical timestamps, in AOD order. Rows
// with a negative AOD, AE or FMF, such as the -999 fill value, are dropped.
func Merge(aod []AOD, sda []SDA) []Measurement {
	byTime := make(map[int64][]float64, len(sda))
	for _, s := range sda {
		byTime[s.Time.UnixNano()] = append(byTime[s.Time.UnixNano()], s.FMF)
	}
	var out []Measurement
	for _, a := range aod {
		for _, fmf := range byTime[a.Time.UnixNano()] {
			if a.AOD < 0 || a.AE < 0 || fmf < 0 {
				continue
			}
			out = append(out, Measurement{
				Time: a.Time,
				Date: a.Date,
				Hour: a.Hour,
				AOD:  a.AOD,
				AE:   a.AE,
				FMF:  fmf,
				Lat:  math.NaN(),
				Lon:  math.NaN(),
			})
		}
	}
	return out
}
