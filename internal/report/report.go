// Package report writes the matched dataset as a spreadsheet workbook.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/rtm0/aodmatch/internal/match"
)

const (
	MatchedSheet  = "Matched"
	StationsSheet = "Stations"
)

// StationsColumns is the header of the per-station summary sheet.
var StationsColumns = []string{"Station", "Records", "AOD_mean", "FMF_mean", "First", "Last"}

// StationSummary aggregates the matched records of one station.
type StationSummary struct {
	Station string
	Records int
	AOD     float64
	FMF     float64
	First   time.Time
	Last    time.Time
}

// Summarize returns one summary per station, ordered by station name. Means
// skip NaN values.
func Summarize(recs []match.Record) []StationSummary {
	type acc struct {
		s        StationSummary
		aod, fmf []float64
	}
	by := make(map[string]*acc)
	for _, r := range recs {
		a, ok := by[r.Sat.Station]
		if !ok {
			a = &acc{s: StationSummary{Station: r.Sat.Station, First: r.Sat.Time, Last: r.Sat.Time}}
			by[r.Sat.Station] = a
		}
		a.s.Records++
		if r.Sat.Time.Before(a.s.First) {
			a.s.First = r.Sat.Time
		}
		if r.Sat.Time.After(a.s.Last) {
			a.s.Last = r.Sat.Time
		}
		a.aod = append(a.aod, r.AOD)
		a.fmf = append(a.fmf, r.FMF)
	}
	out := make([]StationSummary, 0, len(by))
	for _, a := range by {
		a.s.AOD = match.Mean(a.aod)
		a.s.FMF = match.Mean(a.fmf)
		out = append(out, a.s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Station < out[j].Station })
	return out
}

// WriteMatched writes the matched records and a per-station summary to an
// .xlsx workbook at path.
func WriteMatched(path string, recs []match.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetDocProps(&excelize.DocProperties{
		Title:   "Himawari / AERONET matched dataset",
		Creator: "aodmatch",
		Created: time.Now().UTC().Format(time.RFC3339),
	})

	if err := f.SetSheetName("Sheet1", MatchedSheet); err != nil {
		return errors.Wrap(err, "rename sheet")
	}
	if err := writeMatchedSheet(f, recs); err != nil {
		return errors.Wrap(err, "matched sheet")
	}
	if _, err := f.NewSheet(StationsSheet); err != nil {
		return errors.Wrap(err, "stations sheet")
	}
	if err := writeStationsSheet(f, Summarize(recs)); err != nil {
		return errors.Wrap(err, "stations sheet")
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) error {
	for i, h := range headers {
		if err := f.SetCellValue(sheet, cell(i+1, 1), h); err != nil {
			return err
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeMatchedSheet(f *excelize.File, recs []match.Record) error {
	if err := writeHeader(f, MatchedSheet, match.Columns); err != nil {
		return err
	}
	for i := range recs {
		r := &recs[i]
		row := i + 2
		values := []any{r.Sat.Time.UTC().Format(match.DatetimeLayout), r.Sat.Station}
		for _, v := range r.Sat.Features() {
			values = append(values, v)
		}
		values = append(values, r.AOD, r.AE, r.FMF, r.Matches)
		for j, v := range values {
			if x, ok := v.(float64); ok && math.IsNaN(x) {
				continue
			}
			if err := f.SetCellValue(MatchedSheet, cell(j+1, row), v); err != nil {
				return err
			}
		}
	}
	return f.SetColWidth(MatchedSheet, "A", "A", 20)
}

func writeStationsSheet(f *excelize.File, sums []StationSummary) error {
	if err := writeHeader(f, StationsSheet, StationsColumns); err != nil {
		return err
	}
	for i, s := range sums {
		row := i + 2
		values := []any{
			s.Station,
			s.Records,
			s.AOD,
			s.FMF,
			s.First.UTC().Format(match.DatetimeLayout),
			s.Last.UTC().Format(match.DatetimeLayout),
		}
		for j, v := range values {
			if x, ok := v.(float64); ok && math.IsNaN(x) {
				continue
			}
			if err := f.SetCellValue(StationsSheet, cell(j+1, row), v); err != nil {
				return err
			}
		}
	}
	return f.SetColWidth(StationsSheet, "A", "F", 20)
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
