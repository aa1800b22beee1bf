package match

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/rtm0/aodmatch/internal/extract"
)

// DatetimeLayout is the layout of the Datetime_sat column.
const DatetimeLayout = "2006-01-02 15:04:05"

// Columns is the header of the matched dataset.
var Columns = columns()

func columns() []string {
	cols := []string{"Datetime_sat", "Station"}
	cols = append(cols, extract.FeatureColumns...)
	return append(cols, "AOD_ground_mean", "AE_ground_mean", "FMF_ground_mean", "num_ground_matches")
}

// Row renders a record in column order.
func (r *Record) Row() []string {
	row := make([]string, 0, len(Columns))
	row = append(row, r.Sat.Time.UTC().Format(DatetimeLayout), r.Sat.Station)
	for _, v := range r.Sat.Features() {
		row = append(row, extract.FormatFloat(v))
	}
	return append(row,
		extract.FormatFloat(r.AOD),
		extract.FormatFloat(r.AE),
		extract.FormatFloat(r.FMF),
		strconv.Itoa(r.Matches),
	)
}

// WriteCSV writes the matched dataset.
func WriteCSV(w io.Writer, recs []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for i := range recs {
		if err := cw.Write(recs[i].Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the matched dataset to path through a temporary file.
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
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "rename %s", tmp)
}
