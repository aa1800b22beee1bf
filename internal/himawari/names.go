package himawari

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// KeyLayout formats a granule timestamp the way it is embedded in file names.
const KeyLayout = "20060102_1504"

// TrimmedPrefix marks granules that have been cropped to the region of
// interest.
const TrimmedPrefix = "trimmed_"

// TempPrefix marks a granule that is still being downloaded or cropped, or
// an uncropped original kept after cropping.
const TempPrefix = "temp_"

// IsGranuleFile reports whether name is a NetCDF granule ready for
// processing.
func IsGranuleFile(name string) bool {
	return strings.HasSuffix(name, ".nc") && !strings.HasPrefix(name, TempPrefix)
}

var timestampRE = regexp.MustCompile(`(\d{8})_(\d{4})`)

// ParseTimestamp extracts the first YYYYMMDD_HHMM timestamp from the base
// name of a granule file. It returns the UTC time and its key.
func ParseTimestamp(name string) (time.Time, string, error) {
	m := timestampRE.FindString(filepath.Base(name))
	if m == "" {
		return time.Time{}, "", errors.Errorf("no timestamp in %q", name)
	}
	t, err := time.ParseInLocation(KeyLayout, m, time.UTC)
	if err != nil {
		return time.Time{}, "", errors.Wrapf(err, "timestamp in %q", name)
	}
	return t, m, nil
}

// Key formats t as YYYYMMDD_HHMM.
func Key(t time.Time) string {
	return t.UTC().Format(KeyLayout)
}

// MainDir returns the FTP directory holding the gridded full-disk L1 granules
// of the day of t.
func MainDir(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("/jma/netcdf/%s/%s/", t.Format("200601"), t.Format("02"))
}

// IsMainGranule reports whether name is the full-resolution (06001x06001)
// gridded granule for the time of t.
func IsMainGranule(name string, t time.Time) bool {
	return strings.Contains(name, "_"+t.UTC().Format("1504")+"_") && strings.HasSuffix(name, "06001_06001.nc")
}

// CloudPath returns the FTP path of the L2 cloud property granule for t.
func CloudPath(t time.Time) string {
	t = t.UTC()
	name := fmt.Sprintf("NC_H08_%s_%s_L2CLP010_FLDK.02401_02401.nc", t.Format("20060102"), t.Format("1504"))
	return path.Join("/pub/himawari/L2/CLP/010", t.Format("200601"), t.Format("02"), t.Format("15"), name)
}
