// Package plan derives the list of satellite timestamps needed to match a
// set of ground measurements.
package plan

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rtm0/aodmatch/internal/aeronet"
)

// Layout is the timestamp format of list entries.
const Layout = "20060102_1504"

// Slot is the Himawari full-disk repeat interval.
const Slot = 10 * time.Minute

// Options control which ground measurements produce timestamps.
type Options struct {
	// Window is the half width of the matching window around each ground
	// time.
	Window time.Duration
	// Daylight restricts ground times to hours StartHour..EndHour UTC,
	// inclusive.
	Daylight  bool
	StartHour int
	EndHour   int
	// MinAOD drops ground measurements with a lower AOD when positive.
	MinAOD float64
}

// Required returns the sorted, unique satellite slots lying within the
// window of at least one selected ground time. Measurements without an AOD
// are ignored.
func Required(ground []aeronet.Measurement, opts Options) []time.Time {
	seen := make(map[int64]bool)
	var out []time.Time
	done := make(map[int64]bool)
	for _, m := range ground {
		if math.IsNaN(m.AOD) {
			continue
		}
		t := m.Time.UTC()
		if opts.Daylight && (t.Hour() < opts.StartHour || t.Hour() > opts.EndHour) {
			continue
		}
		if opts.MinAOD > 0 && m.AOD < opts.MinAOD {
			continue
		}
		if done[t.UnixNano()] {
			continue
		}
		done[t.UnixNano()] = true

		end := t.Add(opts.Window)
		for s := ceil(t.Add(-opts.Window), Slot); !s.After(end); s = s.Add(Slot) {
			if !seen[s.Unix()] {
				seen[s.Unix()] = true
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func ceil(t time.Time, d time.Duration) time.Time {
	f := t.Truncate(d)
	if f.Equal(t) {
		return f
	}
	return f.Add(d)
}

// Format renders timestamps as list entries.
func Format(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.UTC().Format(Layout)
	}
	return out
}

// Parse converts a list entry back into a time.
func Parse(entry string) (time.Time, error) {
	return time.ParseInLocation(Layout, entry, time.UTC)
}

// WriteList writes one entry per line.
func WriteList(w io.Writer, entries []string) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintln(bw, e); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadList reads non-blank, trimmed lines.
func ReadList(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			out = append(out, s)
		}
	}
	return out, sc.Err()
}

// WriteListFile writes a list to path.
func WriteListFile(path string, entries []string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := WriteList(f, entries); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

// ReadListFile reads a list from path.
func ReadListFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	entries, err := ReadList(f)
	return entries, errors.Wrapf(err, "read %s", path)
}

// Subsample keeps every nth entry starting with the first.
func Subsample(entries []string, n int) []string {
	if n <= 1 {
		return append([]string(nil), entries...)
	}
	out := make([]string, 0, (len(entries)+n-1)/n)
	for i := 0; i < len(entries); i += n {
		out = append(out, entries[i])
	}
	return out
}

// ByYear returns the entries whose four-digit prefix equals year, in list
// order.
func ByYear(entries []string, year int) []string {
	prefix := fmt.Sprintf("%04d", year)
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}
