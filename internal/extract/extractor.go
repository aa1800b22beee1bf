package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rtm0/aodmatch/internal/cloud"
	"github.com/rtm0/aodmatch/internal/himawari"
	"github.com/rtm0/aodmatch/internal/mask"
	"github.com/rtm0/aodmatch/internal/station"
)

// ErrNoCloudFile is returned when no cloud granule exists for a timestamp.
var ErrNoCloudFile = errors.New("no cloud mask file")

// OutputPrefix starts the name of every extracted-pixel file.
const OutputPrefix = "toa_filtered_"

// Source is an opened granule.
type Source interface {
	cloud.Field
	Close()
}

// Opener opens a granule file.
type Opener func(path string) (Source, error)

// OpenNetCDF opens granules with the himawari package.
func OpenNetCDF(path string) (Source, error) {
	d, err := himawari.Open(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Outcome is the result of processing one granule.
type Outcome int

const (
	Written Outcome = iota
	Exists
	NoTimestamp
	NoCloudFile
	Empty
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Written:
		return "written"
	case Exists:
		return "exists"
	case NoTimestamp:
		return "no-timestamp"
	case NoCloudFile:
		return "no-cloud-file"
	case Empty:
		return "empty"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Summary counts outcomes of a run.
type Summary map[Outcome]int

// Extractor turns granules into per-timestamp extracted-pixel files.
type Extractor struct {
	logger   *slog.Logger
	stations *station.Set
	masks    *mask.Index
	cloudDir string
	outDir   string
	open     Opener
}

// NewExtractor creates an extractor writing into outDir and looking up cloud
// granules in cloudDir.
func NewExtractor(logger *slog.Logger, stations *station.Set, masks *mask.Index, cloudDir, outDir string, open Opener) *Extractor {
	if open == nil {
		open = OpenNetCDF
	}
	return &Extractor{
		logger:   logger,
		stations: stations,
		masks:    masks,
		cloudDir: cloudDir,
		outDir:   outDir,
		open:     open,
	}
}

// OutputPath returns the extracted-pixel file for a timestamp key.
func (e *Extractor) OutputPath(key string) string {
	return filepath.Join(e.outDir, OutputPrefix+key+".csv")
}

// CloudFile returns the first cloud granule (by name) whose name contains key.
func (e *Extractor) CloudFile(key string) (string, error) {
	entries, err := os.ReadDir(e.cloudDir)
	if err != nil {
		return "", errors.Wrapf(err, "list %s", e.cloudDir)
	}
	for _, ent := range entries {
		name := ent.Name()
		if ent.Type().IsRegular() && himawari.IsGranuleFile(name) && strings.Contains(name, key) {
			return filepath.Join(e.cloudDir, name), nil
		}
	}
	return "", errors.Wrapf(ErrNoCloudFile, "%s", key)
}

// ProcessFile extracts one granule. A granule whose output already exists is
// not touched again. Nothing is written unless the whole granule succeeds.
func (e *Extractor) ProcessFile(path string) (Outcome, error) {
	logger := e.logger.With("file", filepath.Base(path))
	ts, key, err := himawari.ParseTimestamp(path)
	if err != nil {
		logger.Warn("Skipping, no timestamp in file name")
		return NoTimestamp, nil
	}
	out := e.OutputPath(key)
	if _, err := os.Stat(out); err == nil {
		logger.Info("Already extracted", "output", out)
		return Exists, nil
	} else if !os.IsNotExist(err) {
		return Failed, errors.Wrapf(err, "stat %s", out)
	}

	cloudPath, err := e.CloudFile(key)
	if errors.Cause(err) == ErrNoCloudFile {
		logger.Warn("No cloud mask file", "timestamp", key)
		return NoCloudFile, nil
	}
	if err != nil {
		return Failed, err
	}

	recs, err := e.extract(path, cloudPath, ts)
	if err != nil {
		return Failed, err
	}
	if len(recs) == 0 {
		logger.Info("No cloud-free pixels near any station", "timestamp", key)
		return Empty, nil
	}
	if err := WriteFile(out, recs); err != nil {
		return Failed, err
	}
	logger.Info("Saved", "output", out, "rows", len(recs))
	return Written, nil
}

func (e *Extractor) extract(path, cloudPath string, ts time.Time) ([]Record, error) {
	obs, err := e.open(path)
	if err != nil {
		return nil, err
	}
	defer obs.Close()
	if !e.masks.Matches(obs.Grid()) {
		rows, cols := obs.Grid().Shape()
		return nil, errors.Errorf("%s: grid %dx%d does not match mask cache %dx%d", path, rows, cols, e.masks.Rows, e.masks.Cols)
	}
	cl, err := e.open(cloudPath)
	if err != nil {
		return nil, err
	}
	defer cl.Close()
	return Granule(e.logger, obs, cl, e.stations, e.masks, ts)
}

// Run processes every .nc file in dir in name order. A failing granule is
// logged and skipped. Cancelling ctx stops the run between granules.
func (e *Extractor) Run(ctx context.Context, dir string) (Summary, error) {
	files, err := ListGranules(dir)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Extracting", "dir", dir, "granules", len(files), "stations", len(e.masks.Stations()))

	sum := make(Summary)
	start := time.Now()
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		o, err := e.ProcessFile(f)
		if err != nil {
			e.logger.Error("Could not process granule", "file", filepath.Base(f), "err", err)
		}
		sum[o]++
		percent := fmt.Sprintf("%.2f%%", 100*float64(i+1)/float64(len(files)))
		duration := time.Since(start).Round(time.Second)
		e.logger.Debug("progress", "processed", percent, "in", duration)
	}
	return sum, nil
}

// ListGranules returns the .nc files of dir sorted by name. Files still
// carrying the download temp prefix are left out.
func ListGranules(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}
	var files []string
	for _, ent := range entries {
		if ent.Type().IsRegular() && himawari.IsGranuleFile(ent.Name()) {
			files = append(files, filepath.Join(dir, ent.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LogValue renders the summary for logging.
func (s Summary) LogValue() slog.Value {
	var attrs []slog.Attr
	for o := Written; o <= Failed; o++ {
		attrs = append(attrs, slog.Int(o.String(), s[o]))
	}
	return slog.GroupValue(attrs...)
}
