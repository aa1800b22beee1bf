package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/rtm0/aodmatch/internal/aeronet"
	"github.com/rtm0/aodmatch/internal/config"
	"github.com/rtm0/aodmatch/internal/download"
	"github.com/rtm0/aodmatch/internal/extract"
	"github.com/rtm0/aodmatch/internal/himawari"
	"github.com/rtm0/aodmatch/internal/mask"
	"github.com/rtm0/aodmatch/internal/match"
	"github.com/rtm0/aodmatch/internal/plan"
	"github.com/rtm0/aodmatch/internal/report"
	"github.com/rtm0/aodmatch/internal/store"
)

var errUsage = errors.New("invalid arguments")

func usageErrorf(format string, args ...any) error {
	return errors.Wrapf(errUsage, format, args...)
}

type app struct {
	logger *slog.Logger
	cfg    *config.Config
	run    uuid.UUID
	out    io.Writer
}

func newApp(logger *slog.Logger, cfg *config.Config, run uuid.UUID, out io.Writer) *app {
	return &app{logger: logger, cfg: cfg, run: run, out: out}
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	commands := map[string]func(context.Context, []string) error{
		"aeronet":   a.aeronet,
		"plan":      a.plan,
		"subsample": a.subsample,
		"download":  a.download,
		"masks":     a.masks,
		"extract":   a.extract,
		"match":     a.match,
		"run":       a.runPipeline,
	}
	fn, ok := commands[cmd]
	if !ok {
		return usageErrorf("unknown command %q", cmd)
	}
	a.logger.Info("Starting", "command", cmd)
	return fn(ctx, args)
}

func (a *app) parse(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%s: %v", fs.Name(), err)
	}
	if fs.NArg() > 0 {
		return usageErrorf("%s: unexpected arguments %q", fs.Name(), fs.Args())
	}
	return nil
}

func (a *app) aeronet(ctx context.Context, args []string) error {
	if err := a.parse(flag.NewFlagSet("aeronet", flag.ContinueOnError), args); err != nil {
		return err
	}
	stations, err := a.cfg.StationSet()
	if err != nil {
		return err
	}
	ms, err := aeronet.Combine(ctx, a.logger, a.cfg.Paths.AODDir, a.cfg.Paths.SDADir, stations)
	if err != nil {
		return err
	}
	if len(ms) == 0 {
		a.logger.Warn("No valid data found to merge")
		return nil
	}
	if err := aeronet.WriteGroundTruthFile(a.cfg.Paths.GroundTruth, ms); err != nil {
		return err
	}
	a.logger.Info("Combined data saved", "path", a.cfg.Paths.GroundTruth, "rows", len(ms))
	return nil
}

func (a *app) plan(ctx context.Context, args []string) error {
	if err := a.parse(flag.NewFlagSet("plan", flag.ContinueOnError), args); err != nil {
		return err
	}
	ground, err := aeronet.ReadGroundTruthFile(a.cfg.Paths.GroundTruth)
	if err != nil {
		return err
	}
	p := a.cfg.Plan
	ts := plan.Required(ground, plan.Options{
		Window:    p.Window,
		Daylight:  p.Daylight,
		StartHour: p.StartHour,
		EndHour:   p.EndHour,
		MinAOD:    p.MinAOD,
	})
	if len(ts) == 0 {
		a.logger.Warn("No records left after filtering")
		return nil
	}
	if err := plan.WriteListFile(a.cfg.Paths.Timestamps, plan.Format(ts)); err != nil {
		return err
	}
	a.logger.Info("Saved timestamp list", "path", a.cfg.Paths.Timestamps, "groundRecords", len(ground), "timestamps", len(ts))
	return nil
}

func (a *app) subsample(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("subsample", flag.ContinueOnError)
	n := fs.Int("n", a.cfg.Plan.Subsample, "keep every nth timestamp")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if *n < 1 {
		return usageErrorf("subsample: -n must be at least 1")
	}
	list, err := plan.ReadListFile(a.cfg.Paths.Timestamps)
	if err != nil {
		return err
	}
	sub := plan.Subsample(list, *n)
	if err := plan.WriteListFile(a.cfg.Paths.Subsampled, sub); err != nil {
		return err
	}
	a.logger.Info("Saved subsampled list", "path", a.cfg.Paths.Subsampled, "from", len(list), "to", len(sub), "every", *n)
	return nil
}

func (a *app) download(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	year := fs.Int("year", 0, "year to download")
	n := fs.Int("n", 0, "number of timestamps (pairs with -stream both)")
	streamName := fs.String("stream", "both", "main, cloud or both")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if !a.cfg.HasYear(*year) {
		return usageErrorf("download: year must be one of %v", a.cfg.Download.Years)
	}
	if *n < 1 {
		return usageErrorf("download: -n must be at least 1")
	}
	var stream download.Stream
	if *streamName != "both" {
		s, err := download.ParseStream(*streamName)
		if err != nil {
			return usageErrorf("download: %v", err)
		}
		stream = s
	}
	dl := a.cfg.Download
	if dl.Username == "" {
		return errors.New("FTP credentials missing: set FTP_USERNAME and FTP_PWD")
	}

	list, err := plan.ReadListFile(a.cfg.Paths.Subsampled)
	if err != nil {
		return err
	}
	progress, err := download.LoadProgress(a.cfg.Paths.Progress, dl.Years)
	if err != nil {
		return err
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if dl.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(dl.RatePerSecond), 1)
	}
	crop := func(src, dst string) error {
		skipped, err := himawari.Crop(src, dst, dl.Region)
		if len(skipped) > 0 {
			a.logger.Debug("Variables left out of crop", "file", filepath.Base(src), "vars", strings.Join(skipped, ","))
		}
		return err
	}
	session := download.NewSession(a.logger,
		download.FTPDialer(dl.Server, dl.Username, dl.Password, dl.Timeout),
		crop,
		download.Config{
			Dirs: map[download.Stream]string{
				download.Main:  a.cfg.Paths.HimawariDir,
				download.Cloud: a.cfg.Paths.CloudDir,
			},
			DeleteOriginal: dl.DeleteOriginal,
			Limiter:        limiter,
		})

	if stream == "" {
		return download.NewOrchestrator(a.logger, session, progress, list).Run(ctx, *year, *n)
	}
	_, err = session.Run(ctx, download.NewQueue(list, *year, stream, progress), *n)
	return err
}

func (a *app) masks(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("masks", flag.ContinueOnError)
	reference := fs.String("reference", a.cfg.Mask.Reference, "granule whose grid the masks are computed on. Default: first granule in the Himawari directory")
	inspect := fs.Bool("inspect", false, "print the cached masks instead of computing them")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if *inspect {
		idx, err := mask.Load(a.cfg.Paths.Masks)
		if err != nil {
			return err
		}
		return inspectMasks(a.out, idx)
	}

	ref := *reference
	if ref == "" {
		files, err := extract.ListGranules(a.cfg.Paths.HimawariDir)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return errors.Errorf("no granule in %s to take the grid from", a.cfg.Paths.HimawariDir)
		}
		ref = files[0]
	}
	stations, err := a.cfg.StationSet()
	if err != nil {
		return err
	}
	d, err := himawari.Open(ref)
	if err != nil {
		return err
	}
	a.logger.Info("Reference granule", d.Summary()...)
	g := d.Grid()
	d.Close()

	idx := mask.Compute(a.logger, stations, g, a.cfg.Mask.ThresholdKm)
	if err := mask.Save(a.cfg.Paths.Masks, idx); err != nil {
		return err
	}
	a.logger.Info("Saved station masks", "path", a.cfg.Paths.Masks, "stations", len(idx.Stations()), "pixels", idx.Len())
	return nil
}

func inspectMasks(w io.Writer, idx *mask.Index) error {
	names := idx.Stations()
	fmt.Fprintf(w, "Available stations: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(w, "Grid shape used: (%d, %d)\n", idx.Rows, idx.Cols)
	fmt.Fprintf(w, "Threshold: %g km\n", idx.ThresholdKm)
	for _, name := range names {
		px, _ := idx.Pixels(name)
		fmt.Fprintf(w, "%s: %d lat/lon pairs\n", name, len(px))
		var sample []string
		for i := 0; i < len(px) && i < 5; i++ {
			sample = append(sample, fmt.Sprintf("(%.4f, %.4f)", px[i].Lat, px[i].Lon))
		}
		if _, err := fmt.Fprintf(w, "  sample lat/lon: %s\n", strings.Join(sample, " ")); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) extract(ctx context.Context, args []string) error {
	if err := a.parse(flag.NewFlagSet("extract", flag.ContinueOnError), args); err != nil {
		return err
	}
	return a.runExtract(ctx)
}

func (a *app) runExtract(ctx context.Context) error {
	stations, err := a.cfg.StationSet()
	if err != nil {
		return err
	}
	idx, err := mask.Load(a.cfg.Paths.Masks)
	if err != nil {
		return errors.Wrap(err, "station masks (run \"aodmatch masks\" first)")
	}
	if err := os.MkdirAll(a.cfg.Paths.ExtractedDir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", a.cfg.Paths.ExtractedDir)
	}
	e := extract.NewExtractor(a.logger, stations, idx, a.cfg.Paths.CloudDir, a.cfg.Paths.ExtractedDir, extract.OpenNetCDF)
	sum, err := e.Run(ctx, a.cfg.Paths.HimawariDir)
	if err != nil {
		return err
	}
	a.logger.Info("Extraction finished", "summary", sum)
	return nil
}

func (a *app) match(ctx context.Context, args []string) error {
	if err := a.parse(flag.NewFlagSet("match", flag.ContinueOnError), args); err != nil {
		return err
	}
	return a.runMatch(ctx)
}

func (a *app) runMatch(ctx context.Context) error {
	ground, err := aeronet.ReadGroundTruthFile(a.cfg.Paths.GroundTruth)
	if err != nil {
		return err
	}
	m := match.New(ground, a.cfg.Match.Tolerance)
	recs, err := match.Run(ctx, a.logger, a.cfg.Paths.ExtractedDir, m)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		a.logger.Warn("No matches found between satellite and ground data")
		return nil
	}
	if err := match.WriteFile(a.cfg.Paths.Matched, recs); err != nil {
		return err
	}
	a.logger.Info("Saved matched records", "path", a.cfg.Paths.Matched, "rows", len(recs))

	if wb := a.cfg.Paths.Workbook; wb != "" {
		if err := report.WriteMatched(wb, recs); err != nil {
			return err
		}
		a.logger.Info("Saved workbook", "path", wb)
	}
	if url := a.cfg.Database.URL; url != "" {
		if err := a.save(ctx, url, recs); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) save(ctx context.Context, url string, recs []match.Record) error {
	s, err := store.New(ctx, url)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := s.SaveMatched(ctx, a.run, recs); err != nil {
		return err
	}
	a.logger.Info("Stored matched records", "rows", len(recs))
	return nil
}

func (a *app) runPipeline(ctx context.Context, args []string) error {
	if err := a.parse(flag.NewFlagSet("run", flag.ContinueOnError), args); err != nil {
		return err
	}
	if err := a.runExtract(ctx); err != nil {
		return errors.Wrap(err, "extract")
	}
	return errors.Wrap(a.runMatch(ctx), "match")
}
