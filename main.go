package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rtm0/aodmatch/internal/config"
)

var configFile = flag.String("config", "", "path to a YAML config file. Default: aodmatch.yaml in ., ./config or /etc/aodmatch/")

const usageText = `Usage: aodmatch [-config file] <command> [flags]

Commands:
  aeronet     merge AERONET AOD and SDA files into the ground-truth CSV
  plan        list the satellite timestamps needed by the ground truth
  subsample   keep every nth timestamp of the list (-n)
  download    fetch and crop granules (-year, -n, -stream main|cloud|both)
  masks       precompute station pixel masks (-reference file) or print them (-inspect)
  extract     extract cloud-free pixels near stations from every granule
  match       join extracted pixels with ground measurements
  run         extract, then match
`

func usage() {
	fmt.Fprint(flag.CommandLine.Output(), usageText)
	fmt.Fprintln(flag.CommandLine.Output(), "\nFlags:")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("Could not load config", "err", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	run := uuid.New()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With("run", run.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = newApp(logger, cfg, run, os.Stdout).dispatch(ctx, flag.Arg(0), flag.Args()[1:])
	stop()

	switch {
	case errors.Cause(err) == errUsage:
		fmt.Fprintf(flag.CommandLine.Output(), "aodmatch: %v\n\n", err)
		flag.Usage()
		os.Exit(2)
	case err != nil:
		logger.Error("Command failed", "command", flag.Arg(0), "err", fmt.Sprintf("%+v", err))
		os.Exit(1)
	}
}
