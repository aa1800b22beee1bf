package download

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

// Orchestrator keeps the main and cloud streams of a year in step.
type Orchestrator struct {
	logger   *slog.Logger
	session  *Session
	progress *Progress
	list     []string
}

// NewOrchestrator creates an orchestrator over the timestamp list.
func NewOrchestrator(logger *slog.Logger, session *Session, progress *Progress, list []string) *Orchestrator {
	return &Orchestrator{logger: logger, session: session, progress: progress, list: list}
}

// Run first brings the lagging stream of year level with the other, one
// timestamp at a time, then downloads up to batch (cloud, main) pairs. It
// stops at the first error.
func (o *Orchestrator) Run(ctx context.Context, year, batch int) error {
	cloudQ := NewQueue(o.list, year, Cloud, o.progress)
	mainQ := NewQueue(o.list, year, Main, o.progress)

	for {
		c, m := cloudQ.Cursor(), mainQ.Cursor()
		if c == m {
			o.logger.Info("Cursors synchronized", "year", year, "index", c)
			break
		}
		lagging := cloudQ
		if m < c {
			lagging = mainQ
		}
		o.logger.Info("Catching up", "year", year, "stream", lagging.Stream, "behind", abs(c-m))
		n, err := o.session.Run(ctx, lagging, 1)
		if err != nil {
			return errors.Wrapf(err, "catch up %s", lagging.Stream)
		}
		if n == 0 {
			return errors.Errorf("%s stream of %d cannot catch up: queue exhausted at %d", lagging.Stream, year, lagging.Cursor())
		}
	}

	for i := 0; i < batch; i++ {
		o.logger.Info("Downloading pair", "pair", i+1, "of", batch, "index", cloudQ.Cursor())
		n, err := o.session.Run(ctx, cloudQ, 1)
		if err != nil {
			return errors.Wrap(err, "cloud")
		}
		if n == 0 {
			break
		}
		if _, err := o.session.Run(ctx, mainQ, 1); err != nil {
			return errors.Wrap(err, "main")
		}
	}
	o.logger.Info("Batch download finished", "year", year, "cloud", cloudQ.Cursor(), "main", mainQ.Cursor())
	return nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
