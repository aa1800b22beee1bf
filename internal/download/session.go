package download

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/rtm0/aodmatch/internal/himawari"
)

// ErrNotFound is returned when the server has no granule for a timestamp.
var ErrNotFound = errors.New("granule not found on server")

// TempPrefix marks a granule that is still being downloaded or cropped.
const TempPrefix = himawari.TempPrefix

// Cropper cuts the region of interest out of the granule at src into dst.
type Cropper func(src, dst string) error

// Config configures a Session.
type Config struct {
	// Dirs maps each stream to its local output directory.
	Dirs map[Stream]string
	// DeleteOriginal removes the full-disk download once cropped.
	DeleteOriginal bool
	// Limiter throttles requests to the server. nil means unlimited.
	Limiter *rate.Limiter
}

// Session downloads granules one timestamp at a time.
type Session struct {
	logger *slog.Logger
	dial   Dialer
	crop   Cropper
	cfg    Config
}

// NewSession creates a session.
func NewSession(logger *slog.Logger, dial Dialer, crop Cropper, cfg Config) *Session {
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Session{logger: logger, dial: dial, crop: crop, cfg: cfg}
}

// Run downloads up to n pending timestamps of q, advancing the cursor after
// each one. The first failure stops the session and leaves the cursor on the
// failed timestamp, so a later run retries it. It returns the number of
// timestamps completed.
func (s *Session) Run(ctx context.Context, q *Queue, n int) (int, error) {
	logger := s.logger.With("year", q.Year, "stream", q.Stream)
	pending := q.Pending()
	if len(pending) == 0 {
		logger.Info("All files already downloaded", "queue", q.Len())
		return 0, nil
	}
	if n < len(pending) {
		pending = pending[:n]
	}
	outDir, ok := s.cfg.Dirs[q.Stream]
	if !ok {
		return 0, errors.Errorf("no output directory for stream %q", q.Stream)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, errors.Wrapf(err, "create %s", outDir)
	}
	logger.Info("Starting download session", "queue", q.Len(), "cursor", q.Cursor(), "files", len(pending))

	remote, err := s.dial(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := remote.Quit(); err != nil {
			logger.Debug("Quit failed", "err", err)
		}
	}()

	done := 0
	for _, entry := range pending {
		if err := s.cfg.Limiter.Wait(ctx); err != nil {
			return done, err
		}
		logger.Info("Processing", "timestamp", entry, "index", q.Cursor()+1, "of", q.Len())
		if err := s.fetch(remote, q.Stream, entry, outDir, logger); err != nil {
			logger.Error("Stopping session, rerun to retry", "timestamp", entry, "err", err)
			return done, errors.Wrapf(err, "%s %s", q.Stream, entry)
		}
		if err := q.Advance(); err != nil {
			return done, err
		}
		done++
		logger.Debug("Progress saved", "next", q.Cursor())
	}
	return done, nil
}

// resolve returns the remote path of the granule of stream for entry.
func resolve(remote Remote, stream Stream, entry string) (string, error) {
	ts, _, err := himawari.ParseTimestamp(entry)
	if err != nil {
		return "", err
	}
	if stream == Cloud {
		return himawari.CloudPath(ts), nil
	}
	dir := himawari.MainDir(ts)
	names, err := remote.NameList(dir)
	if err != nil {
		return "", errors.Wrapf(err, "list %s", dir)
	}
	for _, name := range names {
		base := path.Base(name)
		if himawari.IsMainGranule(base, ts) {
			return path.Join(dir, base), nil
		}
	}
	return "", errors.Wrapf(ErrNotFound, "no full-disk granule for %s in %s", entry, dir)
}

func (s *Session) fetch(remote Remote, stream Stream, entry, outDir string, logger *slog.Logger) (err error) {
	remotePath, err := resolve(remote, stream, entry)
	if err != nil {
		return err
	}
	base := path.Base(remotePath)
	final := filepath.Join(outDir, himawari.TrimmedPrefix+base)
	if _, err := os.Stat(final); err == nil {
		logger.Info("Trimmed file already exists, skipping", "file", final)
		return nil
	}

	tmp := filepath.Join(outDir, TempPrefix+base)
	defer func() {
		if err != nil || s.cfg.DeleteOriginal {
			if rerr := os.Remove(tmp); rerr != nil && !os.IsNotExist(rerr) {
				logger.Warn("Could not delete original file", "file", tmp, "err", rerr)
			}
		}
	}()
	if err := retrieve(remote, remotePath, tmp); err != nil {
		return err
	}
	if err := s.crop(tmp, final); err != nil {
		return errors.Wrapf(err, "crop %s", tmp)
	}
	logger.Info("Trimmed and saved", "file", final)
	return nil
}

func retrieve(remote Remote, remotePath, local string) error {
	body, err := remote.Retr(remotePath)
	if err != nil {
		return errors.Wrapf(err, "retrieve %s", remotePath)
	}
	defer body.Close()
	f, err := os.Create(local)
	if err != nil {
		return errors.Wrapf(err, "create %s", local)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return errors.Wrapf(err, "retrieve %s", remotePath)
	}
	return errors.Wrapf(f.Close(), "close %s", local)
}
