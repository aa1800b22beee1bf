// Package download fetches Himawari granules from the JAXA P-Tree FTP server,
// crops them to the region of interest and keeps a resumable cursor per year
// and stream.
package download

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// Stream is one of the two product streams downloaded per timestamp.
type Stream string

const (
	Main  Stream = "main"
	Cloud Stream = "cloud"
)

// ParseStream validates a stream name.
func ParseStream(s string) (Stream, error) {
	switch Stream(s) {
	case Main, Cloud:
		return Stream(s), nil
	}
	return "", errors.Errorf("unknown stream %q (want %q or %q)", s, Main, Cloud)
}

// Cursor holds the index of the next untried timestamp of each stream.
type Cursor struct {
	Cloud int `json:"cloud"`
	Main  int `json:"main"`
}

func (c *Cursor) get(s Stream) int {
	if s == Cloud {
		return c.Cloud
	}
	return c.Main
}

func (c *Cursor) set(s Stream, n int) {
	if s == Cloud {
		c.Cloud = n
	} else {
		c.Main = n
	}
}

// Progress is the persistent set of cursors, keyed by year.
type Progress struct {
	path  string
	years map[string]*Cursor
}

// LoadProgress reads the progress file at path. A missing file, or a year
// missing from it, starts at zero.
func LoadProgress(path string, years []int) (*Progress, error) {
	p := &Progress{path: path, years: make(map[string]*Cursor)}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrapf(err, "read %s", path)
	default:
		if err := json.Unmarshal(data, &p.years); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}
	for _, y := range years {
		p.cursor(y)
	}
	return p, nil
}

func (p *Progress) cursor(year int) *Cursor {
	key := strconv.Itoa(year)
	c, ok := p.years[key]
	if !ok || c == nil {
		c = &Cursor{}
		p.years[key] = c
	}
	return c
}

// Get returns the cursor of a stream.
func (p *Progress) Get(year int, s Stream) int {
	return p.cursor(year).get(s)
}

// Set moves the cursor of a stream in memory.
func (p *Progress) Set(year int, s Stream, n int) {
	p.cursor(year).set(s, n)
}

// Years returns the years present, in order.
func (p *Progress) Years() []string {
	ys := make([]string, 0, len(p.years))
	for y := range p.years {
		ys = append(ys, y)
	}
	sort.Strings(ys)
	return ys
}

// Save writes the progress file through a temporary file in the same
// directory.
func (p *Progress) Save() error {
	data, err := json.MarshalIndent(p.years, "", "    ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(p.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	tmp := p.path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, p.path), "rename %s", tmp)
}
