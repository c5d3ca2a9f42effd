// package static gathers static assets from several source directories into one serving directory.
package static

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/provision/internal/shared"
	"golang.org/x/time/rate"
)

// StepName identifies static collection in errors and progress output.
const StepName = "collectstatic"

// progressInterval bounds how often OnProgress fires during a collection.
const progressInterval = 250 * time.Millisecond

// Stats counts the files seen by one collection.
type Stats struct {
	// Copied files were new or changed and written to the output.
	Copied int
	// Unmodified files already had an up-to-date copy in the output.
	Unmodified int
	// Skipped files were shadowed by the same path in an earlier source.
	Skipped int
}

// Total returns the number of files seen.
func (s Stats) Total() int {
	return s.Copied + s.Unmodified + s.Skipped
}

// Collector copies every file below Sources into Output.
type Collector struct {
	Sources []string
	Output  string
	// Clear removes everything in Output before copying.
	Clear  bool
	Logger *log.Logger
	// OnProgress receives running totals, at most every 250ms, plus once at the end.
	OnProgress func(Stats)
}

// Collect walks the sources in order. The first source providing a relative path wins.
//
// Existing output files are overwritten without prompting unless they have the same size and
// are not older than the source.
func (c *Collector) Collect(ctx context.Context) (*Stats, error) {
	if c.Output == "" {
		return nil, fmt.Errorf("%w: no output directory configured", shared.ErrStaticCollection)
	}
	for _, src := range c.Sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("%w: source %s: %w", shared.ErrStaticCollection, src, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: source %s is not a directory", shared.ErrStaticCollection, src)
		}
		if nested(c.Output, src) || nested(src, c.Output) {
			return nil, fmt.Errorf("%w: output %s overlaps source %s", shared.ErrStaticCollection, c.Output, src)
		}
	}

	if c.Clear {
		if err := clearDir(c.Output); err != nil {
			return nil, fmt.Errorf("%w: failed to clear %s: %w", shared.ErrStaticCollection, c.Output, err)
		}
	}
	if err := os.MkdirAll(c.Output, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create output directory: %w", shared.ErrStaticCollection, err)
	}

	logger := c.logger()
	stats := &Stats{}
	seen := map[string]string{}
	sometimes := rate.Sometimes{Interval: progressInterval}

	for _, src := range c.Sources {
		err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			if first, ok := seen[rel]; ok {
				stats.Skipped++
				logger.Debug("skipping shadowed file", "path", rel, "source", src, "found_in", first)
				return nil
			}
			seen[rel] = src

			copied, err := collectFile(path, filepath.Join(c.Output, rel))
			if err != nil {
				return err
			}
			if copied {
				stats.Copied++
				logger.Debug("copied", "path", rel)
			} else {
				stats.Unmodified++
			}

			if c.OnProgress != nil {
				sometimes.Do(func() { c.OnProgress(*stats) })
			}
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("%w: %w", shared.ErrStaticCollection, err)
		}
	}

	if c.OnProgress != nil {
		c.OnProgress(*stats)
	}
	logger.Info("collected static files",
		"copied", stats.Copied, "unmodified", stats.Unmodified, "skipped", stats.Skipped, "output", c.Output)
	return stats, nil
}

// collectFile copies src to dst unless dst is already current, reporting whether it copied.
func collectFile(src, dst string) (bool, error) {
	info, err := os.Stat(src)
	if err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	if existing, err := os.Stat(dst); err == nil {
		if existing.Size() == info.Size() && !existing.ModTime().Before(info.ModTime()) {
			return false, nil
		}
	}

	if err := copyFile(src, dst, info); err != nil {
		return false, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return true, nil
}

// copyFile writes src to a temporary file next to dst and renames it into place.
// The source modification time is kept so the next run can recognize the copy as current.
func copyFile(src, dst string, info fs.FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".collect-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Chtimes(tmp.Name(), info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// nested reports whether path is dir or lies below it.
func nested(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// clearDir removes the contents of dir, keeping dir itself. A missing dir is not an error.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) logger() *log.Logger {
	if c.Logger == nil {
		return log.New(io.Discard)
	}
	return shared.WithLogger(c.Logger, "step", StepName)
}
