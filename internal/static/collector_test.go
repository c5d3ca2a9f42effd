package static

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/provision/internal/shared"
)

func writeAsset(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func readAsset(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(b)
}

func TestCollect(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (app, admin, out string) {
		root := t.TempDir()
		app = filepath.Join(root, "netflixapp", "static")
		admin = filepath.Join(root, "admin", "static")
		out = filepath.Join(root, "staticfiles")

		writeAsset(t, filepath.Join(app, "css", "style.css"), "body { color: red; }")
		writeAsset(t, filepath.Join(app, "js", "player.js"), "play()")
		writeAsset(t, filepath.Join(admin, "css", "style.css"), "body { color: blue; }")
		writeAsset(t, filepath.Join(admin, "admin", "base.css"), "nav {}")
		return app, admin, out
	}

	t.Run("first source wins", func(t *testing.T) {
		app, admin, out := setup(t)
		c := &Collector{Sources: []string{app, admin}, Output: out}

		stats, err := c.Collect(ctx)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if *stats != (Stats{Copied: 3, Skipped: 1}) {
			t.Errorf("unexpected stats %+v", *stats)
		}
		if got := readAsset(t, filepath.Join(out, "css", "style.css")); got != "body { color: red; }" {
			t.Errorf("expected style.css from the first source, got %q", got)
		}
		if got := readAsset(t, filepath.Join(out, "admin", "base.css")); got != "nav {}" {
			t.Errorf("unexpected base.css %q", got)
		}
	})

	t.Run("second run copies nothing", func(t *testing.T) {
		app, admin, out := setup(t)
		c := &Collector{Sources: []string{app, admin}, Output: out}

		if _, err := c.Collect(ctx); err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		stats, err := c.Collect(ctx)
		if err != nil {
			t.Fatalf("second Collect failed: %v", err)
		}
		if *stats != (Stats{Unmodified: 3, Skipped: 1}) {
			t.Errorf("unexpected stats %+v", *stats)
		}
	})

	t.Run("output inside a source", func(t *testing.T) {
		app, _, _ := setup(t)
		c := &Collector{Sources: []string{app}, Output: filepath.Join(app, "collected")}

		for range 2 {
			if _, err := c.Collect(ctx); !errors.Is(err, shared.ErrStaticCollection) {
				t.Fatalf("expected ErrStaticCollection, got %v", err)
			}
		}
		if _, err := os.Stat(filepath.Join(app, "collected")); !os.IsNotExist(err) {
			t.Error("expected nothing written inside the source")
		}
	})

	t.Run("output overlapping a source", func(t *testing.T) {
		app, _, _ := setup(t)
		for _, out := range []string{app, filepath.Dir(app)} {
			c := &Collector{Sources: []string{app}, Output: out, Clear: true}
			if _, err := c.Collect(ctx); !errors.Is(err, shared.ErrStaticCollection) {
				t.Errorf("output %s: expected ErrStaticCollection, got %v", out, err)
			}
		}
		if got := readAsset(t, filepath.Join(app, "js", "player.js")); got != "play()" {
			t.Errorf("expected source untouched, got %q", got)
		}
	})

	t.Run("sibling output with a shared prefix", func(t *testing.T) {
		app, _, _ := setup(t)
		c := &Collector{Sources: []string{app}, Output: app + "files"}
		if _, err := c.Collect(ctx); err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
	})

	t.Run("unwritable output", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("permissions are not enforced for root")
		}
		app, _, out := setup(t)
		if err := os.MkdirAll(out, 0o755); err != nil {
			t.Fatalf("failed to create output: %v", err)
		}
		if err := os.Chmod(out, 0o555); err != nil {
			t.Fatalf("failed to chmod output: %v", err)
		}
		t.Cleanup(func() { os.Chmod(out, 0o755) })

		_, err := (&Collector{Sources: []string{app}, Output: out}).Collect(ctx)
		if !errors.Is(err, shared.ErrStaticCollection) {
			t.Errorf("expected ErrStaticCollection, got %v", err)
		}
		if !errors.Is(err, os.ErrPermission) {
			t.Errorf("expected permission error, got %v", err)
		}
	})

	t.Run("changed source overwrites", func(t *testing.T) {
		app, _, out := setup(t)
		c := &Collector{Sources: []string{app}, Output: out}

		if _, err := c.Collect(ctx); err != nil {
			t.Fatalf("Collect failed: %v", err)
		}

		src := filepath.Join(app, "js", "player.js")
		writeAsset(t, src, "play(); pause()")
		later := time.Now().Add(time.Hour)
		if err := os.Chtimes(src, later, later); err != nil {
			t.Fatalf("failed to touch source: %v", err)
		}

		stats, err := c.Collect(ctx)
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if stats.Copied != 1 || stats.Unmodified != 1 {
			t.Errorf("unexpected stats %+v", *stats)
		}
		if got := readAsset(t, filepath.Join(out, "js", "player.js")); got != "play(); pause()" {
			t.Errorf("expected updated player.js, got %q", got)
		}

		info, err := os.Stat(filepath.Join(out, "js", "player.js"))
		if err != nil {
			t.Fatalf("failed to stat copy: %v", err)
		}
		if !info.ModTime().Equal(later) {
			t.Errorf("expected source mtime %v on copy, got %v", later, info.ModTime())
		}
	})

	t.Run("clear removes stale files", func(t *testing.T) {
		app, _, out := setup(t)
		stale := filepath.Join(out, "old", "gone.css")
		writeAsset(t, stale, "x")

		c := &Collector{Sources: []string{app}, Output: out, Clear: true}
		if _, err := c.Collect(ctx); err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Error("expected stale file removed")
		}
		if _, err := os.Stat(out); err != nil {
			t.Errorf("expected output directory kept: %v", err)
		}
	})

	t.Run("progress", func(t *testing.T) {
		app, admin, out := setup(t)
		var last Stats
		calls := 0
		c := &Collector{Sources: []string{app, admin}, Output: out, OnProgress: func(s Stats) {
			calls++
			last = s
		}}

		if _, err := c.Collect(ctx); err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if calls < 2 || last.Total() != 4 {
			t.Errorf("expected first and final progress calls, got %d calls, last %+v", calls, last)
		}
	})

	t.Run("missing source", func(t *testing.T) {
		_, _, out := setup(t)
		c := &Collector{Sources: []string{filepath.Join(t.TempDir(), "nope")}, Output: out}

		_, err := c.Collect(ctx)
		if !errors.Is(err, shared.ErrStaticCollection) {
			t.Errorf("expected ErrStaticCollection, got %v", err)
		}
		if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
			t.Error("expected output not created when a source is missing")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		app, _, out := setup(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := (&Collector{Sources: []string{app}, Output: out}).Collect(cancelled)
		if !errors.Is(err, context.Canceled) || !errors.Is(err, shared.ErrStaticCollection) {
			t.Errorf("expected cancelled collection error, got %v", err)
		}
	})
}
