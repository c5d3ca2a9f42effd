package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/provision/internal/shared"
	tu "github.com/desertthunder/provision/internal/testing"
)

// writeConfig writes a config file for a fresh checkout with the given installer and returns its path.
func writeConfig(t *testing.T, installer ...string) string {
	t.Helper()
	root := tu.Project(t)
	if len(installer) == 0 {
		installer = tu.InstallerCheck()
	}

	quoted := make([]string, len(installer))
	for i, arg := range installer {
		quoted[i] = "'" + arg + "'"
	}

	path := filepath.Join(root, "provision.toml")
	tu.MustWriteFile(t, path, fmt.Sprintf(`
[project]
root = '%s'
app = "netflixapp"

[dependencies]
installer = [%s]
`, root, strings.Join(quoted, ", ")))
	return path
}

// execute runs the CLI with args against a fresh runner and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: output})
	err := runner.command().Run(context.Background(), append([]string{"provision"}, args...))
	return output.String(), err
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all options provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/provision.toml",
				Logger:     logger,
				Output:     output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/provision.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			if NewRunner(RunnerOpts{}).logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			if NewRunner(RunnerOpts{}).output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("loadConfig", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard)})

		t.Run("missing file uses defaults", func(t *testing.T) {
			config, err := runner.loadConfig(filepath.Join(t.TempDir(), "provision.toml"))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if config.Project.App != "netflixapp" {
				t.Errorf("expected default app, got %q", config.Project.App)
			}
		})

		t.Run("invalid file", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "provision.toml")
			tu.MustWriteFile(t, path, "[project\n")
			if _, err := runner.loadConfig(path); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("reads values from file", func(t *testing.T) {
			config, err := runner.loadConfig(writeConfig(t))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.HasSuffix(config.Project.Root, "netflixclone") {
				t.Errorf("expected project root from file, got %q", config.Project.Root)
			}
			if config.Static.Output != "staticfiles" {
				t.Errorf("expected default static output to be kept, got %q", config.Static.Output)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !strings.Contains(output.String(), `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", output.String())
			}
			if !strings.HasSuffix(output.String(), "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			// channels cannot be marshaled to JSON
			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("%d %s\n", 3, "steps"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if output.String() != "3 steps\n" {
			t.Errorf("unexpected output %q", output.String())
		}
		if err := NewRunner(RunnerOpts{Output: &tu.FWriter{}}).writePlain("x"); err == nil {
			t.Error("expected error from failing writer")
		}
	})
}

func TestCommands(t *testing.T) {
	t.Run("provision records history", func(t *testing.T) {
		config := writeConfig(t)
		root := filepath.Dir(config)

		out, err := execute(t, "-c", config)
		if err != nil {
			t.Fatalf("provision failed: %v\n%s", err, out)
		}
		for _, want := range []string{"[1/4] Installing dependencies...", "✓ migrate", "4 steps succeeded"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
		tu.AssertFileExists(t, filepath.Join(root, "staticfiles", "js", "player.js"))
		tu.AssertFileExists(t, filepath.Join(root, "db.sqlite3"))

		out, err = execute(t, "-c", config, "history", "--format", "json")
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		var entries []historyEntry
		if err := json.Unmarshal([]byte(out), &entries); err != nil {
			t.Fatalf("invalid history JSON: %v\n%s", err, out)
		}
		if len(entries) != 1 || entries[0].Status != "succeeded" || len(entries[0].Steps) != 4 {
			t.Errorf("unexpected history %+v", entries)
		}
	})

	t.Run("installer failure keeps its exit code", func(t *testing.T) {
		config := writeConfig(t, "sh", "-c", "exit 4")

		out, err := execute(t, "-c", config)
		if code := shared.ExitCode(err); code != 4 {
			t.Fatalf("expected exit code 4, got %d (%v)", code, err)
		}
		if !strings.Contains(out, "1 failed (install), 3 skipped") {
			t.Errorf("expected failure summary in output:\n%s", out)
		}

		out, err = execute(t, "-c", config, "history")
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		for _, want := range []string{"#1", "failed", "exit 4", "collectstatic", "skipped"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in history:\n%s", want, out)
			}
		}

		report := filepath.Join(t.TempDir(), "history.md")
		if _, err := execute(t, "-c", config, "history", "--format", "markdown", "-o", report); err != nil {
			t.Fatalf("history export failed: %v", err)
		}
		if !strings.Contains(tu.MustReadFile(t, report), "**Failed step**: install") {
			t.Error("expected failed step in markdown export")
		}
	})

	t.Run("makemigrations dry run writes nothing", func(t *testing.T) {
		config := writeConfig(t)

		out, err := execute(t, "-c", config, "makemigrations", "--dry-run")
		if err != nil {
			t.Fatalf("makemigrations failed: %v", err)
		}
		if !strings.Contains(out, "Migrations for 'netflixapp'") || !strings.Contains(out, "Create model Movie") {
			t.Errorf("unexpected dry run output:\n%s", out)
		}
		tu.AssertNotExists(t, filepath.Join(filepath.Dir(config), "netflixapp", "migrations"))
	})

	t.Run("sqlmigrate and showmigrations", func(t *testing.T) {
		config := writeConfig(t)

		if _, err := execute(t, "-c", config, "makemigrations"); err != nil {
			t.Fatalf("makemigrations failed: %v", err)
		}

		out, err := execute(t, "-c", config, "sqlmigrate", "0001_initial")
		if err != nil {
			t.Fatalf("sqlmigrate failed: %v", err)
		}
		if !strings.Contains(out, `CREATE TABLE "netflixapp_movie"`) {
			t.Errorf("expected create table statement:\n%s", out)
		}

		out, err = execute(t, "-c", config, "showmigrations")
		if err != nil {
			t.Fatalf("showmigrations failed: %v", err)
		}
		if !strings.Contains(out, "[ ] 0001_initial") {
			t.Errorf("expected unapplied migration:\n%s", out)
		}

		if _, err := execute(t, "-c", config, "migrate"); err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		out, _ = execute(t, "-c", config, "showmigrations")
		if !strings.Contains(out, "[X] 0001_initial") {
			t.Errorf("expected applied migration:\n%s", out)
		}

		if _, err := execute(t, "-c", config, "sqlmigrate"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if _, err := execute(t, "-c", config, "sqlmigrate", "0009_missing"); !errors.Is(err, shared.ErrMigrationNotFound) {
			t.Errorf("expected ErrMigrationNotFound, got %v", err)
		}
	})

	t.Run("history", func(t *testing.T) {
		config := writeConfig(t)

		out, err := execute(t, "-c", config, "history")
		if err != nil {
			t.Fatalf("history failed: %v", err)
		}
		if !strings.Contains(out, "No runs recorded") {
			t.Errorf("expected empty history, got:\n%s", out)
		}
		tu.AssertNotExists(t, filepath.Join(filepath.Dir(config), ".provision"))

		if _, err := execute(t, "-c", config, "history", "--status", "paused"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := execute(t, "-c", config, "history", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for unknown format, got %v", err)
		}
	})

	t.Run("init", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "provision.toml")
		t.Setenv(shared.EnvProjectRoot, filepath.Dir(path))

		out, err := execute(t, "-c", path, "init")
		if err != nil {
			t.Fatalf("init failed: %v", err)
		}
		tu.AssertFileExists(t, path)
		tu.AssertFileExists(t, filepath.Join(filepath.Dir(path), ".provision", "state.db"))
		if !strings.Contains(out, "State database ready") {
			t.Errorf("unexpected output:\n%s", out)
		}

		if !strings.Contains(tu.MustReadFile(t, path), `app = "netflixapp"`) {
			t.Error("expected the default config to be written")
		}
		if _, err := execute(t, "-c", path, "init"); err != nil {
			t.Errorf("expected init to be repeatable, got %v", err)
		}
	})

	t.Run("unknown log level", func(t *testing.T) {
		if _, err := execute(t, "-c", writeConfig(t), "--log-level", "loud", "history"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
