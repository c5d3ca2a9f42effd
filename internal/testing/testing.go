// package testing contains shared testing utilities
package testing

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// projectFiles is a minimal netflixclone checkout: a manifest and one file per static directory.
var projectFiles = map[string]string{
	"requirements.txt":                     "Django>=4.2\nPillow\n",
	"netflixapp/static/css/style.css":      "body {}",
	"netflixapp/static/js/player.js":       "play()",
	"netflixapp/static/images/favicon.ico": "ico",
}

// Project lays out a netflixclone checkout in a temp dir and returns its root.
func Project(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "netflixclone")
	for name, content := range projectFiles {
		MustWriteFile(t, filepath.Join(root, name), content)
	}
	return root
}

// InstallerCheck is an installer command that succeeds when the manifest exists, without installing anything.
func InstallerCheck() []string {
	return []string{"sh", "-c", `test -f "$0"`, "{manifest}"}
}

func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected %s not to exist", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
