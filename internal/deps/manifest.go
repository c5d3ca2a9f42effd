// package deps installs the application's third-party packages.
//
// The manifest is a pip requirements file. It is parsed before the installer runs so that
// a malformed manifest fails fast with a line number instead of an installer traceback.
package deps

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/desertthunder/provision/internal/shared"
)

// Specifier is one version constraint, as in ">=4.2".
type Specifier struct {
	Op      string
	Version string
}

func (s Specifier) String() string {
	return s.Op + s.Version
}

// Requirement is one package line of a manifest.
type Requirement struct {
	Name       string
	Extras     []string
	Specifiers []Specifier
	URL        string
	Marker     string
	// Source and Line locate the requirement, following -r includes.
	Source string
	Line   int
}

func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	if r.URL != "" {
		b.WriteString(" @ " + r.URL)
	}
	specs := make([]string, len(r.Specifiers))
	for i, s := range r.Specifiers {
		specs[i] = s.String()
	}
	b.WriteString(strings.Join(specs, ","))
	if r.Marker != "" {
		b.WriteString("; " + r.Marker)
	}
	return b.String()
}

var (
	nameRegex = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(?:\[([^\]]*)\])?\s*(.*)$`)
	specRegex = regexp.MustCompile(`^(~=|==|!=|<=|>=|<|>)\s*([A-Za-z0-9.*+!_-]+)$`)
)

// ParseManifest reads a requirements file and every file it includes with -r.
//
// Other pip options ("--index-url", "-c", "-e") are passed through to the installer and
// not reported.
func ParseManifest(path string) ([]Requirement, error) {
	p := &manifestParser{visiting: map[string]bool{}}
	if err := p.parse(path); err != nil {
		return nil, err
	}
	return p.reqs, nil
}

type manifestParser struct {
	visiting map[string]bool
	reqs     []Requirement
}

func (p *manifestParser) parse(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if p.visiting[abs] {
		return fmt.Errorf("%w: circular include of %s", shared.ErrDependencyResolution, path)
	}
	p.visiting[abs] = true
	defer delete(p.visiting, abs)

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("%w: failed to open manifest: %w", shared.ErrDependencyResolution, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	n := 0
	for scanner.Scan() {
		n++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		if include, ok := includeTarget(line); ok {
			if !filepath.IsAbs(include) {
				include = filepath.Join(filepath.Dir(abs), include)
			}
			if err := p.parse(include); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, "-") {
			continue
		}

		req, err := parseRequirement(line)
		if err != nil {
			return fmt.Errorf("%w: %s:%d: %v", shared.ErrDependencyResolution, path, n, err)
		}
		req.Source = path
		req.Line = n
		p.reqs = append(p.reqs, req)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: failed to read manifest: %w", shared.ErrDependencyResolution, err)
	}
	return nil
}

// stripComment drops a "#" comment. pip only treats "#" as a comment at line start or after whitespace.
func stripComment(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return ""
	}
	if i := strings.Index(line, " #"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, "\t#"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// includeTarget returns the file named by "-r file", "-rfile", "--requirement file" or "--requirement=file".
func includeTarget(line string) (string, bool) {
	fields := strings.Fields(line)
	switch {
	case (fields[0] == "-r" || fields[0] == "--requirement") && len(fields) == 2:
		return fields[1], true
	case strings.HasPrefix(fields[0], "--requirement="):
		return strings.TrimPrefix(fields[0], "--requirement="), true
	case strings.HasPrefix(fields[0], "-r") && !strings.HasPrefix(fields[0], "--") && len(fields) == 1:
		return strings.TrimPrefix(fields[0], "-r"), true
	}
	return "", false
}

func parseRequirement(line string) (Requirement, error) {
	var req Requirement

	body, marker, _ := strings.Cut(line, ";")
	req.Marker = strings.TrimSpace(marker)
	body = strings.TrimSpace(body)

	m := nameRegex.FindStringSubmatch(body)
	if m == nil {
		return req, fmt.Errorf("invalid requirement %q", line)
	}
	req.Name = m[1]
	if m[2] != "" {
		for _, extra := range strings.Split(m[2], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
	}

	rest := strings.TrimSpace(m[3])
	if url, ok := strings.CutPrefix(rest, "@"); ok {
		req.URL = strings.TrimSpace(url)
		if req.URL == "" {
			return req, fmt.Errorf("missing url in %q", line)
		}
		return req, nil
	}

	rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
	if rest == "" {
		return req, nil
	}
	for _, part := range strings.Split(rest, ",") {
		sm := specRegex.FindStringSubmatch(strings.TrimSpace(part))
		if sm == nil {
			return req, fmt.Errorf("invalid version specifier %q", strings.TrimSpace(part))
		}
		req.Specifiers = append(req.Specifiers, Specifier{Op: sm[1], Version: sm[2]})
	}
	return req, nil
}
