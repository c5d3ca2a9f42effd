package migrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/provision/internal/schema"
)

// Generator writes descriptors for differences between declared models and existing migrations.
type Generator struct {
	Dir    string
	Logger *log.Logger
	// Now is the clock used for descriptor headers and auto names.
	Now func() time.Time
	// DryRun computes the descriptor without writing it.
	DryRun bool
}

// GenerateResult describes a generation pass. Descriptor is nil when nothing changed.
type GenerateResult struct {
	Descriptor *Descriptor
	Path       string
}

// Generate diffs declared against the state replayed from Dir and writes at most one new descriptor.
//
// Running it again without model changes writes nothing.
func (g *Generator) Generate(declared *schema.Project) (*GenerateResult, error) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	descriptors, err := Load(g.Dir)
	if err != nil {
		return nil, err
	}
	for _, d := range descriptors {
		if d.App != "" && !strings.EqualFold(d.App, declared.App) {
			return nil, fmt.Errorf("migration %s belongs to app %q, not %q", d.Name, d.App, declared.App)
		}
	}

	graph, err := NewGraph(descriptors)
	if err != nil {
		return nil, err
	}
	if err := graph.CheckConflicts(); err != nil {
		return nil, err
	}

	ordered, err := graph.Order()
	if err != nil {
		return nil, err
	}

	state, err := Replay(declared.App, ordered)
	if err != nil {
		return nil, err
	}

	ops, err := Autodetect(state.Project(), declared)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		g.info("no changes detected", "app", declared.App)
		return &GenerateResult{}, nil
	}

	initial := graph.Len() == 0
	deps := graph.Leaves()
	if deps == nil {
		deps = []string{}
	}

	d := &Descriptor{
		App:          declared.App,
		Name:         fmt.Sprintf("%04d_%s", graph.NextNumber(), SuggestName(ops, initial, now())),
		Initial:      initial,
		Dependencies: deps,
		Operations:   ops,
	}

	if g.DryRun {
		return &GenerateResult{Descriptor: d}, nil
	}

	path, err := Write(g.Dir, d, now())
	if err != nil {
		return nil, err
	}

	g.info("created migration", "name", d.Name, "operations", len(ops), "path", path)
	return &GenerateResult{Descriptor: d, Path: path}, nil
}

func (g *Generator) info(msg string, kv ...any) {
	if g.Logger != nil {
		g.Logger.Info(msg, kv...)
	}
}
