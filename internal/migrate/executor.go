package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/provision/internal/shared"
)

// Executor applies descriptors from Dir to a target database.
type Executor struct {
	DB      *sql.DB
	Dialect Dialect
	Dir     string
	App     string
	Logger  *log.Logger
	Now     func() time.Time
}

// ApplyResult lists the descriptors applied by one pass, in order.
type ApplyResult struct {
	Applied []string
}

// Status is the applied state of one descriptor.
type Status struct {
	Name    string
	Applied bool
	At      time.Time
}

// Apply runs every unapplied descriptor in dependency order.
//
// Each descriptor runs in its own transaction together with its record row, so a failure leaves
// earlier descriptors applied and the failing one unrecorded. Engines without transactional DDL
// (MySQL) may keep statements that ran before the failure.
func (e *Executor) Apply(ctx context.Context) (*ApplyResult, error) {
	ordered, err := e.plan()
	if err != nil {
		return nil, err
	}

	recorder := NewRecorder(e.DB, e.Dialect)
	if err := recorder.EnsureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := e.applied(ctx, recorder, ordered)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	result := &ApplyResult{}
	state := NewState(e.App)
	for _, d := range ordered {
		if _, ok := applied[d.Name]; ok {
			if err := state.Apply(d); err != nil {
				return result, err
			}
			continue
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		start := time.Now()
		if err := e.applyOne(ctx, recorder, state, d, now()); err != nil {
			return result, fmt.Errorf("failed to apply migration %s: %w", d.Name, err)
		}
		result.Applied = append(result.Applied, d.Name)
		e.info("applied migration", "name", d.Name, "duration", time.Since(start).Round(time.Millisecond))
	}

	if len(result.Applied) == 0 {
		e.info("no migrations to apply", "app", e.App)
	}
	return result, nil
}

// applyOne renders d against state, advancing state operation by operation, and executes the
// statements plus the record row in one transaction.
func (e *Executor) applyOne(ctx context.Context, recorder *Recorder, state *State, d *Descriptor, at time.Time) error {
	var stmts []string
	for i, op := range d.Operations {
		rendered, err := Render(e.Dialect, state, op)
		if err != nil {
			return fmt.Errorf("operation %d: %w", i+1, err)
		}
		stmts = append(stmts, rendered...)
		if err := state.ApplyOperation(op); err != nil {
			return fmt.Errorf("operation %d: %w", i+1, err)
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if e.Logger != nil {
			e.Logger.Debug("executing", "sql", stmt)
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w\nStatement: %s", err, stmt)
		}
	}

	if err := recorder.record(ctx, tx, e.App, d.Name, at); err != nil {
		return err
	}
	return tx.Commit()
}

// Show reports every descriptor on disk with its applied state, in dependency order.
func (e *Executor) Show(ctx context.Context) ([]Status, error) {
	ordered, err := e.plan()
	if err != nil {
		return nil, err
	}

	recorder := NewRecorder(e.DB, e.Dialect)
	if err := recorder.EnsureTable(ctx); err != nil {
		return nil, err
	}
	records, err := recorder.Applied(ctx, e.App)
	if err != nil {
		return nil, err
	}
	at := make(map[string]time.Time, len(records))
	for _, r := range records {
		at[r.Name] = r.Applied
	}

	statuses := make([]Status, len(ordered))
	for i, d := range ordered {
		t, ok := at[d.Name]
		statuses[i] = Status{Name: d.Name, Applied: ok, At: t}
	}
	return statuses, nil
}

// SQLFor renders the statements the named descriptor would execute, without touching the database.
func (e *Executor) SQLFor(name string) ([]string, error) {
	graph, err := e.graph()
	if err != nil {
		return nil, err
	}
	if _, ok := graph.Node(name); !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrMigrationNotFound, name)
	}
	ordered, err := graph.Order()
	if err != nil {
		return nil, err
	}

	state := NewState(e.App)
	for _, d := range ordered {
		if d.Name != name {
			if err := state.Apply(d); err != nil {
				return nil, err
			}
			continue
		}

		var stmts []string
		for i, op := range d.Operations {
			rendered, err := Render(e.Dialect, state, op)
			if err != nil {
				return nil, fmt.Errorf("migration %s operation %d: %w", d.Name, i+1, err)
			}
			stmts = append(stmts, rendered...)
			if err := state.ApplyOperation(op); err != nil {
				return nil, fmt.Errorf("migration %s operation %d: %w", d.Name, i+1, err)
			}
		}
		return stmts, nil
	}

	return nil, fmt.Errorf("%w: %s", shared.ErrMigrationNotFound, name)
}

// plan loads the descriptors for App and returns them in dependency order.
func (e *Executor) plan() ([]*Descriptor, error) {
	graph, err := e.graph()
	if err != nil {
		return nil, err
	}
	return graph.Order()
}

// graph loads the app's descriptors and rejects foreign apps and conflicting leaves.
func (e *Executor) graph() (*Graph, error) {
	descriptors, err := Load(e.Dir)
	if err != nil {
		return nil, err
	}
	for _, d := range descriptors {
		if d.App != "" && !strings.EqualFold(d.App, e.App) {
			return nil, fmt.Errorf("migration %s belongs to app %q, not %q", d.Name, d.App, e.App)
		}
	}

	graph, err := NewGraph(descriptors)
	if err != nil {
		return nil, err
	}
	if err := graph.CheckConflicts(); err != nil {
		return nil, err
	}
	return graph, nil
}

// applied reads the record table and checks it against the graph.
//
// A recorded descriptor whose dependency is unrecorded is an inconsistent history.
// Records with no descriptor on disk are only logged.
func (e *Executor) applied(ctx context.Context, recorder *Recorder, ordered []*Descriptor) (map[string]time.Time, error) {
	records, err := recorder.Applied(ctx, e.App)
	if err != nil {
		return nil, err
	}

	applied := make(map[string]time.Time, len(records))
	for _, r := range records {
		applied[r.Name] = r.Applied
	}

	known := make(map[string]bool, len(ordered))
	for _, d := range ordered {
		known[d.Name] = true
		if _, ok := applied[d.Name]; !ok {
			continue
		}
		for _, dep := range d.Dependencies {
			if _, ok := applied[dep]; !ok {
				return nil, fmt.Errorf("%w: %s is applied before its dependency %s", shared.ErrInconsistentHistory, d.Name, dep)
			}
		}
	}

	for _, r := range records {
		if !known[r.Name] && e.Logger != nil {
			e.Logger.Warn("applied migration has no file", "name", r.Name)
		}
	}

	return applied, nil
}

func (e *Executor) info(msg string, kv ...any) {
	if e.Logger != nil {
		e.Logger.Info(msg, kv...)
	}
}
