package migrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/provision/internal/schema"
)

// Autodetect returns the operations that turn from into to.
//
// Operations come in a fixed order so identical inputs always produce identical output:
// new models (relation targets first), field changes per model in declaration order,
// then deleted models.
func Autodetect(from, to *schema.Project) ([]Operation, error) {
	var ops []Operation

	var created []schema.Model
	for _, m := range to.Models {
		if _, ok := from.Model(m.Name); !ok {
			created = append(created, m)
		}
	}

	ordered, err := creationOrder(created)
	if err != nil {
		return nil, err
	}
	for _, m := range ordered {
		fields := make([]schema.Field, len(m.Fields))
		for i, f := range m.Fields {
			fields[i] = f.Clone()
		}
		ops = append(ops, Operation{Kind: CreateModel, Model: m.Name, Fields: fields})
	}

	for _, m := range to.Models {
		old, ok := from.Model(m.Name)
		if !ok {
			continue
		}
		fieldOps, err := diffFields(*old, m)
		if err != nil {
			return nil, err
		}
		ops = append(ops, fieldOps...)
	}

	for i := len(from.Models) - 1; i >= 0; i-- {
		m := from.Models[i]
		if _, ok := to.Model(m.Name); !ok {
			ops = append(ops, Operation{Kind: DeleteModel, Model: m.Name})
		}
	}

	return ops, nil
}

func diffFields(old, cur schema.Model) ([]Operation, error) {
	var ops []Operation

	for _, f := range cur.Fields {
		prev, ok := old.Field(f.Name)
		switch {
		case !ok:
			if f.NeedsBackfill() {
				return nil, fmt.Errorf("cannot add non-nullable field %s.%s without a default", cur.Name, f.Name)
			}
			field := f.Clone()
			ops = append(ops, Operation{Kind: AddField, Model: cur.Name, Field: &field})

		case replaces(*prev, f):
			if f.NeedsBackfill() {
				return nil, fmt.Errorf("cannot replace %s.%s with a non-nullable field without a default", cur.Name, f.Name)
			}
			field := f.Clone()
			ops = append(ops,
				Operation{Kind: RemoveField, Model: cur.Name, FieldName: f.Name},
				Operation{Kind: AddField, Model: cur.Name, Field: &field},
			)

		case !prev.Equal(f):
			if prev.Null && !f.Null && f.Type != schema.ManyToMany && f.Default == nil {
				return nil, fmt.Errorf("cannot make %s.%s non-nullable without a default", cur.Name, f.Name)
			}
			field := f.Clone()
			ops = append(ops, Operation{Kind: AlterField, Model: cur.Name, Field: &field})
		}
	}

	for _, f := range old.Fields {
		if _, ok := cur.Field(f.Name); !ok {
			ops = append(ops, Operation{Kind: RemoveField, Model: cur.Name, FieldName: f.Name})
		}
	}

	return ops, nil
}

// replaces reports whether changing prev into f cannot be expressed as a column alteration:
// the field moves between column, foreign key and join table storage, or points at another model.
func replaces(prev, f schema.Field) bool {
	if (prev.Type == schema.ManyToMany) != (f.Type == schema.ManyToMany) {
		return true
	}
	if (prev.Type == schema.ForeignKey) != (f.Type == schema.ForeignKey) {
		return true
	}
	return prev.IsRelation() && !strings.EqualFold(prev.To, f.To)
}

// creationOrder sorts new models so that relation targets are created before the models pointing at them.
// Declaration order is kept otherwise.
func creationOrder(models []schema.Model) ([]schema.Model, error) {
	pending := make(map[string]bool, len(models))
	for _, m := range models {
		pending[strings.ToLower(m.Name)] = true
	}

	ordered := make([]schema.Model, 0, len(models))
	remaining := models
	for len(remaining) > 0 {
		var next []schema.Model
		progressed := false
		for _, m := range remaining {
			if blocked(m, pending) {
				next = append(next, m)
				continue
			}
			ordered = append(ordered, m)
			delete(pending, strings.ToLower(m.Name))
			progressed = true
		}
		if !progressed {
			names := make([]string, len(next))
			for i, m := range next {
				names[i] = m.Name
			}
			return nil, fmt.Errorf("circular relations between new models: %s", strings.Join(names, ", "))
		}
		remaining = next
	}

	return ordered, nil
}

func blocked(m schema.Model, pending map[string]bool) bool {
	for _, f := range m.Fields {
		if !f.IsRelation() || strings.EqualFold(f.To, m.Name) {
			continue
		}
		if pending[strings.ToLower(f.To)] {
			return true
		}
	}
	return false
}

// SuggestName picks a descriptor name suffix for ops, as in "initial", "movie_rating" or "auto_20240101_1200".
func SuggestName(ops []Operation, initial bool, now time.Time) string {
	if initial {
		return "initial"
	}
	if len(ops) == 1 {
		op := ops[0]
		model := strings.ToLower(op.Model)
		switch op.Kind {
		case CreateModel:
			return model
		case DeleteModel:
			return "delete_" + model
		case AddField:
			return model + "_" + op.Field.Name
		case RemoveField:
			return "remove_" + model + "_" + op.FieldName
		case AlterField:
			return "alter_" + model + "_" + op.Field.Name
		}
	}
	return "auto_" + now.Format("20060102_1504")
}
