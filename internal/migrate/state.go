package migrate

import (
	"fmt"
	"strings"

	"github.com/desertthunder/provision/internal/schema"
)

// State is the schema reconstructed by replaying descriptors in order.
type State struct {
	project *schema.Project
}

// NewState returns an empty state for app.
func NewState(app string) *State {
	return &State{project: &schema.Project{App: app}}
}

// Replay applies every descriptor in order to an empty state.
func Replay(app string, ordered []*Descriptor) (*State, error) {
	s := NewState(app)
	for _, d := range ordered {
		if err := s.Apply(d); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Project returns a copy of the replayed models.
func (s *State) Project() *schema.Project {
	return s.project.Clone()
}

// Apply advances the state by every operation in d.
func (s *State) Apply(d *Descriptor) error {
	for i, op := range d.Operations {
		if err := s.ApplyOperation(op); err != nil {
			return fmt.Errorf("migration %s operation %d: %w", d.Name, i+1, err)
		}
	}
	return nil
}

// ApplyOperation advances the state by one operation.
func (s *State) ApplyOperation(op Operation) error {
	switch op.Kind {
	case CreateModel:
		if _, exists := s.project.Model(op.Model); exists {
			return fmt.Errorf("model %s already exists", op.Model)
		}
		m := schema.Model{Name: op.Model, Fields: make([]schema.Field, len(op.Fields))}
		for i, f := range op.Fields {
			m.Fields[i] = f.Clone()
		}
		s.project.Models = append(s.project.Models, m)

	case DeleteModel:
		idx := s.modelIndex(op.Model)
		if idx < 0 {
			return fmt.Errorf("model %s does not exist", op.Model)
		}
		s.project.Models = append(s.project.Models[:idx], s.project.Models[idx+1:]...)

	case AddField:
		m, ok := s.project.Model(op.Model)
		if !ok {
			return fmt.Errorf("model %s does not exist", op.Model)
		}
		if _, exists := m.Field(op.Field.Name); exists {
			return fmt.Errorf("field %s.%s already exists", op.Model, op.Field.Name)
		}
		m.Fields = append(m.Fields, op.Field.Clone())

	case RemoveField:
		m, ok := s.project.Model(op.Model)
		if !ok {
			return fmt.Errorf("model %s does not exist", op.Model)
		}
		idx := fieldIndex(m, op.FieldName)
		if idx < 0 {
			return fmt.Errorf("field %s.%s does not exist", op.Model, op.FieldName)
		}
		m.Fields = append(m.Fields[:idx], m.Fields[idx+1:]...)

	case AlterField:
		m, ok := s.project.Model(op.Model)
		if !ok {
			return fmt.Errorf("model %s does not exist", op.Model)
		}
		idx := fieldIndex(m, op.Field.Name)
		if idx < 0 {
			return fmt.Errorf("field %s.%s does not exist", op.Model, op.Field.Name)
		}
		m.Fields[idx] = op.Field.Clone()

	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	return nil
}

// Model returns a copy of the named model.
func (s *State) Model(name string) (schema.Model, bool) {
	m, ok := s.project.Model(name)
	if !ok {
		return schema.Model{}, false
	}
	return m.Clone(), true
}

func (s *State) modelIndex(name string) int {
	for i, m := range s.project.Models {
		if strings.EqualFold(m.Name, name) {
			return i
		}
	}
	return -1
}

func fieldIndex(m *schema.Model, name string) int {
	for i, f := range m.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}
