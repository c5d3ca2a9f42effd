package migrate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/provision/internal/schema"
)

// OpKind names a schema change.
type OpKind string

const (
	CreateModel OpKind = "create_model"
	DeleteModel OpKind = "delete_model"
	AddField    OpKind = "add_field"
	RemoveField OpKind = "remove_field"
	AlterField  OpKind = "alter_field"
)

const descriptorExt = ".toml"

// Operation is one schema change recorded in a descriptor.
//
// CreateModel uses Fields, AddField and AlterField use Field, RemoveField uses FieldName.
type Operation struct {
	Kind      OpKind         `toml:"kind"`
	Model     string         `toml:"model"`
	FieldName string         `toml:"field_name,omitempty"`
	Field     *schema.Field  `toml:"field,omitempty"`
	Fields    []schema.Field `toml:"fields,omitempty"`
}

// Describe returns a one-line summary, e.g. "Add field rating to movie".
func (o Operation) Describe() string {
	switch o.Kind {
	case CreateModel:
		return fmt.Sprintf("Create model %s", o.Model)
	case DeleteModel:
		return fmt.Sprintf("Delete model %s", o.Model)
	case AddField:
		return fmt.Sprintf("Add field %s to %s", o.Field.Name, strings.ToLower(o.Model))
	case RemoveField:
		return fmt.Sprintf("Remove field %s from %s", o.FieldName, strings.ToLower(o.Model))
	case AlterField:
		return fmt.Sprintf("Alter field %s on %s", o.Field.Name, strings.ToLower(o.Model))
	default:
		return string(o.Kind)
	}
}

func (o Operation) validate() error {
	if o.Model == "" {
		return fmt.Errorf("%s operation without model", o.Kind)
	}
	switch o.Kind {
	case CreateModel, DeleteModel:
	case AddField, AlterField:
		if o.Field == nil {
			return fmt.Errorf("%s on %s without field", o.Kind, o.Model)
		}
	case RemoveField:
		if o.FieldName == "" {
			return fmt.Errorf("%s on %s without field_name", o.Kind, o.Model)
		}
	default:
		return fmt.Errorf("unknown operation kind %q", o.Kind)
	}
	return nil
}

// Descriptor is a generated migration: an ordered set of operations plus the migrations it depends on.
type Descriptor struct {
	App          string      `toml:"app"`
	Name         string      `toml:"name"`
	Initial      bool        `toml:"initial"`
	Dependencies []string    `toml:"dependencies"`
	Operations   []Operation `toml:"operations"`
}

// Number returns the numeric prefix of the descriptor name ("0003_movie_rating" -> 3), or -1.
func (d *Descriptor) Number() int {
	return nameNumber(d.Name)
}

func nameNumber(name string) int {
	prefix, _, _ := strings.Cut(name, "_")
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return -1
	}
	return n
}

// Load reads every descriptor in dir, sorted by name. A missing directory yields no descriptors.
func Load(dir string) ([]*Descriptor, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var descriptors []*Descriptor
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), descriptorExt) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		var d Descriptor
		if _, err := toml.DecodeFile(path, &d); err != nil {
			return nil, fmt.Errorf("failed to parse migration %s: %w", entry.Name(), err)
		}

		stem := strings.TrimSuffix(entry.Name(), descriptorExt)
		if d.Name == "" {
			d.Name = stem
		}
		if d.Name != stem {
			return nil, fmt.Errorf("migration %s declares name %q", entry.Name(), d.Name)
		}
		if d.Number() < 0 {
			return nil, fmt.Errorf("migration %s has no numeric prefix", entry.Name())
		}
		for _, op := range d.Operations {
			if err := op.validate(); err != nil {
				return nil, fmt.Errorf("migration %s: %w", d.Name, err)
			}
		}

		descriptors = append(descriptors, &d)
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].Name < descriptors[j].Name
	})

	return descriptors, nil
}

// Write encodes d into dir as "<name>.toml" and returns the file path.
// An existing file with the same name is never overwritten.
func Write(dir string, d *Descriptor, generated time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Generated by provision on %s\n\n", generated.Format(time.RFC3339))
	if err := toml.NewEncoder(&buf).Encode(d); err != nil {
		return "", fmt.Errorf("failed to encode migration: %w", err)
	}

	path := filepath.Join(dir, d.Name+descriptorExt)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create migration file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to write migration file: %w", err)
	}

	return path, nil
}
