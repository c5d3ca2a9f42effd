// package schema defines the application's declared data models.
//
// Definitions are read from TOML. When no file is configured the built-in
// netflixapp definitions are used.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed netflixapp.toml
var builtinModels []byte

// FieldType enumerates supported column kinds.
type FieldType string

const (
	Char       FieldType = "char"
	Text       FieldType = "text"
	Int        FieldType = "int"
	Bool       FieldType = "bool"
	DateTime   FieldType = "datetime"
	UUID       FieldType = "uuid"
	File       FieldType = "file"
	Image      FieldType = "image"
	ForeignKey FieldType = "foreign_key"
	ManyToMany FieldType = "many_to_many"
)

// defaultFileLength is the column length for file and image paths without max_length.
const defaultFileLength = 100

var knownTypes = map[FieldType]bool{
	Char: true, Text: true, Int: true, Bool: true, DateTime: true,
	UUID: true, File: true, Image: true, ForeignKey: true, ManyToMany: true,
}

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Field is a single declared model attribute.
type Field struct {
	Name        string    `toml:"name"`
	Type        FieldType `toml:"type"`
	MaxLength   int       `toml:"max_length,omitempty"`
	Null        bool      `toml:"null,omitempty"`
	Blank       bool      `toml:"blank,omitempty"`
	Unique      bool      `toml:"unique,omitempty"`
	Default     *string   `toml:"default,omitempty"`
	DefaultFunc string    `toml:"default_func,omitempty"`
	AutoNowAdd  bool      `toml:"auto_now_add,omitempty"`
	Choices     []string  `toml:"choices,omitempty"`
	UploadTo    string    `toml:"upload_to,omitempty"`
	To          string    `toml:"to,omitempty"`
	OnDelete    string    `toml:"on_delete,omitempty"`
}

// Model is a declared entity, stored in one table.
type Model struct {
	Name   string  `toml:"name"`
	Fields []Field `toml:"fields"`
}

// Project is the full set of models declared by one application.
type Project struct {
	App    string  `toml:"app"`
	Models []Model `toml:"models"`
}

// Load reads model definitions from path, or the built-in definitions when path is empty.
func Load(path string) (*Project, error) {
	data := builtinModels
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read model definitions: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Parse decodes TOML model definitions and validates them.
func Parse(data []byte) (*Project, error) {
	var project Project
	if _, err := toml.Decode(string(data), &project); err != nil {
		return nil, fmt.Errorf("failed to parse model definitions: %w", err)
	}
	if err := project.Validate(); err != nil {
		return nil, err
	}
	return &project, nil
}

// Builtin returns the netflixapp model definitions.
func Builtin() *Project {
	project, err := Parse(builtinModels)
	if err != nil {
		panic(fmt.Sprintf("failed to parse embedded model definitions: %v", err))
	}
	return project
}

// Validate checks identifiers, types and relation targets.
func (p *Project) Validate() error {
	if err := validateIdentifier(p.App, "app"); err != nil {
		return err
	}

	seen := make(map[string]bool, len(p.Models))
	for _, m := range p.Models {
		if err := validateIdentifier(m.Name, "model name"); err != nil {
			return err
		}
		key := strings.ToLower(m.Name)
		if seen[key] {
			return fmt.Errorf("duplicate model %q", m.Name)
		}
		seen[key] = true
	}

	for _, m := range p.Models {
		fields := make(map[string]bool, len(m.Fields))
		for _, f := range m.Fields {
			if err := f.validate(m.Name); err != nil {
				return err
			}
			if f.Name == "id" {
				return fmt.Errorf("%s.id is implicit and cannot be declared", m.Name)
			}
			if fields[f.Name] {
				return fmt.Errorf("duplicate field %s.%s", m.Name, f.Name)
			}
			fields[f.Name] = true
			if f.IsRelation() && !seen[strings.ToLower(f.To)] {
				return fmt.Errorf("%s.%s references unknown model %q", m.Name, f.Name, f.To)
			}
		}
	}

	return nil
}

func (f Field) validate(model string) error {
	if err := validateIdentifier(f.Name, "field name"); err != nil {
		return fmt.Errorf("%s: %w", model, err)
	}
	if !knownTypes[f.Type] {
		return fmt.Errorf("%s.%s has unknown type %q", model, f.Name, f.Type)
	}
	if f.Type == Char && f.MaxLength <= 0 {
		return fmt.Errorf("%s.%s: char fields require max_length", model, f.Name)
	}
	if f.IsRelation() && f.To == "" {
		return fmt.Errorf("%s.%s: relation fields require a target model", model, f.Name)
	}
	for _, c := range f.Choices {
		if f.MaxLength > 0 && len(c) > f.MaxLength {
			return fmt.Errorf("%s.%s: choice %q exceeds max_length %d", model, f.Name, c, f.MaxLength)
		}
	}
	return nil
}

func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// Model returns the model with the given name, compared case-insensitively.
func (p *Project) Model(name string) (*Model, bool) {
	for i := range p.Models {
		if strings.EqualFold(p.Models[i].Name, name) {
			return &p.Models[i], true
		}
	}
	return nil, false
}

// Table returns the database table of model within this project.
func (p *Project) Table(model string) string {
	return TableName(p.App, model)
}

// TableName returns "<app>_<model>" in lower case.
func TableName(app, model string) string {
	return strings.ToLower(app + "_" + model)
}

// JoinTable returns the table backing a many-to-many field.
func JoinTable(app, model, field string) string {
	return strings.ToLower(app + "_" + model + "_" + field)
}

// Field returns the named field.
func (m *Model) Field(name string) (*Field, bool) {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i], true
		}
	}
	return nil, false
}

// Columns returns the fields that are stored as columns on the model's own table.
func (m *Model) Columns() []Field {
	var cols []Field
	for _, f := range m.Fields {
		if f.Type != ManyToMany {
			cols = append(cols, f)
		}
	}
	return cols
}

// IsRelation reports whether the field points at another model.
func (f Field) IsRelation() bool {
	return f.Type == ForeignKey || f.Type == ManyToMany
}

// Column returns the database column name, "<name>_id" for foreign keys.
func (f Field) Column() string {
	if f.Type == ForeignKey {
		return f.Name + "_id"
	}
	return f.Name
}

// Length returns the effective column length for char-like fields.
func (f Field) Length() int {
	if (f.Type == File || f.Type == Image) && f.MaxLength == 0 {
		return defaultFileLength
	}
	return f.MaxLength
}

// NeedsBackfill reports whether adding f to a populated table requires a value for existing rows.
func (f Field) NeedsBackfill() bool {
	return f.Type != ManyToMany && !f.Null && f.Default == nil
}

// Equal compares two field declarations, including every attribute.
func (f Field) Equal(o Field) bool {
	if f.Name != o.Name || f.Type != o.Type || f.MaxLength != o.MaxLength ||
		f.Null != o.Null || f.Blank != o.Blank || f.Unique != o.Unique ||
		f.DefaultFunc != o.DefaultFunc || f.AutoNowAdd != o.AutoNowAdd ||
		f.UploadTo != o.UploadTo || !strings.EqualFold(f.To, o.To) || f.OnDelete != o.OnDelete {
		return false
	}
	if (f.Default == nil) != (o.Default == nil) {
		return false
	}
	if f.Default != nil && *f.Default != *o.Default {
		return false
	}
	if len(f.Choices) != len(o.Choices) {
		return false
	}
	for i := range f.Choices {
		if f.Choices[i] != o.Choices[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	c := &Project{App: p.App, Models: make([]Model, len(p.Models))}
	for i, m := range p.Models {
		c.Models[i] = m.Clone()
	}
	return c
}

// Clone returns a deep copy of the model.
func (m Model) Clone() Model {
	c := Model{Name: m.Name, Fields: make([]Field, len(m.Fields))}
	for i, f := range m.Fields {
		c.Fields[i] = f.Clone()
	}
	return c
}

// Clone returns a deep copy of the field.
func (f Field) Clone() Field {
	c := f
	if f.Default != nil {
		d := *f.Default
		c.Default = &d
	}
	if f.Choices != nil {
		c.Choices = append([]string(nil), f.Choices...)
	}
	return c
}

// Ptr returns a pointer to s, for building literal defaults.
func Ptr(s string) *string {
	return &s
}
