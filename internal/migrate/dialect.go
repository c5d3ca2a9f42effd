package migrate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/provision/internal/schema"
	"github.com/desertthunder/provision/internal/shared"
)

// Dialect renders schema operations as SQL for one database engine.
type Dialect interface {
	Name() string
	Quote(ident string) string
	Placeholder(n int) string
	ColumnType(f schema.Field) string
	// PrimaryKey is the full definition of the implicit auto-increment id column, without its name.
	PrimaryKey() string
	// InlineReferences reports whether REFERENCES clauses are honored inside column definitions.
	InlineReferences() bool
	AddColumn(t Table, f schema.Field) ([]string, error)
	AlterColumn(t Table, old, cur schema.Field) ([]string, error)
	DropColumn(t Table, f schema.Field) ([]string, error)
}

// Table is a model as it exists before an operation runs.
type Table struct {
	App   string
	Model schema.Model
}

// Name returns the table name.
func (t Table) Name() string {
	return schema.TableName(t.App, t.Model.Name)
}

// NewDialect returns the dialect for a configured driver name.
func NewDialect(driver string) (Dialect, error) {
	name, err := shared.DriverName(driver)
	if err != nil {
		return nil, err
	}
	switch name {
	case "sqlite3":
		return SQLite{}, nil
	case "postgres":
		return Postgres{}, nil
	case "mysql":
		return MySQL{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", shared.ErrUnknownDriver, driver)
	}
}

// Render returns the statements for op, given the state before op runs.
func Render(d Dialect, s *State, op Operation) ([]string, error) {
	app := s.project.App

	switch op.Kind {
	case CreateModel:
		m := schema.Model{Name: op.Model, Fields: op.Fields}
		return createModel(d, app, m)

	case DeleteModel:
		m, ok := s.Model(op.Model)
		if !ok {
			return nil, fmt.Errorf("model %s does not exist", op.Model)
		}
		var stmts []string
		for _, f := range m.Fields {
			if f.Type == schema.ManyToMany {
				stmts = append(stmts, "DROP TABLE "+d.Quote(schema.JoinTable(app, m.Name, f.Name)))
			}
		}
		return append(stmts, "DROP TABLE "+d.Quote(schema.TableName(app, m.Name))), nil

	case AddField:
		m, ok := s.Model(op.Model)
		if !ok {
			return nil, fmt.Errorf("model %s does not exist", op.Model)
		}
		if op.Field.Type == schema.ManyToMany {
			stmt, err := joinTable(d, app, m.Name, *op.Field)
			if err != nil {
				return nil, err
			}
			return []string{stmt}, nil
		}
		return d.AddColumn(Table{App: app, Model: m}, *op.Field)

	case RemoveField:
		m, ok := s.Model(op.Model)
		if !ok {
			return nil, fmt.Errorf("model %s does not exist", op.Model)
		}
		f, ok := m.Field(op.FieldName)
		if !ok {
			return nil, fmt.Errorf("field %s.%s does not exist", op.Model, op.FieldName)
		}
		if f.Type == schema.ManyToMany {
			return []string{"DROP TABLE " + d.Quote(schema.JoinTable(app, m.Name, f.Name))}, nil
		}
		return d.DropColumn(Table{App: app, Model: m}, *f)

	case AlterField:
		m, ok := s.Model(op.Model)
		if !ok {
			return nil, fmt.Errorf("model %s does not exist", op.Model)
		}
		old, ok := m.Field(op.Field.Name)
		if !ok {
			return nil, fmt.Errorf("field %s.%s does not exist", op.Model, op.Field.Name)
		}
		if old.Type == schema.ManyToMany {
			return nil, nil
		}
		return d.AlterColumn(Table{App: app, Model: m}, *old, *op.Field)

	default:
		return nil, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

func createModel(d Dialect, app string, m schema.Model) ([]string, error) {
	stmt, err := createTable(d, app, schema.TableName(app, m.Name), m)
	if err != nil {
		return nil, err
	}
	stmts := []string{stmt}
	for _, f := range m.Fields {
		if f.Type != schema.ManyToMany {
			continue
		}
		join, err := joinTable(d, app, m.Name, f)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, join)
	}
	return stmts, nil
}

// createTable renders CREATE TABLE for the column fields of m under the given table name.
func createTable(d Dialect, app, table string, m schema.Model) (string, error) {
	defs := []string{d.Quote("id") + " " + d.PrimaryKey()}
	var constraints []string

	for _, f := range m.Columns() {
		def, err := columnDef(d, f, true)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
		}
		if f.Type == schema.ForeignKey {
			if d.InlineReferences() {
				def += " " + references(d, app, f)
			} else {
				constraints = append(constraints, foreignKeyConstraint(d, app, table, f))
			}
		}
		defs = append(defs, def)
	}

	defs = append(defs, constraints...)
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(table), strings.Join(defs, ", ")), nil
}

// joinTable renders the table backing a many-to-many field.
func joinTable(d Dialect, app, model string, f schema.Field) (string, error) {
	table := schema.JoinTable(app, model, f.Name)
	from := strings.ToLower(model) + "_id"
	to := strings.ToLower(f.To) + "_id"
	if strings.EqualFold(model, f.To) {
		from = "from_" + from
		to = "to_" + to
	}

	fromRef := schema.Field{Name: strings.TrimSuffix(from, "_id"), Type: schema.ForeignKey, To: model, OnDelete: "cascade"}
	toRef := schema.Field{Name: strings.TrimSuffix(to, "_id"), Type: schema.ForeignKey, To: f.To, OnDelete: "cascade"}

	defs := []string{d.Quote("id") + " " + d.PrimaryKey()}
	var constraints []string
	for _, ref := range []schema.Field{fromRef, toRef} {
		def := d.Quote(ref.Column()) + " " + d.ColumnType(ref) + " NOT NULL"
		if d.InlineReferences() {
			def += " " + references(d, app, ref)
		} else {
			constraints = append(constraints, foreignKeyConstraint(d, app, table, ref))
		}
		defs = append(defs, def)
	}
	defs = append(defs, fmt.Sprintf("UNIQUE (%s, %s)", d.Quote(from), d.Quote(to)))
	defs = append(defs, constraints...)

	return fmt.Sprintf("CREATE TABLE %s (%s)", d.Quote(table), strings.Join(defs, ", ")), nil
}

// columnDef renders "<name> <type> [NOT] NULL [UNIQUE] [DEFAULT x]" without references.
func columnDef(d Dialect, f schema.Field, unique bool) (string, error) {
	var b strings.Builder
	b.WriteString(d.Quote(f.Column()))
	b.WriteString(" ")
	b.WriteString(d.ColumnType(f))
	if f.Null {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if unique && f.Unique {
		b.WriteString(" UNIQUE")
	}
	if f.Default != nil {
		lit, err := Literal(f, *f.Default)
		if err != nil {
			return "", err
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	return b.String(), nil
}

func references(d Dialect, app string, f schema.Field) string {
	ref := fmt.Sprintf("REFERENCES %s (%s)", d.Quote(schema.TableName(app, f.To)), d.Quote("id"))
	return ref + onDelete(f)
}

func foreignKeyConstraint(d Dialect, app, table string, f schema.Field) string {
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) %s",
		d.Quote(foreignKeyName(table, f)), d.Quote(f.Column()), references(d, app, f))
}

func foreignKeyName(table string, f schema.Field) string {
	return "fk_" + table + "_" + f.Column()
}

func onDelete(f schema.Field) string {
	switch strings.ToLower(f.OnDelete) {
	case "cascade":
		return " ON DELETE CASCADE"
	case "set_null":
		return " ON DELETE SET NULL"
	case "restrict", "protect":
		return " ON DELETE RESTRICT"
	default:
		return ""
	}
}

// Literal renders a declared default as a SQL literal for the field's type.
func Literal(f schema.Field, value string) (string, error) {
	switch f.Type {
	case schema.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", fmt.Errorf("invalid bool default %q", value)
		}
		if b {
			return "TRUE", nil
		}
		return "FALSE", nil
	case schema.Int, schema.ForeignKey:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid integer default %q", value)
		}
		return strconv.FormatInt(n, 10), nil
	default:
		return "'" + strings.ReplaceAll(value, "'", "''") + "'", nil
	}
}

// columnChanged reports whether old and cur differ in anything stored by the database.
func columnChanged(d Dialect, old, cur schema.Field) bool {
	if d.ColumnType(old) != d.ColumnType(cur) || old.Null != cur.Null || old.Unique != cur.Unique {
		return true
	}
	if old.OnDelete != cur.OnDelete && cur.Type == schema.ForeignKey {
		return true
	}
	return defaultChanged(old, cur)
}

func defaultChanged(old, cur schema.Field) bool {
	if (old.Default == nil) != (cur.Default == nil) {
		return true
	}
	return old.Default != nil && *old.Default != *cur.Default
}

// backfill sets existing NULLs to the new default before a column becomes NOT NULL.
func backfill(d Dialect, table string, old, cur schema.Field) ([]string, error) {
	if !old.Null || cur.Null || cur.Default == nil {
		return nil, nil
	}
	lit, err := Literal(cur, *cur.Default)
	if err != nil {
		return nil, err
	}
	col := d.Quote(cur.Column())
	return []string{fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL", d.Quote(table), col, lit, col)}, nil
}
