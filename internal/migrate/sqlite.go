package migrate

import (
	"fmt"
	"strings"

	"github.com/desertthunder/provision/internal/schema"
)

// SQLite renders SQL for SQLite. Column changes SQLite cannot express in place rebuild the table.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite3" }

func (SQLite) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) PrimaryKey() string { return "integer NOT NULL PRIMARY KEY AUTOINCREMENT" }

func (SQLite) InlineReferences() bool { return true }

func (SQLite) ColumnType(f schema.Field) string {
	switch f.Type {
	case schema.Char, schema.File, schema.Image:
		return fmt.Sprintf("varchar(%d)", f.Length())
	case schema.Text:
		return "text"
	case schema.Int:
		return "integer"
	case schema.Bool:
		return "bool"
	case schema.DateTime:
		return "datetime"
	case schema.UUID:
		return "char(32)"
	case schema.ForeignKey:
		return "bigint"
	default:
		return "text"
	}
}

// AddColumn uses ALTER TABLE ADD COLUMN unless the column is UNIQUE or a non-null reference,
// which SQLite only accepts through a rebuild.
func (d SQLite) AddColumn(t Table, f schema.Field) ([]string, error) {
	if f.Unique || (f.Type == schema.ForeignKey && !f.Null) {
		after := t.Model.Clone()
		after.Fields = append(after.Fields, f.Clone())
		return d.rebuild(t, after, nil)
	}

	def, err := columnDef(d, f, false)
	if err != nil {
		return nil, err
	}
	if f.Type == schema.ForeignKey {
		def += " " + references(d, t.App, f)
	}
	return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(t.Name()), def)}, nil
}

func (d SQLite) AlterColumn(t Table, old, cur schema.Field) ([]string, error) {
	if !columnChanged(d, old, cur) {
		return nil, nil
	}

	after := t.Model.Clone()
	for i := range after.Fields {
		if after.Fields[i].Name == cur.Name {
			after.Fields[i] = cur.Clone()
		}
	}

	copyExpr := map[string]string{}
	if old.Null && !cur.Null && cur.Default != nil {
		lit, err := Literal(cur, *cur.Default)
		if err != nil {
			return nil, err
		}
		copyExpr[cur.Column()] = fmt.Sprintf("COALESCE(%s, %s)", d.Quote(old.Column()), lit)
	}

	return d.rebuild(t, after, copyExpr)
}

func (d SQLite) DropColumn(t Table, f schema.Field) ([]string, error) {
	after := t.Model.Clone()
	kept := after.Fields[:0]
	for _, field := range after.Fields {
		if field.Name != f.Name {
			kept = append(kept, field)
		}
	}
	after.Fields = kept

	return d.rebuild(t, after, nil)
}

// rebuild recreates t with the columns of after and copies rows across.
//
// Columns new to after are filled from copyExpr or their default; columns present in both are copied.
func (d SQLite) rebuild(t Table, after schema.Model, copyExpr map[string]string) ([]string, error) {
	table := t.Name()
	tmp := "new__" + table

	create, err := createTable(d, t.App, tmp, after)
	if err != nil {
		return nil, err
	}

	cols := []string{d.Quote("id")}
	exprs := []string{d.Quote("id")}
	for _, f := range after.Columns() {
		if expr, ok := copyExpr[f.Column()]; ok {
			cols = append(cols, d.Quote(f.Column()))
			exprs = append(exprs, expr)
			continue
		}
		if _, existed := t.Model.Field(f.Name); !existed {
			continue
		}
		cols = append(cols, d.Quote(f.Column()))
		exprs = append(exprs, d.Quote(f.Column()))
	}

	return []string{
		create,
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			d.Quote(tmp), strings.Join(cols, ", "), strings.Join(exprs, ", "), d.Quote(table)),
		"DROP TABLE " + d.Quote(table),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(tmp), d.Quote(table)),
	}, nil
}
