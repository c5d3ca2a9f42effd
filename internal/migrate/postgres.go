package migrate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/provision/internal/schema"
)

// Postgres renders SQL for PostgreSQL.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) PrimaryKey() string {
	return "bigint NOT NULL PRIMARY KEY GENERATED BY DEFAULT AS IDENTITY"
}

func (Postgres) InlineReferences() bool { return true }

func (Postgres) ColumnType(f schema.Field) string {
	switch f.Type {
	case schema.Char, schema.File, schema.Image:
		return fmt.Sprintf("varchar(%d)", f.Length())
	case schema.Text:
		return "text"
	case schema.Int:
		return "integer"
	case schema.Bool:
		return "boolean"
	case schema.DateTime:
		return "timestamp with time zone"
	case schema.UUID:
		return "uuid"
	case schema.ForeignKey:
		return "bigint"
	default:
		return "text"
	}
}

func (d Postgres) AddColumn(t Table, f schema.Field) ([]string, error) {
	def, err := columnDef(d, f, true)
	if err != nil {
		return nil, err
	}
	if f.Type == schema.ForeignKey {
		def += " " + references(d, t.App, f)
	}
	return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(t.Name()), def)}, nil
}

func (d Postgres) AlterColumn(t Table, old, cur schema.Field) ([]string, error) {
	if !columnChanged(d, old, cur) {
		return nil, nil
	}

	table := d.Quote(t.Name())
	col := d.Quote(cur.Column())
	alter := func(clause string) string {
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", table, col, clause)
	}

	var stmts []string
	if typ := d.ColumnType(cur); typ != d.ColumnType(old) {
		stmts = append(stmts, alter(fmt.Sprintf("TYPE %s USING %s::%s", typ, col, typ)))
	}

	if defaultChanged(old, cur) {
		if cur.Default == nil {
			stmts = append(stmts, alter("DROP DEFAULT"))
		} else {
			lit, err := Literal(cur, *cur.Default)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, alter("SET DEFAULT "+lit))
		}
	}

	if old.Null != cur.Null {
		if cur.Null {
			stmts = append(stmts, alter("DROP NOT NULL"))
		} else {
			fill, err := backfill(d, t.Name(), old, cur)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, fill...)
			stmts = append(stmts, alter("SET NOT NULL"))
		}
	}

	if old.Unique != cur.Unique {
		name := d.Quote(uniqueName(t.Name(), cur))
		if cur.Unique {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", table, name, col))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", table, name))
		}
	}

	if cur.Type == schema.ForeignKey && old.OnDelete != cur.OnDelete {
		fk := d.Quote(postgresForeignKeyName(t.Name(), cur))
		stmts = append(stmts,
			fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", table, fk),
			fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) %s", table, fk, col, references(d, t.App, cur)),
		)
	}

	return stmts, nil
}

func (d Postgres) DropColumn(t Table, f schema.Field) ([]string, error) {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Quote(t.Name()), d.Quote(f.Column()))}, nil
}

// uniqueName is the name PostgreSQL gives an inline UNIQUE constraint.
func uniqueName(table string, f schema.Field) string {
	return table + "_" + f.Column() + "_key"
}

// postgresForeignKeyName is the name PostgreSQL gives an inline REFERENCES constraint.
func postgresForeignKeyName(table string, f schema.Field) string {
	return table + "_" + f.Column() + "_fkey"
}
