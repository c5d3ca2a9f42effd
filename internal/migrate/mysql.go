package migrate

import (
	"fmt"
	"strings"

	"github.com/desertthunder/provision/internal/schema"
)

// MySQL renders SQL for MySQL and MariaDB.
//
// MySQL parses but ignores inline REFERENCES, so foreign keys are always named table constraints.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (MySQL) Placeholder(int) string { return "?" }

func (MySQL) PrimaryKey() string { return "bigint AUTO_INCREMENT NOT NULL PRIMARY KEY" }

func (MySQL) InlineReferences() bool { return false }

func (MySQL) ColumnType(f schema.Field) string {
	switch f.Type {
	case schema.Char, schema.File, schema.Image:
		return fmt.Sprintf("varchar(%d)", f.Length())
	case schema.Text:
		return "longtext"
	case schema.Int:
		return "integer"
	case schema.Bool:
		return "bool"
	case schema.DateTime:
		return "datetime(6)"
	case schema.UUID:
		return "char(32)"
	case schema.ForeignKey:
		return "bigint"
	default:
		return "longtext"
	}
}

func (d MySQL) AddColumn(t Table, f schema.Field) ([]string, error) {
	def, err := columnDef(d, f, true)
	if err != nil {
		return nil, err
	}

	table := d.Quote(t.Name())
	stmts := []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, def)}
	if f.Type == schema.ForeignKey {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s", table, foreignKeyConstraint(d, t.App, t.Name(), f)))
	}
	return stmts, nil
}

func (d MySQL) AlterColumn(t Table, old, cur schema.Field) ([]string, error) {
	if !columnChanged(d, old, cur) {
		return nil, nil
	}

	table := d.Quote(t.Name())
	col := d.Quote(cur.Column())

	fill, err := backfill(d, t.Name(), old, cur)
	if err != nil {
		return nil, err
	}
	stmts := fill

	def, err := columnDef(d, cur, false)
	if err != nil {
		return nil, err
	}
	stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s MODIFY %s", table, def))

	if old.Unique != cur.Unique {
		if cur.Unique {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD UNIQUE INDEX %s (%s)", table, col, col))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP INDEX %s", table, col))
		}
	}

	if cur.Type == schema.ForeignKey && old.OnDelete != cur.OnDelete {
		stmts = append(stmts,
			fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", table, d.Quote(foreignKeyName(t.Name(), cur))),
			fmt.Sprintf("ALTER TABLE %s ADD %s", table, foreignKeyConstraint(d, t.App, t.Name(), cur)),
		)
	}

	return stmts, nil
}

func (d MySQL) DropColumn(t Table, f schema.Field) ([]string, error) {
	table := d.Quote(t.Name())
	var stmts []string
	if f.Type == schema.ForeignKey {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", table, d.Quote(foreignKeyName(t.Name(), f))))
	}
	return append(stmts, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, d.Quote(f.Column()))), nil
}
