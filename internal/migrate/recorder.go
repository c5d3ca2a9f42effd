package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/provision/internal/schema"
)

// RecordTable lists the descriptors applied to a target database.
const RecordTable = "provision_migrations"

// Record is one applied descriptor.
type Record struct {
	App     string
	Name    string
	Applied time.Time
}

// execer is satisfied by both [sql.DB] and [sql.Tx].
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Recorder reads and writes the applied-migrations table.
type Recorder struct {
	db      *sql.DB
	dialect Dialect
}

func NewRecorder(db *sql.DB, d Dialect) *Recorder {
	return &Recorder{db: db, dialect: d}
}

// EnsureTable creates the record table when it does not exist.
func (r *Recorder) EnsureTable(ctx context.Context) error {
	d := r.dialect
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s %s, %s varchar(255) NOT NULL, %s varchar(255) NOT NULL, %s %s NOT NULL)",
		d.Quote(RecordTable),
		d.Quote("id"), d.PrimaryKey(),
		d.Quote("app"),
		d.Quote("name"),
		d.Quote("applied"), d.ColumnType(schema.Field{Type: schema.DateTime}),
	)
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s table: %w", RecordTable, err)
	}
	return nil
}

// Applied returns the records for app in application order.
func (r *Recorder) Applied(ctx context.Context, app string) ([]Record, error) {
	d := r.dialect
	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s = %s ORDER BY %s",
		d.Quote("app"), d.Quote("name"), d.Quote("applied"),
		d.Quote(RecordTable), d.Quote("app"), d.Placeholder(1), d.Quote("id"))

	rows, err := r.db.QueryContext(ctx, query, app)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.App, &rec.Name, &rec.Applied); err != nil {
			return nil, fmt.Errorf("failed to scan applied migration: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// record inserts an applied row through q, usually the transaction applying the descriptor.
func (r *Recorder) record(ctx context.Context, q execer, app, name string, applied time.Time) error {
	d := r.dialect
	query := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)",
		d.Quote(RecordTable), d.Quote("app"), d.Quote("name"), d.Quote("applied"),
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
	if _, err := q.ExecContext(ctx, query, app, name, applied.UTC()); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}
	return nil
}
