package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
)

var tableNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidateTable rejects names that cannot be spliced into SQL unquoted.
func ValidateTable(name string) error {
	if !tableNameRE.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// TimescaleSink archives one row per metric carried by each reading.
type TimescaleSink struct {
	db        *sql.DB
	tableName string
}

func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	return &TimescaleSink{db: db, tableName: table}
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

// EnsureSchema creates the archive table when it does not exist yet.
func (t *TimescaleSink) EnsureSchema(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+t.tableName+
		" (metric TEXT NOT NULL, value DOUBLE PRECISION NOT NULL, received_at TIMESTAMPTZ NOT NULL,"+
		" PRIMARY KEY (metric, received_at))")
	if err != nil {
		return fmt.Errorf("create table %s: %w", t.tableName, err)
	}
	return nil
}

func (t *TimescaleSink) WriteBatch(ctx context.Context, readings []*domain.Reading) error {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (metric, value, received_at) VALUES ")

	args := make([]any, 0, len(readings)*3)
	for _, r := range readings {
		for _, m := range domain.Metrics {
			v, ok := r.Value(m)
			if !ok {
				continue
			}
			if len(args) > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "($%d,$%d,$%d)", len(args)+1, len(args)+2, len(args)+3)
			args = append(args, string(m), v, r.ReceivedAt)
		}
	}
	if len(args) == 0 {
		return nil
	}

	// Replayed batches hit the primary key and are skipped.
	b.WriteString(" ON CONFLICT (metric, received_at) DO NOTHING")

	if _, err := t.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert into %s: %w", t.tableName, err)
	}
	return nil
}

var _ ports.Sink = (*TimescaleSink)(nil)
