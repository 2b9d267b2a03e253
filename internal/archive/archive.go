// Package archive keeps a long-term copy of the power timeline in Postgres.
// Rows are upserted so a slot can move from OFF to ON but never back.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sweeney/outlet-monitor/internal/fanout"
	"github.com/sweeney/outlet-monitor/internal/logic"
)

const schema = `CREATE TABLE IF NOT EXISTS outlet_slots (
	slot       TIMESTAMPTZ PRIMARY KEY,
	state      SMALLINT NOT NULL CHECK (state IN (0, 1)),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsert = `INSERT INTO outlet_slots (slot, state)
SELECT * FROM unnest($1::timestamptz[], $2::smallint[])
ON CONFLICT (slot) DO UPDATE
SET state = GREATEST(outlet_slots.state, EXCLUDED.state), updated_at = now()`

const selectRange = `SELECT slot, state FROM outlet_slots WHERE slot >= $1 AND slot < $2 ORDER BY slot`

// Archive writes slot changes to Postgres.
type Archive struct {
	db  *sql.DB
	log *zap.Logger
}

// Open connects to Postgres with dsn and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// New wraps db.
func New(db *sql.DB, log *zap.Logger) *Archive {
	if log == nil {
		log = zap.NewNop()
	}
	return &Archive{db: db, log: log.Named("archive")}
}

// EnsureSchema creates the slot table if it does not exist.
func (a *Archive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("archive: create table: %w", err)
	}
	return nil
}

// Name implements fanout.Sink.
func (a *Archive) Name() string { return "postgres" }

// Deliver implements fanout.Sink.
func (a *Archive) Deliver(ctx context.Context, ev fanout.Event) error {
	if len(ev.Changes) == 0 {
		return nil
	}
	slots := make([]string, len(ev.Changes))
	states := make([]int64, len(ev.Changes))
	for i, c := range ev.Changes {
		slots[i] = logic.FormatSlot(c.Slot)
		states[i] = int64(c.State.Bit())
	}

	res, err := a.db.ExecContext(ctx, upsert, pq.Array(slots), pq.Array(states))
	if err != nil {
		return fmt.Errorf("archive: upsert %d slots: %w", len(slots), err)
	}
	if n, err := res.RowsAffected(); err == nil {
		a.log.Debug("archived slots", zap.Int64("rows", n))
	}
	return nil
}

// Range returns archived slots in [from, to) in ascending order.
func (a *Archive) Range(ctx context.Context, from, to time.Time) ([]logic.Entry, error) {
	rows, err := a.db.QueryContext(ctx, selectRange, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("archive: query range: %w", err)
	}
	defer rows.Close()

	var out []logic.Entry
	for rows.Next() {
		var (
			slot time.Time
			bit  int
		)
		if err := rows.Scan(&slot, &bit); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		state, err := logic.StateFromBit(bit)
		if err != nil {
			return nil, fmt.Errorf("archive: slot %s: %w", slot.UTC().Format(time.RFC3339), err)
		}
		out = append(out, logic.Entry{Slot: slot.UTC(), State: state})
	}
	return out, rows.Err()
}
