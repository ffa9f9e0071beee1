// Package postgres provides a PostgreSQL-backed recovery store so a
// restarted monitor can show the outcome of a run that finished while it
// was away.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensoc/runwatch/internal/domain/analysis"
	"github.com/opensoc/runwatch/internal/infra/storage"
)

var _ analysis.RecoveryStore = (*recoveryStore)(nil)

// recoveryStore implements analysis.RecoveryStore on a single
// monitor_recovery row per resource. The terminal snapshot is stored as
// JSONB; the schema does not need to follow the snapshot's field set.
type recoveryStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewRecoveryStore creates a PostgreSQL-backed recovery store with tracing
// capabilities.
func NewRecoveryStore(pool *pgxpool.Pool, tracer trace.Tracer) *recoveryStore {
	return &recoveryStore{db: pool, tracer: tracer}
}

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

// SaveTerminalRun upserts the terminal snapshot and flips the visibility
// flag in one statement, so a crash between the two writes cannot leave a
// visible-but-missing snapshot.
func (r *recoveryStore) SaveTerminalRun(ctx context.Context, resourceID uuid.UUID, snap *analysis.RunSnapshot) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("resource_id", resourceID.String()),
		attribute.String("run_id", snap.RunID.String()),
		attribute.String("status", snap.Status.String()),
	)

	return storage.TraceQuery(ctx, r.tracer, "postgres.save_terminal_run", dbAttrs, func(ctx context.Context) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshaling terminal snapshot: %w", err)
		}

		_, err = r.db.Exec(ctx, `
			INSERT INTO monitor_recovery (resource_id, show_completed, terminal_snapshot, updated_at)
			VALUES ($1, TRUE, $2, now())
			ON CONFLICT (resource_id) DO UPDATE
			SET show_completed = TRUE,
			    terminal_snapshot = EXCLUDED.terminal_snapshot,
			    updated_at = now()`,
			resourceID, data,
		)
		if err != nil {
			return fmt.Errorf("upserting terminal snapshot: %w", err)
		}
		return nil
	})
}

// TerminalRun loads the persisted terminal snapshot, returning
// analysis.ErrNoTerminalRun when the resource has no entry or the entry
// holds no snapshot.
func (r *recoveryStore) TerminalRun(ctx context.Context, resourceID uuid.UUID) (*analysis.RunSnapshot, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("resource_id", resourceID.String()),
	)

	var snap *analysis.RunSnapshot
	err := storage.TraceQuery(ctx, r.tracer, "postgres.terminal_run", dbAttrs, func(ctx context.Context) error {
		var data []byte
		err := r.db.QueryRow(ctx,
			`SELECT terminal_snapshot FROM monitor_recovery WHERE resource_id = $1`,
			resourceID,
		).Scan(&data)
		if errors.Is(err, pgx.ErrNoRows) {
			return analysis.ErrNoTerminalRun
		}
		if err != nil {
			return fmt.Errorf("querying terminal snapshot: %w", err)
		}
		if len(data) == 0 {
			return analysis.ErrNoTerminalRun
		}

		snap = new(analysis.RunSnapshot)
		if err := json.Unmarshal(data, snap); err != nil {
			return fmt.Errorf("unmarshaling terminal snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ShowCompleted reports the persisted visibility flag, defaulting to false
// when the resource has no entry.
func (r *recoveryStore) ShowCompleted(ctx context.Context, resourceID uuid.UUID) (bool, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("resource_id", resourceID.String()),
	)

	var show bool
	err := storage.TraceQuery(ctx, r.tracer, "postgres.show_completed", dbAttrs, func(ctx context.Context) error {
		err := r.db.QueryRow(ctx,
			`SELECT show_completed FROM monitor_recovery WHERE resource_id = $1`,
			resourceID,
		).Scan(&show)
		if errors.Is(err, pgx.ErrNoRows) {
			show = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("querying show_completed: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return show, nil
}

// SetShowCompleted updates the visibility flag without touching the
// snapshot entry.
func (r *recoveryStore) SetShowCompleted(ctx context.Context, resourceID uuid.UUID, show bool) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("resource_id", resourceID.String()),
		attribute.Bool("show_completed", show),
	)

	return storage.TraceQuery(ctx, r.tracer, "postgres.set_show_completed", dbAttrs, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO monitor_recovery (resource_id, show_completed, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (resource_id) DO UPDATE
			SET show_completed = EXCLUDED.show_completed,
			    updated_at = now()`,
			resourceID, show,
		)
		if err != nil {
			return fmt.Errorf("upserting show_completed: %w", err)
		}
		return nil
	})
}

// Clear removes the resource's entry entirely.
func (r *recoveryStore) Clear(ctx context.Context, resourceID uuid.UUID) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("resource_id", resourceID.String()),
	)

	return storage.TraceQuery(ctx, r.tracer, "postgres.clear_recovery", dbAttrs, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx,
			`DELETE FROM monitor_recovery WHERE resource_id = $1`,
			resourceID,
		)
		if err != nil {
			return fmt.Errorf("deleting recovery entry: %w", err)
		}
		return nil
	})
}
