package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wanderstay/platform/logger"
)

// Recorder writes domain events to the audit_logs table. Recording is fire and
// forget: an audit failure must never fail the operation being audited.
type Recorder struct {
	DB *pgxpool.Pool
}

func NewRecorder(db *pgxpool.Pool) *Recorder {
	return &Recorder{DB: db}
}

// Record persists one audit entry. Failures are logged and swallowed.
func (r *Recorder) Record(ctx context.Context, action, entityType, entityID string, details map[string]interface{}) {
	var raw []byte
	if details != nil {
		var err error
		raw, err = json.Marshal(details)
		if err != nil {
			logger.WarnLogger.Warnf("Failed to encode audit details for %s on %s %s: %v", action, entityType, entityID, err)
			raw = nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		logger.WarnLogger.Warnf("Failed to generate audit entry id: %v", err)
		return
	}

	_, err = r.DB.Exec(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		id, action, entityType, entityID, raw)
	if err != nil {
		logger.WarnLogger.Warnf("Failed to record audit entry %s on %s %s: %v", action, entityType, entityID, err)
	}
}

// ActionCounts aggregates audit entries per action since the given time. The
// admin webhook health endpoint uses this to spot gateways going quiet or
// failure actions spiking.
func (r *Recorder) ActionCounts(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT action, COUNT(*) FROM audit_logs WHERE created_at >= $1 GROUP BY action`,
		since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit actions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var action string
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("failed to scan audit aggregate: %w", err)
		}
		counts[action] = n
	}
	return counts, rows.Err()
}

// LastEntryAt returns the timestamp of the newest audit entry, or nil when the
// table is empty.
func (r *Recorder) LastEntryAt(ctx context.Context) (*time.Time, error) {
	var at *time.Time
	err := r.DB.QueryRow(ctx, `SELECT MAX(created_at) FROM audit_logs`).Scan(&at)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest audit entry: %w", err)
	}
	return at, nil
}
