package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// CommandEntry is one resolved device command in the audit trail.
type CommandEntry struct {
	ID           string          `json:"id"`
	CommandID    uint32          `json:"command_id"`
	DeviceIndex  *uint32         `json:"device_index,omitempty"`
	DeviceName   string          `json:"device_name,omitempty"`
	CommandType  string          `json:"command_type"`
	Kind         string          `json:"kind,omitempty"`
	FeatureIndex *uint32         `json:"feature_index,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	Outcome      string          `json:"outcome"`
	Error        string          `json:"error,omitempty"`
	SubmittedAt  time.Time       `json:"submitted_at"`
	Latency      time.Duration   `json:"latency"`
}

// Filter controls which entries List returns.
type Filter struct {
	DeviceIndex *uint32 // optional: only this device
	Outcome     string  // optional: ok, timeout, protocol_error, ...
	Limit       int     // default 50, max 200
	Offset      int
}

// ListResult is a page of audit entries, newest first.
type ListResult struct {
	Entries []CommandEntry `json:"entries"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// Repository stores and queries command audit entries.
type Repository interface {
	Create(ctx context.Context, entry *CommandEntry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository keeps the audit trail in the command_audit table.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. ID and SubmittedAt are filled in if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *CommandEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.SubmittedAt.IsZero() {
		entry.SubmittedAt = time.Now().UTC()
	}
	payload := entry.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_audit
		   (id, command_id, device_index, device_name, command_type, kind, feature_index,
		    payload, outcome, error, submitted_at, latency_us)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, int64(entry.CommandID),
		nullableIndex(entry.DeviceIndex), nullableString(entry.DeviceName),
		entry.CommandType, nullableString(entry.Kind), nullableIndex(entry.FeatureIndex),
		string(payload), entry.Outcome, nullableString(entry.Error),
		entry.SubmittedAt.UTC().Format(time.RFC3339Nano),
		entry.Latency.Microseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting command audit entry: %w", err)
	}
	return nil
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.DeviceIndex != nil {
		conditions = append(conditions, "device_index = ?")
		args = append(args, int64(*filter.DeviceIndex))
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_audit " + where //nolint:gosec // WHERE built from fixed conditions with placeholders
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command audit entries: %w", err)
	}

	query := `SELECT id, command_id, device_index, device_name, command_type, kind, feature_index,
	                 payload, outcome, error, submitted_at, latency_us
	          FROM command_audit ` + where + ` ORDER BY submitted_at DESC, rowid DESC LIMIT ? OFFSET ?` //nolint:gosec // as above
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command audit entries: %w", err)
	}
	defer rows.Close()

	entries := []CommandEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// ListByDevice returns the most recent entries for one device.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceIndex uint32, limit int) (*ListResult, error) {
	return r.List(ctx, Filter{DeviceIndex: &deviceIndex, Limit: limit})
}

// Prune deletes entries submitted before cutoff and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM command_audit WHERE submitted_at < ?",
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning command audit entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning command audit entries: %w", err)
	}
	return n, nil
}

func scanEntry(rows *sql.Rows) (CommandEntry, error) {
	var (
		e                         CommandEntry
		commandID, latencyUS      int64
		deviceIndex, featureIndex sql.NullInt64
		deviceName, kind, errText sql.NullString
		payload, submittedAt      string
	)
	if err := rows.Scan(&e.ID, &commandID, &deviceIndex, &deviceName, &e.CommandType, &kind,
		&featureIndex, &payload, &e.Outcome, &errText, &submittedAt, &latencyUS); err != nil {
		return CommandEntry{}, fmt.Errorf("scanning command audit entry: %w", err)
	}

	e.CommandID = uint32(commandID) //nolint:gosec // stored from a uint32
	e.DeviceIndex = indexFromNull(deviceIndex)
	e.FeatureIndex = indexFromNull(featureIndex)
	e.DeviceName = deviceName.String
	e.Kind = kind.String
	e.Error = errText.String
	e.Payload = json.RawMessage(payload)
	e.Latency = time.Duration(latencyUS) * time.Microsecond

	t, err := time.Parse(time.RFC3339Nano, submittedAt)
	if err != nil {
		return CommandEntry{}, fmt.Errorf("parsing audit timestamp %q: %w", submittedAt, err)
	}
	e.SubmittedAt = t
	return e, nil
}

// nullableString returns nil for empty strings so TEXT columns stay NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableIndex(i *uint32) any {
	if i == nil {
		return nil
	}
	return int64(*i)
}

func indexFromNull(n sql.NullInt64) *uint32 {
	if !n.Valid {
		return nil
	}
	v := uint32(n.Int64) //nolint:gosec // stored from a uint32
	return &v
}
