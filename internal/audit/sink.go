package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/buttrest/internal/gateway"
)

// ActivitySink writes every resolved command from the gateway activity feed
// into a Repository. Other activity kinds are ignored.
type ActivitySink struct {
	repo Repository
}

// NewActivitySink returns a sink writing to repo.
func NewActivitySink(repo Repository) *ActivitySink {
	return &ActivitySink{repo: repo}
}

// HandleActivity implements gateway.ActivitySink.
func (s *ActivitySink) HandleActivity(ctx context.Context, a gateway.Activity) error {
	if a.Kind != gateway.ActivityCommand || a.Command == nil {
		return nil
	}
	entry, err := EntryFromActivity(a)
	if err != nil {
		return err
	}
	return s.repo.Create(ctx, entry)
}

// EntryFromActivity converts a command activity record into an audit entry.
func EntryFromActivity(a gateway.Activity) (*CommandEntry, error) {
	rec := a.Command
	if rec == nil {
		return nil, fmt.Errorf("activity %s has no command", a.Kind)
	}

	payload, err := json.Marshal(rec.Message)
	if err != nil {
		return nil, fmt.Errorf("encoding command %d: %w", rec.ID, err)
	}

	entry := &CommandEntry{
		CommandID:   rec.ID,
		DeviceIndex: a.DeviceIndex,
		DeviceName:  a.DeviceName,
		CommandType: rec.Type,
		Payload:     payload,
		Outcome:     string(rec.Outcome),
		Error:       rec.Error,
		SubmittedAt: rec.SubmittedAt,
		Latency:     rec.Latency,
	}
	if rec.Target != nil && rec.Target.Kind != "" {
		idx := rec.Target.Index
		entry.Kind = string(rec.Target.Kind)
		entry.FeatureIndex = &idx
	}
	return entry, nil
}
