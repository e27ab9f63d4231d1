package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/buttrest/internal/gateway"
)

// Publisher is the subset of Client used by ActivitySink.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

var _ Publisher = (*Client)(nil)

// ActivitySink publishes gateway activity records as JSON, one message per
// record, on the topic chosen by Topics.ForActivity.
type ActivitySink struct {
	pub Publisher
	qos byte
}

// NewActivitySink returns a sink publishing through pub at the given QoS.
func NewActivitySink(pub Publisher, qos byte) *ActivitySink {
	return &ActivitySink{pub: pub, qos: qos}
}

// HandleActivity implements gateway.ActivitySink.
func (s *ActivitySink) HandleActivity(_ context.Context, a gateway.Activity) error {
	topic, retained, ok := Topics{}.ForActivity(a)
	if !ok {
		return nil
	}

	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding %s activity: %w", a.Kind, err)
	}
	if err := s.pub.Publish(topic, payload, s.qos, retained); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}
