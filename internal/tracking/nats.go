package tracking

import (
	"context"
	"encoding/json"
	"time"

	"ai-agent/internal/queue"
)

const (
	natsPublishAttempts = 3
	natsPublishBackoff  = 100 * time.Millisecond
)

// NATSBackend publishes run lifecycle events for an out-of-process consumer.
type NATSBackend struct {
	pub     queue.Publisher
	subject string
}

func NewNATSBackend(pub queue.Publisher, subject string) *NATSBackend {
	return &NATSBackend{pub: pub, subject: subject}
}

func (b *NATSBackend) Name() string { return "nats" }

type runEvent struct {
	RunID   string   `json:"run_id"`
	Params  *Params  `json:"params,omitempty"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Status  Status   `json:"status,omitempty"`
}

func (b *NATSBackend) StartRun(ctx context.Context, p Params) (string, error) {
	return p.RunID, b.publish(ctx, "run.started", runEvent{RunID: p.RunID, Params: &p})
}

func (b *NATSBackend) LogRun(ctx context.Context, runID string, _ Params, o Outcome) error {
	return b.publish(ctx, "run.logged", runEvent{RunID: runID, Outcome: &o})
}

func (b *NATSBackend) EndRun(ctx context.Context, runID string, status Status) error {
	return b.publish(ctx, "run.ended", runEvent{RunID: runID, Status: status})
}

func (b *NATSBackend) publish(ctx context.Context, typ string, ev runEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return queue.PublishWithRetry(ctx, b.pub, b.subject+"."+typ, queue.Event{Type: typ, Payload: payload},
		natsPublishAttempts, natsPublishBackoff)
}
