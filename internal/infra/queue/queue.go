package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/simonbray/firecrest/internal/domain"

	"github.com/nats-io/nats.go"
)

// Publisher fans task lifecycle changes out over JetStream so collaborating
// services get pushed updates instead of polling the registry.
type Publisher struct {
	js      nats.JetStreamContext
	subject string
}

func New(js nats.JetStreamContext, subject string) *Publisher {
	return &Publisher{js: js, subject: subject}
}

func (p *Publisher) Publish(ctx context.Context, ev domain.TaskEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal task event %s: %w", ev.TaskID, err)
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header:  nats.Header{},
	}

	ack, err := p.js.PublishMsg(msg)
	if err != nil {
		return fmt.Errorf("publish task event %s: %w", ev.TaskID, err)
	}

	slog.Debug(
		"task event published",
		slog.String("task_id", ev.TaskID),
		slog.String("status", string(ev.Status)),
		slog.String("subject", p.subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)

	return nil
}
