package provisioning

import (
	"context"
	"strconv"

	"github.com/mmdatafocus/lacase_backend/config"
)

// Notifier tells operators about a finished run.
type Notifier interface {
	Notify(ctx context.Context, report *Report) error
}

// PubSubNotifier publishes the report as JSON to a topic.
type PubSubNotifier struct {
	topic string
}

func NewPubSubNotifier(topic string) *PubSubNotifier {
	return &PubSubNotifier{topic: topic}
}

func (n *PubSubNotifier) Notify(ctx context.Context, report *Report) error {
	_, err := config.PublishJSON(ctx, n.topic, report, map[string]string{
		"status":         report.Status(),
		"correlation_id": report.CorrelationId,
		"failed_routes":  strconv.Itoa(report.Count(OutcomeFailed)),
	})
	return err
}
