package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/events"
)

// NotificationService observes every queue event for audit logging and an
// optional webhook stub. It implements events.Publisher so it can sit in the
// engine's publisher chain.
type NotificationService struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{logger: logger, cfg: cfg}
}

// Publish logs the event and forwards it to the webhook stub.
func (n *NotificationService) Publish(ctx context.Context, event events.QueueEvent) error {
	n.logger.Info("queue event",
		zap.String("type", string(event.Type)),
		zap.String("service_type", string(event.ServiceType)),
		zap.String("date", event.Date),
		zap.Int("queue_number", event.QueueNumber),
		zap.String("status", string(event.Status)))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.QueueEvent) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
