package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/wholesale-market/walletd/internal/infrastructure/mq"
	"github.com/wholesale-market/walletd/internal/model"
	"github.com/wholesale-market/walletd/internal/repository"
)

// OutboxSender relays committed outbox rows to Kafka. It only reads and
// updates outbox rows; balances and entitlements are never touched here.
type OutboxSender struct {
	outbox     repository.OutboxRepository
	publisher  mq.Publisher
	logger     *slog.Logger
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetries int
}

func NewOutboxSender(outbox repository.OutboxRepository, publisher mq.Publisher, maxRetries int, logger *slog.Logger) *OutboxSender {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &OutboxSender{
		outbox:     outbox,
		publisher:  publisher,
		logger:     logger.With("component", "outbox_sender"),
		stopCh:     make(chan struct{}),
		interval:   100 * time.Millisecond,
		batchSize:  100,
		maxRetries: maxRetries,
	}
}

// Start polls until ctx is done or Stop is called.
func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("outbox sender started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("outbox sender stopped", "reason", ctx.Err())
			return
		case <-s.stopCh:
			s.logger.Info("outbox sender stopped")
			return
		case <-ticker.C:
			s.ProcessPending(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPending sends one batch and returns how many messages went out.
func (s *OutboxSender) ProcessPending(ctx context.Context) int {
	messages, err := s.outbox.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("load pending messages", "error", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.send(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) send(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if err := s.outbox.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); err != nil {
			s.logger.Error("mark message sent", "id", msg.ID, "error", err)
		}
		s.logger.Debug("message sent", "id", msg.ID, "event", msg.EventType, "key", msg.MessageKey)
		return true
	}

	s.logger.Warn("publish failed", "id", msg.ID, "event", msg.EventType, "retry", msg.RetryCount+1, "error", err)

	if err := s.outbox.IncrementRetryCount(ctx, msg.ID); err != nil {
		s.logger.Error("increment retry count", "id", msg.ID, "error", err)
	}
	if msg.RetryCount+1 >= s.maxRetries {
		if err := s.outbox.MarkAsFailed(ctx, msg.ID); err != nil {
			s.logger.Error("mark message failed", "id", msg.ID, "error", err)
		} else {
			s.logger.Error("message gave up after max retries", "id", msg.ID, "event", msg.EventType)
		}
	}
	return false
}
