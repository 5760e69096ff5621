package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/observability"
)

// TaskDispatcher turns ticket snapshots into task envelopes and publishes them.
// Publication is fire-and-forget: failures are logged and counted but never undo the caller's state change.
type TaskDispatcher struct {
	publisher Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	newID     func() string
}

// NewTaskDispatcher builds a dispatcher over publisher.
func NewTaskDispatcher(publisher Publisher, logger *zap.Logger, metrics *observability.Metrics) *TaskDispatcher {
	return &TaskDispatcher{
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// NewEnvelope builds the message for ticket with a fresh id.
func (d *TaskDispatcher) NewEnvelope(ticket *domain.Ticket) domain.TaskEnvelope {
	return domain.TaskEnvelope{
		MsgID:     d.newID(),
		TicketID:  ticket.ID,
		Timestamp: d.now().UnixMilli(),
		Payload: domain.TaskPayload{
			ExternalID: ticket.ExternalID,
			Subject:    ticket.Subject,
			Content:    ticket.Content,
		},
	}
}

// Dispatch publishes a task of the given kind for ticket.
func (d *TaskDispatcher) Dispatch(ctx context.Context, kind domain.TaskKind, ticket *domain.Ticket) error {
	topic := kind.Topic()
	envelope := d.NewEnvelope(ticket)
	body, err := json.Marshal(envelope)
	if err != nil {
		d.fail(topic, envelope, err)
		return err
	}

	if err := d.publisher.Publish(ctx, topic, body); err != nil {
		d.fail(topic, envelope, err)
		return err
	}

	d.metrics.RecordDispatch(topic, true)
	d.logger.Info("task dispatched",
		zap.String("topic", topic),
		zap.String("msg_id", envelope.MsgID),
		zap.Int64("ticket_id", envelope.TicketID),
	)
	return nil
}

func (d *TaskDispatcher) fail(topic string, envelope domain.TaskEnvelope, err error) {
	d.metrics.RecordDispatch(topic, false)
	d.logger.Error("task dispatch failed",
		zap.String("topic", topic),
		zap.String("msg_id", envelope.MsgID),
		zap.Int64("ticket_id", envelope.TicketID),
		zap.Error(err),
	)
}
