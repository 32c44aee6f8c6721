package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"cinemoa/internal/pkg/mq"
	"cinemoa/internal/service/funding/domain"
)

// Event type header values consumed by the downstream collaborators.
const (
	eventTypeAccountCreation   = "funding.account.requested"
	eventTypeScoreUpdate       = "funding.score.update"
	eventTypeSettlementOutcome = "funding.settlement.outcome"
	eventTypeTransferFailed    = "funding.transfer.failed"
)

// KafkaEventPublisher implements port.EventPublisher on one topic, with the
// event type in a message header and the campaign ID as partition key so
// per-campaign ordering is preserved.
type KafkaEventPublisher struct {
	writer *kafka.Writer
}

func NewKafkaEventPublisher(writer *kafka.Writer) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: writer}
}

func (p *KafkaEventPublisher) PublishAccountCreationRequested(ctx context.Context, event *domain.AccountCreationRequested) error {
	return p.publish(ctx, eventTypeAccountCreation, event.CampaignID, event)
}

func (p *KafkaEventPublisher) PublishScoreUpdateRequested(ctx context.Context, event *domain.ScoreUpdateRequested) error {
	return p.publish(ctx, eventTypeScoreUpdate, event.CampaignID, event)
}

func (p *KafkaEventPublisher) PublishSettlementOutcome(ctx context.Context, event *domain.SettlementOutcome) error {
	return p.publish(ctx, eventTypeSettlementOutcome, event.CampaignID, event)
}

func (p *KafkaEventPublisher) PublishTransferFailed(ctx context.Context, event *domain.TransferFailedEvent) error {
	return p.publish(ctx, eventTypeTransferFailed, event.CampaignID, event)
}

func (p *KafkaEventPublisher) publish(ctx context.Context, eventType, campaignID string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "marshal %s event", eventType)
	}
	msg := kafka.Message{
		Key:     []byte(campaignID),
		Value:   value,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(eventType)}},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "produce %s event", eventType)
	}
	return nil
}
