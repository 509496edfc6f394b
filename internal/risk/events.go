package risk

import (
	"context"
	"encoding/json"
	"time"

	"go-micro.dev/v4/broker"
	"go.uber.org/zap"
)

// Inbound/outbound topic names, grounded on the teacher's topic-naming
// convention in internal/events/broker.go and internal/messaging/message.go
// (colon-separated subject:verb).
const (
	topicOrderCreated        = "order:created"
	topicPositionUpdated     = "position:updated"
	topicAccountUpdated      = "account:updated"
	topicProfileUpdated      = "risk:profile_updated"
	topicLimitsUpdated       = "risk:limits_updated"
	topicRiskViolation       = "risk:violation"
	topicRiskAction          = "risk:action"
)

// OrderCreatedEvent is the inbound order:created payload.
type OrderCreatedEvent struct {
	AccountID string      `json:"account_id"`
	Order     OrderIntent `json:"order"`
}

// PositionUpdatedEvent is the inbound position:updated payload. RealizedPnLDelta
// carries the realized PnL booked by the fill or close that produced this
// update (zero for a pure mark-to-market refresh), folded into the account's
// session total for DAILY_LOSS.
type PositionUpdatedEvent struct {
	AccountID        string   `json:"account_id"`
	Position         Position `json:"position"`
	RealizedPnLDelta float64  `json:"realized_pnl_delta"`
}

// AccountUpdatedEvent is the inbound account:updated payload.
type AccountUpdatedEvent struct {
	AccountID string  `json:"account_id"`
	Equity    float64 `json:"equity"`
}

// ProfileUpdatedEvent is the inbound risk:profile_updated payload.
type ProfileUpdatedEvent struct {
	ProfileID string `json:"profile_id"`
}

// LimitsUpdatedEvent is the inbound risk:limits_updated payload.
type LimitsUpdatedEvent struct {
	AccountID string `json:"account_id"`
}

// RiskViolationEvent is published once per non-NOTIFY verdict in an
// Evaluation (spec §6: one risk:violation per verdict, payload
// {accountId, verdict}).
type RiskViolationEvent struct {
	RequestID string    `json:"request_id"`
	AccountID string    `json:"account_id"`
	Symbol    Symbol    `json:"symbol"`
	Verdict   Verdict   `json:"verdict"`
	At        time.Time `json:"at"`
}

// RiskActionEvent is published with the final resolved action whenever
// resolvedAction is WARN or stronger (spec §6); NOTIFY-resolved evaluations
// do not publish risk:action.
type RiskActionEvent struct {
	RequestID string    `json:"request_id"`
	AccountID string    `json:"account_id"`
	Action    string    `json:"action"`
	Allow     bool      `json:"allow"`
	At        time.Time `json:"at"`
}

// EventBus is the engine's abstraction over the message broker, grounded on
// the teacher's internal/events/broker.go Broker wrapper.
type EventBus interface {
	Subscribe(topic string, handler func(ctx context.Context, payload []byte) error) error
	Publish(ctx context.Context, topic string, payload interface{}) error
	Connect() error
	Disconnect() error
}

// microEventBus adapts go-micro.dev/v4/broker to EventBus. Kept close to the
// teacher's own Broker wrapper, including the quirk documented there: the
// configured broker type is accepted for API compatibility but the factory
// always returns go-micro's default broker from broker.NewBroker().
type microEventBus struct {
	log    *zap.Logger
	broker broker.Broker
	subs   []broker.Subscriber
}

// NewEventBus constructs a go-micro-backed EventBus. brokerType is accepted
// for configuration-surface compatibility with the teacher's NewBroker but,
// matching that function, is not actually used to select an implementation.
func NewEventBus(brokerType string, log *zap.Logger) *microEventBus {
	_ = brokerType
	return &microEventBus{
		log:    log,
		broker: broker.NewBroker(),
	}
}

func (b *microEventBus) Connect() error {
	return b.broker.Connect()
}

func (b *microEventBus) Disconnect() error {
	for _, s := range b.subs {
		if err := s.Unsubscribe(); err != nil {
			b.log.Warn("error unsubscribing", zap.Error(err), zap.String("topic", s.Topic()))
		}
	}
	return b.broker.Disconnect()
}

func (b *microEventBus) Subscribe(topic string, handler func(ctx context.Context, payload []byte) error) error {
	sub, err := b.broker.Subscribe(topic, func(evt broker.Event) error {
		msg := evt.Message()
		if err := handler(context.Background(), msg.Body); err != nil {
			b.log.Error("event handler failed", zap.String("topic", topic), zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.subs = append(b.subs, sub)
	return nil
}

func (b *microEventBus) Publish(ctx context.Context, topic string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := &broker.Message{
		Header: map[string]string{"content-type": "application/json"},
		Body:   body,
	}
	return b.broker.Publish(topic, msg)
}
