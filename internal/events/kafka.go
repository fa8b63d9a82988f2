package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-wallet/internal/config"
	"storefront-wallet/pkg/logger"

	"github.com/IBM/sarama"
)

// RetryPolicy bounds in-process redelivery of transient failures.
// Attempt n waits n*Backoff.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	return time.Duration(attempt) * p.Backoff
}

// rawDispatcher is what the consumer needs from Dispatcher.
type rawDispatcher interface {
	DispatchRaw(ctx context.Context, raw []byte) (string, error)
}

// Consumer reads ledger events from Kafka through a sarama consumer group.
//
// Offsets are marked only after a message is applied or rejected as
// permanent. A transient failure that outlives the retry policy ends the
// session without marking, so the message is redelivered after rejoin.
type Consumer struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler *groupHandler
}

// NewSaramaConfig returns the consumer settings used by NewConsumer.
func NewSaramaConfig(clientID string) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = clientID
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = time.Second
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	sc.Consumer.Return.Errors = true
	return sc
}

func NewConsumer(cfg config.KafkaConfig, d rawDispatcher, retry RetryPolicy) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || len(cfg.Topics) == 0 || cfg.GroupID == "" {
		return nil, errors.New("kafka: brokers, topics and group id are required")
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, NewSaramaConfig(cfg.GroupID))
	if err != nil {
		return nil, fmt.Errorf("kafka consumer group: %w", err)
	}
	return &Consumer{
		group:   group,
		topics:  cfg.Topics,
		handler: newGroupHandler(d, retry),
	}, nil
}

// Run consumes until ctx is cancelled or the group is closed.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			logger.From(ctx).Warn("kafka consumer error", "err", err)
		}
	}()

	for {
		if err := c.group.Consume(ctx, c.topics, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("kafka consume: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error { return c.group.Close() }

type groupHandler struct {
	dispatcher rawDispatcher
	retry      RetryPolicy
	sleep      func(ctx context.Context, d time.Duration) error
	onRetry    func(eventType string)
}

func newGroupHandler(d rawDispatcher, retry RetryPolicy) *groupHandler {
	h := &groupHandler{dispatcher: d, retry: retry, sleep: sleepCtx}
	if obs, ok := d.(interface{ Observer() Observer }); ok && obs.Observer() != nil {
		h.onRetry = obs.Observer().ObserveEventRetry
	}
	return h
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !h.process(ctx, msg) {
				// Leave the offset unmarked; the session restarts at this message.
				return nil
			}
			sess.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}

// process reports whether the message may be marked consumed.
func (h *groupHandler) process(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	log := logger.From(ctx).With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	ctx = logger.With(ctx, log)

	for attempt := 0; ; attempt++ {
		eventType, err := h.dispatcher.DispatchRaw(ctx, msg.Value)
		if err == nil || IsPermanent(err) {
			return true
		}
		if attempt >= h.retry.MaxRetries {
			log.Error("event retries exhausted", "event_type", eventType, "attempts", attempt+1, "err", err)
			return false
		}
		if h.onRetry != nil {
			h.onRetry(eventType)
		}
		if err := h.sleep(ctx, h.retry.delay(attempt+1)); err != nil {
			return false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
