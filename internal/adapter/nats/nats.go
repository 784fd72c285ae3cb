// Package nats implements the broker port using NATS JetStream pull
// consumers.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/taskfleet/taskfleet/internal/port/broker"
)

const (
	streamName = "TASKFLEET"

	fetchWait = 500 * time.Millisecond

	// maxDeliver bounds redelivery of a poisoned message; past it
	// JetStream stops redelivering and emits an advisory.
	maxDeliver = 5

	// pendingTTL bounds how long an unacked message stays tracked.
	// After the ack wait elapses JetStream redelivers under a fresh
	// ack id anyway, so stale entries are only garbage.
	pendingTTL = 5 * time.Minute
)

// pending tracks one pulled, not-yet-acked JetStream message.
type pending struct {
	msg      jetstream.Msg
	pulledAt time.Time
}

// Queue implements broker.Broker on NATS JetStream. Pulled messages
// are tracked by a synthetic ack id until acknowledged or expired.
type Queue struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	ackWait time.Duration

	mu        sync.Mutex
	consumers map[string]jetstream.Consumer
	inflight  map[string]pending
}

// Connect establishes a connection to NATS and ensures the JetStream
// stream covering the job and fleet subjects exists.
func Connect(ctx context.Context, url string, ackWait time.Duration) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"jobs.>", "fleet.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{
		nc:        nc,
		js:        js,
		ackWait:   ackWait,
		consumers: make(map[string]jetstream.Consumer),
		inflight:  make(map[string]pending),
	}, nil
}

// Pull fetches up to max messages from the subscription's durable
// consumer. It returns an empty batch, not an error, when nothing is
// waiting.
func (q *Queue) Pull(ctx context.Context, subscription string, max int) ([]broker.Message, error) {
	cons, err := q.consumer(ctx, subscription)
	if err != nil {
		return nil, err
	}

	batch, err := cons.Fetch(max, jetstream.FetchMaxWait(fetchWait))
	if err != nil {
		return nil, fmt.Errorf("nats fetch %s: %w", subscription, err)
	}

	q.prune()

	var out []broker.Message
	for msg := range batch.Messages() {
		ackID := uuid.NewString()
		q.mu.Lock()
		q.inflight[ackID] = pending{msg: msg, pulledAt: time.Now()}
		q.mu.Unlock()

		headers := map[string]string{}
		for k := range msg.Headers() {
			headers[k] = msg.Headers().Get(k)
		}
		out = append(out, broker.Message{
			MessageID:  msg.Subject(),
			AckID:      ackID,
			Data:       msg.Data(),
			Attributes: headers,
		})
	}
	if err := batch.Error(); err != nil {
		return out, fmt.Errorf("nats fetch %s: %w", subscription, err)
	}
	return out, nil
}

// Acknowledge acks the given messages and forgets them.
func (q *Queue) Acknowledge(ctx context.Context, subscription string, ackIDs []string) error {
	for _, id := range ackIDs {
		p, ok := q.take(id)
		if !ok {
			slog.Warn("ack for unknown message", "subscription", subscription, "ack_id", id)
			continue
		}
		if err := p.msg.Ack(); err != nil {
			return fmt.Errorf("nats ack %s: %w", subscription, err)
		}
	}
	return nil
}

// ModifyAckDeadline resets the ack wait for in-flight messages. The
// seconds argument is accepted for interface parity; JetStream resets
// to the consumer's configured ack wait.
func (q *Queue) ModifyAckDeadline(ctx context.Context, subscription string, ackIDs []string, seconds int) error {
	for _, id := range ackIDs {
		q.mu.Lock()
		p, ok := q.inflight[id]
		q.mu.Unlock()
		if !ok {
			continue
		}
		if err := p.msg.InProgress(); err != nil {
			return fmt.Errorf("nats in-progress %s: %w", subscription, err)
		}
	}
	return nil
}

// Publish sends a message to the given subject.
func (q *Queue) Publish(ctx context.Context, topic string, data []byte) error {
	if _, err := q.js.Publish(ctx, topic, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", topic, err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// JetStream exposes the underlying JetStream context for KV buckets.
func (q *Queue) JetStream() jetstream.JetStream {
	return q.js
}

// consumer returns the cached durable pull consumer for a subscription,
// creating it on first use.
func (q *Queue) consumer(ctx context.Context, subscription string) (jetstream.Consumer, error) {
	q.mu.Lock()
	cons, ok := q.consumers[subscription]
	q.mu.Unlock()
	if ok {
		return cons, nil
	}

	cons, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       durableName(subscription),
		FilterSubject: subscription,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.ackWait,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create %s: %w", subscription, err)
	}

	q.mu.Lock()
	q.consumers[subscription] = cons
	q.mu.Unlock()
	return cons, nil
}

func (q *Queue) take(ackID string) (pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.inflight[ackID]
	if ok {
		delete(q.inflight, ackID)
	}
	return p, ok
}

// prune drops tracking entries whose messages JetStream has long since
// redelivered elsewhere.
func (q *Queue) prune() {
	cutoff := time.Now().Add(-pendingTTL)
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, p := range q.inflight {
		if p.pulledAt.Before(cutoff) {
			delete(q.inflight, id)
		}
	}
}

// durableName derives a JetStream-safe durable consumer name from a
// subject (durables must not contain dots).
func durableName(subscription string) string {
	return "fleet-" + strings.ReplaceAll(subscription, ".", "-")
}
