// Package events publishes domain events about orders and credit purchases.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/irsalhamdi/storefront/api/background"
	"github.com/irsalhamdi/storefront/api/middleware"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Type string

const (
	OrderPaid        Type = "order.paid"
	FinalizeFailed   Type = "checkout.finalize_failed"
	ChargeUnresolved Type = "checkout.charge_unresolved"
	CreditsPurchased Type = "credits.purchased"
)

type Event struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	UserID        int64           `json:"userId"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// New builds an event carrying data as its JSON payload and the request id
// found in ctx, if any.
func New(ctx context.Context, typ Type, userID int64, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encoding %s payload: %w", typ, err)
	}

	return Event{
		ID:            uuid.NewString(),
		Type:          typ,
		UserID:        userID,
		Data:          raw,
		Timestamp:     time.Now().UTC(),
		CorrelationID: middleware.ContextRequestID(ctx),
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Dispatcher publishes events in the background. Delivery failures are
// logged and never reach the caller.
type Dispatcher struct {
	pub Publisher
	bg  *background.Background
	log logrus.FieldLogger
}

func NewDispatcher(pub Publisher, bg *background.Background, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{pub: pub, bg: bg, log: log}
}

func (d *Dispatcher) Send(ctx context.Context, typ Type, userID int64, data any) {
	ev, err := New(ctx, typ, userID, data)
	if err != nil {
		d.log.WithField("error", err).Error("building event")
		return
	}

	d.bg.Go(func() {
		pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := d.pub.Publish(pctx, ev); err != nil {
			d.log.WithFields(logrus.Fields{
				"event_type": ev.Type,
				"event_id":   ev.ID,
				"user_id":    ev.UserID,
				"error":      err,
			}).Error("publishing event")
		}
	})
}

// Kafka writes events to a single topic, keyed by user so that events of one
// user stay ordered within a partition.
type Kafka struct {
	writer *kafka.Writer
	log    logrus.FieldLogger
}

func NewKafka(brokers []string, topic string, log logrus.FieldLogger) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
		},
		log: log,
	}
}

func (k *Kafka) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.UserID, 10)),
		Value: value,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "event_id", Value: []byte(ev.ID)},
		},
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing event[%s] of type %s: %w", ev.ID, ev.Type, err)
	}

	k.log.WithFields(logrus.Fields{
		"event_id":   ev.ID,
		"event_type": ev.Type,
		"user_id":    ev.UserID,
	}).Debug("event published")
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the type of every recorded event in publish order.
func (r *Recorder) Types() []Type {
	evs := r.Events()
	out := make([]Type, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}
