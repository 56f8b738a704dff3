// Package audit records every folder and note mutation. Mutations are
// published as JSON messages on a Watermill topic; a Recorder subscribed to
// the topic appends them to a Log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/notely/notely/internal/model"
)

// DefaultTopic carries audit events.
const DefaultTopic = "notely.audit"

// Publisher turns mutations into audit messages.
type Publisher struct {
	pub   message.Publisher
	topic string
	now   func() time.Time
}

func NewPublisher(pub message.Publisher, topic string) *Publisher {
	return &Publisher{pub: pub, topic: topic, now: time.Now}
}

// Emit publishes one event for userID.
func (p *Publisher) Emit(ctx context.Context, userID string, typ model.EventType, aggregateID string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	e := model.Event{
		ID:          uuid.New().String(),
		UserID:      userID,
		AggregateID: aggregateID,
		Type:        typ,
		Payload:     payload,
		CreatedAt:   p.now().UTC(),
	}
	body, err := json.Marshal(envelope{Event: e, UserID: userID})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(e.ID, body)
	msg.SetContext(ctx)
	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", typ, err)
	}
	return nil
}

// envelope carries the user id, which model.Event keeps out of its JSON.
type envelope struct {
	model.Event
	UserID string `json:"user_id"`
}

// Recorder appends published events to a Log.
type Recorder struct {
	sub   message.Subscriber
	topic string
	log   Log
}

func NewRecorder(sub message.Subscriber, topic string, l Log) *Recorder {
	return &Recorder{sub: sub, topic: topic, log: l}
}

// Run subscribes and consumes in the background until ctx is done or the
// subscriber closes.
func (r *Recorder) Run(ctx context.Context) error {
	messages, err := r.sub.Subscribe(ctx, r.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.topic, err)
	}
	go func() {
		for msg := range messages {
			r.handle(msg)
		}
	}()
	return nil
}

func (r *Recorder) handle(msg *message.Message) {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		log.Error().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed audit message")
		msg.Ack()
		return
	}
	e := env.Event
	e.UserID = env.UserID
	// Acked either way: a nacked message is redelivered at once and the
	// blocked publisher would never return.
	if err := r.log.Append(msg.Context(), e); err != nil {
		log.Error().Err(err).Str("event_id", e.ID).Str("type", string(e.Type)).Msg("audit append failed, event dropped")
	}
	msg.Ack()
}

// Audit wires a GoChannel pub/sub between a Publisher and a Recorder.
type Audit struct {
	Publisher *Publisher
	Log       Log

	pubsub   *gochannel.GoChannel
	recorder *Recorder
}

// New builds an in-process audit pipeline writing to l. Publishing blocks
// until the recorder has stored the event.
func New(l Log, topic string) *Audit {
	if topic == "" {
		topic = DefaultTopic
	}
	ps := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, Logger{})
	return &Audit{
		Publisher: NewPublisher(ps, topic),
		Log:       l,
		pubsub:    ps,
		recorder:  NewRecorder(ps, topic, l),
	}
}

// Start begins recording.
func (a *Audit) Start(ctx context.Context) error {
	return a.recorder.Run(ctx)
}

// Close stops the pub/sub.
func (a *Audit) Close() error {
	return a.pubsub.Close()
}

// Logger adapts zerolog to watermill.LoggerAdapter.
type Logger struct {
	fields watermill.LogFields
}

func (l Logger) event(e *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range l.fields.Add(fields) {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (l Logger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(log.Error().Err(err), msg, fields)
}

func (l Logger) Info(msg string, fields watermill.LogFields) {
	l.event(log.Debug(), msg, fields)
}

func (l Logger) Debug(msg string, fields watermill.LogFields) {
	l.event(log.Debug(), msg, fields)
}

func (l Logger) Trace(msg string, fields watermill.LogFields) {
	l.event(log.Trace(), msg, fields)
}

func (l Logger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return Logger{fields: l.fields.Add(fields)}
}
