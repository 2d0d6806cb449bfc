package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/classroom-api/internal/dto"
	"github.com/noah-isme/classroom-api/internal/observability"
)

const (
	rosterEventBufferSize = 16
	// rosterSeenEvents bounds the ids remembered to drop the second copy of an
	// event that arrives over both redis and NATS.
	rosterSeenEvents = 512
)

// Roster change actions.
const (
	RosterActionCreate = "create"
	RosterActionUpdate = "update"
	RosterActionDelete = "delete"
)

// RosterEvents fans roster change notifications out to local subscribers and
// to the other API replicas.
type RosterEvents interface {
	Publish(ctx context.Context, event dto.RosterChangeEvent)
	Subscribe() (<-chan dto.RosterChangeEvent, func())
	Start(ctx context.Context)
}

// NewRosterChange builds a change event for the given table rows.
func NewRosterChange(table, action string, ids ...uint) dto.RosterChangeEvent {
	return dto.RosterChangeEvent{
		ID:         uuid.NewString(),
		Table:      table,
		Action:     action,
		IDs:        append([]uint(nil), ids...),
		OccurredAt: time.Now().UTC(),
	}
}

type rosterEvents struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	tracer       trace.Tracer
	broker       *rosterBroker
	nodeID       string
	seen         *recentIDs
}

type rosterEnvelope struct {
	Source string                `json:"source"`
	Event  dto.RosterChangeEvent `json:"event"`
	SentAt time.Time             `json:"sent_at"`
}

type rosterBroker struct {
	mu          sync.RWMutex
	subscribers map[chan dto.RosterChangeEvent]struct{}
}

// NewRosterEvents constructs the roster change broker. Redis and NATS are
// optional; without them events only reach subscribers of this process.
func NewRosterEvents(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) RosterEvents {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":roster"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".roster"
	}

	return &rosterEvents{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "roster_events").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/classroom-api/internal/service/roster_events"),
		broker:       &rosterBroker{subscribers: make(map[chan dto.RosterChangeEvent]struct{})},
		nodeID:       uuid.NewString(),
		seen:         newRecentIDs(rosterSeenEvents),
	}
}

func (s *rosterEvents) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		s.consumeNATS(ctx)
	}
}

func (s *rosterEvents) Publish(ctx context.Context, event dto.RosterChangeEvent) {
	_, span := s.tracer.Start(ctx, "roster.events.publish", trace.WithAttributes(
		attribute.String("roster.table", event.Table),
		attribute.String("roster.action", event.Action),
		attribute.Int("roster.ids", len(event.IDs)),
	))
	defer span.End()

	s.deliver(event)
	if err := s.forward(ctx, event); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Str("table", event.Table).Msg("failed to forward roster event")
	}
}

func (s *rosterEvents) Subscribe() (<-chan dto.RosterChangeEvent, func()) {
	channel := make(chan dto.RosterChangeEvent, rosterEventBufferSize)
	s.broker.subscribe(channel)
	observability.StreamClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(channel)
			observability.StreamClientsActive().Dec()
		})
	}
	return channel, cleanup
}

func (s *rosterEvents) deliver(event dto.RosterChangeEvent) {
	observability.RosterEvents().WithLabelValues(event.Table, event.Action).Inc()
	s.broker.broadcast(event)
}

func (s *rosterEvents) forward(ctx context.Context, event dto.RosterChangeEvent) error {
	if (s.redis == nil || s.redisChannel == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(rosterEnvelope{Source: s.nodeID, Event: event, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	var errs []error
	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *rosterEvents) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("roster redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

func (s *rosterEvents) consumeNATS(ctx context.Context) {
	// Every replica must see every event, so this is a plain subscription
	// rather than a queue group.
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats roster subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain roster nats subscription")
		}
	}()
}

func (s *rosterEvents) handleEnvelope(payload []byte) {
	var envelope rosterEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid roster event payload")
		return
	}
	if envelope.Source == s.nodeID {
		return
	}
	if envelope.Event.Table == "" {
		return
	}
	if envelope.Event.ID != "" && !s.seen.add(envelope.Event.ID) {
		return
	}
	s.deliver(envelope.Event)
}

// recentIDs remembers the last capacity ids in insertion order.
type recentIDs struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

func newRecentIDs(capacity int) *recentIDs {
	return &recentIDs{
		ids:   make(map[string]struct{}, capacity),
		order: make([]string, capacity),
	}
}

// add records id and reports whether it was not seen before.
func (r *recentIDs) add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	if evicted := r.order[r.next]; evicted != "" {
		delete(r.ids, evicted)
	}
	r.order[r.next] = id
	r.next = (r.next + 1) % len(r.order)
	r.ids[id] = struct{}{}
	return true
}

func (b *rosterBroker) subscribe(ch chan dto.RosterChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[ch] = struct{}{}
}

func (b *rosterBroker) unsubscribe(ch chan dto.RosterChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

func (b *rosterBroker) broadcast(event dto.RosterChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
