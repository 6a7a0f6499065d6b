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

	"github.com/noah-isme/canvas-sync/internal/dto"
	"github.com/noah-isme/canvas-sync/internal/observability"
)

const (
	syncEventBufferSize = 16
	relayBufferSize     = 64
	relayPublishTimeout = 2 * time.Second
)

// SyncEventHub fans sync status events out to in-process subscribers and, when configured, to
// other nodes over Redis pub/sub and NATS.
type SyncEventHub struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *statusBroker
	nodeID       string
	relay        chan dto.SyncStatusEvent
}

type statusBroker struct {
	mu          sync.RWMutex
	subscribers map[chan dto.SyncStatusEvent]struct{}
}

// NewSyncEventHub constructs a hub. Nil clients disable the corresponding relay.
func NewSyncEventHub(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *SyncEventHub {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":sync:status"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".sync.status"
	}

	hub := &SyncEventHub{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "sync_events").Logger(),
		broker:       &statusBroker{subscribers: make(map[chan dto.SyncStatusEvent]struct{})},
		nodeID:       uuid.NewString(),
	}
	if hub.relays() {
		hub.relay = make(chan dto.SyncStatusEvent, relayBufferSize)
	}
	return hub
}

func (h *SyncEventHub) relays() bool {
	return (h.redis != nil && h.redisChannel != "") || (h.nats != nil && h.natsSubject != "")
}

// NodeID identifies this process in relayed events.
func (h *SyncEventHub) NodeID() string {
	return h.nodeID
}

// Subscribe registers a buffered listener. Slow listeners miss events rather than block the coordinator.
func (h *SyncEventHub) Subscribe() (<-chan dto.SyncStatusEvent, func()) {
	channel := make(chan dto.SyncStatusEvent, syncEventBufferSize)
	h.broker.subscribe(channel)
	observability.SyncSubscribers().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.broker.unsubscribe(channel)
			observability.SyncSubscribers().Dec()
		})
	}
	return channel, cleanup
}

// Emit delivers an event locally and queues it for the broker relay started by Start. It never waits
// on Redis or NATS; when the relay queue is full the event is only delivered locally.
func (h *SyncEventHub) Emit(_ context.Context, eventType string, status dto.SyncStatus) {
	event := dto.SyncStatusEvent{
		Type:      eventType,
		Status:    status.Clone(),
		Source:    h.nodeID,
		EmittedAt: time.Now().UTC(),
	}

	h.broker.broadcast(event)
	if h.relay == nil {
		return
	}
	select {
	case h.relay <- event:
	default:
		h.logger.Warn().Str("event", eventType).Msg("sync event relay queue full; event kept local")
	}
}

// Start publishes queued events and consumes events relayed by other nodes until ctx is done.
func (h *SyncEventHub) Start(ctx context.Context) {
	if h.relay != nil {
		go h.runRelay(ctx)
	}
	if h.redis != nil && h.redisChannel != "" {
		go h.consumeRedis(ctx)
	}
	if h.nats != nil && h.natsSubject != "" {
		go h.consumeNATS(ctx)
	}
}

func (h *SyncEventHub) runRelay(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.relay:
			if err := h.publish(ctx, event); err != nil {
				h.logger.Warn().Err(err).Str("event", event.Type).Msg("failed to relay sync event")
			}
		}
	}
}

// publish sends one event to every configured broker, bounded by relayPublishTimeout.
func (h *SyncEventHub) publish(ctx context.Context, event dto.SyncStatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if h.redis != nil && h.redisChannel != "" {
		publishCtx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
		err := h.redis.Publish(publishCtx, h.redisChannel, payload).Err()
		cancel()
		if err != nil {
			return err
		}
	}

	if h.nats != nil && h.natsSubject != "" {
		if err := h.nats.Publish(h.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (h *SyncEventHub) consumeRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, h.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			h.logger.Error().Err(err).Msg("sync event redis subscription closed")
			return
		}
		h.handleRelayed([]byte(msg.Payload))
	}
}

func (h *SyncEventHub) consumeNATS(ctx context.Context) {
	sub, err := h.nats.Subscribe(h.natsSubject, func(msg *nats.Msg) {
		h.handleRelayed(msg.Data)
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to subscribe to nats sync subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to drain sync nats subscription")
		}
	}()
}

// handleRelayed forwards events of other nodes; our own come back through the relay and are dropped.
func (h *SyncEventHub) handleRelayed(payload []byte) {
	var event dto.SyncStatusEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Warn().Err(err).Msg("invalid sync event payload")
		return
	}
	if event.Source == "" || event.Source == h.nodeID {
		return
	}
	h.broker.broadcast(event)
}

func (b *statusBroker) subscribe(ch chan dto.SyncStatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[ch] = struct{}{}
}

func (b *statusBroker) unsubscribe(ch chan dto.SyncStatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

func (b *statusBroker) broadcast(event dto.SyncStatusEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
