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

	"github.com/samg2014/VirtualHand/internal/dto"
	"github.com/samg2014/VirtualHand/internal/observability"
)

const (
	realtimeSendBufferSize = 64
	relaySeenCapacity      = 512
)

// RealtimeHub tracks connected websocket clients and fans broadcasts out to all of them,
// relaying to other nodes through Redis and NATS when configured.
type RealtimeHub struct {
	mu      sync.RWMutex
	clients map[*realtimeClient]struct{}

	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	seen         *relayLog
	logger       zerolog.Logger
}

type relayEvent struct {
	ID      string          `json:"id"`
	Source  string          `json:"source"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// relayLog remembers recently relayed event ids so an event delivered over both
// Redis and NATS is fanned out once.
type relayLog struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	next  int
}

// NewRealtimeHub creates a hub. redisClient and natsConn may be nil.
func NewRealtimeHub(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) *RealtimeHub {
	redisChannel := ""
	natsSubject := ""
	if channelBase != "" {
		redisChannel = channelBase + ":broadcast"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".broadcast"
	}

	return &RealtimeHub{
		clients:      make(map[*realtimeClient]struct{}),
		redis:        redisClient,
		redisChannel: redisChannel,
		nats:         natsConn,
		natsSubject:  natsSubject,
		nodeID:       uuid.NewString(),
		seen:         newRelayLog(relaySeenCapacity),
		logger:       logger.With().Str("component", "realtime_hub").Logger(),
	}
}

// Start subscribes to the relay transports. It returns once the subscriptions are active.
func (h *RealtimeHub) Start(ctx context.Context) error {
	if h.redis != nil && h.redisChannel != "" {
		pubsub := h.redis.Subscribe(ctx, h.redisChannel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return err
		}
		go h.consumeRedis(ctx, pubsub)
	}

	if h.nats != nil && h.natsSubject != "" {
		sub, err := h.nats.Subscribe(h.natsSubject, func(msg *nats.Msg) {
			h.handleRelay(msg.Data)
		})
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			if err := sub.Drain(); err != nil {
				h.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
			}
		}()
	}

	return nil
}

// Broadcast sends the event to every local client and relays it to other nodes.
// Delivery is best effort: slow clients miss messages and relay failures are logged.
func (h *RealtimeHub) Broadcast(ctx context.Context, event string, payload interface{}) {
	h.fanout(dto.SocketReply{Event: event, Data: payload}, "local")

	if err := h.publish(ctx, event, payload); err != nil {
		h.logger.Warn().Err(err).Str("event", event).Msg("failed to relay broadcast")
	}
}

// ClientCount reports the number of connected clients.
func (h *RealtimeHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *RealtimeHub) publish(ctx context.Context, event string, payload interface{}) error {
	if (h.redis == nil || h.redisChannel == "") && (h.nats == nil || h.natsSubject == "") {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	data, err := json.Marshal(relayEvent{
		ID:      uuid.NewString(),
		Source:  h.nodeID,
		Event:   event,
		Payload: raw,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	var errs []error
	if h.redis != nil && h.redisChannel != "" {
		if err := h.redis.Publish(ctx, h.redisChannel, data).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if h.nats != nil && h.natsSubject != "" {
		if err := h.nats.Publish(h.natsSubject, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *RealtimeHub) consumeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			h.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		h.handleRelay([]byte(msg.Payload))
	}
}

func (h *RealtimeHub) handleRelay(data []byte) {
	var event relayEvent
	if err := json.Unmarshal(data, &event); err != nil {
		h.logger.Warn().Err(err).Msg("invalid realtime relay event")
		return
	}

	if event.Source == h.nodeID || !h.seen.add(event.ID) {
		return
	}

	h.fanout(dto.SocketReply{Event: event.Event, Data: event.Payload}, "relay")
}

func (h *RealtimeHub) fanout(reply dto.SocketReply, origin string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	observability.Broadcasts().WithLabelValues(reply.Event, origin).Inc()
	for client := range h.clients {
		select {
		case client.send <- reply:
		default:
			h.logger.Warn().Uint("user_id", client.session.UserID).Str("event", reply.Event).Msg("dropping broadcast for slow client")
		}
	}
}

func (h *RealtimeHub) register(client *realtimeClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = struct{}{}
	observability.RealtimeConnections().Inc()
	h.logger.Debug().Uint("user_id", client.session.UserID).Msg("realtime client connected")
}

func (h *RealtimeHub) unregister(client *realtimeClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	observability.RealtimeConnections().Dec()
	h.logger.Debug().Uint("user_id", client.session.UserID).Msg("realtime client disconnected")
}

func newRelayLog(capacity int) *relayLog {
	return &relayLog{
		ids:   make(map[string]struct{}, capacity),
		order: make([]string, capacity),
	}
}

// add records id and reports whether it was new.
func (l *relayLog) add(id string) bool {
	if id == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.ids[id]; ok {
		return false
	}
	if old := l.order[l.next]; old != "" {
		delete(l.ids, old)
	}
	l.order[l.next] = id
	l.ids[id] = struct{}{}
	l.next = (l.next + 1) % len(l.order)
	return true
}
