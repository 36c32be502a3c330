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

	"github.com/promptforge/promptforge-api/internal/dto"
	"github.com/promptforge/promptforge-api/internal/models"
	"github.com/promptforge/promptforge-api/internal/observability"
)

const runEventBufferSize = 32

// RunEventHub fans run progress events out to websocket subscribers. Events
// are mirrored over redis and NATS so subscribers connected to other nodes
// see progress for runs executing here.
type RunEventHub struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *runEventBroker
	nodeID       string
}

type runEventEnvelope struct {
	Source string       `json:"source"`
	Event  dto.RunEvent `json:"event"`
}

type runEventBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.RunEvent]struct{}
}

// NewRunEventHub constructs the hub. channelBase namespaces the redis channel
// and NATS subject; empty disables the cross-node mirror.
func NewRunEventHub(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) *RunEventHub {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":run-events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".run-events"
	}

	return &RunEventHub{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "run_event_hub").Logger(),
		broker: &runEventBroker{
			subscribers: make(map[uint]map[chan dto.RunEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

// Start launches the cross-node consumers. They stop when ctx is cancelled.
func (h *RunEventHub) Start(ctx context.Context) {
	if h.redis != nil && h.redisChannel != "" {
		go h.consumeRedis(ctx)
	}
	if h.nats != nil && h.natsSubject != "" {
		go h.consumeNATS(ctx)
	}
}

// RunStarted implements engine.RunEventPublisher.
func (h *RunEventHub) RunStarted(run models.EvaluationRun) {
	h.dispatch(dto.RunEvent{
		Type:         dto.RunEventStarted,
		RunID:        run.ID,
		EvaluationID: run.EvaluationID,
		Status:       run.Status,
		SentAt:       time.Now().UTC(),
	})
}

// CaseFinished implements engine.RunEventPublisher.
func (h *RunEventHub) CaseFinished(run models.EvaluationRun, result models.TestCaseResult) {
	response := dto.NewTestCaseResultResponse(result)
	h.dispatch(dto.RunEvent{
		Type:         dto.RunEventCaseFinished,
		RunID:        run.ID,
		EvaluationID: run.EvaluationID,
		Status:       run.Status,
		Result:       &response,
		SentAt:       time.Now().UTC(),
	})
}

// RunFinished implements engine.RunEventPublisher.
func (h *RunEventHub) RunFinished(run models.EvaluationRun) {
	event := dto.RunEvent{
		Type:         dto.RunEventFinished,
		RunID:        run.ID,
		EvaluationID: run.EvaluationID,
		Status:       run.Status,
		SentAt:       time.Now().UTC(),
	}
	if run.Status == models.RunStatusCompleted {
		summary := run.Results.Data()
		event.Summary = &summary
	}
	h.dispatch(event)
}

// Subscribe registers a listener for one run's events. The returned cleanup
// must be called when the client disconnects.
func (h *RunEventHub) Subscribe(runID uint) (<-chan dto.RunEvent, func()) {
	channel := make(chan dto.RunEvent, runEventBufferSize)

	h.broker.subscribe(runID, channel)
	observability.StreamClients().Inc()

	cleanup := func() {
		h.broker.unsubscribe(runID, channel)
		observability.StreamClients().Dec()
	}

	return channel, cleanup
}

func (h *RunEventHub) dispatch(event dto.RunEvent) {
	h.broker.broadcast(event.RunID, event)
	if err := h.publish(event); err != nil {
		h.logger.Warn().Err(err).Uint("run_id", event.RunID).Msg("failed to mirror run event")
	}
}

func (h *RunEventHub) publish(event dto.RunEvent) error {
	if (h.redis == nil || h.redisChannel == "") && (h.nats == nil || h.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(runEventEnvelope{Source: h.nodeID, Event: event})
	if err != nil {
		return err
	}

	if h.redis != nil && h.redisChannel != "" {
		if err := h.redis.Publish(context.Background(), h.redisChannel, payload).Err(); err != nil {
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

func (h *RunEventHub) consumeRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, h.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			h.logger.Error().Err(err).Msg("run event redis subscription closed")
			return
		}
		h.handleEnvelope([]byte(msg.Payload))
	}
}

func (h *RunEventHub) consumeNATS(ctx context.Context) {
	sub, err := h.nats.Subscribe(h.natsSubject, func(msg *nats.Msg) {
		h.handleEnvelope(msg.Data)
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to subscribe to nats run event subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to drain run event nats subscription")
		}
	}()
}

func (h *RunEventHub) handleEnvelope(payload []byte) {
	var envelope runEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		h.logger.Warn().Err(err).Msg("invalid run event payload")
		return
	}

	if envelope.Source == h.nodeID {
		return
	}

	h.broker.broadcast(envelope.Event.RunID, envelope.Event)
}

func (b *runEventBroker) subscribe(runID uint, ch chan dto.RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[runID]; !exists {
		b.subscribers[runID] = make(map[chan dto.RunEvent]struct{})
	}
	b.subscribers[runID][ch] = struct{}{}
}

func (b *runEventBroker) unsubscribe(runID uint, ch chan dto.RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[runID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, runID)
		}
	}
}

func (b *runEventBroker) broadcast(runID uint, event dto.RunEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := b.subscribers[runID]
	for ch := range subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
