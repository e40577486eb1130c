package dispatcher

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/repo"
	"github.com/radieske/social-bet-resolution/pkg/contracts/events"
)

// Source entrega lotes de mensagens pendentes do outbox
type Source interface {
	Process(ctx context.Context, limit int, handle func(context.Context, repo.OutboxMessage) (repo.Delivery, error)) (int, error)
}

// Publisher publica no broker (kafka)
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Broadcaster espelha atualizações no Redis Pub/Sub
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Dispatcher publica o outbox no Kafka (entrega at-least-once, em ordem de criação
// por aposta). Se uma mensagem volta para retry, as seguintes da mesma aposta no lote
// ficam adiadas. A ordem vale por instância: com várias, o SKIP LOCKED pode intercalar.
// Mensagens de status também vão para o feed WebSocket.
type Dispatcher struct {
	Log    *zap.Logger
	Source Source
	Kafka  Publisher
	Feed   Broadcaster // opcional

	FeedChannel string
	StatusTopic string
	DLQTopic    string
	MaxAttempts int
	Batch       int
	Interval    time.Duration

	OnDispatched func(topic string)
	OnRetry      func(topic string)
	OnDeadLetter func(topic string)
	OnBroadcast  func()
	OnError      func(stage string)

	now func() time.Time
}

// Run processa lotes até o contexto ser cancelado. Lote cheio: busca o próximo sem esperar.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		n, err := d.DispatchOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.Log.Warn("outbox batch failed", zap.Error(err))
			d.fail("batch")
		}
		if err == nil && n >= d.batch() {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.interval()):
		}
	}
}

// DispatchOnce processa um lote e retorna quantas mensagens foram tratadas
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	held := make(map[string]bool)
	return d.Source.Process(ctx, d.batch(), func(ctx context.Context, m repo.OutboxMessage) (repo.Delivery, error) {
		if m.AggregateID != "" && held[m.AggregateID] {
			d.Log.Debug("outbox message deferred behind pending retry",
				zap.String("outbox_id", m.ID), zap.String("aggregate_id", m.AggregateID))
			return repo.Deferred, nil
		}
		res, err := d.handle(ctx, m)
		if res == repo.Retry && m.AggregateID != "" {
			held[m.AggregateID] = true
		}
		return res, err
	})
}

func (d *Dispatcher) handle(ctx context.Context, m repo.OutboxMessage) (repo.Delivery, error) {
	if err := d.Kafka.Publish(ctx, m.Topic, m.Key, m.Payload); err != nil {
		d.fail("publish")
		if m.Attempts+1 < d.maxAttempts() {
			d.Log.Warn("outbox publish failed, will retry",
				zap.String("outbox_id", m.ID), zap.String("topic", m.Topic), zap.Int("attempt", m.Attempts+1), zap.Error(err))
			if d.OnRetry != nil {
				d.OnRetry(m.Topic)
			}
			return repo.Retry, err
		}
		return d.deadLetter(ctx, m, err)
	}

	if d.OnDispatched != nil {
		d.OnDispatched(m.Topic)
	}
	if m.Topic == d.StatusTopic {
		d.mirror(ctx, m)
	}
	return repo.Delivered, nil
}

// deadLetter publica o envelope na DLQ; se nem a DLQ aceitar, a mensagem volta para retry
func (d *Dispatcher) deadLetter(ctx context.Context, m repo.OutboxMessage, cause error) (repo.Delivery, error) {
	env := events.OutboxDeadLetter{
		OutboxID:    m.ID,
		AggregateID: m.AggregateID,
		Topic:       m.Topic,
		Key:         m.Key,
		Payload:     json.RawMessage(m.Payload),
		Attempts:    m.Attempts + 1,
		LastError:   cause.Error(),
		FailedAt:    d.clock().UTC(),
	}
	b, err := json.Marshal(env)
	if err == nil {
		err = d.Kafka.Publish(ctx, d.DLQTopic, m.Key, b)
	}
	if err != nil {
		d.Log.Error("outbox dead letter failed", zap.String("outbox_id", m.ID), zap.Error(err))
		d.fail("dlq")
		return repo.Retry, cause
	}
	d.Log.Error("outbox message dead lettered",
		zap.String("outbox_id", m.ID),
		zap.String("aggregate_id", m.AggregateID),
		zap.String("topic", m.Topic),
		zap.Int("attempts", env.Attempts),
		zap.Error(cause),
	)
	if d.OnDeadLetter != nil {
		d.OnDeadLetter(m.Topic)
	}
	return repo.DeadLettered, cause
}

// mirror repassa a mudança de status ao feed; falha aqui não reabre a mensagem
func (d *Dispatcher) mirror(ctx context.Context, m repo.OutboxMessage) {
	if d.Feed == nil {
		return
	}
	var ev events.BetStatusChanged
	if err := json.Unmarshal(m.Payload, &ev); err != nil {
		d.Log.Warn("status payload decode failed", zap.String("outbox_id", m.ID), zap.Error(err))
		d.fail("decode")
		return
	}
	b, err := json.Marshal(events.FeedUpdate{BetID: ev.BetID, Type: "status", Payload: ev})
	if err != nil {
		return
	}
	if err := d.Feed.Publish(ctx, d.FeedChannel, b); err != nil {
		d.Log.Warn("status broadcast failed", zap.String("bet_id", ev.BetID), zap.Error(err))
		d.fail("broadcast")
		return
	}
	if d.OnBroadcast != nil {
		d.OnBroadcast()
	}
}

func (d *Dispatcher) fail(stage string) {
	if d.OnError != nil {
		d.OnError(stage)
	}
}

func (d *Dispatcher) batch() int {
	if d.Batch <= 0 {
		return 100
	}
	return d.Batch
}

func (d *Dispatcher) maxAttempts() int {
	if d.MaxAttempts <= 0 {
		return 5
	}
	return d.MaxAttempts
}

func (d *Dispatcher) interval() time.Duration {
	if d.Interval <= 0 {
		return time.Second
	}
	return d.Interval
}

func (d *Dispatcher) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}
