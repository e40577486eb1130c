package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

// insertEffects grava os efeitos na mesma transação da mudança de estado
func insertEffects(ctx context.Context, tx *sql.Tx, aggregateID string, effects []model.Effect) error {
	for _, e := range effects {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outbox (id, aggregate_id, topic, msg_key, payload, created_at)
			VALUES ($1,$2,$3,$4,$5,NOW())`,
			uuid.New().String(), aggregateID, e.Topic, e.Key, e.Payload); err != nil {
			return err
		}
	}
	return nil
}

// OutboxMessage é uma linha pendente do outbox
type OutboxMessage struct {
	ID          string
	AggregateID string
	Topic       string
	Key         string
	Payload     []byte
	Attempts    int
	CreatedAt   time.Time
}

// Delivery é o destino de uma mensagem depois do handler
type Delivery int

const (
	Delivered Delivery = iota
	Retry
	DeadLettered
	Deferred // não tentada: fica pendente sem contar tentativa
)

// Outbox lê mensagens pendentes para o dispatcher
type Outbox struct {
	db *sql.DB
}

func NewOutbox(db *sql.DB) *Outbox { return &Outbox{db: db} }

// Process trava até limit mensagens pendentes (SKIP LOCKED, várias instâncias podem rodar),
// entrega cada uma ao handler e grava o resultado na mesma transação.
// Retorna quantas mensagens foram processadas.
func (o *Outbox) Process(ctx context.Context, limit int, handle func(context.Context, OutboxMessage) (Delivery, error)) (int, error) {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, topic, msg_key, payload, attempts, created_at
		FROM outbox
		WHERE dispatched_at IS NULL AND failed_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return 0, err
	}
	var msgs []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.ID, &m.AggregateID, &m.Topic, &m.Key, &m.Payload, &m.Attempts, &m.CreatedAt); err != nil {
			rows.Close()
			return 0, err
		}
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, m := range msgs {
		d, herr := handle(ctx, m)
		var lastErr any
		if herr != nil {
			lastErr = herr.Error()
		}
		switch d {
		case Deferred:
			continue
		case Delivered:
			_, err = tx.ExecContext(ctx, `UPDATE outbox SET dispatched_at=NOW() WHERE id=$1`, m.ID)
		case DeadLettered:
			_, err = tx.ExecContext(ctx,
				`UPDATE outbox SET attempts=attempts+1, last_error=$2, failed_at=NOW() WHERE id=$1`, m.ID, lastErr)
		default:
			_, err = tx.ExecContext(ctx,
				`UPDATE outbox SET attempts=attempts+1, last_error=$2 WHERE id=$1`, m.ID, lastErr)
		}
		if err != nil {
			return 0, err
		}
	}
	return len(msgs), tx.Commit()
}
