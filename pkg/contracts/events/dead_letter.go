package events

import (
	"encoding/json"
	"time"
)

// OutboxDeadLetter é publicado em outbox_dlq quando uma mensagem esgota as tentativas
type OutboxDeadLetter struct {
	OutboxID    string          `json:"outboxId"`
	AggregateID string          `json:"aggregateId"`
	Topic       string          `json:"topic"`
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"lastError"`
	FailedAt    time.Time       `json:"failedAt"`
}
