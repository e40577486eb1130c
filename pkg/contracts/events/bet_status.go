package events

import "time"

// Evento publicado no tópico "bet_status" a cada transição relevante.
// Também é espelhado no Redis Pub/Sub para o feed WebSocket.
type BetStatusChanged struct {
	BetID     string    `json:"betId"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Outcome   *string   `json:"outcome,omitempty"`
	Policy    string    `json:"policy,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Version   int64     `json:"version"`
	ChangedAt time.Time `json:"changedAt"`
}
