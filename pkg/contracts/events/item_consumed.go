package events

import "time"

// Evento publicado no tópico "inventory_item_consumed".
// Só itens efetivamente aplicados no settlement são consumidos.
type ItemConsumed struct {
	ItemID     string    `json:"itemId"`
	UserID     string    `json:"userId"`
	BetID      string    `json:"betId"`
	Kind       string    `json:"kind"` // INSURANCE | MULTIPLIER
	ConsumedAt time.Time `json:"consumedAt"`
}
