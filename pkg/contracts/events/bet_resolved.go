package events

import "time"

// Evento publicado no tópico "bet_resolved", um por participação liquidada.
// Chave da mensagem: betId.
type BetResolved struct {
	BetID           string    `json:"betId"`
	ParticipationID string    `json:"participationId"`
	UserID          string    `json:"userId"`
	Outcome         *string   `json:"outcome,omitempty"`
	Policy          string    `json:"policy"`
	Status          string    `json:"status"` // WON | LOST | DRAW | REFUNDED
	StakeType       string    `json:"stakeType"`
	StakeCents      int64     `json:"stakeCents"`
	PayoutCents     int64     `json:"payoutCents"`
	InsuranceCents  int64     `json:"insuranceCents,omitempty"`
	BoostCents      int64     `json:"boostCents,omitempty"`
	SettledAt       time.Time `json:"settledAt"`
}

// Evento publicado no tópico "bet_cancelled", um por participação reembolsada
type BetCancelled struct {
	BetID           string    `json:"betId"`
	ParticipationID string    `json:"participationId"`
	UserID          string    `json:"userId"`
	RefundCents     int64     `json:"refundCents"`
	CancelledBy     string    `json:"cancelledBy"`
	CancelledAt     time.Time `json:"cancelledAt"`
}
