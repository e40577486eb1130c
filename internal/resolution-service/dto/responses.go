package dto

import (
	"time"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/tally"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type VoteResponse struct {
	ID        string     `json:"id"`
	BetID     string     `json:"betId"`
	VoterID   string     `json:"voterId"`
	Outcome   *string    `json:"outcome,omitempty"`
	WinnerIDs []string   `json:"winnerIds,omitempty"`
	Active    bool       `json:"active"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func FromVote(v model.ResolutionVote) VoteResponse {
	out := VoteResponse{
		ID:        v.ID,
		BetID:     v.BetID,
		VoterID:   v.VoterID,
		Active:    v.Active,
		RevokedAt: v.RevokedAt,
		UpdatedAt: v.UpdatedAt,
	}
	switch s := v.Selection.(type) {
	case model.OutcomeSelection:
		o := s.Outcome
		out.Outcome = &o
	case model.WinnerSetSelection:
		out.WinnerIDs = s.WinnerIDs
	}
	return out
}

type JudgmentResponse struct {
	ID              string    `json:"id"`
	BetID           string    `json:"betId"`
	ResolverID      string    `json:"resolverId"`
	ParticipationID string    `json:"participationId"`
	IsCorrect       bool      `json:"isCorrect"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func FromJudgment(j model.Judgment) JudgmentResponse {
	return JudgmentResponse{
		ID:              j.ID,
		BetID:           j.BetID,
		ResolverID:      j.ResolverID,
		ParticipationID: j.ParticipationID,
		IsCorrect:       j.IsCorrect,
		UpdatedAt:       j.UpdatedAt,
	}
}

type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Votes   int64  `json:"votes"`
	Percent string `json:"percent"`
}

type ParticipationTally struct {
	ParticipationID string `json:"participationId"`
	UserID          string `json:"userId"`
	Correct         int64  `json:"correct"`
	Incorrect       int64  `json:"incorrect"`
	Verdict         string `json:"verdict"`
}

// TallyResponse é o mesmo payload enviado no feed WebSocket ("tally")
type TallyResponse struct {
	BetID          string               `json:"betId"`
	State          string               `json:"state"`
	Outcome        *string              `json:"outcome,omitempty"`
	Eligible       int64                `json:"eligible"`
	Quorum         int64                `json:"quorum"`
	Cast           int64                `json:"cast"`
	Final          bool                 `json:"final"`
	Outcomes       []OutcomeCount       `json:"outcomes,omitempty"`
	Participations []ParticipationTally `json:"participations,omitempty"`
}

func FromTally(d tally.Distribution) TallyResponse {
	out := TallyResponse{
		BetID:    d.BetID,
		State:    string(d.State),
		Outcome:  d.Outcome,
		Eligible: d.Eligible,
		Quorum:   d.Quorum,
		Cast:     d.Cast,
		Final:    d.Final,
	}
	for _, o := range d.Outcomes {
		out.Outcomes = append(out.Outcomes, OutcomeCount{Outcome: o.Outcome, Votes: o.Votes, Percent: o.Percent.StringFixed(2)})
	}
	for _, p := range d.Participations {
		out.Participations = append(out.Participations, ParticipationTally{
			ParticipationID: p.ParticipationID,
			UserID:          p.UserID,
			Correct:         p.CorrectCount,
			Incorrect:       p.IncorrectCount,
			Verdict:         string(p.Verdict),
		})
	}
	return out
}

type BetStatusResponse struct {
	BetID     string     `json:"betId"`
	Status    string     `json:"status"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func FromBet(b model.Bet) BetStatusResponse {
	return BetStatusResponse{BetID: b.ID, Status: string(b.Status), ClosedAt: b.ClosedAt, UpdatedAt: b.UpdatedAt}
}

type SettlementEntry struct {
	ParticipationID string `json:"participationId"`
	UserID          string `json:"userId"`
	Status          string `json:"status"`
	StakeCents      int64  `json:"stakeCents"`
	WinningsCents   int64  `json:"winningsCents"`
	InsuranceCents  int64  `json:"insuranceCents"`
	BoostCents      int64  `json:"boostCents"`
	PayoutCents     int64  `json:"payoutCents"`
}

type SettlementResponse struct {
	BetID     string            `json:"betId"`
	Outcome   *string           `json:"outcome,omitempty"`
	Policy    string            `json:"policy"`
	StakeType string            `json:"stakeType"`
	PoolCents int64             `json:"poolCents"`
	SettledAt time.Time         `json:"settledAt"`
	Entries   []SettlementEntry `json:"entries"`
}

func FromSettlement(r model.SettlementResult) SettlementResponse {
	out := SettlementResponse{
		BetID:     r.BetID,
		Outcome:   r.Outcome,
		Policy:    string(r.Policy),
		StakeType: string(r.StakeType),
		PoolCents: r.PoolCents,
		SettledAt: r.SettledAt,
		Entries:   make([]SettlementEntry, 0, len(r.Entries)),
	}
	for _, e := range r.Entries {
		out.Entries = append(out.Entries, SettlementEntry{
			ParticipationID: e.ParticipationID,
			UserID:          e.UserID,
			Status:          string(e.Status),
			StakeCents:      e.StakeCents,
			WinningsCents:   e.WinningsCents,
			InsuranceCents:  e.InsuranceCents,
			BoostCents:      e.BoostCents,
			PayoutCents:     e.PayoutCents,
		})
	}
	return out
}

type FulfillmentResponse struct {
	BetID             string `json:"betId"`
	FulfillmentStatus string `json:"fulfillmentStatus"`
}
