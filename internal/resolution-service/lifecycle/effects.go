package lifecycle

import (
	"encoding/json"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
	"github.com/radieske/social-bet-resolution/pkg/contracts/events"
)

// Efeitos são gravados no outbox dentro da mesma transação da mudança de estado
// e publicados pelo outbox-dispatcher depois do commit.

func (e *Engine) statusEffect(prev, next model.Bet, policy model.SettlementPolicy, reason string) (model.Effect, error) {
	return effect(e.cfg.Topics.Status, next.ID, events.BetStatusChanged{
		BetID:     next.ID,
		From:      string(prev.Status),
		To:        string(next.Status),
		Outcome:   next.Outcome,
		Policy:    string(policy),
		Reason:    reason,
		Version:   next.Version,
		ChangedAt: next.UpdatedAt,
	})
}

func (e *Engine) settlementEffects(prev, next model.Bet, res model.SettlementResult) ([]model.Effect, error) {
	out := make([]model.Effect, 0, len(res.Entries)+1)
	for _, en := range res.Entries {
		eff, err := effect(e.cfg.Topics.Resolved, res.BetID, events.BetResolved{
			BetID:           res.BetID,
			ParticipationID: en.ParticipationID,
			UserID:          en.UserID,
			Outcome:         res.Outcome,
			Policy:          string(res.Policy),
			Status:          string(en.Status),
			StakeType:       string(res.StakeType),
			StakeCents:      en.StakeCents,
			PayoutCents:     en.PayoutCents,
			InsuranceCents:  en.InsuranceCents,
			BoostCents:      en.BoostCents,
			SettledAt:       res.SettledAt,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, eff)

		// só itens efetivamente aplicados são consumidos
		if en.InsuranceCents > 0 && en.InsuranceItemID != nil {
			if eff, err = e.consumed(*en.InsuranceItemID, en.UserID, res, "INSURANCE"); err != nil {
				return nil, err
			}
			out = append(out, eff)
		}
		if en.BoostCents > 0 && en.MultiplierItemID != nil {
			if eff, err = e.consumed(*en.MultiplierItemID, en.UserID, res, "MULTIPLIER"); err != nil {
				return nil, err
			}
			out = append(out, eff)
		}
	}

	st, err := e.statusEffect(prev, next, res.Policy, "settled")
	if err != nil {
		return nil, err
	}
	return append(out, st), nil
}

func (e *Engine) consumed(itemID, userID string, res model.SettlementResult, kind string) (model.Effect, error) {
	return effect(e.cfg.Topics.ItemConsumed, userID, events.ItemConsumed{
		ItemID:     itemID,
		UserID:     userID,
		BetID:      res.BetID,
		Kind:       kind,
		ConsumedAt: res.SettledAt,
	})
}

func (e *Engine) cancellationEffects(prev, next model.Bet, res model.SettlementResult, actorID string) ([]model.Effect, error) {
	out := make([]model.Effect, 0, len(res.Entries)+1)
	for _, en := range res.Entries {
		eff, err := effect(e.cfg.Topics.Cancelled, res.BetID, events.BetCancelled{
			BetID:           res.BetID,
			ParticipationID: en.ParticipationID,
			UserID:          en.UserID,
			RefundCents:     en.PayoutCents,
			CancelledBy:     actorID,
			CancelledAt:     res.SettledAt,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, eff)
	}
	st, err := e.statusEffect(prev, next, res.Policy, "cancelled by "+actorID)
	if err != nil {
		return nil, err
	}
	return append(out, st), nil
}

func effect(topic, key string, v any) (model.Effect, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return model.Effect{}, err
	}
	return model.Effect{Topic: topic, Key: key, Payload: b}, nil
}
