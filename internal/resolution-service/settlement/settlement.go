package settlement

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/tally"
)

// Decision é o que a apuração decidiu para a aposta
type Decision struct {
	Policy   model.SettlementPolicy
	Outcome  *string                  // apostas por outcome
	Verdicts map[string]tally.Verdict // PREDICTION: participationID -> veredito
}

// DecisionFrom converte uma apuração em decisão de settlement.
// Apurações não decididas caem na política sem consenso: devolve tudo em apostas
// por outcome e liquida apenas os vereditos decididos em PREDICTION.
func DecisionFrom(d tally.Distribution) Decision {
	if d.Kind != model.KindPrediction {
		if d.Decided() && d.Outcome != nil {
			o := *d.Outcome
			return Decision{Policy: model.PolicyDecided, Outcome: &o}
		}
		return Decision{Policy: model.PolicyRefundAll}
	}

	verdicts := d.Verdicts()
	if d.Decided() {
		return Decision{Policy: model.PolicyDecided, Verdicts: verdicts}
	}
	for _, v := range verdicts {
		if v.Decided() {
			return Decision{Policy: model.PolicyPartial, Verdicts: verdicts}
		}
	}
	return Decision{Policy: model.PolicyRefundAll}
}

// Input do cálculo de settlement; Compute é pura e determinística
type Input struct {
	Bet            model.Bet
	Participations []model.Participation
	Decision       Decision
	Modifiers      map[string]model.Modifiers // userID -> modificadores congelados
	SettledAt      time.Time
}

// Compute calcula status e valores de cada participação.
// Ordem dos modificadores: seguro (sobre o stake) e depois multiplicador (sobre os ganhos).
func Compute(in Input) (model.SettlementResult, error) {
	parts := ordered(in.Participations)
	res := model.SettlementResult{
		BetID:     in.Bet.ID,
		Policy:    in.Decision.Policy,
		StakeType: in.Bet.StakeType,
		SettledAt: in.SettledAt,
		Entries:   make([]model.SettlementEntry, len(parts)),
	}
	if in.Decision.Outcome != nil {
		o := *in.Decision.Outcome
		res.Outcome = &o
	}

	for i, p := range parts {
		res.PoolCents += p.StakeCents
		res.Entries[i] = model.SettlementEntry{
			ParticipationID: p.ID,
			UserID:          p.UserID,
			StakeCents:      p.StakeCents,
			Status:          statusFor(in.Bet, p, in.Decision),
			Multiplier:      decimal.NewFromInt(1),
		}
	}

	if !res.MovesCredits() {
		return res, nil
	}

	var winners, losers []int
	for i, e := range res.Entries {
		switch e.Status {
		case model.PartWon:
			winners = append(winners, i)
		case model.PartLost:
			losers = append(losers, i)
		default:
			res.Entries[i].BaseCents = e.StakeCents
		}
	}

	winningStake := sumStakes(res.Entries, winners)
	losingPool := sumStakes(res.Entries, losers)

	// sem contraparte: ninguém ganha nem perde
	if len(winners)+len(losers) > 0 && (winningStake == 0 || losingPool == 0) {
		for _, i := range append(winners, losers...) {
			res.Entries[i].Status = model.PartDraw
			res.Entries[i].BaseCents = res.Entries[i].StakeCents
		}
		winners, losers = nil, nil
	}

	if len(winners) > 0 {
		winnings, leftover := distribute(in.Bet, res.Entries, winners, losingPool)
		for k, i := range winners {
			res.Entries[i].WinningsCents = winnings[k]
			res.Entries[i].BaseCents = res.Entries[i].StakeCents + winnings[k]
		}
		if leftover > 0 {
			back := apportion(stakes(res.Entries, losers), leftover)
			for k, i := range losers {
				res.Entries[i].BaseCents = back[k]
			}
		}
	}

	for i := range res.Entries {
		applyModifiers(&res.Entries[i], in.Modifiers[res.Entries[i].UserID])
		e := &res.Entries[i]
		e.PayoutCents = e.BaseCents + e.InsuranceCents + e.BoostCents
	}

	if got := res.BaseTotal(); got != res.PoolCents {
		return res, fmt.Errorf("pool not conserved: distributed %d of %d", got, res.PoolCents)
	}
	return res, nil
}

// Cancel devolve integralmente todos os stakes (settlement degenerado)
func Cancel(b model.Bet, parts []model.Participation, at time.Time) model.SettlementResult {
	res := model.SettlementResult{
		BetID:     b.ID,
		Policy:    model.PolicyCancelled,
		StakeType: b.StakeType,
		SettledAt: at,
	}
	for _, p := range ordered(parts) {
		e := model.SettlementEntry{
			ParticipationID: p.ID,
			UserID:          p.UserID,
			Status:          model.PartRefunded,
			StakeCents:      p.StakeCents,
			Multiplier:      decimal.NewFromInt(1),
		}
		if res.MovesCredits() {
			e.BaseCents = p.StakeCents
			e.PayoutCents = p.StakeCents
		}
		res.PoolCents += p.StakeCents
		res.Entries = append(res.Entries, e)
	}
	return res
}

func statusFor(b model.Bet, p model.Participation, d Decision) model.ParticipationStatus {
	switch d.Policy {
	case model.PolicyRefundAll, model.PolicyCancelled:
		return model.PartRefunded
	}
	if b.Kind == model.KindPrediction {
		switch d.Verdicts[p.ID] {
		case tally.VerdictWon:
			return model.PartWon
		case tally.VerdictLost:
			return model.PartLost
		}
		return model.PartRefunded
	}
	if d.Outcome != nil && p.Outcome == *d.Outcome {
		return model.PartWon
	}
	return model.PartLost
}

// distribute retorna os ganhos de cada vencedor e a sobra do pool perdedor
func distribute(b model.Bet, entries []model.SettlementEntry, winners []int, losingPool int64) ([]int64, int64) {
	if b.PayoutModel != model.PayoutFixedOdds {
		return apportion(stakes(entries, winners), losingPool), 0
	}

	requested := make([]int64, len(winners))
	var total int64
	profit := b.FixedOdds.Sub(decimal.NewFromInt(1))
	for k, i := range winners {
		if profit.IsPositive() {
			requested[k] = decimal.NewFromInt(entries[i].StakeCents).Mul(profit).Floor().IntPart()
		}
		total += requested[k]
	}
	if total <= losingPool {
		return requested, losingPool - total
	}
	return apportion(requested, losingPool), 0
}

func applyModifiers(e *model.SettlementEntry, m model.Modifiers) {
	// 1) seguro: reduz a perda, calculado sobre o stake
	if e.Status == model.PartLost && m.InsurancePct != nil && *m.InsurancePct > 0 {
		ins := decimal.NewFromInt(e.StakeCents).
			Mul(decimal.NewFromInt(int64(*m.InsurancePct))).
			Div(decimal.NewFromInt(100)).
			Floor().IntPart()
		if maxIns := e.StakeCents - e.BaseCents; ins > maxIns {
			ins = maxIns
		}
		if ins > 0 {
			e.InsuranceCents = ins
			e.InsuranceItemID = m.InsuranceItemID
		}
	}
	// 2) multiplicador: escala os ganhos do vencedor
	if e.Status == model.PartWon && m.Multiplier.GreaterThan(decimal.NewFromInt(1)) && e.WinningsCents > 0 {
		e.Multiplier = m.Multiplier
		e.BoostCents = decimal.NewFromInt(e.WinningsCents).
			Mul(m.Multiplier.Sub(decimal.NewFromInt(1))).
			Floor().IntPart()
		e.MultiplierItemID = m.MultiplierItemID
	}
	// 3) VIP/desconto é aplicado no stake, não aqui
}

// apportion distribui total proporcionalmente aos pesos, em centavos inteiros.
// Centavos restantes vão para os maiores restos; empate pela ordem de entrada.
func apportion(weights []int64, total int64) []int64 {
	out := make([]int64, len(weights))
	var sum int64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 || total <= 0 {
		return out
	}

	den := decimal.NewFromInt(sum)
	rem := make([]decimal.Decimal, len(weights))
	var given int64
	for i, w := range weights {
		q, r := decimal.NewFromInt(w).Mul(decimal.NewFromInt(total)).QuoRem(den, 0)
		out[i] = q.IntPart()
		rem[i] = r
		given += out[i]
	}

	idx := make([]int, len(weights))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return rem[idx[a]].GreaterThan(rem[idx[b]]) })
	for k := int64(0); k < total-given; k++ {
		out[idx[k]]++
	}
	return out
}

func ordered(parts []model.Participation) []model.Participation {
	out := append([]model.Participation(nil), parts...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func stakes(entries []model.SettlementEntry, idx []int) []int64 {
	out := make([]int64, len(idx))
	for k, i := range idx {
		out[k] = entries[i].StakeCents
	}
	return out
}

func sumStakes(entries []model.SettlementEntry, idx []int) int64 {
	var t int64
	for _, i := range idx {
		t += entries[i].StakeCents
	}
	return t
}
