package tally

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

// State é o estado de decisão da apuração
type State string

const (
	StatePending    State = "PENDING"    // abaixo do quórum ou ainda sem maioria
	StateDecided    State = "DECIDED"    // maioria estrita com quórum
	StateDeadlocked State = "DEADLOCKED" // apuração final sem maioria (empate)
	StateNoQuorum   State = "NO_QUORUM"  // apuração final sem quórum
)

// Verdict é o resultado de uma participação em apostas PREDICTION
type Verdict string

const (
	VerdictPending  Verdict = "PENDING"
	VerdictWon      Verdict = "WON"
	VerdictLost     Verdict = "LOST"
	VerdictTied     Verdict = "TIED"
	VerdictNoQuorum Verdict = "NO_QUORUM"
)

// Decided indica veredito utilizável pelo settlement
func (v Verdict) Decided() bool { return v == VerdictWon || v == VerdictLost }

// Input reúne tudo que a apuração precisa; a função é pura.
type Input struct {
	Bet            model.Bet
	Resolvers      []string // resolvedores autorizados no momento da apuração
	Votes          []model.ResolutionVote
	Judgments      []model.Judgment
	Participations []model.Participation
	DefaultQuorum  int
	Now            time.Time
}

type OutcomeCount struct {
	Outcome string
	Votes   int64
	Percent decimal.Decimal // apenas para UI, nunca usado no settlement
}

type ParticipationTally struct {
	ParticipationID string
	UserID          string
	CorrectCount    int64
	IncorrectCount  int64
	TotalVotes      int64
	Eligible        int64
	Quorum          int64
	Verdict         Verdict
}

// Distribution é o resultado da apuração de uma aposta
type Distribution struct {
	BetID    string
	Kind     model.BetKind
	State    State
	Outcome  *string // preenchido quando State == DECIDED em apostas por outcome
	Eligible int64
	Quorum   int64
	Cast     int64
	Final    bool // todos votaram ou o prazo de resolução passou

	Outcomes       []OutcomeCount
	Participations []ParticipationTally
}

func (d Distribution) Decided() bool { return d.State == StateDecided }

// Undecidable indica apuração final sem decisão (aplica-se a política de fallback)
func (d Distribution) Undecidable() bool {
	return d.State == StateDeadlocked || d.State == StateNoQuorum
}

// Verdicts mapeia participationID -> veredito (PREDICTION)
func (d Distribution) Verdicts() map[string]Verdict {
	out := make(map[string]Verdict, len(d.Participations))
	for _, p := range d.Participations {
		out[p.ParticipationID] = p.Verdict
	}
	return out
}

// RequiredQuorum calcula o número mínimo de resolvedores distintos.
// SELF exige 1, ASSIGNED_RESOLVERS exige todos e PARTICIPANT_VOTE usa o mínimo
// configurado na aposta (ou o default). O mínimo não é reduzido quando há
// menos elegíveis: a apuração fica PENDING e vira NO_QUORUM no prazo.
func RequiredQuorum(b model.Bet, eligible int64, defaultQuorum int) int64 {
	var q int64
	switch b.Method {
	case model.MethodSelf:
		q = 1
	case model.MethodAssignedResolvers:
		q = eligible
	default:
		q = int64(b.MinResolvers)
		if q <= 0 {
			q = int64(defaultQuorum)
		}
		if q <= 0 {
			q = 1
		}
	}
	return q
}

// Compute apura os votos ativos da aposta
func Compute(in Input) Distribution {
	if in.Bet.Kind == model.KindPrediction {
		return computePrediction(in)
	}
	return computeOutcome(in)
}

func resolverSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func deadlinePassed(b model.Bet, now time.Time) bool {
	return !b.ResolutionDeadline.IsZero() && !now.Before(b.ResolutionDeadline)
}

func computeOutcome(in Input) Distribution {
	resolvers := resolverSet(in.Resolvers)
	counts := make(map[string]int64, len(in.Bet.Options))
	var cast int64
	for _, v := range in.Votes {
		if !v.Active {
			continue
		}
		if _, ok := resolvers[v.VoterID]; !ok {
			continue
		}
		sel, ok := v.Selection.(model.OutcomeSelection)
		if !ok || !in.Bet.HasOption(sel.Outcome) {
			continue
		}
		counts[sel.Outcome]++
		cast++
	}

	eligible := int64(len(resolvers))
	d := Distribution{
		BetID:    in.Bet.ID,
		Kind:     in.Bet.Kind,
		Eligible: eligible,
		Quorum:   RequiredQuorum(in.Bet, eligible, in.DefaultQuorum),
		Cast:     cast,
	}

	var leader string
	var leaderVotes int64
	for _, o := range in.Bet.Options {
		c := counts[o]
		d.Outcomes = append(d.Outcomes, OutcomeCount{Outcome: o, Votes: c, Percent: percent(c, cast)})
		if c > leaderVotes {
			leader, leaderVotes = o, c
		}
	}

	d.Final = (eligible > 0 && cast == eligible) || deadlinePassed(in.Bet, in.Now)
	quorumMet := d.Quorum > 0 && cast >= d.Quorum

	switch {
	case !quorumMet:
		if d.Final {
			d.State = StateNoQuorum
		} else {
			d.State = StatePending
		}
	case leaderVotes*2 > cast && (leaderVotes*2 > eligible || d.Final):
		d.State = StateDecided
		d.Outcome = &leader
	case d.Final:
		d.State = StateDeadlocked
	default:
		d.State = StatePending
	}
	return d
}

func computePrediction(in Input) Distribution {
	resolvers := resolverSet(in.Resolvers)
	passed := deadlinePassed(in.Bet, in.Now)

	// resolver -> participation -> correto?
	verdicts := make(map[string]map[string]bool, len(resolvers))
	for _, v := range in.Votes {
		if !v.Active {
			continue
		}
		if _, ok := resolvers[v.VoterID]; !ok {
			continue
		}
		sel, ok := v.Selection.(model.WinnerSetSelection)
		if !ok {
			continue
		}
		m := make(map[string]bool, len(in.Participations))
		for _, p := range in.Participations {
			if p.UserID == v.VoterID {
				continue
			}
			m[p.ID] = sel.Contains(p.UserID)
		}
		verdicts[v.VoterID] = m
	}

	owner := make(map[string]string, len(in.Participations))
	for _, p := range in.Participations {
		owner[p.ID] = p.UserID
	}
	// julgamento explícito sobrepõe o implícito do winner set
	for _, j := range in.Judgments {
		if _, ok := resolvers[j.ResolverID]; !ok {
			continue
		}
		u, ok := owner[j.ParticipationID]
		if !ok || u == j.ResolverID {
			continue
		}
		m := verdicts[j.ResolverID]
		if m == nil {
			m = make(map[string]bool)
			verdicts[j.ResolverID] = m
		}
		m[j.ParticipationID] = j.IsCorrect
	}

	eligibleAll := int64(len(resolvers))
	d := Distribution{
		BetID:    in.Bet.ID,
		Kind:     in.Bet.Kind,
		Eligible: eligibleAll,
		Quorum:   RequiredQuorum(in.Bet, eligibleAll, in.DefaultQuorum),
		Cast:     int64(len(verdicts)),
		Final:    passed,
	}

	allFinal := true
	allDecided := true
	anyTied := false
	for _, p := range in.Participations {
		pt := ParticipationTally{ParticipationID: p.ID, UserID: p.UserID}
		for r := range resolvers {
			if r == p.UserID {
				continue
			}
			pt.Eligible++
			correct, voted := verdicts[r][p.ID]
			if !voted {
				continue
			}
			pt.TotalVotes++
			if correct {
				pt.CorrectCount++
			} else {
				pt.IncorrectCount++
			}
		}
		pt.Quorum = RequiredQuorum(in.Bet, pt.Eligible, in.DefaultQuorum)
		pt.Verdict = judge(pt, passed)

		if pt.Verdict == VerdictPending {
			allFinal = false
		}
		if !pt.Verdict.Decided() {
			allDecided = false
		}
		if pt.Verdict == VerdictTied {
			anyTied = true
		}
		d.Participations = append(d.Participations, pt)
	}

	switch {
	case !allFinal:
		d.State = StatePending
	case allDecided:
		d.State = StateDecided
		d.Final = true
	case d.Cast == 0 || d.Quorum == 0 || !anyTied:
		d.State = StateNoQuorum
		d.Final = true
	default:
		d.State = StateDeadlocked
		d.Final = true
	}
	return d
}

func judge(pt ParticipationTally, deadlinePassed bool) Verdict {
	final := (pt.Eligible > 0 && pt.TotalVotes == pt.Eligible) || deadlinePassed
	if pt.Quorum == 0 || pt.TotalVotes < pt.Quorum {
		if final {
			return VerdictNoQuorum
		}
		return VerdictPending
	}
	switch {
	case pt.CorrectCount > pt.IncorrectCount && (pt.CorrectCount*2 > pt.Eligible || final):
		return VerdictWon
	case pt.IncorrectCount > pt.CorrectCount && (pt.IncorrectCount*2 > pt.Eligible || final):
		return VerdictLost
	case final:
		return VerdictTied
	}
	return VerdictPending
}

func percent(n, total int64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(n).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(total)).Round(2)
}
