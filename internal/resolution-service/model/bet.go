package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BetStatus string

const (
	BetOpen      BetStatus = "OPEN"
	BetClosed    BetStatus = "CLOSED"
	BetResolving BetStatus = "RESOLVING"
	BetResolved  BetStatus = "RESOLVED"
	BetCancelled BetStatus = "CANCELLED"
)

// Terminal indica estados finais (nenhuma mutação de votos ou resultado)
func (s BetStatus) Terminal() bool { return s == BetResolved || s == BetCancelled }

// Votable indica estados em que votos e julgamentos são aceitos
func (s BetStatus) Votable() bool { return s == BetOpen || s == BetClosed }

type ResolutionMethod string

const (
	MethodSelf              ResolutionMethod = "SELF"
	MethodAssignedResolvers ResolutionMethod = "ASSIGNED_RESOLVERS"
	MethodParticipantVote   ResolutionMethod = "PARTICIPANT_VOTE"
)

// Voting indica métodos com mais de um resolvedor possível
func (m ResolutionMethod) Voting() bool {
	return m == MethodAssignedResolvers || m == MethodParticipantVote
}

type BetKind string

const (
	KindBinary         BetKind = "BINARY"
	KindMultipleChoice BetKind = "MULTIPLE_CHOICE"
	KindPrediction     BetKind = "PREDICTION"
)

type PayoutModel string

const (
	PayoutPool      PayoutModel = "POOL"
	PayoutFixedOdds PayoutModel = "FIXED_ODDS"
)

type StakeType string

const (
	StakeCredit StakeType = "CREDIT"
	StakeSocial StakeType = "SOCIAL"
)

type FulfillmentStatus string

const (
	FulfillmentPending   FulfillmentStatus = "PENDING"
	FulfillmentPartial   FulfillmentStatus = "PARTIALLY_FULFILLED"
	FulfillmentFulfilled FulfillmentStatus = "FULFILLED"
)

// FulfillmentFor calcula o status de cumprimento a partir dos perdedores que já comprovaram.
// Sem perdedores (empate ou reembolso geral) não há o que cumprir: status vazio.
func FulfillmentFor(losers, claimed int) FulfillmentStatus {
	switch {
	case losers <= 0:
		return ""
	case claimed >= losers:
		return FulfillmentFulfilled
	case claimed > 0:
		return FulfillmentPartial
	}
	return FulfillmentPending
}

// Bet é um snapshot imutável de uma aposta. Transições geram um novo valor
// que o repositório persiste com update condicional sobre o status anterior.
type Bet struct {
	ID        string
	CreatorID string
	GroupID   string

	Method       ResolutionMethod
	Kind         BetKind
	PayoutModel  PayoutModel
	StakeType    StakeType
	Options      []string        // outcomes possíveis (BINARY / MULTIPLE_CHOICE)
	FixedOdds    decimal.Decimal // múltiplo pago ao vencedor em FIXED_ODDS
	MinResolvers int             // quórum configurado na aposta (0 = default do serviço)

	MinStakeCents      int64
	BettingDeadline    time.Time
	ResolutionDeadline time.Time

	Status            BetStatus
	Outcome           *string
	FulfillmentStatus FulfillmentStatus

	ClosedAt    *time.Time
	ResolvingAt *time.Time
	ResolvedAt  *time.Time
	CancelledAt *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasOption valida se o outcome existe na aposta
func (b Bet) HasOption(outcome string) bool {
	for _, o := range b.Options {
		if o == outcome {
			return true
		}
	}
	return false
}

// ModifiersAsOf é o instante usado para congelar modificadores: o fechamento
// da aposta, ou o prazo de apostas se o fechamento não foi registrado.
func (b Bet) ModifiersAsOf() time.Time {
	if b.ClosedAt != nil {
		return *b.ClosedAt
	}
	return b.BettingDeadline
}

var transitions = map[BetStatus][]BetStatus{
	BetOpen:      {BetClosed, BetCancelled},
	BetClosed:    {BetResolving, BetCancelled},
	BetResolving: {BetResolved, BetClosed},
}

// CanTransition informa se from -> to é permitido.
// RESOLVING -> CLOSED só ocorre quando um claim por voto perde a decisão.
func CanTransition(from, to BetStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition retorna o novo snapshot da aposta no status "to"
func (b Bet) Transition(to BetStatus, at time.Time) (Bet, error) {
	if b.Status.Terminal() {
		return b, ErrBetFinalized
	}
	if !CanTransition(b.Status, to) {
		return b, ErrInvalidTransition
	}
	next := b
	next.Status = to
	next.UpdatedAt = at
	next.Version = b.Version + 1

	t := at
	switch to {
	case BetClosed:
		if b.Status == BetOpen {
			next.ClosedAt = &t
		}
		next.ResolvingAt = nil
	case BetResolving:
		next.ResolvingAt = &t
	case BetResolved:
		next.ResolvedAt = &t
	case BetCancelled:
		next.CancelledAt = &t
	}
	return next, nil
}

type ParticipationStatus string

const (
	PartCreator   ParticipationStatus = "CREATOR"
	PartActive    ParticipationStatus = "ACTIVE"
	PartWon       ParticipationStatus = "WON"
	PartLost      ParticipationStatus = "LOST"
	PartDraw      ParticipationStatus = "DRAW"
	PartRefunded  ParticipationStatus = "REFUNDED"
	PartCancelled ParticipationStatus = "CANCELLED"
)

// Participation é a entrada de um usuário na aposta (stake + escolha)
type Participation struct {
	ID     string
	BetID  string
	UserID string

	Outcome    string // outcome escolhido (apostas por outcome)
	Prediction string // texto livre da previsão (PREDICTION)
	StakeCents int64

	Status            ParticipationStatus
	InsuranceItemID   *string
	PayoutCents       int64
	RefundAmountCents int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settled indica se a participação já recebeu status final
func (p Participation) Settled() bool {
	return p.Status != PartCreator && p.Status != PartActive
}
