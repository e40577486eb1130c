package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SettlementPolicy string

const (
	PolicyDecided   SettlementPolicy = "DECIDED"    // outcome decidido por maioria
	PolicyRefundAll SettlementPolicy = "REFUND_ALL" // sem consenso: devolve todos os stakes
	PolicyPartial   SettlementPolicy = "PARTIAL"    // PREDICTION com participações sem veredito
	PolicyCancelled SettlementPolicy = "CANCELLED"
)

// Modifiers são os itens ativos de um usuário congelados no fechamento da aposta
type Modifiers struct {
	InsurancePct     *int // 25 | 50 | 75
	InsuranceItemID  *string
	Multiplier       decimal.Decimal // 1 quando não há booster
	MultiplierItemID *string
	IsVIP            bool
}

// NoModifiers é o valor neutro
func NoModifiers() Modifiers { return Modifiers{Multiplier: decimal.NewFromInt(1)} }

// SettlementEntry é o resultado de uma participação.
// PayoutCents = BaseCents + InsuranceCents + BoostCents.
type SettlementEntry struct {
	ParticipationID string
	UserID          string
	Status          ParticipationStatus
	StakeCents      int64

	BaseCents      int64 // parte do pool (stake devolvido + ganhos)
	WinningsCents  int64 // parte de BaseCents vinda do pool perdedor
	InsuranceCents int64 // reembolso de seguro (custo do sistema)
	BoostCents     int64 // bônus do multiplicador (custo do sistema)
	PayoutCents    int64

	InsuranceItemID  *string
	MultiplierItemID *string
	Multiplier       decimal.Decimal
}

// SettlementResult é o registro de auditoria, chaveado por BetID
type SettlementResult struct {
	BetID     string
	Outcome   *string
	Policy    SettlementPolicy
	StakeType StakeType
	PoolCents int64
	Entries   []SettlementEntry
	SettledAt time.Time
}

// BaseTotal soma a redistribuição do pool (exclui seguro e boosters)
func (r SettlementResult) BaseTotal() int64 {
	var t int64
	for _, e := range r.Entries {
		t += e.BaseCents
	}
	return t
}

// PayoutTotal soma todos os créditos aplicados
func (r SettlementResult) PayoutTotal() int64 {
	var t int64
	for _, e := range r.Entries {
		t += e.PayoutCents
	}
	return t
}

// MovesCredits informa se o settlement altera saldos
func (r SettlementResult) MovesCredits() bool { return r.StakeType != StakeSocial }

// Losers retorna os usuários que perderam (usado em apostas sociais)
func (r SettlementResult) Losers() []string {
	var out []string
	for _, e := range r.Entries {
		if e.Status == PartLost {
			out = append(out, e.UserID)
		}
	}
	return out
}

// Effect é um efeito colateral a executar depois do commit (outbox)
type Effect struct {
	Topic   string
	Key     string
	Payload []byte
}
