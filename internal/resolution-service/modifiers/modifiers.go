package modifiers

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

type ItemKind string

const (
	KindInsurance  ItemKind = "INSURANCE"
	KindMultiplier ItemKind = "MULTIPLIER"
	KindVIP        ItemKind = "VIP"
)

// Item é um item de inventário com janela de atividade
type Item struct {
	ID           string
	UserID       string
	Kind         ItemKind
	InsurancePct int
	Multiplier   decimal.Decimal
	ActivatedAt  time.Time
	ExpiresAt    *time.Time
	ConsumedAt   *time.Time
}

// ActiveAt informa se o item estava ativo no instante informado
func (i Item) ActiveAt(t time.Time) bool {
	if i.ActivatedAt.After(t) {
		return false
	}
	if i.ExpiresAt != nil && !i.ExpiresAt.After(t) {
		return false
	}
	if i.ConsumedAt != nil && !i.ConsumedAt.After(t) {
		return false
	}
	return true
}

// Freeze reduz os itens ativos em asOf aos modificadores do settlement.
// Vale o maior seguro e o maior multiplicador; empate fica com o ativado primeiro.
func Freeze(items []Item, asOf time.Time) model.Modifiers {
	active := make([]Item, 0, len(items))
	for _, it := range items {
		if it.ActiveAt(asOf) {
			active = append(active, it)
		}
	}
	sort.SliceStable(active, func(a, b int) bool {
		if !active[a].ActivatedAt.Equal(active[b].ActivatedAt) {
			return active[a].ActivatedAt.Before(active[b].ActivatedAt)
		}
		return active[a].ID < active[b].ID
	})

	m := model.NoModifiers()
	for _, it := range active {
		id := it.ID
		switch it.Kind {
		case KindInsurance:
			if it.InsurancePct <= 0 || it.InsurancePct > 100 {
				continue
			}
			if m.InsurancePct == nil || it.InsurancePct > *m.InsurancePct {
				pct := it.InsurancePct
				m.InsurancePct = &pct
				m.InsuranceItemID = &id
			}
		case KindMultiplier:
			if it.Multiplier.GreaterThan(m.Multiplier) {
				m.Multiplier = it.Multiplier
				m.MultiplierItemID = &id
			}
		case KindVIP:
			m.IsVIP = true
		}
	}
	return m
}
