package modifiers

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

// Postgres lê o inventário do usuário direto do banco
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// GetActiveModifiers retorna os modificadores ativos no instante asOf
func (p *Postgres) GetActiveModifiers(ctx context.Context, userID string, asOf time.Time) (model.Modifiers, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, kind, insurance_pct, multiplier, activated_at, expires_at, consumed_at
		FROM inventory_items
		WHERE user_id = $1
		  AND activated_at <= $2
		  AND (expires_at IS NULL OR expires_at > $2)
		  AND (consumed_at IS NULL OR consumed_at > $2)
		ORDER BY activated_at, id`, userID, asOf)
	if err != nil {
		return model.Modifiers{}, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it       Item
			kind     string
			pct      sql.NullInt32
			mult     decimal.NullDecimal
			expires  sql.NullTime
			consumed sql.NullTime
		)
		if err := rows.Scan(&it.ID, &kind, &pct, &mult, &it.ActivatedAt, &expires, &consumed); err != nil {
			return model.Modifiers{}, err
		}
		it.UserID = userID
		it.Kind = ItemKind(kind)
		it.InsurancePct = int(pct.Int32)
		if mult.Valid {
			it.Multiplier = mult.Decimal
		}
		if expires.Valid {
			it.ExpiresAt = &expires.Time
		}
		if consumed.Valid {
			it.ConsumedAt = &consumed.Time
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return model.Modifiers{}, err
	}
	return Freeze(items, asOf), nil
}
