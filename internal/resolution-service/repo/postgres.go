package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

// Postgres implementa a persistência do serviço de resolução.
// Cada método público é uma transação; transições usam update condicional sobre o status.
type Postgres struct {
	db      *sql.DB
	credits *CreditLedger
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, credits: NewCreditLedger()}
}

// querier é satisfeito por *sql.DB e *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const betColumns = `id, creator_id, COALESCE(group_id, ''), resolution_method, kind, payout_model, stake_type,
	options, fixed_odds, min_resolvers, min_stake_cents, betting_deadline, resolution_deadline,
	status, outcome, fulfillment_status, closed_at, resolving_at, resolved_at, cancelled_at,
	version, created_at, updated_at`

func scanBet(s scanner) (model.Bet, error) {
	var (
		b                                   model.Bet
		method, kind, payout, stake, status string
		outcome, fulfillment                sql.NullString
		closedAt, resolvingAt, resolvedAt   sql.NullTime
		cancelledAt                         sql.NullTime
	)
	err := s.Scan(&b.ID, &b.CreatorID, &b.GroupID, &method, &kind, &payout, &stake,
		pq.Array(&b.Options), &b.FixedOdds, &b.MinResolvers, &b.MinStakeCents, &b.BettingDeadline, &b.ResolutionDeadline,
		&status, &outcome, &fulfillment, &closedAt, &resolvingAt, &resolvedAt, &cancelledAt,
		&b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return model.Bet{}, err
	}
	b.Method = model.ResolutionMethod(method)
	b.Kind = model.BetKind(kind)
	b.PayoutModel = model.PayoutModel(payout)
	b.StakeType = model.StakeType(stake)
	b.Status = model.BetStatus(status)
	b.Outcome = strPtr(outcome)
	b.FulfillmentStatus = model.FulfillmentStatus(fulfillment.String)
	b.ClosedAt = timePtr(closedAt)
	b.ResolvingAt = timePtr(resolvingAt)
	b.ResolvedAt = timePtr(resolvedAt)
	b.CancelledAt = timePtr(cancelledAt)
	return b, nil
}

func (p *Postgres) GetBet(ctx context.Context, betID string) (model.Bet, error) {
	b, err := scanBet(p.db.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id=$1`, betID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bet{}, model.ErrBetNotFound
	}
	return b, err
}

// ListBetsByStatus lista uma página de apostas de um status pela ordem em que o sweeper
// deve tratá-las. after é o id da última aposta da página anterior ("" na primeira).
func (p *Postgres) ListBetsByStatus(ctx context.Context, status model.BetStatus, after string, limit int) ([]model.Bet, error) {
	order := "updated_at"
	switch status {
	case model.BetOpen:
		order = "betting_deadline"
	case model.BetClosed:
		order = "resolution_deadline"
	case model.BetResolving:
		order = "resolving_at"
	}
	// keyset: a aposta do cursor continua na tabela mesmo depois de mudar de status
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE status=$1
		  AND ($2::text = '' OR (`+order+`, id) > (SELECT `+order+`, id FROM bets WHERE id=$2::text))
		ORDER BY `+order+`, id
		LIMIT $3`, string(status), after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) ListParticipations(ctx context.Context, betID string) ([]model.Participation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, bet_id, user_id, COALESCE(outcome, ''), COALESCE(prediction, ''), stake_cents, status,
		       insurance_item_id, payout_cents, refund_amount_cents, created_at, updated_at
		FROM bet_participations
		WHERE bet_id=$1
		ORDER BY created_at, id`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Participation
	for rows.Next() {
		var (
			pt     model.Participation
			status string
			ins    sql.NullString
		)
		if err := rows.Scan(&pt.ID, &pt.BetID, &pt.UserID, &pt.Outcome, &pt.Prediction, &pt.StakeCents, &status,
			&ins, &pt.PayoutCents, &pt.RefundAmountCents, &pt.CreatedAt, &pt.UpdatedAt); err != nil {
			return nil, err
		}
		pt.Status = model.ParticipationStatus(status)
		pt.InsuranceItemID = strPtr(ins)
		out = append(out, pt)
	}
	return out, rows.Err()
}

const voteQuery = `
	SELECT v.id, v.bet_id, v.voter_id, v.voted_outcome, v.is_active, v.revoked_at, v.created_at, v.updated_at,
	       COALESCE(array_agg(w.winner_user_id ORDER BY w.winner_user_id) FILTER (WHERE w.winner_user_id IS NOT NULL), '{}')
	FROM resolution_votes v
	LEFT JOIN vote_winners w ON w.vote_id = v.id`

func scanVote(s scanner) (model.ResolutionVote, error) {
	var (
		v       model.ResolutionVote
		outcome sql.NullString
		revoked sql.NullTime
		winners []string
	)
	if err := s.Scan(&v.ID, &v.BetID, &v.VoterID, &outcome, &v.Active, &revoked, &v.CreatedAt, &v.UpdatedAt,
		pq.Array(&winners)); err != nil {
		return model.ResolutionVote{}, err
	}
	v.RevokedAt = timePtr(revoked)
	if outcome.Valid {
		v.Selection = model.OutcomeSelection{Outcome: outcome.String}
	} else {
		v.Selection = model.NewWinnerSet(winners)
	}
	return v, nil
}

// ListVotes retorna todos os votos da aposta, inclusive revogados
func (p *Postgres) ListVotes(ctx context.Context, betID string) ([]model.ResolutionVote, error) {
	rows, err := p.db.QueryContext(ctx, voteQuery+`
		WHERE v.bet_id=$1
		GROUP BY v.id
		ORDER BY v.created_at, v.id`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ResolutionVote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func getVote(ctx context.Context, q querier, betID, voterID string) (model.ResolutionVote, error) {
	v, err := scanVote(q.QueryRowContext(ctx, voteQuery+`
		WHERE v.bet_id=$1 AND v.voter_id=$2
		GROUP BY v.id`, betID, voterID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ResolutionVote{}, model.ErrVoteNotFound
	}
	return v, err
}

func (p *Postgres) ListJudgments(ctx context.Context, betID string) ([]model.Judgment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, bet_id, resolver_id, participation_id, is_correct, created_at, updated_at
		FROM prediction_resolution_votes
		WHERE bet_id=$1
		ORDER BY created_at, id`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Judgment
	for rows.Next() {
		var j model.Judgment
		if err := rows.Scan(&j.ID, &j.BetID, &j.ResolverID, &j.ParticipationID, &j.IsCorrect, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// entryRow é o formato das entradas no JSONB de settlement_results
type entryRow struct {
	ParticipationID  string  `json:"participationId"`
	UserID           string  `json:"userId"`
	Status           string  `json:"status"`
	StakeCents       int64   `json:"stakeCents"`
	BaseCents        int64   `json:"baseCents"`
	WinningsCents    int64   `json:"winningsCents"`
	InsuranceCents   int64   `json:"insuranceCents"`
	BoostCents       int64   `json:"boostCents"`
	PayoutCents      int64   `json:"payoutCents"`
	InsuranceItemID  *string `json:"insuranceItemId,omitempty"`
	MultiplierItemID *string `json:"multiplierItemId,omitempty"`
	Multiplier       string  `json:"multiplier"`
}

func (p *Postgres) GetSettlement(ctx context.Context, betID string) (model.SettlementResult, error) {
	var (
		r                 model.SettlementResult
		outcome           sql.NullString
		policy, stakeType string
		raw               []byte
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT bet_id, outcome, policy, stake_type, pool_cents, entries, settled_at
		FROM settlement_results WHERE bet_id=$1`, betID).
		Scan(&r.BetID, &outcome, &policy, &stakeType, &r.PoolCents, &raw, &r.SettledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SettlementResult{}, model.ErrSettlementNotFound
	}
	if err != nil {
		return model.SettlementResult{}, err
	}
	r.Outcome = strPtr(outcome)
	r.Policy = model.SettlementPolicy(policy)
	r.StakeType = model.StakeType(stakeType)

	r.Entries, err = decodeEntries(raw)
	return r, err
}

func strPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// isUniqueViolation detecta violação de UNIQUE/PK (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func encodeEntries(entries []model.SettlementEntry) ([]byte, error) {
	rows := make([]entryRow, len(entries))
	for i, e := range entries {
		rows[i] = entryRow{
			ParticipationID:  e.ParticipationID,
			UserID:           e.UserID,
			Status:           string(e.Status),
			StakeCents:       e.StakeCents,
			BaseCents:        e.BaseCents,
			WinningsCents:    e.WinningsCents,
			InsuranceCents:   e.InsuranceCents,
			BoostCents:       e.BoostCents,
			PayoutCents:      e.PayoutCents,
			InsuranceItemID:  e.InsuranceItemID,
			MultiplierItemID: e.MultiplierItemID,
			Multiplier:       e.Multiplier.String(),
		}
	}
	return json.Marshal(rows)
}

func decodeEntries(raw []byte) ([]model.SettlementEntry, error) {
	var rows []entryRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	out := make([]model.SettlementEntry, len(rows))
	for i, r := range rows {
		mult, err := decimal.NewFromString(r.Multiplier)
		if err != nil {
			mult = decimal.NewFromInt(1)
		}
		out[i] = model.SettlementEntry{
			ParticipationID:  r.ParticipationID,
			UserID:           r.UserID,
			Status:           model.ParticipationStatus(r.Status),
			StakeCents:       r.StakeCents,
			BaseCents:        r.BaseCents,
			WinningsCents:    r.WinningsCents,
			InsuranceCents:   r.InsuranceCents,
			BoostCents:       r.BoostCents,
			PayoutCents:      r.PayoutCents,
			InsuranceItemID:  r.InsuranceItemID,
			MultiplierItemID: r.MultiplierItemID,
			Multiplier:       mult,
		}
	}
	return out, nil
}
