package repo

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

// applyTransition grava o novo snapshot somente se o status ainda for o anterior
func applyTransition(ctx context.Context, tx *sql.Tx, prev, next model.Bet, reason string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE bets
		   SET status=$2, outcome=$3, fulfillment_status=$4,
		       closed_at=$5, resolving_at=$6, resolved_at=$7, cancelled_at=$8,
		       version = version + 1, updated_at=$9
		 WHERE id=$1 AND status=$10`,
		next.ID, string(next.Status), nullStr(next.Outcome), nullFulfillment(next.FulfillmentStatus),
		nullTime(next.ClosedAt), nullTime(next.ResolvingAt), nullTime(next.ResolvedAt), nullTime(next.CancelledAt),
		next.UpdatedAt, string(prev.Status))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrResolutionConflict
	}
	return insertTransition(ctx, tx, next.ID, string(prev.Status), string(next.Status), reason)
}

// insertTransition registra a mudança de status no histórico da aposta
func insertTransition(ctx context.Context, tx *sql.Tx, betID, oldStatus, newStatus, reason string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bet_status_transitions (bet_id, old_status, new_status, reason, created_at)
		VALUES ($1,$2,$3,$4,NOW())`, betID, oldStatus, newStatus, reason)
	return err
}

func nullFulfillment(s model.FulfillmentStatus) any {
	if s == "" {
		return nil
	}
	return string(s)
}

// SaveTransition persiste prev -> next e os efeitos no outbox
func (p *Postgres) SaveTransition(ctx context.Context, prev, next model.Bet, reason string, effects []model.Effect) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := applyTransition(ctx, tx, prev, next, reason); err != nil {
		return err
	}
	if err := insertEffects(ctx, tx, next.ID, effects); err != nil {
		return err
	}
	return tx.Commit()
}

// CommitSettlement aplica o settlement inteiro numa transação.
// Qualquer falha desfaz tudo e a aposta continua em RESOLVING.
func (p *Postgres) CommitSettlement(ctx context.Context, prev, next model.Bet, res model.SettlementResult, effects []model.Effect) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// primeiro o update condicional: trava a linha da aposta
	if err := applyTransition(ctx, tx, prev, next, "settled: "+string(res.Policy)); err != nil {
		return err
	}
	if err := insertSettlement(ctx, tx, res); err != nil {
		return err
	}
	if err := updateParticipations(ctx, tx, res); err != nil {
		return err
	}
	if err := p.applyCredits(ctx, tx, res, "settle"); err != nil {
		return err
	}
	if err := consumeItems(ctx, tx, res); err != nil {
		return err
	}
	if err := insertEffects(ctx, tx, res.BetID, effects); err != nil {
		return err
	}
	return tx.Commit()
}

// CommitCancellation reembolsa todos, remove votos e julgamentos e marca CANCELLED
func (p *Postgres) CommitCancellation(ctx context.Context, prev, next model.Bet, res model.SettlementResult, effects []model.Effect) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := applyTransition(ctx, tx, prev, next, "cancelled"); err != nil {
		return err
	}
	// vote_winners cai junto por cascade
	if _, err := tx.ExecContext(ctx, `DELETE FROM resolution_votes WHERE bet_id=$1`, res.BetID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM prediction_resolution_votes WHERE bet_id=$1`, res.BetID); err != nil {
		return err
	}
	if err := insertSettlement(ctx, tx, res); err != nil {
		return err
	}
	if err := updateParticipations(ctx, tx, res); err != nil {
		return err
	}
	if err := p.applyCredits(ctx, tx, res, "cancel"); err != nil {
		return err
	}
	if err := insertEffects(ctx, tx, res.BetID, effects); err != nil {
		return err
	}
	return tx.Commit()
}

func insertSettlement(ctx context.Context, tx *sql.Tx, res model.SettlementResult) error {
	entries, err := encodeEntries(res.Entries)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO settlement_results (bet_id, outcome, policy, stake_type, pool_cents, entries, settled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		res.BetID, nullStr(res.Outcome), string(res.Policy), string(res.StakeType), res.PoolCents, entries, res.SettledAt)
	if isUniqueViolation(err) {
		return model.ErrAlreadyResolved
	}
	return err
}

func updateParticipations(ctx context.Context, tx *sql.Tx, res model.SettlementResult) error {
	for _, e := range res.Entries {
		var refund int64
		if e.Status == model.PartRefunded {
			refund = e.PayoutCents
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE bet_participations
			   SET status=$3, payout_cents=$4, refund_amount_cents=$5, insurance_item_id=COALESCE($6, insurance_item_id), updated_at=$7
			 WHERE id=$1 AND bet_id=$2`,
			e.ParticipationID, res.BetID, string(e.Status), e.PayoutCents, refund, nullStr(e.InsuranceItemID), res.SettledAt); err != nil {
			return &model.SettlementError{ParticipationID: e.ParticipationID, UserID: e.UserID, Err: err}
		}
	}
	return nil
}

// applyCredits lança um delta por participação (inclusive zero), em ordem de usuário
// para que settlements concorrentes travem carteiras na mesma ordem.
func (p *Postgres) applyCredits(ctx context.Context, tx *sql.Tx, res model.SettlementResult, op string) error {
	if !res.MovesCredits() {
		return nil
	}
	entries := append([]model.SettlementEntry(nil), res.Entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].UserID != entries[j].UserID {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].ParticipationID < entries[j].ParticipationID
	})
	for _, e := range entries {
		ref := "bet:" + res.BetID + ":" + op + ":" + e.ParticipationID
		if _, _, err := p.credits.ApplyDelta(ctx, tx, e.UserID, e.PayoutCents, op+":"+res.BetID, ref); err != nil {
			return &model.SettlementError{ParticipationID: e.ParticipationID, UserID: e.UserID, Err: err}
		}
	}
	return nil
}

// consumeItems marca como usados os itens aplicados no settlement
func consumeItems(ctx context.Context, tx *sql.Tx, res model.SettlementResult) error {
	for _, e := range res.Entries {
		var ids []string
		if e.InsuranceCents > 0 && e.InsuranceItemID != nil {
			ids = append(ids, *e.InsuranceItemID)
		}
		if e.BoostCents > 0 && e.MultiplierItemID != nil {
			ids = append(ids, *e.MultiplierItemID)
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `
				UPDATE inventory_items SET consumed_at=$2, consumed_bet=$3
				 WHERE id=$1 AND consumed_at IS NULL`, id, res.SettledAt, res.BetID); err != nil {
				return &model.SettlementError{ParticipationID: e.ParticipationID, UserID: e.UserID, Err: err}
			}
		}
	}
	return nil
}

// UpsertFulfillmentClaim registra a comprovação do perdedor e recalcula o status de cumprimento
func (p *Postgres) UpsertFulfillmentClaim(ctx context.Context, c model.FulfillmentClaim) (model.FulfillmentStatus, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM bets WHERE id=$1 FOR UPDATE`, c.BetID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrBetNotFound
	}
	if err != nil {
		return "", err
	}
	if model.BetStatus(status) != model.BetResolved {
		return "", model.ErrBetNotResolved
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loser_fulfillment_claims (bet_id, loser_id, proof_url, claimed_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (bet_id, loser_id) DO UPDATE
		   SET proof_url = EXCLUDED.proof_url, claimed_at = EXCLUDED.claimed_at`,
		c.BetID, c.LoserID, c.ProofURL, c.ClaimedAt); err != nil {
		return "", err
	}

	var losers, claimed int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(c.loser_id)
		FROM bet_participations p
		LEFT JOIN loser_fulfillment_claims c ON c.bet_id = p.bet_id AND c.loser_id = p.user_id
		WHERE p.bet_id=$1 AND p.status='LOST'`, c.BetID).Scan(&losers, &claimed); err != nil {
		return "", err
	}

	st := model.FulfillmentFor(losers, claimed)
	if _, err := tx.ExecContext(ctx,
		`UPDATE bets SET fulfillment_status=$2, updated_at=NOW() WHERE id=$1`, c.BetID, string(st)); err != nil {
		return "", err
	}
	return st, tx.Commit()
}
