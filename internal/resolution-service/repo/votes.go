package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

// lockVotable trava a linha da aposta em modo compartilhado e valida o status.
// Um claim para RESOLVING (update na mesma linha) espera este voto terminar.
func lockVotable(ctx context.Context, tx *sql.Tx, betID string) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM bets WHERE id=$1 FOR SHARE`, betID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrBetNotFound
	}
	if err != nil {
		return err
	}
	st := model.BetStatus(status)
	if st.Terminal() {
		return model.ErrBetFinalized
	}
	if !st.Votable() {
		return model.ErrBetNotVotable
	}
	return nil
}

// UpsertVote grava o voto corrente do resolvedor; um voto anterior é substituído
func (p *Postgres) UpsertVote(ctx context.Context, v model.ResolutionVote) (model.ResolutionVote, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ResolutionVote{}, err
	}
	defer tx.Rollback()

	if err := lockVotable(ctx, tx, v.BetID); err != nil {
		return model.ResolutionVote{}, err
	}

	var outcome any
	var winners []string
	switch s := v.Selection.(type) {
	case model.OutcomeSelection:
		outcome = s.Outcome
	case model.WinnerSetSelection:
		winners = s.WinnerIDs
	default:
		return model.ResolutionVote{}, model.ErrInvalidSelection
	}

	var id string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO resolution_votes (id, bet_id, voter_id, voted_outcome, is_active, revoked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, NULL, $5, $5)
		ON CONFLICT (bet_id, voter_id) DO UPDATE
		   SET voted_outcome = EXCLUDED.voted_outcome,
		       is_active     = TRUE,
		       revoked_at    = NULL,
		       updated_at    = EXCLUDED.updated_at
		RETURNING id`, v.ID, v.BetID, v.VoterID, outcome, v.UpdatedAt).Scan(&id)
	if err != nil {
		return model.ResolutionVote{}, err
	}

	// outcome e conjunto de vencedores são exclusivos: o voto novo sempre limpa os vencedores antigos
	if _, err := tx.ExecContext(ctx, `DELETE FROM vote_winners WHERE vote_id=$1`, id); err != nil {
		return model.ResolutionVote{}, err
	}
	if len(winners) > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vote_winners (vote_id, winner_user_id) SELECT $1, unnest($2::text[])`,
			id, pq.Array(winners)); err != nil {
			return model.ResolutionVote{}, err
		}
	}

	saved, err := getVote(ctx, tx, v.BetID, v.VoterID)
	if err != nil {
		return model.ResolutionVote{}, err
	}
	return saved, tx.Commit()
}

// SetVoteActive revoga ou reativa o voto corrente
func (p *Postgres) SetVoteActive(ctx context.Context, betID, voterID string, active bool, at time.Time) (model.ResolutionVote, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.ResolutionVote{}, err
	}
	defer tx.Rollback()

	if err := lockVotable(ctx, tx, betID); err != nil {
		return model.ResolutionVote{}, err
	}

	var current bool
	err = tx.QueryRowContext(ctx,
		`SELECT is_active FROM resolution_votes WHERE bet_id=$1 AND voter_id=$2 FOR UPDATE`, betID, voterID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ResolutionVote{}, model.ErrVoteNotFound
	}
	if err != nil {
		return model.ResolutionVote{}, err
	}
	if current == active {
		if active {
			return model.ResolutionVote{}, model.ErrVoteAlreadyActive
		}
		return model.ResolutionVote{}, model.ErrVoteAlreadyRevoked
	}

	var revokedAt any
	if !active {
		revokedAt = at
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE resolution_votes SET is_active=$3, revoked_at=$4, updated_at=$5
		WHERE bet_id=$1 AND voter_id=$2`, betID, voterID, active, revokedAt, at); err != nil {
		return model.ResolutionVote{}, err
	}

	v, err := getVote(ctx, tx, betID, voterID)
	if err != nil {
		return model.ResolutionVote{}, err
	}
	return v, tx.Commit()
}

// UpsertJudgment grava o julgamento de um resolvedor sobre uma participação
func (p *Postgres) UpsertJudgment(ctx context.Context, j model.Judgment) (model.Judgment, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Judgment{}, err
	}
	defer tx.Rollback()

	if err := lockVotable(ctx, tx, j.BetID); err != nil {
		return model.Judgment{}, err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO prediction_resolution_votes (id, bet_id, resolver_id, participation_id, is_correct, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (bet_id, resolver_id, participation_id) DO UPDATE
		   SET is_correct = EXCLUDED.is_correct,
		       updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`,
		j.ID, j.BetID, j.ResolverID, j.ParticipationID, j.IsCorrect, j.UpdatedAt).Scan(&j.ID, &j.CreatedAt)
	if err != nil {
		return model.Judgment{}, err
	}
	return j, tx.Commit()
}
