package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

// Store é a persistência usada pelo ledger de votos.
// UpsertVote e UpsertJudgment revalidam o status da aposta dentro da transação.
type Store interface {
	GetBet(ctx context.Context, betID string) (model.Bet, error)
	ListParticipations(ctx context.Context, betID string) ([]model.Participation, error)
	UpsertVote(ctx context.Context, v model.ResolutionVote) (model.ResolutionVote, error)
	SetVoteActive(ctx context.Context, betID, voterID string, active bool, at time.Time) (model.ResolutionVote, error)
	UpsertJudgment(ctx context.Context, j model.Judgment) (model.Judgment, error)
}

// Authorizer decide quem pode votar em uma aposta
type Authorizer interface {
	IsAuthorizedResolver(ctx context.Context, bet model.Bet, userID string) (bool, error)
}

// Ledger registra votos de resolução e julgamentos de previsões.
// Não decide nada: a apuração lê o estado corrente dos votos.
type Ledger struct {
	store Store
	auth  Authorizer
	log   *zap.Logger
	now   func() time.Time

	OnVote func(kind string) // métricas
}

func New(store Store, auth Authorizer, log *zap.Logger) *Ledger {
	return &Ledger{store: store, auth: auth, log: log, now: time.Now}
}

// CastVote grava (ou substitui) o voto corrente do resolvedor
func (l *Ledger) CastVote(ctx context.Context, betID, voterID string, sel model.Selection) (model.ResolutionVote, error) {
	bet, err := l.votableBet(ctx, betID)
	if err != nil {
		return model.ResolutionVote{}, err
	}

	sel, err = l.checkSelection(ctx, bet, voterID, sel)
	if err != nil {
		return model.ResolutionVote{}, err
	}
	if err := l.authorize(ctx, bet, voterID); err != nil {
		return model.ResolutionVote{}, err
	}

	now := l.now().UTC()
	v, err := l.store.UpsertVote(ctx, model.ResolutionVote{
		ID:        uuid.NewString(),
		BetID:     betID,
		VoterID:   voterID,
		Selection: sel,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return model.ResolutionVote{}, err
	}

	l.log.Info("vote cast", zap.String("bet_id", betID), zap.String("voter_id", voterID), zap.String("vote_id", v.ID))
	l.count("vote")
	return v, nil
}

// RevokeVote desativa o voto corrente (soft delete)
func (l *Ledger) RevokeVote(ctx context.Context, betID, voterID string) (model.ResolutionVote, error) {
	return l.setActive(ctx, betID, voterID, false)
}

// ReactivateVote reativa um voto revogado
func (l *Ledger) ReactivateVote(ctx context.Context, betID, voterID string) (model.ResolutionVote, error) {
	return l.setActive(ctx, betID, voterID, true)
}

func (l *Ledger) setActive(ctx context.Context, betID, voterID string, active bool) (model.ResolutionVote, error) {
	if _, err := l.votableBet(ctx, betID); err != nil {
		return model.ResolutionVote{}, err
	}
	v, err := l.store.SetVoteActive(ctx, betID, voterID, active, l.now().UTC())
	if err != nil {
		return model.ResolutionVote{}, err
	}
	l.log.Info("vote active flag changed",
		zap.String("bet_id", betID), zap.String("voter_id", voterID), zap.Bool("active", active))
	if active {
		l.count("reactivate")
	} else {
		l.count("revoke")
	}
	return v, nil
}

// JudgeParticipation registra se a previsão de uma participação está correta.
// Um julgamento explícito sobrepõe o veredito implícito do voto por conjunto de vencedores.
func (l *Ledger) JudgeParticipation(ctx context.Context, betID, resolverID, participationID string, isCorrect bool) (model.Judgment, error) {
	bet, err := l.votableBet(ctx, betID)
	if err != nil {
		return model.Judgment{}, err
	}
	if bet.Kind != model.KindPrediction {
		return model.Judgment{}, model.ErrNotPrediction
	}

	parts, err := l.store.ListParticipations(ctx, betID)
	if err != nil {
		return model.Judgment{}, err
	}
	var target *model.Participation
	for i := range parts {
		if parts[i].ID == participationID {
			target = &parts[i]
			break
		}
	}
	if target == nil {
		return model.Judgment{}, model.ErrParticipationNotFound
	}
	if target.UserID == resolverID {
		return model.Judgment{}, model.ErrSelfVote
	}
	if err := l.authorize(ctx, bet, resolverID); err != nil {
		return model.Judgment{}, err
	}

	now := l.now().UTC()
	j, err := l.store.UpsertJudgment(ctx, model.Judgment{
		ID:              uuid.NewString(),
		BetID:           betID,
		ResolverID:      resolverID,
		ParticipationID: participationID,
		IsCorrect:       isCorrect,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return model.Judgment{}, err
	}

	l.log.Info("prediction judged",
		zap.String("bet_id", betID),
		zap.String("resolver_id", resolverID),
		zap.String("participation_id", participationID),
		zap.Bool("is_correct", isCorrect))
	l.count("judgment")
	return j, nil
}

func (l *Ledger) votableBet(ctx context.Context, betID string) (model.Bet, error) {
	bet, err := l.store.GetBet(ctx, betID)
	if err != nil {
		return model.Bet{}, err
	}
	if bet.Status.Terminal() {
		return model.Bet{}, model.ErrBetFinalized
	}
	if !bet.Status.Votable() {
		return model.Bet{}, model.ErrBetNotVotable
	}
	return bet, nil
}

// checkSelection valida o conteúdo do voto contra o tipo da aposta e normaliza o conjunto de vencedores
func (l *Ledger) checkSelection(ctx context.Context, bet model.Bet, voterID string, sel model.Selection) (model.Selection, error) {
	switch s := sel.(type) {
	case model.OutcomeSelection:
		if bet.Kind == model.KindPrediction {
			return nil, model.ErrInvalidSelection
		}
		if !bet.HasOption(s.Outcome) {
			return nil, model.ErrUnknownOutcome
		}
		return s, nil

	case model.WinnerSetSelection:
		if bet.Kind != model.KindPrediction {
			return nil, model.ErrInvalidSelection
		}
		ws := model.NewWinnerSet(s.WinnerIDs)
		if len(ws.WinnerIDs) == 0 {
			return nil, model.ErrEmptyWinnerSet
		}
		if ws.Contains(voterID) {
			return nil, model.ErrSelfVote
		}
		parts, err := l.store.ListParticipations(ctx, bet.ID)
		if err != nil {
			return nil, err
		}
		users := make(map[string]struct{}, len(parts))
		for _, p := range parts {
			users[p.UserID] = struct{}{}
		}
		for _, id := range ws.WinnerIDs {
			if _, ok := users[id]; !ok {
				return nil, model.ErrUnknownWinner
			}
		}
		return ws, nil
	}
	return nil, model.ErrInvalidSelection
}

func (l *Ledger) authorize(ctx context.Context, bet model.Bet, userID string) error {
	ok, err := l.auth.IsAuthorizedResolver(ctx, bet, userID)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrNotResolver
	}
	return nil
}

func (l *Ledger) count(kind string) {
	if l.OnVote != nil {
		l.OnVote(kind)
	}
}
