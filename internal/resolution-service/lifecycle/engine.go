package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/settlement"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/tally"
	ctopics "github.com/radieske/social-bet-resolution/pkg/contracts/topics"
)

// Store é a persistência da máquina de estados.
// Toda transição é um update condicional sobre o status anterior:
// se outra chamada mudou o status antes, retorna model.ErrResolutionConflict.
type Store interface {
	GetBet(ctx context.Context, betID string) (model.Bet, error)
	ListParticipations(ctx context.Context, betID string) ([]model.Participation, error)
	ListVotes(ctx context.Context, betID string) ([]model.ResolutionVote, error)
	ListJudgments(ctx context.Context, betID string) ([]model.Judgment, error)

	SaveTransition(ctx context.Context, prev, next model.Bet, reason string, effects []model.Effect) error
	// CommitSettlement aplica créditos, participações, registro de settlement,
	// outbox e RESOLVING -> RESOLVED numa única transação.
	CommitSettlement(ctx context.Context, prev, next model.Bet, res model.SettlementResult, effects []model.Effect) error
	// CommitCancellation reembolsa, remove votos pendentes e marca CANCELLED numa única transação
	CommitCancellation(ctx context.Context, prev, next model.Bet, res model.SettlementResult, effects []model.Effect) error

	GetSettlement(ctx context.Context, betID string) (model.SettlementResult, error)
	ListBetsByStatus(ctx context.Context, status model.BetStatus, after string, limit int) ([]model.Bet, error)
	UpsertFulfillmentClaim(ctx context.Context, claim model.FulfillmentClaim) (model.FulfillmentStatus, error)
}

// Authorizer resolve quem pode votar e fechar apostas
type Authorizer interface {
	Resolvers(ctx context.Context, bet model.Bet) ([]string, error)
	IsAuthorizedResolver(ctx context.Context, bet model.Bet, userID string) (bool, error)
}

// ModifierResolver retorna os modificadores ativos de um usuário no instante asOf
type ModifierResolver interface {
	GetActiveModifiers(ctx context.Context, userID string, asOf time.Time) (model.Modifiers, error)
}

// Trigger identifica quem disparou a resolução
type Trigger string

const (
	TriggerVote      Trigger = "VOTE"      // apuração decidida após um voto
	TriggerDeadline  Trigger = "DEADLINE"  // prazo de resolução atingido (sweeper)
	TriggerManual    Trigger = "MANUAL"    // criador força a resolução
	TriggerReconcile Trigger = "RECONCILE" // retomada de aposta presa em RESOLVING
)

type Topics struct {
	Resolved     string
	Cancelled    string
	Status       string
	ItemConsumed string
}

func DefaultTopics() Topics {
	return Topics{
		Resolved:     ctopics.BetResolved,
		Cancelled:    ctopics.BetCancelled,
		Status:       ctopics.BetStatus,
		ItemConsumed: ctopics.InventoryItemConsumed,
	}
}

type Config struct {
	DefaultQuorum  int
	ReconcileAfter time.Duration
	SweepBatch     int
	Topics         Topics
}

// Hooks são callbacks de métricas; todos opcionais
type Hooks struct {
	OnTransition       func(from, to model.BetStatus)
	OnSettled          func(res model.SettlementResult)
	OnSettlementFailed func()
	OnConflict         func(op string)
}

// Engine conduz a aposta pelo ciclo OPEN -> CLOSED -> RESOLVING -> RESOLVED | CANCELLED
type Engine struct {
	store Store
	auth  Authorizer
	mods  ModifierResolver
	log   *zap.Logger
	cfg   Config
	now   func() time.Time

	Hooks Hooks
}

func New(store Store, auth Authorizer, mods ModifierResolver, log *zap.Logger, cfg Config) *Engine {
	if cfg.Topics == (Topics{}) {
		cfg.Topics = DefaultTopics()
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 200
	}
	return &Engine{store: store, auth: auth, mods: mods, log: log, cfg: cfg, now: time.Now}
}

// Tally apura o estado corrente dos votos (somente leitura)
func (e *Engine) Tally(ctx context.Context, betID string) (tally.Distribution, error) {
	bet, err := e.store.GetBet(ctx, betID)
	if err != nil {
		return tally.Distribution{}, err
	}
	return e.tally(ctx, bet, e.now().UTC())
}

func (e *Engine) tally(ctx context.Context, bet model.Bet, now time.Time) (tally.Distribution, error) {
	resolvers, err := e.auth.Resolvers(ctx, bet)
	if err != nil {
		return tally.Distribution{}, err
	}
	votes, err := e.store.ListVotes(ctx, bet.ID)
	if err != nil {
		return tally.Distribution{}, err
	}
	in := tally.Input{
		Bet:           bet,
		Resolvers:     resolvers,
		Votes:         votes,
		DefaultQuorum: e.cfg.DefaultQuorum,
		Now:           now,
	}
	if bet.Kind == model.KindPrediction {
		if in.Judgments, err = e.store.ListJudgments(ctx, bet.ID); err != nil {
			return tally.Distribution{}, err
		}
		if in.Participations, err = e.store.ListParticipations(ctx, bet.ID); err != nil {
			return tally.Distribution{}, err
		}
	}
	return tally.Compute(in), nil
}

// Close encerra a janela de apostas manualmente
func (e *Engine) Close(ctx context.Context, betID, actorID string) (model.Bet, error) {
	bet, err := e.store.GetBet(ctx, betID)
	if err != nil {
		return model.Bet{}, err
	}
	if bet.Status.Terminal() {
		return model.Bet{}, model.ErrBetFinalized
	}
	if bet.Status != model.BetOpen {
		return model.Bet{}, model.ErrInvalidTransition
	}
	if actorID != bet.CreatorID {
		ok := false
		if bet.Method.Voting() {
			if ok, err = e.auth.IsAuthorizedResolver(ctx, bet, actorID); err != nil {
				return model.Bet{}, err
			}
		}
		if !ok {
			return model.Bet{}, model.ErrNotCreator
		}
	}
	return e.transition(ctx, bet, model.BetClosed, e.now().UTC(), "closed by "+actorID)
}

// AfterVote reapura a aposta e dispara a resolução quando houver decisão
func (e *Engine) AfterVote(ctx context.Context, betID string) (tally.Distribution, error) {
	dist, err := e.Tally(ctx, betID)
	if err != nil {
		return dist, err
	}
	if !dist.Decided() {
		return dist, nil
	}
	if _, err := e.Resolve(ctx, betID, TriggerVote, ""); err != nil {
		switch {
		case errors.Is(err, model.ErrBetNotClosed), errors.Is(err, model.ErrNotDecidable), model.IsConflict(err):
			e.log.Debug("vote did not trigger resolution", zap.String("bet_id", betID), zap.Error(err))
		default:
			return dist, err
		}
	}
	return dist, nil
}

// Resolve liquida a aposta. O claim CLOSED -> RESOLVING é atômico: entre chamadas
// concorrentes só uma vence, as outras recebem ErrResolutionConflict.
func (e *Engine) Resolve(ctx context.Context, betID string, trigger Trigger, actorID string) (model.SettlementResult, error) {
	bet, err := e.store.GetBet(ctx, betID)
	if err != nil {
		return model.SettlementResult{}, err
	}

	switch bet.Status {
	case model.BetResolved:
		return model.SettlementResult{}, model.ErrAlreadyResolved
	case model.BetCancelled:
		return model.SettlementResult{}, model.ErrBetFinalized
	case model.BetResolving:
		if trigger != TriggerReconcile {
			return model.SettlementResult{}, model.ErrResolutionRunning
		}
		dist, err := e.tally(ctx, bet, e.now().UTC())
		if err != nil {
			return model.SettlementResult{}, err
		}
		return e.settle(ctx, bet, dist)
	}

	if trigger == TriggerManual && actorID != bet.CreatorID {
		return model.SettlementResult{}, model.ErrNotCreator
	}

	now := e.now().UTC()
	// DEADLINE força o fallback sem consenso: só vale depois do prazo de resolução
	if trigger == TriggerDeadline && now.Before(bet.ResolutionDeadline) {
		return model.SettlementResult{}, model.ErrDeadlineNotReached
	}
	if bet.Status == model.BetOpen {
		if now.Before(bet.BettingDeadline) {
			return model.SettlementResult{}, model.ErrBetNotClosed
		}
		if bet, err = e.closeExpired(ctx, bet); err != nil {
			return model.SettlementResult{}, err
		}
	}

	dist, err := e.tally(ctx, bet, now)
	if err != nil {
		return model.SettlementResult{}, err
	}
	if !ready(dist, trigger) {
		return model.SettlementResult{}, model.ErrNotDecidable
	}

	claimed, err := e.transition(ctx, bet, model.BetResolving, now, "resolution triggered by "+string(trigger))
	if err != nil {
		return model.SettlementResult{}, err
	}

	// votos estão congelados a partir daqui; a apuração é refeita sobre eles
	dist, err = e.tally(ctx, claimed, now)
	if err != nil {
		return model.SettlementResult{}, err
	}
	if trigger == TriggerVote && !dist.Decided() {
		if _, rerr := e.transition(ctx, claimed, model.BetClosed, now, "tally changed before settlement"); rerr != nil {
			e.log.Warn("release of resolution claim failed", zap.String("bet_id", betID), zap.Error(rerr))
		}
		return model.SettlementResult{}, model.ErrNotDecidable
	}
	return e.settle(ctx, claimed, dist)
}

// ready decide se a apuração permite liquidar para o gatilho informado.
// Apurações finais sem decisão só são liquidadas (com fallback) por prazo ou pelo criador.
func ready(d tally.Distribution, t Trigger) bool {
	if d.Decided() {
		return true
	}
	if !d.Final || !d.Undecidable() {
		return false
	}
	return t == TriggerDeadline || t == TriggerManual
}

func (e *Engine) settle(ctx context.Context, bet model.Bet, dist tally.Distribution) (model.SettlementResult, error) {
	decision := settlement.DecisionFrom(dist)
	outcome := ""
	if decision.Outcome != nil {
		outcome = *decision.Outcome
	}

	parts, err := e.store.ListParticipations(ctx, bet.ID)
	if err != nil {
		return model.SettlementResult{}, e.fail(bet, outcome, &model.SettlementError{Err: err})
	}

	mods, err := e.modifiers(ctx, bet, parts)
	if err != nil {
		return model.SettlementResult{}, e.fail(bet, outcome, err)
	}

	settledAt := e.now().UTC()
	if bet.ResolvingAt != nil {
		settledAt = *bet.ResolvingAt
	}
	res, err := settlement.Compute(settlement.Input{
		Bet:            bet,
		Participations: parts,
		Decision:       decision,
		Modifiers:      mods,
		SettledAt:      settledAt,
	})
	if err != nil {
		return model.SettlementResult{}, e.fail(bet, outcome, &model.SettlementError{Err: err})
	}

	next, err := bet.Transition(model.BetResolved, e.now().UTC())
	if err != nil {
		return model.SettlementResult{}, err
	}
	next.Outcome = res.Outcome
	if !res.MovesCredits() {
		next.FulfillmentStatus = model.FulfillmentFor(len(res.Losers()), 0)
	}

	effects, err := e.settlementEffects(bet, next, res)
	if err != nil {
		return model.SettlementResult{}, e.fail(bet, outcome, &model.SettlementError{Err: err})
	}

	if err := e.store.CommitSettlement(ctx, bet, next, res, effects); err != nil {
		if model.IsConflict(err) {
			e.conflict("settle")
			return model.SettlementResult{}, err
		}
		return model.SettlementResult{}, e.fail(bet, outcome, err)
	}

	e.transitioned(bet.Status, next.Status)
	if e.Hooks.OnSettled != nil {
		e.Hooks.OnSettled(res)
	}
	e.log.Info("bet settled",
		zap.String("bet_id", bet.ID),
		zap.String("outcome", outcome),
		zap.String("policy", string(res.Policy)),
		zap.Int("participations", len(res.Entries)),
		zap.Int64("pool_cents", res.PoolCents),
		zap.Int64("payout_cents", res.PayoutTotal()),
	)
	return res, nil
}

// modifiers congela os itens ativos de cada participante no fechamento da aposta
func (e *Engine) modifiers(ctx context.Context, bet model.Bet, parts []model.Participation) (map[string]model.Modifiers, error) {
	out := make(map[string]model.Modifiers, len(parts))
	if bet.StakeType == model.StakeSocial || e.mods == nil {
		return out, nil
	}
	asOf := bet.ModifiersAsOf()
	for _, p := range parts {
		if _, ok := out[p.UserID]; ok {
			continue
		}
		m, err := e.mods.GetActiveModifiers(ctx, p.UserID, asOf)
		if err != nil {
			return nil, &model.SettlementError{ParticipationID: p.ID, UserID: p.UserID, Err: err}
		}
		out[p.UserID] = m
	}
	return out, nil
}

// fail registra a falha de settlement; a aposta continua em RESOLVING para reconciliação
func (e *Engine) fail(bet model.Bet, outcome string, err error) error {
	var se *model.SettlementError
	if !errors.As(err, &se) {
		se = &model.SettlementError{Err: err}
	}
	se.BetID = bet.ID
	se.Outcome = outcome

	e.log.Error("settlement failed, bet left in RESOLVING",
		zap.String("bet_id", se.BetID),
		zap.String("outcome", se.Outcome),
		zap.String("participation_id", se.ParticipationID),
		zap.String("user_id", se.UserID),
		zap.Error(se.Err),
	)
	if e.Hooks.OnSettlementFailed != nil {
		e.Hooks.OnSettlementFailed()
	}
	return se
}

// Cancel cancela a aposta e devolve todos os stakes. Só o criador pode cancelar,
// e apenas antes do início do settlement.
func (e *Engine) Cancel(ctx context.Context, betID, actorID string) (model.SettlementResult, error) {
	bet, err := e.store.GetBet(ctx, betID)
	if err != nil {
		return model.SettlementResult{}, err
	}
	switch {
	case bet.Status.Terminal():
		return model.SettlementResult{}, model.ErrBetFinalized
	case bet.Status == model.BetResolving:
		return model.SettlementResult{}, model.ErrResolutionRunning
	case actorID != bet.CreatorID:
		return model.SettlementResult{}, model.ErrNotCreator
	}

	parts, err := e.store.ListParticipations(ctx, betID)
	if err != nil {
		return model.SettlementResult{}, err
	}
	now := e.now().UTC()
	res := settlement.Cancel(bet, parts, now)

	next, err := bet.Transition(model.BetCancelled, now)
	if err != nil {
		return model.SettlementResult{}, err
	}
	effects, err := e.cancellationEffects(bet, next, res, actorID)
	if err != nil {
		return model.SettlementResult{}, err
	}
	if err := e.store.CommitCancellation(ctx, bet, next, res, effects); err != nil {
		if model.IsConflict(err) {
			e.conflict("cancel")
		}
		return model.SettlementResult{}, err
	}

	e.transitioned(bet.Status, next.Status)
	e.log.Info("bet cancelled",
		zap.String("bet_id", betID),
		zap.String("actor_id", actorID),
		zap.Int("refunds", len(res.Entries)),
		zap.Int64("refund_cents", res.PayoutTotal()),
	)
	return res, nil
}

// Settlement retorna o registro de auditoria da aposta
func (e *Engine) Settlement(ctx context.Context, betID string) (model.SettlementResult, error) {
	return e.store.GetSettlement(ctx, betID)
}

// ClaimFulfillment registra que um perdedor cumpriu uma aposta social
func (e *Engine) ClaimFulfillment(ctx context.Context, betID, loserID, proofURL string) (model.FulfillmentStatus, error) {
	bet, err := e.store.GetBet(ctx, betID)
	if err != nil {
		return "", err
	}
	if bet.StakeType != model.StakeSocial {
		return "", model.ErrNotSocialBet
	}
	if bet.Status != model.BetResolved {
		return "", model.ErrBetNotResolved
	}
	parts, err := e.store.ListParticipations(ctx, betID)
	if err != nil {
		return "", err
	}
	loser := false
	for _, p := range parts {
		if p.UserID == loserID && p.Status == model.PartLost {
			loser = true
			break
		}
	}
	if !loser {
		return "", model.ErrNotLoser
	}

	st, err := e.store.UpsertFulfillmentClaim(ctx, model.FulfillmentClaim{
		BetID:     betID,
		LoserID:   loserID,
		ProofURL:  proofURL,
		ClaimedAt: e.now().UTC(),
	})
	if err != nil {
		return "", err
	}
	e.log.Info("fulfillment claimed", zap.String("bet_id", betID), zap.String("loser_id", loserID), zap.String("status", string(st)))
	return st, nil
}

// transition persiste prev -> to com update condicional e registra o evento de status
func (e *Engine) transition(ctx context.Context, prev model.Bet, to model.BetStatus, at time.Time, reason string) (model.Bet, error) {
	next, err := prev.Transition(to, at)
	if err != nil {
		return model.Bet{}, err
	}
	next.UpdatedAt = e.now().UTC()

	eff, err := e.statusEffect(prev, next, "", reason)
	if err != nil {
		return model.Bet{}, err
	}
	if err := e.store.SaveTransition(ctx, prev, next, reason, []model.Effect{eff}); err != nil {
		if errors.Is(err, model.ErrResolutionConflict) {
			e.conflict(string(to))
		}
		return model.Bet{}, err
	}

	e.transitioned(prev.Status, to)
	e.log.Info("bet status changed",
		zap.String("bet_id", prev.ID),
		zap.String("from", string(prev.Status)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
	return next, nil
}

// closeExpired fecha uma aposta cujo prazo de apostas passou.
// closedAt é o próprio prazo, para que os modificadores congelados não dependam do atraso do sweeper.
func (e *Engine) closeExpired(ctx context.Context, bet model.Bet) (model.Bet, error) {
	next, err := e.transition(ctx, bet, model.BetClosed, bet.BettingDeadline, "betting deadline reached")
	if err == nil || !errors.Is(err, model.ErrResolutionConflict) {
		return next, err
	}
	// outra chamada fechou antes: segue com o estado atual
	cur, gerr := e.store.GetBet(ctx, bet.ID)
	if gerr != nil {
		return model.Bet{}, gerr
	}
	if cur.Status != model.BetClosed {
		return model.Bet{}, err
	}
	return cur, nil
}

func (e *Engine) transitioned(from, to model.BetStatus) {
	if e.Hooks.OnTransition != nil {
		e.Hooks.OnTransition(from, to)
	}
}

func (e *Engine) conflict(op string) {
	if e.Hooks.OnConflict != nil {
		e.Hooks.OnConflict(op)
	}
}
