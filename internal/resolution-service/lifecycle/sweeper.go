package lifecycle

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
	"github.com/radieske/social-bet-resolution/internal/shared/logger"
)

// SweepReport resume uma passada do sweeper
type SweepReport struct {
	Closed     int
	Resolved   int
	Reconciled int
	Failed     int
}

// Sweep executa uma passada: fecha apostas com prazo vencido, resolve as que
// estão decididas ou no prazo de resolução e retoma settlements presos em RESOLVING.
// Cada status é lido em páginas de SweepBatch até esgotar.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	now := e.now().UTC()

	// ordenadas por betting_deadline: a primeira ainda aberta encerra a varredura
	err := e.eachBet(ctx, model.BetOpen, func(b model.Bet) bool {
		if now.Before(b.BettingDeadline) {
			return false
		}
		if _, err := e.closeExpired(ctx, b); err != nil {
			e.sweepError(b.ID, "close", err, &rep)
			return true
		}
		rep.Closed++
		return true
	})
	if err != nil {
		return rep, err
	}

	// todas as CLOSED: uma decidida pode estar atrás de muitas pendentes
	err = e.eachBet(ctx, model.BetClosed, func(b model.Bet) bool {
		trigger := TriggerVote
		if !now.Before(b.ResolutionDeadline) {
			trigger = TriggerDeadline
		}
		if _, err := e.Resolve(ctx, b.ID, trigger, ""); err != nil {
			if !errors.Is(err, model.ErrNotDecidable) {
				e.sweepError(b.ID, "resolve", err, &rep)
			}
			return true
		}
		rep.Resolved++
		return true
	})
	if err != nil {
		return rep, err
	}

	err = e.eachBet(ctx, model.BetResolving, func(b model.Bet) bool {
		if b.ResolvingAt != nil && now.Sub(*b.ResolvingAt) < e.cfg.ReconcileAfter {
			return false
		}
		if _, err := e.Resolve(ctx, b.ID, TriggerReconcile, ""); err != nil {
			e.sweepError(b.ID, "reconcile", err, &rep)
			return true
		}
		rep.Reconciled++
		return true
	})
	return rep, err
}

// eachBet percorre as apostas de um status página a página (cursor pelo último id)
// até a lista acabar ou fn retornar false.
func (e *Engine) eachBet(ctx context.Context, status model.BetStatus, fn func(model.Bet) bool) error {
	after := ""
	for {
		page, err := e.store.ListBetsByStatus(ctx, status, after, e.cfg.SweepBatch)
		if err != nil {
			return err
		}
		for _, b := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !fn(b) {
				return nil
			}
		}
		if len(page) < e.cfg.SweepBatch {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

func (e *Engine) sweepError(betID, stage string, err error, rep *SweepReport) {
	if model.IsConflict(err) {
		// outra instância chegou antes
		e.log.Debug("sweep skipped bet", logger.BetFields(betID, zap.String("stage", stage), zap.Error(err))...)
		return
	}
	rep.Failed++
	e.log.Warn("sweep failed", logger.BetFields(betID, zap.String("stage", stage), zap.Error(err))...)
}

// RunSweeper executa Sweep periodicamente até o contexto ser cancelado
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration, onPass func(SweepReport)) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		rep, err := e.Sweep(ctx)
		if err != nil && ctx.Err() == nil {
			e.log.Warn("sweep pass failed", zap.Error(err))
		}
		if onPass != nil {
			onPass(rep)
		}
		if rep.Closed+rep.Resolved+rep.Reconciled+rep.Failed > 0 {
			e.log.Info("sweep pass",
				zap.Int("closed", rep.Closed),
				zap.Int("resolved", rep.Resolved),
				zap.Int("reconciled", rep.Reconciled),
				zap.Int("failed", rep.Failed),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
