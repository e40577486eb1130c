package model

import (
	"errors"
	"fmt"
)

// Erros de validação: rejeitados de forma síncrona, sem mudança de estado
var (
	ErrBetNotFound           = errors.New("bet not found")
	ErrParticipationNotFound = errors.New("participation not found")
	ErrVoteNotFound          = errors.New("vote not found")
	ErrSettlementNotFound    = errors.New("settlement not found")
	ErrNotResolver           = errors.New("user is not an authorized resolver for this bet")
	ErrNotCreator            = errors.New("only the bet creator can perform this action")
	ErrSelfVote              = errors.New("resolver cannot judge their own participation")
	ErrInvalidSelection      = errors.New("selection does not match bet kind")
	ErrUnknownOutcome        = errors.New("outcome is not an option of this bet")
	ErrUnknownWinner         = errors.New("winner is not a participant of this bet")
	ErrEmptyWinnerSet        = errors.New("winner set must not be empty")
	ErrNotPrediction         = errors.New("judgments are only accepted on prediction bets")
	ErrBetNotVotable         = errors.New("bet is not accepting votes")
	ErrBetFinalized          = errors.New("bet is already resolved or cancelled")
	ErrInvalidTransition     = errors.New("invalid bet status transition")
	ErrVoteAlreadyRevoked    = errors.New("vote is already revoked")
	ErrVoteAlreadyActive     = errors.New("vote is already active")
	ErrNotDecidable          = errors.New("tally is not decided yet")
	ErrNotSocialBet          = errors.New("fulfillment claims are only accepted on social bets")
	ErrNotLoser              = errors.New("only losing participants can claim fulfillment")
	ErrBetNotClosed          = errors.New("betting window is still open")
	ErrBetNotResolved        = errors.New("bet is not resolved")
	ErrDeadlineNotReached    = errors.New("resolution deadline has not passed yet")
)

// Erros de conflito: o chamador deve refazer o ciclo leitura-ação
var (
	ErrResolutionConflict = errors.New("bet status changed concurrently")
	ErrAlreadyResolved    = errors.New("bet already resolved")
	ErrResolutionRunning  = errors.New("bet settlement already in progress")
)

var ErrSettlementFailed = errors.New("settlement failed")

// SettlementError carrega o contexto necessário para reconciliação
type SettlementError struct {
	BetID           string
	Outcome         string
	ParticipationID string
	UserID          string
	Err             error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settle bet %s (outcome=%q participation=%s user=%s): %v",
		e.BetID, e.Outcome, e.ParticipationID, e.UserID, e.Err)
}

func (e *SettlementError) Unwrap() []error { return []error{ErrSettlementFailed, e.Err} }

var validation = []error{
	ErrNotResolver, ErrNotCreator, ErrSelfVote, ErrInvalidSelection, ErrUnknownOutcome,
	ErrUnknownWinner, ErrEmptyWinnerSet, ErrNotPrediction, ErrBetNotVotable, ErrBetFinalized,
	ErrInvalidTransition, ErrVoteAlreadyRevoked, ErrVoteAlreadyActive, ErrNotDecidable,
	ErrNotSocialBet, ErrNotLoser, ErrBetNotClosed, ErrBetNotResolved, ErrDeadlineNotReached,
}

var notFound = []error{ErrBetNotFound, ErrParticipationNotFound, ErrVoteNotFound, ErrSettlementNotFound}

var conflict = []error{ErrResolutionConflict, ErrAlreadyResolved, ErrResolutionRunning}

func IsValidation(err error) bool { return isAny(err, validation) }
func IsNotFound(err error) bool   { return isAny(err, notFound) }
func IsConflict(err error) bool   { return isAny(err, conflict) }

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
