package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

var errCreditDown = errors.New("credit ledger unavailable")

// memStore simula o repositório Postgres: cada método é uma transação
// (tudo ou nada) e transições são updates condicionais sobre o status anterior.
type memStore struct {
	mu sync.Mutex

	bets        map[string]model.Bet
	parts       map[string][]model.Participation
	votes       map[string][]model.ResolutionVote
	judgments   map[string][]model.Judgment
	settlements map[string]model.SettlementResult
	claims      map[string]model.FulfillmentClaim

	balances    map[string]int64
	ledger      map[string]int64 // external_ref -> delta
	outbox      []model.Effect
	transitions []string

	failCreditFor string
}

func newMemStore() *memStore {
	return &memStore{
		bets:        map[string]model.Bet{},
		parts:       map[string][]model.Participation{},
		votes:       map[string][]model.ResolutionVote{},
		judgments:   map[string][]model.Judgment{},
		settlements: map[string]model.SettlementResult{},
		claims:      map[string]model.FulfillmentClaim{},
		balances:    map[string]int64{},
		ledger:      map[string]int64{},
	}
}

func (s *memStore) GetBet(_ context.Context, id string) (model.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return model.Bet{}, model.ErrBetNotFound
	}
	return b, nil
}

func (s *memStore) ListParticipations(_ context.Context, betID string) ([]model.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Participation(nil), s.parts[betID]...), nil
}

func (s *memStore) ListVotes(_ context.Context, betID string) ([]model.ResolutionVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ResolutionVote(nil), s.votes[betID]...), nil
}

func (s *memStore) ListJudgments(_ context.Context, betID string) ([]model.Judgment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Judgment(nil), s.judgments[betID]...), nil
}

func (s *memStore) UpsertVote(_ context.Context, v model.ResolutionVote) (model.ResolutionVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bets[v.BetID]
	if b.Status.Terminal() {
		return model.ResolutionVote{}, model.ErrBetFinalized
	}
	if !b.Status.Votable() {
		return model.ResolutionVote{}, model.ErrBetNotVotable
	}
	for i, old := range s.votes[v.BetID] {
		if old.VoterID == v.VoterID {
			v.ID, v.CreatedAt = old.ID, old.CreatedAt
			s.votes[v.BetID][i] = v
			return v, nil
		}
	}
	s.votes[v.BetID] = append(s.votes[v.BetID], v)
	return v, nil
}

func (s *memStore) SetVoteActive(_ context.Context, betID, voterID string, active bool, at time.Time) (model.ResolutionVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.votes[betID] {
		if v.VoterID != voterID {
			continue
		}
		v.Active = active
		v.UpdatedAt = at
		s.votes[betID][i] = v
		return v, nil
	}
	return model.ResolutionVote{}, model.ErrVoteNotFound
}

func (s *memStore) UpsertJudgment(_ context.Context, j model.Judgment) (model.Judgment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.judgments[j.BetID] = append(s.judgments[j.BetID], j)
	return j, nil
}

func (s *memStore) SaveTransition(_ context.Context, prev, next model.Bet, reason string, effects []model.Effect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(prev); err != nil {
		return err
	}
	s.bets[next.ID] = next
	s.outbox = append(s.outbox, effects...)
	s.transitions = append(s.transitions, string(prev.Status)+"->"+string(next.Status))
	return nil
}

func (s *memStore) claim(prev model.Bet) error {
	cur, ok := s.bets[prev.ID]
	if !ok {
		return model.ErrBetNotFound
	}
	if cur.Status != prev.Status {
		return model.ErrResolutionConflict
	}
	return nil
}

func (s *memStore) CommitSettlement(_ context.Context, prev, next model.Bet, res model.SettlementResult, effects []model.Effect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(prev); err != nil {
		return err
	}
	if _, ok := s.settlements[res.BetID]; ok {
		return model.ErrAlreadyResolved
	}
	balances, ledger, err := s.applyCredits(res, "settle")
	if err != nil {
		return err
	}

	s.balances, s.ledger = balances, ledger
	s.applyEntries(res)
	s.settlements[res.BetID] = res
	s.bets[next.ID] = next
	s.outbox = append(s.outbox, effects...)
	s.transitions = append(s.transitions, string(prev.Status)+"->"+string(next.Status))
	return nil
}

func (s *memStore) CommitCancellation(_ context.Context, prev, next model.Bet, res model.SettlementResult, effects []model.Effect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claim(prev); err != nil {
		return err
	}
	balances, ledger, err := s.applyCredits(res, "cancel")
	if err != nil {
		return err
	}

	s.balances, s.ledger = balances, ledger
	s.applyEntries(res)
	delete(s.votes, res.BetID)
	delete(s.judgments, res.BetID)
	s.settlements[res.BetID] = res
	s.bets[next.ID] = next
	s.outbox = append(s.outbox, effects...)
	s.transitions = append(s.transitions, string(prev.Status)+"->"+string(next.Status))
	return nil
}

// applyCredits trabalha sobre cópias; nada é visível se algum crédito falhar
func (s *memStore) applyCredits(res model.SettlementResult, op string) (map[string]int64, map[string]int64, error) {
	balances := make(map[string]int64, len(s.balances))
	for k, v := range s.balances {
		balances[k] = v
	}
	ledger := make(map[string]int64, len(s.ledger))
	for k, v := range s.ledger {
		ledger[k] = v
	}
	if !res.MovesCredits() {
		return balances, ledger, nil
	}

	entries := append([]model.SettlementEntry(nil), res.Entries...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	for _, e := range entries {
		if e.UserID == s.failCreditFor {
			return nil, nil, &model.SettlementError{ParticipationID: e.ParticipationID, UserID: e.UserID, Err: errCreditDown}
		}
		ref := "bet:" + res.BetID + ":" + op + ":" + e.ParticipationID
		if _, done := ledger[ref]; done {
			continue
		}
		ledger[ref] = e.PayoutCents
		balances[e.UserID] += e.PayoutCents
	}
	return balances, ledger, nil
}

func (s *memStore) applyEntries(res model.SettlementResult) {
	byID := make(map[string]model.SettlementEntry, len(res.Entries))
	for _, e := range res.Entries {
		byID[e.ParticipationID] = e
	}
	parts := s.parts[res.BetID]
	for i := range parts {
		e, ok := byID[parts[i].ID]
		if !ok {
			continue
		}
		parts[i].Status = e.Status
		parts[i].PayoutCents = e.PayoutCents
		if e.Status == model.PartRefunded {
			parts[i].RefundAmountCents = e.PayoutCents
		}
	}
}

func (s *memStore) GetSettlement(_ context.Context, betID string) (model.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.settlements[betID]
	if !ok {
		return model.SettlementResult{}, model.ErrSettlementNotFound
	}
	return r, nil
}

// ListBetsByStatus imita a ordenação e o cursor keyset do Postgres
func (s *memStore) ListBetsByStatus(_ context.Context, status model.BetStatus, after string, limit int) ([]model.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := func(b model.Bet) time.Time {
		switch status {
		case model.BetOpen:
			return b.BettingDeadline
		case model.BetClosed:
			return b.ResolutionDeadline
		case model.BetResolving:
			if b.ResolvingAt != nil {
				return *b.ResolvingAt
			}
		}
		return time.Time{}
	}
	less := func(a, b model.Bet) bool {
		ka, kb := key(a), key(b)
		if !ka.Equal(kb) {
			return ka.Before(kb)
		}
		return a.ID < b.ID
	}

	cursor, hasCursor := s.bets[after]
	var out []model.Bet
	for _, b := range s.bets {
		if b.Status != status {
			continue
		}
		if after != "" && hasCursor && !less(cursor, b) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) UpsertFulfillmentClaim(_ context.Context, c model.FulfillmentClaim) (model.FulfillmentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[c.BetID+"|"+c.LoserID] = c

	losers, claimed := 0, 0
	for _, p := range s.parts[c.BetID] {
		if p.Status != model.PartLost {
			continue
		}
		losers++
		if _, ok := s.claims[c.BetID+"|"+p.UserID]; ok {
			claimed++
		}
	}
	st := model.FulfillmentFor(losers, claimed)
	b := s.bets[c.BetID]
	b.FulfillmentStatus = st
	s.bets[c.BetID] = b
	return st, nil
}

func (s *memStore) countTopic(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.outbox {
		if e.Topic == topic {
			n++
		}
	}
	return n
}

type memAuth map[string][]string

func (a memAuth) Resolvers(_ context.Context, bet model.Bet) ([]string, error) {
	return a[bet.ID], nil
}

func (a memAuth) IsAuthorizedResolver(_ context.Context, bet model.Bet, userID string) (bool, error) {
	for _, id := range a[bet.ID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

// boosterAt simula itens de inventário com instante de ativação
type boosterAt struct {
	mu    sync.Mutex
	items map[string]timedItem
	asOfs []time.Time
}

type timedItem struct {
	at time.Time
	m  model.Modifiers
}

func (b *boosterAt) GetActiveModifiers(_ context.Context, userID string, asOf time.Time) (model.Modifiers, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.asOfs = append(b.asOfs, asOf)
	it, ok := b.items[userID]
	if !ok || it.at.After(asOf) {
		return model.NoModifiers(), nil
	}
	return it.m, nil
}
