package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/lifecycle"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/tally"
	"github.com/radieske/social-bet-resolution/pkg/contracts/events"
)

type fakeVotes struct {
	err      error
	lastSel  model.Selection
	lastUser string
	revoked  bool
}

func (f *fakeVotes) CastVote(_ context.Context, betID, voterID string, sel model.Selection) (model.ResolutionVote, error) {
	if f.err != nil {
		return model.ResolutionVote{}, f.err
	}
	f.lastSel, f.lastUser = sel, voterID
	return model.ResolutionVote{ID: "v1", BetID: betID, VoterID: voterID, Selection: sel, Active: true}, nil
}

func (f *fakeVotes) RevokeVote(_ context.Context, betID, voterID string) (model.ResolutionVote, error) {
	f.revoked = true
	return model.ResolutionVote{ID: "v1", BetID: betID, VoterID: voterID}, f.err
}

func (f *fakeVotes) ReactivateVote(_ context.Context, betID, voterID string) (model.ResolutionVote, error) {
	return model.ResolutionVote{ID: "v1", BetID: betID, VoterID: voterID, Active: true}, f.err
}

func (f *fakeVotes) JudgeParticipation(_ context.Context, betID, resolverID, participationID string, ok bool) (model.Judgment, error) {
	return model.Judgment{ID: "j1", BetID: betID, ResolverID: resolverID, ParticipationID: participationID, IsCorrect: ok}, f.err
}

type fakeBets struct {
	err         error
	afterVotes  int
	lastTrigger lifecycle.Trigger
}

func (f *fakeBets) Tally(_ context.Context, betID string) (tally.Distribution, error) {
	return tally.Distribution{BetID: betID, State: tally.StatePending}, f.err
}

func (f *fakeBets) AfterVote(_ context.Context, betID string) (tally.Distribution, error) {
	f.afterVotes++
	return tally.Distribution{BetID: betID, State: tally.StateDecided}, nil
}

func (f *fakeBets) Close(_ context.Context, betID, _ string) (model.Bet, error) {
	return model.Bet{ID: betID, Status: model.BetClosed}, f.err
}

func (f *fakeBets) Resolve(_ context.Context, betID string, t lifecycle.Trigger, _ string) (model.SettlementResult, error) {
	f.lastTrigger = t
	return model.SettlementResult{BetID: betID, Policy: model.PolicyDecided}, f.err
}

func (f *fakeBets) Cancel(_ context.Context, betID, _ string) (model.SettlementResult, error) {
	return model.SettlementResult{BetID: betID, Policy: model.PolicyCancelled}, f.err
}

func (f *fakeBets) Settlement(_ context.Context, betID string) (model.SettlementResult, error) {
	return model.SettlementResult{BetID: betID}, f.err
}

func (f *fakeBets) ClaimFulfillment(_ context.Context, _, _, _ string) (model.FulfillmentStatus, error) {
	return model.FulfillmentPartial, f.err
}

type fakeFeed struct {
	mu   sync.Mutex
	msgs []events.FeedUpdate
}

func (f *fakeFeed) Publish(_ context.Context, _ string, payload []byte) error {
	var u events.FeedUpdate
	_ = json.Unmarshal(payload, &u)
	f.mu.Lock()
	f.msgs = append(f.msgs, u)
	f.mu.Unlock()
	return nil
}

type harness struct {
	votes *fakeVotes
	bets  *fakeBets
	feed  *fakeFeed
	h     http.Handler
}

func newHarness() *harness {
	h := &harness{votes: &fakeVotes{}, bets: &fakeBets{}, feed: &fakeFeed{}}
	h.h = NewServer(zap.NewNop(), h.votes, h.bets, h.feed, "feed").Router([]string{"*"})
	return h
}

func (h *harness) do(method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func TestCastVoteOutcomePublishesTally(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodPost, "/v1/bets/b1/votes", "u2", `{"outcome":"YES"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if sel, ok := h.votes.lastSel.(model.OutcomeSelection); !ok || sel.Outcome != "YES" {
		t.Fatalf("selection = %#v", h.votes.lastSel)
	}
	if h.bets.afterVotes != 1 {
		t.Fatalf("afterVotes = %d", h.bets.afterVotes)
	}
	if len(h.feed.msgs) != 1 || h.feed.msgs[0].Type != "tally" || h.feed.msgs[0].BetID != "b1" {
		t.Fatalf("feed = %+v", h.feed.msgs)
	}
}

func TestCastVoteWinnerSet(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodPost, "/v1/bets/b1/votes", "u2", `{"winnerIds":["u3","u1","u3"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	ws, ok := h.votes.lastSel.(model.WinnerSetSelection)
	if !ok || len(ws.WinnerIDs) != 2 {
		t.Fatalf("selection = %#v", h.votes.lastSel)
	}
}

func TestCastVoteRejectsBadRequests(t *testing.T) {
	h := newHarness()
	cases := []struct {
		name, user, body string
		want             int
	}{
		{"no user", "", `{"outcome":"YES"}`, http.StatusUnauthorized},
		{"both", "u2", `{"outcome":"YES","winnerIds":["u1"]}`, http.StatusBadRequest},
		{"neither", "u2", `{}`, http.StatusBadRequest},
		{"bad json", "u2", `{`, http.StatusBadRequest},
		{"blank winner", "u2", `{"winnerIds":[""]}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/v1/bets/b1/votes", tc.user, tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
	if h.votes.lastUser != "" {
		t.Fatal("no vote should reach the ledger")
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.ErrBetNotFound, http.StatusNotFound},
		{model.ErrNotResolver, http.StatusForbidden},
		{model.ErrNotCreator, http.StatusForbidden},
		{model.ErrSelfVote, http.StatusBadRequest},
		{model.ErrBetFinalized, http.StatusBadRequest},
		{model.ErrResolutionConflict, http.StatusConflict},
		{model.ErrAlreadyResolved, http.StatusConflict},
		{model.ErrDeadlineNotReached, http.StatusBadRequest},
		{&model.SettlementError{BetID: "b1", Err: errors.New("db down")}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRevokeOnlyOwnVote(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodDelete, "/v1/bets/b1/votes/u3", "u2", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	if h.votes.revoked {
		t.Fatal("revoke must not reach the ledger")
	}

	rec = h.do(http.MethodDelete, "/v1/bets/b1/votes/u2", "u2", "")
	if rec.Code != http.StatusOK || !h.votes.revoked {
		t.Fatalf("status = %d revoked=%v", rec.Code, h.votes.revoked)
	}
}

func TestResolveAlwaysUsesManualTrigger(t *testing.T) {
	cases := []struct {
		name, body string
		err        error
		want       int
	}{
		{"empty body", "", nil, http.StatusOK},
		{"deadline requested by client", `{"trigger":"DEADLINE"}`, nil, http.StatusOK},
		{"reconcile requested by client", `{"trigger":"RECONCILE"}`, nil, http.StatusOK},
		{"stranger forcing resolution", `{"trigger":"DEADLINE"}`, model.ErrNotCreator, http.StatusForbidden},
		{"running", "", model.ErrResolutionRunning, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			h.bets.err = tc.err
			rec := h.do(http.MethodPost, "/v1/bets/b1/resolve", "u2", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if h.bets.lastTrigger != lifecycle.TriggerManual {
				t.Fatalf("trigger = %s, want MANUAL", h.bets.lastTrigger)
			}
		})
	}
}

func TestJudgmentRequiresVerdict(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodPost, "/v1/bets/b1/judgments", "u2", `{"participationId":"p1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = h.do(http.MethodPost, "/v1/bets/b1/judgments", "u2", `{"participationId":"p1","isCorrect":false}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["isCorrect"] != false || body["resolverId"] != "u2" {
		t.Fatalf("body = %v", body)
	}
}

func TestFulfillmentClaim(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodPost, "/v1/bets/b1/fulfillment", "u3", `{"proofUrl":"https://img.example/p.png"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "PARTIALLY_FULFILLED") {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	h.bets.err = model.ErrNotLoser
	rec = h.do(http.MethodPost, "/v1/bets/b1/fulfillment", "u1", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}
