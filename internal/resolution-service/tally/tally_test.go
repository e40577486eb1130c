package tally

import (
	"testing"
	"time"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func binaryBet(method model.ResolutionMethod, minResolvers int) model.Bet {
	return model.Bet{
		ID:                 "bet-1",
		Method:             method,
		Kind:               model.KindBinary,
		Options:            []string{"OUTCOME_A", "OUTCOME_B"},
		MinResolvers:       minResolvers,
		Status:             model.BetClosed,
		ResolutionDeadline: now.Add(24 * time.Hour),
	}
}

func outcomeVote(voter, outcome string, active bool) model.ResolutionVote {
	return model.ResolutionVote{
		BetID:     "bet-1",
		VoterID:   voter,
		Selection: model.OutcomeSelection{Outcome: outcome},
		Active:    active,
	}
}

func TestComputeOutcome(t *testing.T) {
	tests := []struct {
		name      string
		bet       model.Bet
		resolvers []string
		votes     []model.ResolutionVote
		now       time.Time
		want      State
		outcome   string
	}{
		{
			name:      "majority of three decides",
			bet:       binaryBet(model.MethodParticipantVote, 0),
			resolvers: []string{"u1", "u2", "u3"},
			votes: []model.ResolutionVote{
				outcomeVote("u1", "OUTCOME_A", true),
				outcomeVote("u2", "OUTCOME_A", true),
				outcomeVote("u3", "OUTCOME_B", true),
			},
			now:     now,
			want:    StateDecided,
			outcome: "OUTCOME_A",
		},
		{
			name:      "below configured quorum stays pending even if unanimous",
			bet:       binaryBet(model.MethodParticipantVote, 3),
			resolvers: []string{"u1", "u2", "u3"},
			votes: []model.ResolutionVote{
				outcomeVote("u1", "OUTCOME_A", true),
				outcomeVote("u2", "OUTCOME_A", true),
			},
			now:  now,
			want: StatePending,
		},
		{
			name:      "fewer resolvers than the configured minimum stays pending",
			bet:       binaryBet(model.MethodParticipantVote, 3),
			resolvers: []string{"u1", "u2"},
			votes:     []model.ResolutionVote{outcomeVote("u1", "OUTCOME_A", true)},
			now:       now,
			want:      StatePending,
		},
		{
			name:      "fewer resolvers than the configured minimum never decides when unanimous",
			bet:       binaryBet(model.MethodParticipantVote, 3),
			resolvers: []string{"u1", "u2"},
			votes: []model.ResolutionVote{
				outcomeVote("u1", "OUTCOME_A", true),
				outcomeVote("u2", "OUTCOME_A", true),
			},
			now:  now,
			want: StateNoQuorum,
		},
		{
			name:      "fewer resolvers than the configured minimum is no quorum at deadline",
			bet:       binaryBet(model.MethodParticipantVote, 3),
			resolvers: []string{"u1", "u2"},
			votes:     []model.ResolutionVote{outcomeVote("u1", "OUTCOME_A", true)},
			now:       now.Add(48 * time.Hour),
			want:      StateNoQuorum,
		},
		{
			name:      "majority of cast but not of eligible waits for more votes",
			bet:       binaryBet(model.MethodParticipantVote, 2),
			resolvers: []string{"u1", "u2", "u3", "u4", "u5"},
			votes: []model.ResolutionVote{
				outcomeVote("u1", "OUTCOME_A", true),
				outcomeVote("u2", "OUTCOME_A", true),
			},
			now:  now,
			want: StatePending,
		},
		{
			name:      "majority of cast decides at deadline",
			bet:       binaryBet(model.MethodParticipantVote, 2),
			resolvers: []string{"u1", "u2", "u3", "u4", "u5"},
			votes: []model.ResolutionVote{
				outcomeVote("u1", "OUTCOME_A", true),
				outcomeVote("u2", "OUTCOME_A", true),
				outcomeVote("u3", "OUTCOME_B", true),
			},
			now:     now.Add(48 * time.Hour),
			want:    StateDecided,
			outcome: "OUTCOME_A",
		},
		{
			name:      "tie after everyone voted is deadlocked",
			bet:       binaryBet(model.MethodParticipantVote, 0),
			resolvers: []string{"u1", "u2"},
			votes: []model.ResolutionVote{
				outcomeVote("u1", "OUTCOME_A", true),
				outcomeVote("u2", "OUTCOME_B", true),
			},
			now:  now,
			want: StateDeadlocked,
		},
		{
			name:      "no quorum at deadline",
			bet:       binaryBet(model.MethodParticipantVote, 2),
			resolvers: []string{"u1", "u2", "u3"},
			votes:     []model.ResolutionVote{outcomeVote("u1", "OUTCOME_A", true)},
			now:       now.Add(48 * time.Hour),
			want:      StateNoQuorum,
		},
		{
			name:      "revoked votes and outsiders are ignored",
			bet:       binaryBet(model.MethodParticipantVote, 2),
			resolvers: []string{"u1", "u2", "u3"},
			votes: []model.ResolutionVote{
				outcomeVote("u1", "OUTCOME_A", true),
				outcomeVote("u2", "OUTCOME_A", false),
				outcomeVote("intruder", "OUTCOME_A", true),
			},
			now:  now,
			want: StatePending,
		},
		{
			name:      "assigned resolvers require all of them",
			bet:       binaryBet(model.MethodAssignedResolvers, 0),
			resolvers: []string{"r1", "r2", "r3"},
			votes: []model.ResolutionVote{
				outcomeVote("r1", "OUTCOME_B", true),
				outcomeVote("r2", "OUTCOME_B", true),
			},
			now:  now,
			want: StatePending,
		},
		{
			name:      "self resolution decides with a single vote",
			bet:       binaryBet(model.MethodSelf, 0),
			resolvers: []string{"creator"},
			votes:     []model.ResolutionVote{outcomeVote("creator", "OUTCOME_B", true)},
			now:       now,
			want:      StateDecided,
			outcome:   "OUTCOME_B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Compute(Input{
				Bet:           tt.bet,
				Resolvers:     tt.resolvers,
				Votes:         tt.votes,
				DefaultQuorum: 2,
				Now:           tt.now,
			})
			if d.State != tt.want {
				t.Fatalf("state = %s, want %s", d.State, tt.want)
			}
			if tt.outcome != "" {
				if d.Outcome == nil || *d.Outcome != tt.outcome {
					t.Fatalf("outcome = %v, want %s", d.Outcome, tt.outcome)
				}
			} else if d.Outcome != nil {
				t.Fatalf("unexpected outcome %s", *d.Outcome)
			}
		})
	}
}

func TestComputeOutcomePercentages(t *testing.T) {
	d := Compute(Input{
		Bet:       binaryBet(model.MethodParticipantVote, 0),
		Resolvers: []string{"u1", "u2", "u3"},
		Votes: []model.ResolutionVote{
			outcomeVote("u1", "OUTCOME_A", true),
			outcomeVote("u2", "OUTCOME_A", true),
			outcomeVote("u3", "OUTCOME_B", true),
		},
		DefaultQuorum: 2,
		Now:           now,
	})
	if len(d.Outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(d.Outcomes))
	}
	if got := d.Outcomes[0].Percent.String(); got != "66.67" {
		t.Errorf("percent A = %s, want 66.67", got)
	}
	if d.Outcomes[1].Votes != 1 {
		t.Errorf("votes B = %d, want 1", d.Outcomes[1].Votes)
	}
}

func predictionBet() model.Bet {
	return model.Bet{
		ID:                 "bet-p",
		Method:             model.MethodAssignedResolvers,
		Kind:               model.KindPrediction,
		Status:             model.BetClosed,
		ResolutionDeadline: now.Add(24 * time.Hour),
	}
}

func TestComputePredictionMixedVerdicts(t *testing.T) {
	parts := []model.Participation{
		{ID: "p1", UserID: "alice"},
		{ID: "p2", UserID: "bob"},
	}
	judge := func(r, p string, ok bool) model.Judgment {
		return model.Judgment{BetID: "bet-p", ResolverID: r, ParticipationID: p, IsCorrect: ok}
	}
	d := Compute(Input{
		Bet:            predictionBet(),
		Resolvers:      []string{"r1", "r2", "r3"},
		Participations: parts,
		Judgments: []model.Judgment{
			judge("r1", "p1", true), judge("r2", "p1", true), judge("r3", "p1", false),
			judge("r1", "p2", true), judge("r2", "p2", false), judge("r3", "p2", false),
		},
		Now: now,
	})
	if d.State != StateDecided {
		t.Fatalf("state = %s, want DECIDED", d.State)
	}
	v := d.Verdicts()
	if v["p1"] != VerdictWon {
		t.Errorf("p1 = %s, want WON", v["p1"])
	}
	if v["p2"] != VerdictLost {
		t.Errorf("p2 = %s, want LOST", v["p2"])
	}
	if d.Participations[0].CorrectCount != 2 || d.Participations[0].IncorrectCount != 1 || d.Participations[0].TotalVotes != 3 {
		t.Errorf("p1 counts = %+v", d.Participations[0])
	}
}

func TestComputePredictionWinnerSetAndOverride(t *testing.T) {
	parts := []model.Participation{
		{ID: "p1", UserID: "alice"},
		{ID: "p2", UserID: "bob"},
		{ID: "p3", UserID: "carol"},
	}
	winners := func(voter string, ids ...string) model.ResolutionVote {
		return model.ResolutionVote{BetID: "bet-p", VoterID: voter, Selection: model.NewWinnerSet(ids), Active: true}
	}
	bet := predictionBet()
	bet.Method = model.MethodParticipantVote
	d := Compute(Input{
		Bet:            bet,
		Resolvers:      []string{"alice", "bob", "carol"},
		Participations: parts,
		Votes: []model.ResolutionVote{
			winners("alice", "bob"),
			winners("bob", "alice"),
			winners("carol", "alice", "bob"),
		},
		// carol muda de ideia sobre bob
		Judgments:     []model.Judgment{{ResolverID: "carol", ParticipationID: "p2", IsCorrect: false}},
		DefaultQuorum: 2,
		Now:           now,
	})
	v := d.Verdicts()
	if v["p1"] != VerdictWon {
		t.Errorf("alice = %s, want WON", v["p1"])
	}
	// bob: alice=correct, carol=incorrect (override) -> empate final
	if v["p2"] != VerdictTied {
		t.Errorf("bob = %s, want TIED", v["p2"])
	}
	if v["p3"] != VerdictLost {
		t.Errorf("carol = %s, want LOST", v["p3"])
	}
	if d.State != StateDeadlocked {
		t.Errorf("state = %s, want DEADLOCKED", d.State)
	}
}

func TestComputePredictionIgnoresSelfJudgment(t *testing.T) {
	parts := []model.Participation{{ID: "p1", UserID: "alice"}}
	d := Compute(Input{
		Bet:            predictionBet(),
		Resolvers:      []string{"alice", "r1"},
		Participations: parts,
		Judgments:      []model.Judgment{{ResolverID: "alice", ParticipationID: "p1", IsCorrect: true}},
		Now:            now,
	})
	if d.Participations[0].TotalVotes != 0 {
		t.Fatalf("self judgment counted: %+v", d.Participations[0])
	}
	if d.Participations[0].Eligible != 1 {
		t.Fatalf("eligible = %d, want 1", d.Participations[0].Eligible)
	}
	if d.State != StatePending {
		t.Fatalf("state = %s, want PENDING", d.State)
	}
}

func TestComputePredictionBelowConfiguredMinimum(t *testing.T) {
	bet := predictionBet()
	bet.Method = model.MethodParticipantVote
	parts := []model.Participation{
		{ID: "p1", UserID: "alice"},
		{ID: "p2", UserID: "bob"},
	}
	judge := func(r, p string) model.Judgment {
		return model.Judgment{BetID: "bet-p", ResolverID: r, ParticipationID: p, IsCorrect: true}
	}

	tests := []struct {
		name      string
		judgments []model.Judgment
		now       time.Time
		want      State
		verdict   Verdict
	}{
		{"sole judge cannot decide", []model.Judgment{judge("bob", "p1")}, now, StatePending, VerdictNoQuorum},
		{"every judge voted but minimum unreachable", []model.Judgment{judge("bob", "p1"), judge("alice", "p2")}, now, StateNoQuorum, VerdictNoQuorum},
		{"deadline without minimum", []model.Judgment{judge("bob", "p1")}, now.Add(48 * time.Hour), StateNoQuorum, VerdictNoQuorum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Compute(Input{
				Bet:            bet,
				Resolvers:      []string{"alice", "bob"},
				Participations: parts,
				Judgments:      tt.judgments,
				DefaultQuorum:  2,
				Now:            tt.now,
			})
			if d.State != tt.want {
				t.Fatalf("state = %s, want %s", d.State, tt.want)
			}
			if d.Participations[0].Quorum != 2 {
				t.Fatalf("quorum = %d, want 2", d.Participations[0].Quorum)
			}
			if got := d.Verdicts()["p1"]; got != tt.verdict {
				t.Fatalf("p1 = %s, want %s", got, tt.verdict)
			}
		})
	}
}

func TestRequiredQuorum(t *testing.T) {
	tests := []struct {
		method   model.ResolutionMethod
		min      int
		eligible int64
		want     int64
	}{
		{model.MethodSelf, 0, 1, 1},
		{model.MethodAssignedResolvers, 0, 4, 4},
		{model.MethodParticipantVote, 0, 5, 2},
		{model.MethodParticipantVote, 4, 5, 4},
		{model.MethodParticipantVote, 9, 3, 9},
		{model.MethodParticipantVote, 0, 0, 2},
		{model.MethodAssignedResolvers, 0, 0, 0},
	}
	for _, tt := range tests {
		got := RequiredQuorum(model.Bet{Method: tt.method, MinResolvers: tt.min}, tt.eligible, 2)
		if got != tt.want {
			t.Errorf("RequiredQuorum(%s, min=%d, eligible=%d) = %d, want %d", tt.method, tt.min, tt.eligible, got, tt.want)
		}
	}
}
