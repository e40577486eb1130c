package model

import (
	"sort"
	"time"
)

// Selection é o conteúdo de um voto: OutcomeSelection ou WinnerSetSelection.
// O método não exportado fecha o conjunto de implementações.
type Selection interface {
	selection()
}

// OutcomeSelection vota em um único outcome (BINARY / MULTIPLE_CHOICE)
type OutcomeSelection struct {
	Outcome string
}

// WinnerSetSelection vota no conjunto de usuários vencedores (PREDICTION)
type WinnerSetSelection struct {
	WinnerIDs []string
}

func (OutcomeSelection) selection()   {}
func (WinnerSetSelection) selection() {}

// NewWinnerSet normaliza os ids (sem duplicados, ordenados)
func NewWinnerSet(ids []string) WinnerSetSelection {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return WinnerSetSelection{WinnerIDs: out}
}

// Contains informa se o usuário está no conjunto de vencedores
func (w WinnerSetSelection) Contains(userID string) bool {
	i := sort.SearchStrings(w.WinnerIDs, userID)
	return i < len(w.WinnerIDs) && w.WinnerIDs[i] == userID
}

// ResolutionVote é o voto corrente de um resolvedor em uma aposta.
// Existe no máximo uma linha por (bet, voter); revogação é soft.
type ResolutionVote struct {
	ID        string
	BetID     string
	VoterID   string
	Selection Selection
	Active    bool
	RevokedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Judgment é o veredito de um resolvedor sobre a previsão de uma participação
type Judgment struct {
	ID              string
	BetID           string
	ResolverID      string
	ParticipationID string
	IsCorrect       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FulfillmentClaim registra que um perdedor cumpriu a aposta social
type FulfillmentClaim struct {
	BetID     string
	LoserID   string
	ProofURL  string
	ClaimedAt time.Time
}
