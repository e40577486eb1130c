package dto

// O ator vem no header X-User-ID; os corpos carregam só os dados da ação.

type CastVoteRequest struct {
	Outcome   *string  `json:"outcome,omitempty" validate:"omitempty,min=1,max=64"`
	WinnerIDs []string `json:"winnerIds,omitempty" validate:"omitempty,min=1,dive,required"`
}

type JudgmentRequest struct {
	ParticipationID string `json:"participationId" validate:"required"`
	IsCorrect       *bool  `json:"isCorrect" validate:"required"`
}

type FulfillmentRequest struct {
	ProofURL string `json:"proofUrl" validate:"omitempty,url,max=2048"`
}
