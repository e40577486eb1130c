package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/radieske/social-bet-resolution/internal/resolution-service/dto"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/lifecycle"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/model"
	"github.com/radieske/social-bet-resolution/internal/resolution-service/tally"
	"github.com/radieske/social-bet-resolution/pkg/contracts/events"
)

// UserHeader identifica o usuário autenticado (preenchido pelo gateway)
const UserHeader = "X-User-ID"

// Votes é o registro de votos e julgamentos
type Votes interface {
	CastVote(ctx context.Context, betID, voterID string, sel model.Selection) (model.ResolutionVote, error)
	RevokeVote(ctx context.Context, betID, voterID string) (model.ResolutionVote, error)
	ReactivateVote(ctx context.Context, betID, voterID string) (model.ResolutionVote, error)
	JudgeParticipation(ctx context.Context, betID, resolverID, participationID string, isCorrect bool) (model.Judgment, error)
}

// Lifecycle é a máquina de estados da aposta
type Lifecycle interface {
	Tally(ctx context.Context, betID string) (tally.Distribution, error)
	AfterVote(ctx context.Context, betID string) (tally.Distribution, error)
	Close(ctx context.Context, betID, actorID string) (model.Bet, error)
	Resolve(ctx context.Context, betID string, trigger lifecycle.Trigger, actorID string) (model.SettlementResult, error)
	Cancel(ctx context.Context, betID, actorID string) (model.SettlementResult, error)
	Settlement(ctx context.Context, betID string) (model.SettlementResult, error)
	ClaimFulfillment(ctx context.Context, betID, loserID, proofURL string) (model.FulfillmentStatus, error)
}

// Feed publica atualizações para o hub WebSocket (Redis Pub/Sub)
type Feed interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Server struct {
	log      *zap.Logger
	votes    Votes
	bets     Lifecycle
	feed     Feed
	channel  string
	validate *validator.Validate

	// WS é montado em /ws quando presente
	WS http.HandlerFunc
}

func NewServer(log *zap.Logger, v Votes, l Lifecycle, feed Feed, channel string) *Server {
	return &Server{log: log, votes: v, bets: l, feed: feed, channel: channel, validate: validator.New()}
}

// Router monta as rotas REST com CORS para as origens informadas
func (s *Server) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/v1/bets/{id}", func(r chi.Router) {
		r.Post("/votes", s.castVote)
		r.Delete("/votes/{voterId}", s.revokeVote)
		r.Post("/votes/{voterId}/reactivate", s.reactivateVote)
		r.Post("/judgments", s.judge)
		r.Get("/tally", s.getTally)
		r.Post("/close", s.closeBet)
		r.Post("/resolve", s.resolve)
		r.Post("/cancel", s.cancel)
		r.Get("/settlement", s.getSettlement)
		r.Post("/fulfillment", s.claimFulfillment)
	})
	if s.WS != nil {
		r.Get("/ws", s.WS)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", UserHeader},
	})
	return c.Handler(r)
}

func (s *Server) castVote(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.CastVoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	// outcome e winnerIds são exclusivos
	if (req.Outcome == nil) == (len(req.WinnerIDs) == 0) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "exactly one of outcome or winnerIds is required"})
		return
	}
	var sel model.Selection
	if req.Outcome != nil {
		sel = model.OutcomeSelection{Outcome: *req.Outcome}
	} else {
		sel = model.NewWinnerSet(req.WinnerIDs)
	}

	betID := chi.URLParam(r, "id")
	v, err := s.votes.CastVote(r.Context(), betID, actor, sel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.afterVote(r.Context(), betID)
	writeJSON(w, http.StatusCreated, dto.FromVote(v))
}

func (s *Server) revokeVote(w http.ResponseWriter, r *http.Request) {
	s.setVoteActive(w, r, false)
}

func (s *Server) reactivateVote(w http.ResponseWriter, r *http.Request) {
	s.setVoteActive(w, r, true)
}

// setVoteActive: só o próprio resolvedor altera o seu voto
func (s *Server) setVoteActive(w http.ResponseWriter, r *http.Request, active bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	betID, voterID := chi.URLParam(r, "id"), chi.URLParam(r, "voterId")
	if voterID != actor {
		s.writeError(w, model.ErrNotResolver)
		return
	}

	var (
		v   model.ResolutionVote
		err error
	)
	if active {
		v, err = s.votes.ReactivateVote(r.Context(), betID, voterID)
	} else {
		v, err = s.votes.RevokeVote(r.Context(), betID, voterID)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.afterVote(r.Context(), betID)
	writeJSON(w, http.StatusOK, dto.FromVote(v))
}

func (s *Server) judge(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.JudgmentRequest
	if !s.decode(w, r, &req) {
		return
	}
	betID := chi.URLParam(r, "id")
	j, err := s.votes.JudgeParticipation(r.Context(), betID, actor, req.ParticipationID, *req.IsCorrect)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.afterVote(r.Context(), betID)
	writeJSON(w, http.StatusCreated, dto.FromJudgment(j))
}

// afterVote reapura, dispara a resolução se decidida e publica a apuração no feed.
// O voto já foi gravado: falhas aqui só são registradas.
func (s *Server) afterVote(ctx context.Context, betID string) {
	d, err := s.bets.AfterVote(ctx, betID)
	if err != nil {
		s.log.Warn("post-vote processing failed", zap.String("bet_id", betID), zap.Error(err))
		if d.BetID == "" {
			return
		}
	}
	s.publishTally(ctx, d)
}

func (s *Server) publishTally(ctx context.Context, d tally.Distribution) {
	if s.feed == nil {
		return
	}
	b, err := json.Marshal(events.FeedUpdate{BetID: d.BetID, Type: "tally", Payload: dto.FromTally(d)})
	if err != nil {
		return
	}
	if err := s.feed.Publish(ctx, s.channel, b); err != nil {
		s.log.Warn("tally broadcast failed", zap.String("bet_id", d.BetID), zap.Error(err))
	}
}

func (s *Server) getTally(w http.ResponseWriter, r *http.Request) {
	d, err := s.bets.Tally(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromTally(d))
}

func (s *Server) closeBet(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	bet, err := s.bets.Close(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromBet(bet))
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	// pela API só o criador força a resolução; DEADLINE fica com o sweeper
	res, err := s.bets.Resolve(r.Context(), chi.URLParam(r, "id"), lifecycle.TriggerManual, actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromSettlement(res))
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	res, err := s.bets.Cancel(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromSettlement(res))
}

func (s *Server) getSettlement(w http.ResponseWriter, r *http.Request) {
	res, err := s.bets.Settlement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromSettlement(res))
}

func (s *Server) claimFulfillment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.FulfillmentRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	betID := chi.URLParam(r, "id")
	st, err := s.bets.ClaimFulfillment(r.Context(), betID, actor, req.ProofURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FulfillmentResponse{BetID: betID, FulfillmentStatus: string(st)})
}

func actorFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(UserHeader)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "missing " + UserHeader})
		return "", false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return false
	}
	return true
}

// writeError traduz erros de domínio em status HTTP
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
		var se *model.SettlementError
		if !errors.As(err, &se) {
			msg = "internal error"
		}
	}
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

func StatusFor(err error) int {
	switch {
	case model.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNotResolver), errors.Is(err, model.ErrNotCreator), errors.Is(err, model.ErrNotLoser):
		return http.StatusForbidden
	case model.IsConflict(err):
		return http.StatusConflict
	case model.IsValidation(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
