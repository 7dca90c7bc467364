package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stepbuddy/stepvault/challenge"
	"github.com/stepbuddy/stepvault/ledger"
	"github.com/stepbuddy/stepvault/logging"
	"github.com/stepbuddy/stepvault/shared"
)

func (s *Server) router(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(ctx))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/challenges", s.handleCreateChallenge)
		r.Get("/challenges/{id}", s.handleGetChallenge)
		r.Post("/challenges/{id}/join", s.handleJoinChallenge)
		r.Post("/challenges/{id}/verifications", s.handleSubmitVerification)
		r.Post("/challenges/{id}/rewards", s.handleProcessRewards)
		r.Post("/challenges/{id}/withdrawals", s.handleWithdraw)
		r.Get("/challenges/{id}/participants/{wallet}", s.handleGetParticipant)
		r.Post("/wallets/{wallet}/deposits", s.handleDeposit)
		r.Get("/wallets/{wallet}", s.handleGetWallet)
	})
	return r
}

// requestLogger attaches a request-scoped logger to the request context so
// operations log with the request id.
func requestLogger(ctx context.Context) func(http.Handler) http.Handler {
	logger := logging.FromContext(ctx).Named("api")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.With(
				zap.String("request_id", uuid.NewString()),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			reqLogger.Debug("handling request")
			next.ServeHTTP(w, r.WithContext(logging.NewContext(r.Context(), reqLogger)))
		})
	}
}

type createChallengeRequest struct {
	ID              uint64 `json:"id"`
	Authority       string `json:"authority"`
	StepGoal        uint32 `json:"step_goal"`
	DurationDays    uint32 `json:"duration_days"`
	EntryAmount     uint64 `json:"entry_amount"`
	MaxParticipants uint32 `json:"max_participants"`
}

type challengeResponse struct {
	ID                     uint64 `json:"id"`
	Authority              string `json:"authority"`
	StepGoal               uint32 `json:"step_goal"`
	DurationDays           uint32 `json:"duration_days"`
	EntryAmount            uint64 `json:"entry_amount"`
	MaxParticipants        uint32 `json:"max_participants"`
	ParticipantCount       uint32 `json:"participant_count"`
	TotalPool              uint64 `json:"total_pool"`
	StartTime              int64  `json:"start_time"`
	EndTime                int64  `json:"end_time"`
	IsActive               bool   `json:"is_active"`
	IsCompleted            bool   `json:"is_completed"`
	SuccessfulParticipants uint32 `json:"successful_participants"`
}

func toChallengeResponse(c *challenge.Challenge) challengeResponse {
	return challengeResponse{
		ID:                     c.ID,
		Authority:              c.Authority,
		StepGoal:               c.StepGoal,
		DurationDays:           c.DurationDays,
		EntryAmount:            c.EntryAmount,
		MaxParticipants:        c.MaxParticipants,
		ParticipantCount:       c.ParticipantCount,
		TotalPool:              c.TotalPool,
		StartTime:              c.StartTime,
		EndTime:                c.EndTime,
		IsActive:               c.IsActive,
		IsCompleted:            c.IsCompleted,
		SuccessfulParticipants: c.SuccessfulParticipants,
	}
}

type participantResponse struct {
	Wallet              string `json:"wallet"`
	ChallengeID         uint64 `json:"challenge_id"`
	DailyCompletions    []bool `json:"daily_completions"`
	TotalSuccessfulDays uint32 `json:"total_successful_days"`
	HasWithdrawn        bool   `json:"has_withdrawn"`
}

func toParticipantResponse(p *challenge.Participant) participantResponse {
	return participantResponse{
		Wallet:              p.Wallet,
		ChallengeID:         p.ChallengeID,
		DailyCompletions:    p.DailyCompletions,
		TotalSuccessfulDays: p.TotalSuccessfulDays,
		HasWithdrawn:        p.HasWithdrawn,
	}
}

func (s *Server) handleCreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req createChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	c, err := s.mgr.Create(
		r.Context(), req.ID, req.Authority,
		req.StepGoal, req.DurationDays, req.EntryAmount, req.MaxParticipants,
	)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toChallengeResponse(c))
}

func (s *Server) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := challengeID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	c, err := s.mgr.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toChallengeResponse(c))
}

func (s *Server) handleJoinChallenge(w http.ResponseWriter, r *http.Request) {
	id, err := challengeID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Wallet string `json:"wallet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	p, err := s.mgr.Join(r.Context(), id, req.Wallet)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toParticipantResponse(p))
}

func (s *Server) handleSubmitVerification(w http.ResponseWriter, r *http.Request) {
	id, err := challengeID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Wallet    string `json:"wallet"`
		Day       int    `json:"day"`
		StepCount uint32 `json:"step_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.mgr.SubmitVerification(r.Context(), id, req.Wallet, req.Day, req.StepCount); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProcessRewards(w http.ResponseWriter, r *http.Request) {
	id, err := challengeID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Authority string `json:"authority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	successful, err := s.mgr.ProcessRewards(r.Context(), id, req.Authority)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]uint32{"successful_participants": successful})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, err := challengeID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Wallet string `json:"wallet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := s.mgr.Withdraw(r.Context(), id, req.Wallet)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]uint64{"amount_paid": amount})
}

func (s *Server) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := challengeID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	p, err := s.mgr.GetParticipant(r.Context(), id, chi.URLParam(r, "wallet"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toParticipantResponse(p))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	wallet := chi.URLParam(r, "wallet")
	if err := s.funds.Deposit(r.Context(), wallet, req.Amount); err != nil {
		writeDomainError(w, r, err)
		return
	}
	balance, err := s.funds.Balance(r.Context(), wallet)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]uint64{"balance": balance})
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	balance, err := s.funds.Balance(r.Context(), chi.URLParam(r, "wallet"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]uint64{"balance": balance})
}

func challengeID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.FromContext(r.Context()).Error("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logging.FromContext(r.Context()).Debug("request failed", zap.Int("status", status), zap.Error(err))
	writeJSON(w, r, status, map[string]string{"error": err.Error()})
}

// writeDomainError maps settlement-core errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, challenge.ErrChallengeNotFound),
		errors.Is(err, challenge.ErrParticipantNotFound):
		status = http.StatusNotFound
	case errors.Is(err, challenge.ErrInvalidParameters),
		errors.Is(err, challenge.ErrInvalidVerificationDay):
		status = http.StatusBadRequest
	case errors.Is(err, challenge.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, challenge.ErrChallengeExists),
		errors.Is(err, challenge.ErrChallengeFull),
		errors.Is(err, challenge.ErrChallengeNotActive),
		errors.Is(err, challenge.ErrChallengeEnded),
		errors.Is(err, challenge.ErrAlreadyJoined),
		errors.Is(err, challenge.ErrChallengeCompleted),
		errors.Is(err, challenge.ErrChallengeNotEnded),
		errors.Is(err, challenge.ErrAlreadyCompleted),
		errors.Is(err, challenge.ErrChallengeNotCompleted),
		errors.Is(err, challenge.ErrAlreadyWithdrawn):
		status = http.StatusConflict
	case errors.Is(err, shared.ErrArithmeticOverflow),
		errors.Is(err, ledger.ErrInvalidAmount):
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
	}
	writeError(w, r, status, err)
}
