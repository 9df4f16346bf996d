package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/betting"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/dto"
	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
)

// BetService é a parte do motor de apostas exposta pela API
type BetService interface {
	PlaceBet(ctx context.Context, userID string, asset model.Asset, direction model.Direction, amount decimal.Decimal) (string, error)
	GetBet(ctx context.Context, betID string) (*model.Bet, error)
	GetUserBets(ctx context.Context, userID string) ([]model.Bet, error)
}

type UserReader interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

type OddsReader interface {
	GetOdds(ctx context.Context, asset model.Asset, direction model.Direction) float64
	GetLatestPrice(ctx context.Context, asset model.Asset) (*model.CryptoPrice, error)
}

// Server expõe a API pública do bet-engine
type Server struct {
	log      *zap.Logger
	bets     BetService
	users    UserReader
	odds     OddsReader
	ws       http.Handler
	validate *validator.Validate
}

// NewServer aceita ws nil quando o dashboard não está habilitado
func NewServer(log *zap.Logger, bets BetService, users UserReader, odds OddsReader, ws http.Handler) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{log: log, bets: bets, users: users, odds: odds, ws: ws, validate: validator.New()}
}

// Router retorna o roteador HTTP com os endpoints REST e o WebSocket
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Post("/v1/bets", s.placeBet)                // coloca aposta
	r.Get("/v1/bets/{id}", s.getBet)              // consulta aposta
	r.Get("/v1/users/{id}", s.getUser)            // consulta usuário e saldo
	r.Get("/v1/users/{id}/bets", s.getUserBets)   // apostas do usuário
	r.Get("/v1/odds", s.getOdds)                  // ?asset=BTC&direction=UP
	r.Get("/v1/prices/{asset}", s.getLatestPrice) // último preço
	if s.ws != nil {
		r.Handle("/ws", s.ws)
	}
	return r
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	asset, err := model.ParseAsset(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset or direction")
		return
	}
	direction, err := model.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset or direction")
		return
	}

	betID, err := s.bets.PlaceBet(r.Context(), req.UserID, asset, direction, req.Amount)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PlaceBetResponse{
		BetID:   betID,
		Status:  string(model.StatusPending),
		Message: "Bet accepted, processing payment",
	})
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	b, err := s.bets.GetBet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) getUserBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.bets.GetUserBets(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

func (s *Server) getOdds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("asset") == "" || q.Get("direction") == "" {
		writeError(w, http.StatusBadRequest, "missing asset or direction")
		return
	}
	asset, err := model.ParseAsset(q.Get("asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset or direction")
		return
	}
	direction, err := model.ParseDirection(q.Get("direction"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset or direction")
		return
	}

	resp := dto.OddsResponse{
		Asset:     string(asset),
		Direction: string(direction),
		Odds:      s.odds.GetOdds(r.Context(), asset, direction),
	}
	p, err := s.odds.GetLatestPrice(r.Context(), asset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if p != nil {
		resp.CurrentPrice = &p.Price
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getLatestPrice(w http.ResponseWriter, r *http.Request) {
	asset, err := model.ParseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset")
		return
	}
	p, err := s.odds.GetLatestPrice(r.Context(), asset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidAsset),
		errors.Is(err, model.ErrInvalidDirection),
		errors.Is(err, betting.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, betting.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, betting.ErrInsufficientBalance):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}
