package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/trogers1052/positions-dashboard/internal/models"
	"github.com/trogers1052/positions-dashboard/internal/rebalance"
	"github.com/trogers1052/positions-dashboard/internal/rent"
	"github.com/trogers1052/positions-dashboard/internal/utils"
)

// PositionsReader lists the latest observed positions of an account
type PositionsReader interface {
	GetLatestPositions(ctx context.Context, internalAccountID string) ([]*models.PositionSnapshot, error)
}

// SharedCache is a trade open date cache shared between processes
type SharedCache interface {
	Forget(ctx context.Context, conid, internalAccountID string) error
	Clear(ctx context.Context) error
}

// Pinger checks a backend dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	calculator *rent.Calculator
	sessions   *rebalance.Sessions
	positions  PositionsReader
	shared     SharedCache
	pinger     Pinger
}

// Option configures optional Handler dependencies
type Option func(*Handler)

// WithSharedCache clears shared in addition to the in-process cache
func WithSharedCache(shared SharedCache) Option {
	return func(h *Handler) { h.shared = shared }
}

// WithPinger makes the health check report the backend status
func WithPinger(p Pinger) Option {
	return func(h *Handler) { h.pinger = p }
}

// NewHandler creates a new Handler
func NewHandler(calculator *rent.Calculator, sessions *rebalance.Sessions, positions PositionsReader, opts ...Option) *Handler {
	h := &Handler{
		calculator: calculator,
		sessions:   sessions,
		positions:  positions,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type rentResponse struct {
	Conid             string             `json:"conid"`
	InternalAccountID string             `json:"internal_account_id"`
	Symbol            string             `json:"symbol"`
	Rent              models.RentResult  `json:"rent"`
	Display           models.RentDisplay `json:"display"`
	Colors            rentColorsResponse `json:"colors"`
}

type rentColorsResponse struct {
	AtEntry rent.Color `json:"at_entry"`
	Current rent.Color `json:"current"`
}

func newRentResponse(p models.PositionEconomics, r models.RentResult) rentResponse {
	return rentResponse{
		Conid:             p.Conid,
		InternalAccountID: p.InternalAccountID,
		Symbol:            p.Symbol,
		Rent:              r,
		Display:           rent.FormatRentDisplay(r),
		Colors: rentColorsResponse{
			AtEntry: rent.ColorFor(r.EntryRentPerDayPerShare),
			Current: rent.ColorFor(r.CurrentRentPerDayPerShare),
		},
	}
}

// CalculateRent handles POST /rent
func (h *Handler) CalculateRent(w http.ResponseWriter, r *http.Request) {
	var p models.PositionEconomics
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.Conid == "" || p.InternalAccountID == "" {
		respondError(w, http.StatusBadRequest, "conid and internal_account_id are required")
		return
	}

	result := h.calculator.CalculateRent(r.Context(), p)
	respondJSON(w, http.StatusOK, newRentResponse(p, result))
}

// CalculateRents handles POST /rent/batch
func (h *Handler) CalculateRents(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Positions []models.PositionEconomics `json:"positions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.respondRents(w, r, req.Positions)
}

// GetAccountRents handles GET /accounts/{account}/rent
func (h *Handler) GetAccountRents(w http.ResponseWriter, r *http.Request) {
	if h.positions == nil {
		respondError(w, http.StatusNotImplemented, "positions are not available on this backend")
		return
	}

	account := mux.Vars(r)["account"]
	snapshots, err := h.positions.GetLatestPositions(r.Context(), account)
	if err != nil {
		h.internalError(w, r, "failed to get latest positions", err)
		return
	}

	positions := make([]models.PositionEconomics, len(snapshots))
	for i, s := range snapshots {
		positions[i] = s.Economics()
	}
	h.respondRents(w, r, positions)
}

func (h *Handler) respondRents(w http.ResponseWriter, r *http.Request, positions []models.PositionEconomics) {
	results, err := h.calculator.CalculateRents(r.Context(), positions)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	resp := make([]rentResponse, len(results))
	for i, result := range results {
		resp[i] = newRentResponse(positions[i], result)
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetTradeOpenDate handles GET /positions/{conid}/accounts/{account}/trade-open-date
func (h *Handler) GetTradeOpenDate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	resp := struct {
		Conid             string  `json:"conid"`
		InternalAccountID string  `json:"internal_account_id"`
		TradeOpenDate     *string `json:"trade_open_date"`
	}{Conid: vars["conid"], InternalAccountID: vars["account"]}

	if date, ok := h.calculator.FetchTradeOpenDate(r.Context(), vars["conid"], vars["account"]); ok {
		resp.TradeOpenDate = &date
	}
	respondJSON(w, http.StatusOK, resp)
}

// ForgetTradeOpenDate handles DELETE /rent/cache/{conid}/{account}
func (h *Handler) ForgetTradeOpenDate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	h.calculator.Forget(vars["conid"], vars["account"])
	if h.shared != nil {
		if err := h.shared.Forget(r.Context(), vars["conid"], vars["account"]); err != nil {
			h.internalError(w, r, "failed to forget shared trade open date", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearRentCache handles DELETE /rent/cache
func (h *Handler) ClearRentCache(w http.ResponseWriter, r *http.Request) {
	h.calculator.ClearCache()
	if h.shared != nil {
		if err := h.shared.Clear(r.Context()); err != nil {
			h.internalError(w, r, "failed to clear shared trade open dates", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*rebalance.Session, bool) {
	session, err := h.sessions.Get(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		h.rebalanceError(w, r, err)
		return nil, false
	}
	return session, true
}

func (h *Handler) rebalanceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rebalance.ErrNoUser):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, rebalance.ErrInvalidForm):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.internalError(w, r, "rebalance settings request failed", err)
	}
}

// ListRebalanceSettings handles GET /users/{userID}/rebalance-settings
func (h *Handler) ListRebalanceSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.sessions.List(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		h.rebalanceError(w, r, err)
		return
	}
	if all == nil {
		all = []*models.RebalanceSettings{}
	}
	respondJSON(w, http.StatusOK, all)
}

// GetRebalanceSettings handles GET /users/{userID}/rebalance-settings/{positionKey}
func (h *Handler) GetRebalanceSettings(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	setting, err := session.Fetch(r.Context(), mux.Vars(r)["positionKey"])
	if err != nil {
		h.rebalanceError(w, r, err)
		return
	}
	if setting == nil {
		respondError(w, http.StatusNotFound, "rebalance settings not found")
		return
	}
	respondJSON(w, http.StatusOK, setting)
}

// SaveRebalanceSettings handles PUT /users/{userID}/rebalance-settings/{positionKey}
func (h *Handler) SaveRebalanceSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		rebalance.Form
		rebalance.PositionRef
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, ok := h.session(w, r)
	if !ok {
		return
	}

	saved, err := session.Save(r.Context(), mux.Vars(r)["positionKey"], req.Form, req.PositionRef)
	if err != nil {
		h.rebalanceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

// DeleteRebalanceSettings handles DELETE /users/{userID}/rebalance-settings/{positionKey}
func (h *Handler) DeleteRebalanceSettings(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := session.Delete(r.Context(), mux.Vars(r)["positionKey"]); err != nil {
		h.rebalanceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DisableRebalance handles POST /users/{userID}/rebalance-settings/{positionKey}/disable
func (h *Handler) DisableRebalance(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := session.Disable(r.Context(), mux.Vars(r)["positionKey"]); err != nil {
		h.rebalanceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckDeltaRange handles GET /users/{userID}/rebalance-settings/{positionKey}/range?delta=
func (h *Handler) CheckDeltaRange(w http.ResponseWriter, r *http.Request) {
	delta, err := strconv.ParseFloat(r.URL.Query().Get("delta"), 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "delta must be a number")
		return
	}

	session, ok := h.session(w, r)
	if !ok {
		return
	}

	positionKey := mux.Vars(r)["positionKey"]
	respondJSON(w, http.StatusOK, map[string]any{
		"position_key":  positionKey,
		"delta_percent": rebalance.DeltaPercent(delta),
		"in_range":      session.IsDeltaInRange(positionKey, delta),
		"enabled":       session.IsEnabled(positionKey),
	})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg,
		slog.String("rqID", utils.GetRequestIDFromCtx(r.Context())),
		slog.String("path", r.URL.Path),
		slog.String("err", err.Error()))
	respondError(w, http.StatusInternalServerError, msg)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
