package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/service"
)

// PositionHandler serves position CRUD and dividend operations.
type PositionHandler struct {
	positions *service.PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions *service.PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logger}
}

// positionResponse is the JSON shape for a position. Decimals are rendered as
// strings so clients never see float rounding.
type positionResponse struct {
	ID                     string  `json:"id"`
	TenantID               string  `json:"tenant_id"`
	PortfolioID            string  `json:"portfolio_id"`
	Ticker                 string  `json:"ticker"`
	Currency               string  `json:"currency"`
	Quantity               string  `json:"quantity"`
	Cash                   string  `json:"cash"`
	AnchorPrice            *string `json:"anchor_price"`
	DividendReceivable     string  `json:"dividend_receivable"`
	TotalCommissionPaid    string  `json:"total_commission_paid"`
	TotalDividendsReceived string  `json:"total_dividends_received"`
	AutoCycle              bool    `json:"auto_cycle"`
	CreatedAt              string  `json:"created_at"`
	UpdatedAt              string  `json:"updated_at"`
}

func toPositionResponse(p domain.PositionState) positionResponse {
	var anchor *string
	if a, ok := p.Anchor(); ok {
		v := a.String()
		anchor = &v
	}
	return positionResponse{
		ID:                     p.ID,
		TenantID:               p.TenantID,
		PortfolioID:            p.PortfolioID,
		Ticker:                 p.Ticker,
		Currency:               p.Currency,
		Quantity:               p.Quantity.String(),
		Cash:                   p.Cash.String(),
		AnchorPrice:            anchor,
		DividendReceivable:     p.DividendReceivable.String(),
		TotalCommissionPaid:    p.TotalCommissionPaid.String(),
		TotalDividendsReceived: p.TotalDividendsReceived.String(),
		AutoCycle:              p.AutoCycle,
		CreatedAt:              p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:              p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type createPositionRequest struct {
	TenantID    string `json:"tenant_id"`
	PortfolioID string `json:"portfolio_id"`
	Ticker      string `json:"ticker"`
	Currency    string `json:"currency"`
	Quantity    string `json:"quantity"`
	Cash        string `json:"cash"`
	AutoCycle   bool   `json:"auto_cycle"`
}

// CreatePosition registers a new position.
// POST /api/positions
func (h *PositionHandler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	var req createPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	quantity, err := parseDecimalField(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid quantity")
		return
	}
	cash, err := parseDecimalField(req.Cash)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cash")
		return
	}

	pos, err := h.positions.Create(r.Context(), service.NewPositionParams{
		TenantID:    req.TenantID,
		PortfolioID: req.PortfolioID,
		Ticker:      req.Ticker,
		Currency:    req.Currency,
		Quantity:    quantity,
		Cash:        cash,
		AutoCycle:   req.AutoCycle,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toPositionResponse(pos))
}

// ListPositions returns positions with pagination.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.positions.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"positions": out,
		"count":     len(out),
	})
}

// GetPosition returns one position by ID.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.positions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionResponse(pos))
}

type accrueDividendRequest struct {
	Amount string `json:"amount"`
}

// AccrueDividend records a declared dividend as receivable.
// POST /api/positions/{id}/dividends
func (h *PositionHandler) AccrueDividend(w http.ResponseWriter, r *http.Request) {
	var req accrueDividendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}

	pos, err := h.positions.AccrueDividend(r.Context(), r.PathValue("id"), amount)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionResponse(pos))
}

// PayDividend settles the accrued receivable into cash.
// POST /api/positions/{id}/dividends/pay
func (h *PositionHandler) PayDividend(w http.ResponseWriter, r *http.Request) {
	pos, err := h.positions.PayDividend(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionResponse(pos))
}

type autoCycleRequest struct {
	Enabled bool `json:"enabled"`
}

// SetAutoCycle flips scheduled-cycle eligibility.
// PUT /api/positions/{id}/auto_cycle
func (h *PositionHandler) SetAutoCycle(w http.ResponseWriter, r *http.Request) {
	var req autoCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pos, err := h.positions.SetAutoCycle(r.Context(), r.PathValue("id"), req.Enabled)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionResponse(pos))
}

// parseDecimalField parses an optional decimal string; empty means zero.
func parseDecimalField(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
