package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kirana/kirana-backend/internal/stock/service"
	"github.com/kirana/kirana-backend/pkg/errors"
	"github.com/kirana/kirana-backend/pkg/httputil"
	"github.com/kirana/kirana-backend/pkg/logger"
)

// StockHandler handles ledger and product endpoints
type StockHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(svc *service.StockService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		service: svc,
		logger:  log,
	}
}

// IntakeRequest is the POST /stock/intake payload. ExpiryDate is only
// honored when ExpirySupplied is set; an omitted flag means the shelf-life
// default applies even if a date happens to be present.
type IntakeRequest struct {
	Barcode        string           `json:"barcode" validate:"required"`
	Name           string           `json:"name"`
	UnitPrice      *decimal.Decimal `json:"unit_price"`
	Quantity       int              `json:"quantity" validate:"required,gt=0"`
	ExpiryDate     string           `json:"expiry_date"`
	ExpirySupplied bool             `json:"expiry_supplied"`
}

// SellRequest is the POST /stock/sell payload. Quantity defaults to one
// unit when omitted, matching a single barcode scan.
type SellRequest struct {
	Barcode  string `json:"barcode" validate:"required"`
	Quantity int    `json:"quantity" validate:"omitempty,gt=0"`
}

// CorrectRequest is the POST /stock/correct payload
type CorrectRequest struct {
	Barcode string `json:"barcode" validate:"required"`
	Delta   int    `json:"delta" validate:"required"`
}

// Intake receives stock into the ledger
func (h *StockHandler) Intake(w http.ResponseWriter, r *http.Request) {
	var req IntakeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	in := service.IntakeRequest{
		Barcode:        req.Barcode,
		Name:           req.Name,
		Quantity:       req.Quantity,
		ExpirySupplied: req.ExpirySupplied,
	}
	if req.UnitPrice != nil {
		in.UnitPrice = *req.UnitPrice
		in.HasUnitPrice = true
	}
	if req.ExpirySupplied {
		expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			httputil.Error(w, errors.BadRequest("expiry_date must be formatted as YYYY-MM-DD"))
			return
		}
		in.ExpiryDate = expiry
	}

	result, err := h.service.Intake(r.Context(), in)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Sell records a sale and consumes stock in first-expire-first-out order
func (h *StockHandler) Sell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	result, err := h.service.Sell(r.Context(), req.Barcode, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Correct applies a signed manual stock correction
func (h *StockHandler) Correct(w http.ResponseWriter, r *http.Request) {
	var req CorrectRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.Correct(r.Context(), req.Barcode, req.Delta)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// List lists products, optionally filtered by ?q= substring
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, products)
}

// Get returns one product with its open batches
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")

	detail, err := h.service.GetProduct(r.Context(), barcode)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, detail)
}

// ExpiryRadar returns expired / expiring-today / expiring-tomorrow counts
func (h *StockHandler) ExpiryRadar(w http.ResponseWriter, r *http.Request) {
	radar, err := h.service.ExpiryRadar(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, radar)
}

// RecentSales returns the newest sale events
func (h *StockHandler) RecentSales(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.Error(w, errors.BadRequest("limit must be an integer"))
			return
		}
		limit = parsed
	}

	sales, err := h.service.RecentSales(r.Context(), limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, sales)
}

// Dashboard returns headline store stats
func (h *StockHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Dashboard(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, stats)
}
