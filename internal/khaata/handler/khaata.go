package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kirana/kirana-backend/internal/khaata/repository"
	"github.com/kirana/kirana-backend/internal/khaata/service"
	"github.com/kirana/kirana-backend/pkg/httputil"
	"github.com/kirana/kirana-backend/pkg/logger"
)

// KhaataHandler handles customer account endpoints
type KhaataHandler struct {
	service *service.KhaataService
	logger  *logger.Logger
}

// NewKhaataHandler creates a new khaata handler
func NewKhaataHandler(svc *service.KhaataService, log *logger.Logger) *KhaataHandler {
	return &KhaataHandler{
		service: svc,
		logger:  log,
	}
}

// CreateAccountRequest is the POST /khaata payload
type CreateAccountRequest struct {
	Name    string           `json:"name" validate:"required"`
	Phone   *string          `json:"phone"`
	Balance *decimal.Decimal `json:"balance"`
}

// AdjustBalanceRequest is the POST /khaata/{id}/adjust payload
type AdjustBalanceRequest struct {
	Delta decimal.Decimal `json:"delta" validate:"required"`
}

// List lists all accounts
func (h *KhaataHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, accounts)
}

// Get gets an account by ID
func (h *KhaataHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, account)
}

// Create creates a new account
func (h *KhaataHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	account := &repository.Account{
		Name:  req.Name,
		Phone: req.Phone,
	}
	if req.Balance != nil {
		account.Balance = *req.Balance
	}

	if err := h.service.CreateAccount(r.Context(), account); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, account)
}

// Adjust applies a signed delta to an account balance
func (h *KhaataHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req AdjustBalanceRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	account, err := h.service.AdjustBalance(r.Context(), id, req.Delta)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, account)
}

// Delete removes an account
func (h *KhaataHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteAccount(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
