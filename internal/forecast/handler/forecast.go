package handler

import (
	"net/http"

	"github.com/kirana/kirana-backend/internal/forecast/service"
	"github.com/kirana/kirana-backend/pkg/httputil"
	"github.com/kirana/kirana-backend/pkg/logger"
)

// ForecastHandler handles forecast endpoints
type ForecastHandler struct {
	service *service.ForecastService
	logger  *logger.Logger
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(svc *service.ForecastService, log *logger.Logger) *ForecastHandler {
	return &ForecastHandler{
		service: svc,
		logger:  log,
	}
}

// Get returns the forecast snapshot for ?range=daily|weekly|monthly
func (h *ForecastHandler) Get(w http.ResponseWriter, r *http.Request) {
	rng, err := service.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	snapshot, err := h.service.Forecast(r.Context(), rng)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, snapshot)
}
