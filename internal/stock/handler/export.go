package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kirana/kirana-backend/internal/stock/service"
	"github.com/kirana/kirana-backend/pkg/httputil"
	"github.com/kirana/kirana-backend/pkg/logger"
)

// ExportHandler handles PDF export endpoints
type ExportHandler struct {
	service *service.StockService
	logger  *logger.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(svc *service.StockService, log *logger.Logger) *ExportHandler {
	return &ExportHandler{
		service: svc,
		logger:  log,
	}
}

// ExportStockRegister generates and serves the stock register PDF
func (h *ExportHandler) ExportStockRegister(w http.ResponseWriter, r *http.Request) {
	pdfBytes, err := h.service.ExportStockRegister(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to generate stock register PDF")
		httputil.Error(w, err)
		return
	}

	filename := fmt.Sprintf("stock-register-%s.pdf", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(pdfBytes)))
	w.Write(pdfBytes)
}
