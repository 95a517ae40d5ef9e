package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/kirana/kirana-backend/internal/stock/shelflife"
)

// ExportStockRegister renders the full stock register as a PDF: one row per
// product with category, on-hand quantity, unit price and nearest expiry.
func (s *StockService) ExportStockRegister(ctx context.Context) ([]byte, error) {
	products, err := s.products.List(ctx, "")
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Stock Register", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Stock Register")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Generated %s", s.now().Format("2006-01-02 15:04")))
	pdf.Ln(10)

	widths := []float64{38, 58, 24, 24, 18, 28}
	headers := []string{"Barcode", "Name", "Category", "Unit Price", "Qty", "Nearest Expiry"}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, p := range products {
		nearest := "-"
		batches, err := s.batches.ListByProduct(ctx, p.Barcode)
		if err != nil {
			return nil, err
		}
		if len(batches) > 0 {
			nearest = batches[0].ExpiryDate.Format("2006-01-02")
		}

		row := []string{
			p.Barcode,
			p.Name,
			string(shelflife.Classify(p.Name)),
			p.UnitPrice.StringFixed(2),
			fmt.Sprintf("%d", p.Quantity),
			nearest,
		}
		for i, cell := range row {
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(products) == 0 {
		pdf.CellFormat(190, 7, "No products registered", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render stock register: %w", err)
	}
	return buf.Bytes(), nil
}
