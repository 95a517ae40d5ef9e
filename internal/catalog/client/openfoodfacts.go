package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirana/kirana-backend/pkg/config"
	"github.com/kirana/kirana-backend/pkg/errors"
	"github.com/kirana/kirana-backend/pkg/logger"
)

// OpenFoodFactsClient looks up product names for unknown barcodes against
// the public Open Food Facts catalog.
type OpenFoodFactsClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewOpenFoodFactsClient creates a new catalog client
func NewOpenFoodFactsClient(cfg *config.CatalogConfig, log *logger.Logger) *OpenFoodFactsClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenFoodFactsClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

type productResponse struct {
	Status  int `json:"status"`
	Product struct {
		ProductName string `json:"product_name"`
		Brands      string `json:"brands"`
	} `json:"product"`
}

// ResolveName returns a display name for the barcode, combining brand and
// product name when both are present. An unknown barcode yields NotFound.
func (c *OpenFoodFactsClient) ResolveName(ctx context.Context, barcode string) (string, error) {
	url := fmt.Sprintf("%s/api/v0/product/%s.json", c.baseURL, barcode)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create catalog request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", errors.NotFound(fmt.Sprintf("barcode %s not in catalog", barcode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode catalog response: %w", err)
	}

	if body.Status != 1 || body.Product.ProductName == "" {
		return "", errors.NotFound(fmt.Sprintf("barcode %s not in catalog", barcode))
	}

	name := body.Product.ProductName
	if body.Product.Brands != "" {
		name = body.Product.Brands + " " + name
	}

	c.logger.Debug().
		Str("barcode", barcode).
		Str("name", name).
		Msg("resolved product name from catalog")

	return name, nil
}
