package location

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/connorward/mycoshop/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

// TaxService computes sales-tax rates via the Colorado GIS lookup API.
// Non-Colorado locations are taxed at zero without a remote call.
type TaxService struct {
	APIKey  string
	BaseURL string

	HTTPClient *http.Client
}

// NewTaxServiceFromEnv builds the service from environment configuration.
func NewTaxServiceFromEnv() *TaxService {
	return &TaxService{
		APIKey:  strings.TrimSpace(env.GetEnv("COLORADO_GIS_KEY", "")),
		BaseURL: strings.TrimSpace(env.GetEnv("COLORADO_GIS_URL", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Compute returns the sales-tax rate for a validated location.
func (s *TaxService) Compute(ctx context.Context, loc *Location) (float64, error) {
	if !loc.InColorado() {
		return 0.00, nil
	}

	body := map[string]string{
		"address": fmt.Sprintf("%s, %s %s", loc.City, loc.State, loc.PostalCode),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		log.Errorf("failed to compute colorado sales tax: city=%s state=%s postal_code=%s (status_code=%d)", loc.City, loc.State, loc.PostalCode, resp.StatusCode)
		return 0, fmt.Errorf("colorado gis lookup failed: status=%d", resp.StatusCode)
	}

	var parsed struct {
		TotalSalesTax float64 `json:"totalSalesTax"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return 0, err
	}

	log.Infof("computed colorado sales tax: city=%s state=%s postal_code=%s sales_tax=%v", loc.City, loc.State, loc.PostalCode, parsed.TotalSalesTax)
	return parsed.TotalSalesTax, nil
}
