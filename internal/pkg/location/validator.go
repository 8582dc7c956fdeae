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

	"github.com/connorward/mycoshop/app/models"
	"github.com/connorward/mycoshop/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

// UsageMeter counts calls against the external API quota.
type UsageMeter interface {
	Increment(apiType string) (int, bool, error)
}

// Validator checks addresses against the Google Maps Address Validation API.
type Validator struct {
	APIKey  string
	BaseURL string

	HTTPClient *http.Client
	Meter      UsageMeter
}

// NewValidatorFromEnv builds the validator from environment configuration.
func NewValidatorFromEnv(meter UsageMeter) *Validator {
	return &Validator{
		APIKey:  strings.TrimSpace(env.GetEnv("GOOGLE_MAPS_API_KEY", "")),
		BaseURL: strings.TrimSpace(env.GetEnv("GOOGLE_MAPS_ADDR_VALIDATION_URL", "https://addressvalidation.googleapis.com/v1:validateAddress")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		Meter: meter,
	}
}

type validateAddressResponse struct {
	Result struct {
		Address struct {
			AddressComponents []struct {
				ConfirmationLevel string `json:"confirmationLevel"`
			} `json:"addressComponents"`
			PostalAddress struct {
				Locality           string `json:"locality"`
				AdministrativeArea string `json:"administrativeArea"`
				PostalCode         string `json:"postalCode"`
				RegionCode         string `json:"regionCode"`
			} `json:"postalAddress"`
		} `json:"address"`
	} `json:"result"`
}

// Validate checks city/state/postal/country and returns the normalized
// address. An address is valid only when every component is CONFIRMED and
// exactly the four expected components are present.
func (v *Validator) Validate(ctx context.Context, city, state, postalCode, country string) (*Location, error) {
	invalid := &Location{Valid: false, City: city, State: state, PostalCode: postalCode, Country: country}

	body := map[string]interface{}{
		"address": map[string]interface{}{
			"regionCode":   country,
			"addressLines": []string{fmt.Sprintf("%s, %s %s", city, state, postalCode)},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return invalid, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.BaseURL+"?key="+v.APIKey, bytes.NewReader(payload))
	if err != nil {
		return invalid, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return invalid, err
	}
	defer resp.Body.Close()

	if v.Meter != nil {
		if count, milestone, merr := v.Meter.Increment(models.APITypeAddrValidation); merr == nil && milestone {
			log.Warnf("address validation API call count reached %d milestone", count)
		}
	}

	if resp.StatusCode != http.StatusOK {
		log.Warnf("failed to validate address: city=%s state=%s postal_code=%s country=%s (status_code=%d)", city, state, postalCode, country, resp.StatusCode)
		return invalid, nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed validateAddressResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return invalid, err
	}

	components := parsed.Result.Address.AddressComponents
	valid := len(components) == 4
	for _, component := range components {
		if component.ConfirmationLevel != "CONFIRMED" {
			valid = false
			break
		}
	}

	if !valid {
		log.Warnf("failed to validate address: city=%s state=%s postal_code=%s country=%s", city, state, postalCode, country)
		return invalid, nil
	}

	normalized := parsed.Result.Address.PostalAddress
	log.Infof("validated address: city=%s state=%s postal_code=%s country=%s", normalized.Locality, normalized.AdministrativeArea, normalized.PostalCode, normalized.RegionCode)

	return &Location{
		Valid:      true,
		City:       normalized.Locality,
		State:      normalized.AdministrativeArea,
		PostalCode: normalized.PostalCode,
		Country:    normalized.RegionCode,
	}, nil
}
