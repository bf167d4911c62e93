package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"
)

const bomLocationsURL = "https://api.weather.bom.gov.au/v1/locations"

// BOMProvider reads the latest observed air temperature from the Bureau of
// Meteorology location API.
type BOMProvider struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewBOMProvider(client *http.Client) *BOMProvider {
	return &BOMProvider{
		name:    "bom",
		baseURL: bomLocationsURL,
		client:  client,
		circuit: newCircuit("bom"),
	}
}

func (p *BOMProvider) Name() string {
	return p.name
}

func (p *BOMProvider) FetchTemperature(ctx context.Context, geocode string) (float64, error) {
	if geocode == "" {
		return 0, fmt.Errorf("bom requires a geocode")
	}

	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s/%s/observations", p.baseURL, url.PathEscape(geocode))
		return http.NewRequest(http.MethodGet, u, nil)
	}

	body, err := doRequest(ctx, p.name, p.client, p.circuit, buildRequest)
	if err != nil {
		return 0, err
	}

	var payload struct {
		Data struct {
			Temp *float64 `json:"temp"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, malformed(p.name, err)
	}
	if payload.Data.Temp == nil {
		return 0, malformed(p.name, fmt.Errorf("observation has no temperature"))
	}
	return *payload.Data.Temp, nil
}
