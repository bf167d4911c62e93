package forwarder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

const ingestPath = "/v1/ingest/solar"

// HTTPForwarder posts readings to the home gateway ingest endpoint.
type HTTPForwarder struct {
	client *resty.Client
	apiKey string
}

func NewHTTPForwarder(baseURL, apiKey string, timeout time.Duration) *HTTPForwarder {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &HTTPForwarder{
		client: client,
		apiKey: apiKey,
	}
}

func (f *HTTPForwarder) Name() string {
	return "home-gateway"
}

func (f *HTTPForwarder) Forward(ctx context.Context, payload solar.ForwardPayload) error {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("X-Api-Key", f.apiKey).
		SetBody(payload).
		Post(ingestPath)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return nil
}
