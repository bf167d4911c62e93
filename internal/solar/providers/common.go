package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/solar-data-aggregation/internal/solar"
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 4 << 20

var (
	errRateLimited  = errors.New("rate limited")
	errServerError  = errors.New("server error")
	errUnexpected   = errors.New("unexpected status code")
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

func newCircuit(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequest executes a single HTTP request and reads the whole body, behind cb
// when one is given. There is no retry: the poll interval is the only retry
// cadence. Failures come back as *solar.UpstreamError.
func doRequest(
	ctx context.Context,
	source string,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) ([]byte, error) {
	if client == nil {
		return nil, &solar.UpstreamError{Source: source, Err: errNoHTTPClient}
	}

	req, err := buildRequest()
	if err != nil {
		return nil, &solar.UpstreamError{Source: source, Err: err}
	}
	req = req.WithContext(ctx)

	var status int
	exchange := func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, errRateLimited
		case resp.StatusCode >= 500:
			return nil, errServerError
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}

		return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	}

	var result interface{}
	if cb != nil {
		result, err = cb.Execute(exchange)
	} else {
		result, err = exchange()
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return nil, &solar.UpstreamError{
			Source:       source,
			StatusCode:   status,
			Unauthorized: status == http.StatusUnauthorized || status == http.StatusForbidden,
			Err:          err,
		}
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, &solar.UpstreamError{Source: source, Err: fmt.Errorf("unexpected result type from circuit breaker")}
	}
	return body, nil
}

func malformed(source string, err error) error {
	return &solar.UpstreamError{Source: source, StatusCode: http.StatusOK, Err: fmt.Errorf("malformed body: %w", err)}
}
