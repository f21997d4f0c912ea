package inference

import (
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/mlyard/mlyard/internal/pkg/circuitbreaker"
	apperrors "github.com/mlyard/mlyard/internal/pkg/errors"
	"github.com/mlyard/mlyard/internal/pkg/logger"
)

// ScorerClient forwards invocation payloads to backing scorers over
// HTTP. Each scoring URL gets its own circuit breaker so one dead
// endpoint cannot take down the proxy path.
type ScorerClient struct {
	client   *fasthttp.Client
	timeout  time.Duration
	breakers *circuitbreaker.Registry
}

// NewScorerClient creates a new scorer client
func NewScorerClient(timeout time.Duration, maxBodyBytes int) *ScorerClient {
	return &ScorerClient{
		client: &fasthttp.Client{
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxResponseBodySize: maxBodyBytes,
			MaxConnsPerHost:     256,
		},
		timeout:  timeout,
		breakers: circuitbreaker.NewRegistry(),
	}
}

// Score posts a request body to the scoring URL and returns the raw
// response body. The auth token, when set, is sent as a bearer token.
func (c *ScorerClient) Score(scoringURL, authToken string, body []byte) ([]byte, error) {
	cb := c.breakers.Get(scoringURL)

	result, err := circuitbreaker.ExecuteWithResult(cb, func() ([]byte, error) {
		return c.post(scoringURL, authToken, body)
	})
	if err != nil {
		if err == circuitbreaker.ErrCircuitOpen || err == circuitbreaker.ErrTooManyRequests {
			return nil, apperrors.Unavailable("scorer is unavailable")
		}
		return nil, err
	}

	return result, nil
}

func (c *ScorerClient) post(scoringURL, authToken string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(scoringURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.SetBody(body)

	start := time.Now()
	err := c.client.DoTimeout(req, resp, c.timeout)
	duration := time.Since(start)

	if err != nil {
		logger.Warn("scorer request failed",
			zap.String("url", scoringURL),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		if err == fasthttp.ErrTimeout {
			return nil, apperrors.Unavailable("scorer timed out")
		}
		return nil, apperrors.Unavailable("scorer is unreachable")
	}

	status := resp.StatusCode()
	if status >= 500 {
		return nil, apperrors.Unavailable(fmt.Sprintf("scorer returned status %d", status))
	}
	if status >= 400 {
		return nil, apperrors.BadRequest(fmt.Sprintf("scorer rejected request with status %d", status))
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())

	return out, nil
}

// BreakerStats exposes per-scorer circuit state for diagnostics
func (c *ScorerClient) BreakerStats() map[string]map[string]interface{} {
	return c.breakers.Stats()
}

// Healthy probes a scoring URL with a GET request. Used by the deploy
// worker while waiting for an endpoint to come up.
func (c *ScorerClient) Healthy(scoringURL, authToken string) bool {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(scoringURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
		return false
	}

	return resp.StatusCode() < 500
}
