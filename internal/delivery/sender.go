// File: internal/delivery/sender.go
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/campaignwatch/campaign-watch/internal/models"
	"github.com/campaignwatch/campaign-watch/pkg/utils"
)

// AttemptResult captures a single outbound HTTP attempt
type AttemptResult struct {
	StatusCode int           `json:"status_code"`
	Body       string        `json:"body"`
	Latency    time.Duration `json:"latency"`
	Success    bool          `json:"success"`
	Error      error         `json:"error,omitempty"`
}

// Sender performs one outbound HTTP POST to a webhook endpoint
type Sender interface {
	Send(ctx context.Context, endpoint *models.Endpoint, payload []byte) *AttemptResult
}

// HTTPSender implements Sender over a shared http.Client
type HTTPSender struct {
	client       *http.Client
	maxBodyBytes int
	userAgent    string
}

// NewHTTPSender creates an HTTP webhook sender. maxBodyBytes bounds how
// much of the subscriber's response body is captured.
func NewHTTPSender(maxBodyBytes int) *HTTPSender {
	return &HTTPSender{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		maxBodyBytes: maxBodyBytes,
		userAgent:    "Campaign-Watch/1.0",
	}
}

// Send issues a single POST with the endpoint's static headers and timeout.
// Any 2xx response counts as success.
func (s *HTTPSender) Send(ctx context.Context, endpoint *models.Endpoint, payload []byte) *AttemptResult {
	start := time.Now()
	result := &AttemptResult{}

	reqCtx, cancel := context.WithTimeout(ctx, endpoint.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		result.Error = utils.NewAppError(utils.ErrCodeInternal, "Failed to create webhook request", err.Error())
		result.Latency = time.Since(start)
		return result
	}

	s.setRequestHeaders(req, endpoint.Headers)

	resp, err := s.client.Do(req)
	result.Latency = time.Since(start)

	if err != nil {
		result.Error = utils.NewAppError(utils.ErrCodeDelivery, "Failed to send webhook", err.Error())
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode

	// Bounded read of the response body
	body, _ := io.ReadAll(io.LimitReader(resp.Body, int64(s.maxBodyBytes)))
	result.Body = string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Success = true
	} else {
		result.Error = utils.NewAppError(utils.ErrCodeDelivery,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, result.Body))
	}

	return result
}

func (s *HTTPSender) setRequestHeaders(req *http.Request, headers map[string]string) {
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}
