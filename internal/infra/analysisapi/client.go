// Package analysisapi is the HTTP client for the analysis platform's run
// API. It backs both the poll channel (active-run queries) and the command
// channel (pause, resume, cancel, batch sizing).
package analysisapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opensoc/runwatch/internal/domain/analysis"
	"github.com/opensoc/runwatch/pkg/common/logger"
)

var (
	_ analysis.RunQueryService   = (*Client)(nil)
	_ analysis.RunCommandService = (*Client)(nil)
)

// StatusError is returned when the platform answers with an unexpected HTTP
// status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analysis api: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the analysis platform's run API over HTTP. Requests are
// instrumented with otelhttp so spans cross the service boundary.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client, used by tests to inject
// an httptest server transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a run API client rooted at baseURL.
func NewClient(baseURL string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: log.With("component", "analysis_api_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ActiveRun fetches the currently active analysis run for the resource.
// A 404 means the platform has no active run, which is a normal answer, not
// a failure.
func (c *Client) ActiveRun(ctx context.Context, resourceID uuid.UUID) (*analysis.RunSnapshot, error) {
	url := fmt.Sprintf("%s/api/v1/resources/%s/analysis-runs/active", c.baseURL, resourceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building active-run request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying active run: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var snap analysis.RunSnapshot
		if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
			return nil, fmt.Errorf("decoding active run: %w", err)
		}
		return &snap, nil
	case http.StatusNotFound, http.StatusNoContent:
		return nil, analysis.ErrNoActiveRun
	default:
		return nil, c.statusError(resp)
	}
}

// Pause asks the platform to pause a run. The ack is asynchronous; the
// resulting paused status arrives over the event or poll channel.
func (c *Client) Pause(ctx context.Context, runID uuid.UUID) error {
	return c.postCommand(ctx, runID, "pause")
}

// Resume asks the platform to resume a paused run.
func (c *Client) Resume(ctx context.Context, runID uuid.UUID) error {
	return c.postCommand(ctx, runID, "resume")
}

// Cancel asks the platform to cancel a run.
func (c *Client) Cancel(ctx context.Context, runID uuid.UUID) error {
	return c.postCommand(ctx, runID, "cancel")
}

// UpdateBatchSize asks the platform to change the run's batch size for
// subsequent batches.
func (c *Client) UpdateBatchSize(ctx context.Context, runID uuid.UUID, size int) error {
	url := fmt.Sprintf("%s/api/v1/analysis-runs/%s/batch-size", c.baseURL, runID)

	body, err := json.Marshal(map[string]int{"batch_size": size})
	if err != nil {
		return fmt.Errorf("encoding batch-size request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building batch-size request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending batch-size command: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp)
	}
	return nil
}

func (c *Client) postCommand(ctx context.Context, runID uuid.UUID, command string) error {
	url := fmt.Sprintf("%s/api/v1/analysis-runs/%s/%s", c.baseURL, runID, command)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("building %s request: %w", command, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s command: %w", command, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	// Cap the body read; error payloads should be small.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
