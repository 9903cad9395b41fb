// Package backend provides the REST client for the health backend service.
//
// The backend is the system of record for facilities, assistance programs,
// reminders, and interaction logs. Every call carries a short timeout and the
// pipeline recovers locally from any failure, so this client never retries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/connectedhealth/triagepipe/internal/models"
)

// DefaultTimeout bounds every backend HTTP call.
const DefaultTimeout = 10 * time.Second

// DefaultBaseURL is used when no backend URL is configured.
const DefaultBaseURL = "http://backend:3001"

// Opts holds configuration for the backend client.
type Opts struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option configures the backend client.
type Option func(*Opts)

// WithBaseURL sets the backend base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient injects a custom HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the health backend REST API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a backend client with the given options.
func NewClient(opts ...Option) *Client {
	cfg := Opts{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("backend.NewClient: client configured", "base_url", cfg.BaseURL, "timeout", cfg.Timeout)
	return &Client{baseURL: cfg.BaseURL, client: httpClient}
}

// Health probes the backend system health endpoint.
func (c *Client) Health(ctx context.Context) (models.HealthStatus, error) {
	var status models.HealthStatus
	if err := c.getJSON(ctx, "/api/system/health", &status); err != nil {
		return models.HealthStatus{}, err
	}
	return status, nil
}

// SearchFacilities queries nearby care facilities matching the given filters.
func (c *Client) SearchFacilities(ctx context.Context, req models.FacilitySearchRequest) ([]models.Facility, error) {
	var facilities []models.Facility
	if err := c.postJSON(ctx, "/api/facilities/search", req, &facilities); err != nil {
		return nil, err
	}
	return facilities, nil
}

// ProgramEligibility queries assistance-program eligibility for a patient.
func (c *Client) ProgramEligibility(ctx context.Context, req models.EligibilityRequest) ([]models.Program, error) {
	var programs []models.Program
	if err := c.postJSON(ctx, "/api/programs/eligibility", req, &programs); err != nil {
		return nil, err
	}
	return programs, nil
}

// CreateReminder asks the backend to schedule a reminder.
func (c *Client) CreateReminder(ctx context.Context, req models.ReminderRequest) (models.Reminder, error) {
	var reminder models.Reminder
	if err := c.postJSON(ctx, "/api/reminders", req, &reminder); err != nil {
		return models.Reminder{}, err
	}
	return reminder, nil
}

// LogInteraction records an agent interaction. Fire-and-forget: failures are
// logged and swallowed, never surfaced to the caller.
func (c *Client) LogInteraction(ctx context.Context, entry models.InteractionLog) {
	if err := c.postJSON(ctx, "/api/interactions", entry, nil); err != nil {
		slog.Warn("backend.LogInteraction: interaction log failed", "agent", entry.AgentName, "error", err)
	}
}

// LogToolCall records a tool invocation. Fire-and-forget like LogInteraction.
func (c *Client) LogToolCall(ctx context.Context, entry models.ToolCallLog) {
	if err := c.postJSON(ctx, "/api/mcp/logs", entry, nil); err != nil {
		slog.Warn("backend.LogToolCall: tool log failed", "tool", entry.ToolName, "error", err)
	}
}

// getJSON issues a GET request and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	return c.do(req, out)
}

// postJSON issues a POST request with a JSON body and decodes the response
// into out when out is non-nil.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend request %s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("backend %s %s returned %s: %s", req.Method, req.URL.Path, resp.Status, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}
