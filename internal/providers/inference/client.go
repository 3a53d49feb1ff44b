package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"charagen/internal/domain"
	"charagen/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("inference: api key is required")

// Options configures the inference API client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the remote inference API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     infra.Logger
}

// JobRequest is the provider payload for a new generation job.
type JobRequest struct {
	Model             string   `json:"model"`
	Prompt            string   `json:"prompt"`
	NegativePrompt    string   `json:"negative_prompt"`
	Width             int      `json:"width"`
	Height            int      `json:"height"`
	NumInferenceSteps int      `json:"num_inference_steps"`
	GuidanceScale     float64  `json:"guidance_scale"`
	Scheduler         string   `json:"scheduler"`
	Seed              *int64   `json:"seed,omitempty"`
	LoraURL           string   `json:"lora_url,omitempty"`
	LoraScale         *float64 `json:"lora_scale,omitempty"`
}

// Job is the provider view of a job. Output is empty until it succeeds.
type Job struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output,omitempty"`
	Error  string   `json:"error,omitempty"`
}

type jobResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

type errorResponse struct {
	Detail  string `json:"detail"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("inference: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("inference: invalid base url: %w", err)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "sdxl-lora"
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// CreateJob submits a new job and returns its id and initial status.
func (c *Client) CreateJob(ctx context.Context, req JobRequest) (*Job, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.ValidationError("invalid generation request", fmt.Errorf("inference: encode request: %w", err))
	}
	job, err := c.do(ctx, http.MethodPost, "/jobs", body, false)
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, domain.ProviderError("provider returned no job id", domain.ErrProviderFailure)
	}
	c.logger.Debug().Str("job_id", job.ID).Str("status", job.Status).Str("model", req.Model).Msg("inference: job created")
	return job, nil
}

// GetJob returns the current provider state of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, domain.ValidationError("job id is required", nil)
	}
	return c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, false)
}

// CancelJob asks the provider to stop a job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil
	}
	_, err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/cancel", nil, true)
	return err
}

// do sends one request. A 2xx with an empty body is only accepted when
// emptyOK is set; job lookups and submissions must carry a job document.
func (c *Client) do(ctx context.Context, method, path string, body []byte, emptyOK bool) (*Job, error) {
	if !c.HasCredentials() {
		return nil, domain.ProviderError("inference provider is not configured", ErrMissingAPIKey)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, domain.NetworkError("could not reach inference provider", fmt.Errorf("inference: build request: %w", err))
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NetworkError("could not reach inference provider", fmt.Errorf("inference: http request: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NetworkError("could not read inference response", fmt.Errorf("inference: read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := providerDetail(raw)
		if detail == "" {
			detail = fmt.Sprintf("inference provider returned status %d", resp.StatusCode)
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Str("detail", detail).Msg("inference: request rejected")
		return nil, domain.ProviderError(detail, fmt.Errorf("inference: status %d: %w", resp.StatusCode, domain.ErrProviderFailure))
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		if emptyOK {
			return &Job{}, nil
		}
		return nil, domain.ProviderError("malformed inference response", fmt.Errorf("inference: %s %s: empty response body", method, path))
	}
	var decoded jobResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, domain.ProviderError("malformed inference response", fmt.Errorf("inference: decode response: %w", err))
	}
	return &Job{
		ID:     strings.TrimSpace(decoded.ID),
		Status: strings.ToLower(strings.TrimSpace(decoded.Status)),
		Output: decodeOutput(decoded.Output),
		Error:  decodeError(decoded.Error),
	}, nil
}

func providerDetail(raw []byte) string {
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, candidate := range []string{detail.Detail, detail.Error, detail.Message} {
		if v := strings.TrimSpace(candidate); v != "" {
			return v
		}
	}
	return ""
}

// decodeOutput accepts a single URL or a list of URLs.
func decodeOutput(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := list[:0]
		for _, u := range list {
			if u = strings.TrimSpace(u); u != "" {
				out = append(out, u)
			}
		}
		return out
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && strings.TrimSpace(single) != "" {
		return []string{strings.TrimSpace(single)}
	}
	return nil
}

// decodeError accepts a plain string or an object carrying a message.
func decodeError(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil {
		for _, candidate := range []string{detail.Message, detail.Detail, detail.Error} {
			if v := strings.TrimSpace(candidate); v != "" {
				return v
			}
		}
		return ""
	}
	return strings.TrimSpace(string(raw))
}
