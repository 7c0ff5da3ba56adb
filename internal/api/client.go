package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"fieldsync/internal/models"

	"golang.org/x/time/rate"
)

// Client talks to the authoritative job server. It is the only component that
// touches the network; everything it returns is classified into the sync
// error taxonomy so the engine can decide retry vs terminal failure.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// UpdateRequest carries one queued update to the server.
type UpdateRequest struct {
	JobID     int64
	Status    *string
	Notes     *string
	Photos    []models.PendingPhoto
	Timestamp time.Time
}

// NewClient constructs a client with a bounded request timeout and a client
// side rate limit.
func NewClient(baseURL, apiKey string, timeout time.Duration, rps float64, burst int) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// UpdateJob submits one update as multipart form data and returns the
// canonical job representation the server responds with.
func (c *Client) UpdateJob(ctx context.Context, req UpdateRequest) (*models.Job, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	// Capture time travels with the update so the server applies
	// last-writer-wins against the client clock, not arrival order.
	if !req.Timestamp.IsZero() {
		if err := writer.WriteField("timestamp", req.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			return nil, fmt.Errorf("encode timestamp field: %w", err)
		}
	}
	if req.Status != nil {
		if err := writer.WriteField("status", *req.Status); err != nil {
			return nil, fmt.Errorf("encode status field: %w", err)
		}
	}
	if req.Notes != nil {
		if err := writer.WriteField("notes", *req.Notes); err != nil {
			return nil, fmt.Errorf("encode notes field: %w", err)
		}
	}
	for _, photo := range req.Photos {
		part, err := writer.CreateFormFile("photos", photo.Filename)
		if err != nil {
			return nil, fmt.Errorf("encode photo %s: %w", photo.Filename, err)
		}
		if _, err := part.Write(photo.Data); err != nil {
			return nil, fmt.Errorf("write photo %s: %w", photo.Filename, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/jobs/%d", c.baseURL, req.JobID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	c.addHeaders(httpReq)

	var job models.Job
	if err := c.do(httpReq, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches the canonical job detail for cache population.
func (c *Client) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	var job models.Job
	endpoint := fmt.Sprintf("%s/api/v1/jobs/%d", c.baseURL, id)
	if err := c.doGet(ctx, endpoint, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs fetches the canonical job list for cache population.
func (c *Client) ListJobs(ctx context.Context) ([]models.Job, error) {
	var wrap struct {
		Jobs []models.Job `json:"jobs"`
	}
	endpoint := fmt.Sprintf("%s/api/v1/jobs", c.baseURL)
	if err := c.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, err
	}
	return wrap.Jobs, nil
}

// Ping probes the server health endpoint. Used as the connectivity signal.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, nil)
}

func (c *Client) doGet(ctx context.Context, endpoint string, out interface{}) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors and timeouts are indistinguishable from being
		// offline; both defer to the next connectivity window.
		return fmt.Errorf("%s %s: %v: %w", req.Method, req.URL.Path, err, models.ErrTransientNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("http %d: %w", resp.StatusCode, models.ErrTransientNetwork)
	}
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s: %w", resp.StatusCode, string(snippet), models.ErrValidationRejected)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %v: %w", err, models.ErrTransientNetwork)
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) addHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	req.Header.Set("x-client-timestamp", strconv.FormatInt(time.Now().Unix(), 10))
}
