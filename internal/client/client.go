// Package client implements the consumer half of the movie pipeline: an
// HTTP client for the job endpoints and a cooperative poll scheduler that
// tracks jobs until they finish or time out.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"moviegen/internal/domain"
)

// StatusAPI is the slice of the server consumed by the poller.
type StatusAPI interface {
	Status(ctx context.Context, jobID, token string) (*StatusResponse, error)
	Regenerate(ctx context.Context, jobID string, force bool) (*RegenerateResponse, error)
}

// CreatePayload mirrors the createMovie request body.
type CreatePayload struct {
	StartTime  time.Time  `json:"startTime"`
	EndTime    *time.Time `json:"endTime,omitempty"`
	X1         float64    `json:"x1"`
	Y1         float64    `json:"y1"`
	X2         float64    `json:"x2"`
	Y2         float64    `json:"y2"`
	ImageScale float64    `json:"imageScale"`
	Layers     []string   `json:"layers"`
	Format     string     `json:"format,omitempty"`
	NumFrames  *int       `json:"numFrames,omitempty"`
	FrameRate  *float64   `json:"frameRate,omitempty"`
	Quality    int        `json:"quality,omitempty"`
	Watermark  bool       `json:"watermark,omitempty"`
}

// CreateResponse mirrors the createMovie reply.
type CreateResponse struct {
	ID         string `json:"id"`
	Token      string `json:"token"`
	ETASeconds int    `json:"eta"`
}

// StatusResponse mirrors the getStatus reply.
type StatusResponse struct {
	Status       domain.MovieStatus `json:"status"`
	Progress     int                `json:"progress"`
	ETASeconds   int                `json:"eta,omitempty"`
	FrameRate    float64            `json:"frameRate,omitempty"`
	NumFrames    int                `json:"numFrames,omitempty"`
	StartDate    *time.Time         `json:"startDate,omitempty"`
	EndDate      *time.Time         `json:"endDate,omitempty"`
	Width        int                `json:"width,omitempty"`
	Height       int                `json:"height,omitempty"`
	ThumbnailURL string             `json:"thumbnailUrl,omitempty"`
	ArtifactURL  string             `json:"artifactUrl,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// RegenerateResponse mirrors the regenerateMovie reply.
type RegenerateResponse struct {
	Token      string `json:"token"`
	ETASeconds int    `json:"eta"`
}

// Client talks to the movie API over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient builds a client with a bounded request timeout.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// Create submits a new movie request.
func (c *Client) Create(ctx context.Context, payload CreatePayload) (*CreateResponse, error) {
	var out CreateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/movies", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status polls a job.
func (c *Client) Status(ctx context.Context, jobID, token string) (*StatusResponse, error) {
	var out StatusResponse
	path := fmt.Sprintf("/v1/movies/%s/status?token=%s", jobID, token)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Regenerate restarts a finished or failed job under a fresh token.
func (c *Client) Regenerate(ctx context.Context, jobID string, force bool) (*RegenerateResponse, error) {
	var out RegenerateResponse
	path := fmt.Sprintf("/v1/movies/%s/regenerate", jobID)
	if err := c.do(ctx, http.MethodPost, path, map[string]bool{"force": force}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("client: %s %s: %s (%s)", method, path, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("client: %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
