// Package mlservice provides a client for the external document extraction and learning service.
package mlservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelai/sentinel-engine/pkg/logging"
	"github.com/sentinelai/sentinel-engine/pkg/models"
)

// DefaultTimeout is the maximum time to wait for one ML service call.
const DefaultTimeout = 30 * time.Second

// maxLoggedBody bounds how much of an error body ends up in logs and errors.
const maxLoggedBody = 512

// LearningTypeDocuments tags a learning request whose payload is extracted document data.
const LearningTypeDocuments = "documents"

// Processor is the subset of the ML service the document pipeline depends on.
type Processor interface {
	ProcessDocument(ctx context.Context, req ProcessRequest) (models.JSONMap, error)
	Learn(ctx context.Context, documents []models.JSONMap) (models.JSONMap, error)
}

// ProcessRequest asks the service to extract security knowledge from a stored file.
type ProcessRequest struct {
	DocumentID string `json:"document_id"`
	FilePath   string `json:"file_path"`
	FileType   string `json:"file_type"`
}

type processResponse struct {
	Success       bool           `json:"success"`
	DocumentID    string         `json:"document_id"`
	ExtractedData models.JSONMap `json:"extracted_data"`
	Message       string         `json:"message"`
	Error         string         `json:"error"`
}

type learnRequest struct {
	Type      string           `json:"type"`
	Documents []models.JSONMap `json:"documents"`
}

// Client talks to the ML service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Processor = (*Client)(nil)

// NewClient creates a client for the service rooted at baseURL (e.g. http://ml:5000/api/v1).
// A non-positive timeout falls back to DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("mlservice"),
	}
}

// ProcessDocument calls POST /documents/process and returns the extracted data.
func (c *Client) ProcessDocument(ctx context.Context, req ProcessRequest) (models.JSONMap, error) {
	var resp processResponse
	if err := c.post(ctx, &resp, req, "documents", "process"); err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = resp.Message
		}
		return nil, fmt.Errorf("ml service rejected document %s: %s", req.DocumentID, msg)
	}
	if resp.ExtractedData == nil {
		resp.ExtractedData = models.JSONMap{}
	}

	c.logger.Debug("Document processed by ML service",
		zap.String("document_id", req.DocumentID),
		zap.Int("extracted_keys", len(resp.ExtractedData)))
	return resp.ExtractedData, nil
}

// Learn calls POST /learning/learn with extracted document data and returns the service's reply.
func (c *Client) Learn(ctx context.Context, documents []models.JSONMap) (models.JSONMap, error) {
	result := models.JSONMap{}
	body := learnRequest{Type: LearningTypeDocuments, Documents: documents}
	if err := c.post(ctx, &result, body, "learning", "learn"); err != nil {
		return nil, err
	}
	return result, nil
}

// post sends payload as JSON and decodes a 2xx response into out.
func (c *Client) post(ctx context.Context, out any, payload any, pathSegments ...string) error {
	endpoint, err := buildURL(c.baseURL, pathSegments...)
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call ml service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := logging.TruncateString(string(body), maxLoggedBody)
		c.logger.Error("ML service returned error",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("body", snippet))
		return fmt.Errorf("ml service returned status %d: %s", resp.StatusCode, snippet)
	}

	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)

	return u.String(), nil
}
