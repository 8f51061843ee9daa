// Package gemini implements the DimensionEstimator interface against the
// Google Generative Language REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/raahi-app/raahi/internal/ai"
	"github.com/raahi-app/raahi/internal/retry"
)

const (
	// DefaultBaseURL is the Generative Language API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is the default model used for dimension estimation.
	DefaultModel = "gemini-2.5-flash-lite"

	// MaxImageSize is the maximum image size accepted for estimation (20MB).
	MaxImageSize = 20 * 1024 * 1024
)

// Config contains configuration for the Gemini client.
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string // Overridable for tests
	ProviderConfig ai.ProviderConfig
}

// Client implements ai.DimensionEstimator using Gemini's structured output.
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Gemini estimation client.
func New(config Config, logger *slog.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 500 * time.Millisecond
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 60 * time.Second
	}

	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// Estimate sends the image to the model and returns a structured estimate.
// Transient failures are retried with exponential backoff; every other
// failure propagates as a typed sentinel from the ai package.
func (c *Client) Estimate(ctx context.Context, params ai.EstimateParams) (*ai.Estimate, error) {
	if err := c.validateParams(params); err != nil {
		return nil, ai.WrapError("estimate dimensions", err)
	}

	body, err := c.buildRequestBody(params)
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	policy := retry.Policy{
		MaxAttempts:  c.config.ProviderConfig.MaxRetries,
		InitialDelay: c.config.ProviderConfig.RetryBaseDelay,
		Backoff:      retry.Exponential,
		RetryIf:      ai.IsRetryable,
	}

	resp, err := retry.Do(ctx, policy, func(ctx context.Context) (*apiResponse, error) {
		return c.execute(ctx, body)
	})
	if err != nil {
		return nil, ai.WrapError("execute request", err)
	}

	estimate, err := parseEstimate(resp)
	if err != nil {
		return nil, ai.WrapError("parse response", err)
	}

	return estimate, nil
}

func (c *Client) validateParams(params ai.EstimateParams) error {
	if len(params.ImageData) == 0 {
		return ai.EInvalidImage
	}
	if len(params.ImageData) > MaxImageSize {
		return fmt.Errorf("%w: image size %d exceeds maximum %d", ai.EInvalidImage, len(params.ImageData), MaxImageSize)
	}
	if params.ContentType == "" {
		return fmt.Errorf("%w: content type is required", ai.EInvalidImage)
	}
	return nil
}

func (c *Client) buildRequestBody(params ai.EstimateParams) ([]byte, error) {
	reqBody := apiRequest{
		Contents: []apiContent{
			{
				Role: "user",
				Parts: []apiPart{
					{Text: estimationPrompt},
					{
						InlineData: &apiInlineData{
							MimeType: params.ContentType,
							Data:     base64.StdEncoding.EncodeToString(params.ImageData),
						},
					},
				},
			},
		},
		GenerationConfig: apiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   estimateSchema,
		},
	}
	return json.Marshal(reqBody)
}

// execute performs one request attempt. The body is rebuilt into a fresh
// reader per attempt so retries are safe.
func (c *Client) execute(ctx context.Context, body []byte) (*apiResponse, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.config.BaseURL, c.config.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		// Network errors are typically retryable
		return nil, ai.EUnavailable
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.mapHTTPError(resp.StatusCode, respBody)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.EMalformedResponse, err)
	}
	return &apiResp, nil
}

func (c *Client) mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EUnauthorized
	case http.StatusTooManyRequests:
		return ai.ERateLimit
	case http.StatusRequestTimeout:
		return ai.ETimeout
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ai.EInvalidImage, errResp.Error.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusInternalServerError:
		return ai.EUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

// parseEstimate extracts the structured JSON from the first text part of
// the first candidate.
func parseEstimate(resp *apiResponse) (*ai.Estimate, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ai.EMalformedResponse)
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text = part.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("%w: no text content", ai.EMalformedResponse)
	}

	var estimate ai.Estimate
	if err := json.Unmarshal([]byte(text), &estimate); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.EMalformedResponse, err)
	}
	if estimate.LengthCM == "" && estimate.WidthCM == "" && estimate.DepthCM == "" {
		return nil, fmt.Errorf("%w: empty dimensions", ai.EMalformedResponse)
	}

	return &estimate, nil
}

// API request/response types

type apiRequest struct {
	Contents         []apiContent        `json:"contents"`
	GenerationConfig apiGenerationConfig `json:"generationConfig"`
}

type apiContent struct {
	Role  string    `json:"role"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *apiInlineData `json:"inline_data,omitempty"`
}

type apiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type apiGenerationConfig struct {
	ResponseMimeType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema"`
}

type apiResponse struct {
	Candidates []apiCandidate `json:"candidates"`
}

type apiCandidate struct {
	Content apiContent `json:"content"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// estimateSchema constrains the model output to the estimate shape. The
// dimension fields are strings on purpose; the model reports ranges and
// approximations as text.
var estimateSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"length_cm": {"type": "STRING", "description": "Estimated length in cm"},
		"width_cm": {"type": "STRING", "description": "Estimated width in cm"},
		"depth_cm": {"type": "STRING", "description": "Estimated depth in cm"},
		"severity": {"type": "STRING", "enum": ["Low", "Medium", "High"]},
		"reasoning": {"type": "STRING", "description": "How the dimensions were calculated based on reference objects"}
	},
	"required": ["length_cm", "width_cm", "depth_cm", "severity"]
}`)
