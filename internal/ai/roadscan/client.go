// Package roadscan calls the crack detection service, which accepts a road
// photo and returns the same photo with detected cracks drawn onto it.
package roadscan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/raahi-app/raahi/internal/ai"
)

const (
	// DefaultTimeout bounds a single annotation request. The detector runs
	// inference per call, so this is deliberately generous.
	DefaultTimeout = 30 * time.Second

	// maxResponseSize caps the annotated image we are willing to read back.
	maxResponseSize = 32 << 20
)

// Config holds settings for the roadscan client.
type Config struct {
	// Endpoint is the full URL of the detection endpoint.
	Endpoint string

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Client implements ai.CrackDetector against the roadscan HTTP service.
// Annotation is best effort and never retried; callers fall back to the
// original image when it fails.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(config Config, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("roadscan endpoint is required")
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		endpoint:   config.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "roadscan"),
	}, nil
}

// Annotate sends the image as a multipart form and returns the annotated
// image bytes from the response body.
func (c *Client) Annotate(ctx context.Context, image []byte) (*ai.AnnotatedImage, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image data is empty", ai.EInvalidImage)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", "report.jpg")
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("writing form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: request canceled: %v", ai.ETimeout, err)
		}
		return nil, fmt.Errorf("%w: detector unreachable: %v", ai.EUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.mapHTTPError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading annotated image: %v", ai.EUnavailable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: detector returned an empty body", ai.EMalformedResponse)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = "image/jpeg"
	}

	c.logger.Debug("image annotated",
		"bytes_in", len(image),
		"bytes_out", len(data),
		"duration_ms", time.Since(start).Milliseconds())

	return &ai.AnnotatedImage{Data: data, ContentType: contentType}, nil
}

func (c *Client) mapHTTPError(resp *http.Response) error {
	// Detector errors are plain text; read a little for the log line.
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	c.logger.Warn("detector returned an error",
		"status", resp.StatusCode,
		"body", string(snippet))

	switch {
	case resp.StatusCode == http.StatusRequestTimeout:
		return fmt.Errorf("%w: detector timed out (status %d)", ai.ETimeout, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: detector rate limited (status %d)", ai.ERateLimit, resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: detector rejected the image (status %d)", ai.EInvalidImage, resp.StatusCode)
	default:
		return fmt.Errorf("%w: detector error (status %d)", ai.EUnavailable, resp.StatusCode)
	}
}
