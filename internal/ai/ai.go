// Package ai defines the interfaces to the two external inference services:
// the dimension estimator (structured pothole measurement) and the road-scan
// crack detector (annotated image). The two integrations are independent;
// either may fail without affecting the other, and both are optional
// enhancements to the submission pipeline.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DimensionEstimator produces a structured dimension/severity estimate
// from a pothole photo.
type DimensionEstimator interface {
	Estimate(ctx context.Context, params EstimateParams) (*Estimate, error)
}

// CrackDetector runs the road-crack model over a photo and returns an
// annotated copy of the image.
type CrackDetector interface {
	Annotate(ctx context.Context, imageData []byte) (*AnnotatedImage, error)
}

// EstimateParams contains the input for a dimension estimation request.
type EstimateParams struct {
	ImageData   []byte // Raw image bytes
	ContentType string // MIME type (e.g. "image/jpeg")
}

// Estimate is the structured result of a dimension estimation.
//
// The centimeter fields are free-form numeric text from the model and are
// deliberately not parsed into floats.
type Estimate struct {
	LengthCM  string `json:"length_cm"`
	WidthCM   string `json:"width_cm"`
	DepthCM   string `json:"depth_cm"`
	Severity  string `json:"severity"` // Low | Medium | High
	Reasoning string `json:"reasoning,omitempty"`
}

// AnnotatedImage is the crack detector's output.
type AnnotatedImage struct {
	Data        []byte // Raw image bytes returned by the model
	ContentType string // Content type of the returned image
}

// ProviderConfig contains common configuration for inference clients.
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for inference operations
var (
	// ERateLimit indicates the API rate limit has been exceeded
	ERateLimit = errors.New("inference rate limit exceeded")

	// EInvalidImage indicates the image format or content is invalid
	EInvalidImage = errors.New("invalid image format or content")

	// ETimeout indicates the request timed out
	ETimeout = errors.New("inference request timed out")

	// EUnavailable indicates the inference service is temporarily unavailable
	EUnavailable = errors.New("inference service temporarily unavailable")

	// EUnauthorized indicates invalid API credentials
	EUnauthorized = errors.New("inference provider authentication failed")

	// EMalformedResponse indicates the service answered with a body that
	// does not match the expected schema
	EMalformedResponse = errors.New("malformed inference response")
)

// IsRetryable returns true if the error is transient and worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ERateLimit) ||
		errors.Is(err, ETimeout) ||
		errors.Is(err, EUnavailable)
}

// WrapError wraps an error with context about the inference operation.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
