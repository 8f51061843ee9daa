package mock

import (
	"context"
	"log/slog"

	"github.com/raahi-app/raahi/internal/ai"
)

// Provider is a mock AI provider for testing and development. It implements
// both ai.DimensionEstimator and ai.CrackDetector.
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	EstimateResponse *ai.Estimate
	EstimateError    error
	AnnotateResponse *ai.AnnotatedImage
	AnnotateError    error

	// Call tracking for testing
	EstimateCalls int
	AnnotateCalls int
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Estimate returns a canned dimension estimate
func (p *Provider) Estimate(ctx context.Context, params ai.EstimateParams) (*ai.Estimate, error) {
	p.EstimateCalls++

	// If a custom response or error is set, use it
	if p.EstimateError != nil {
		return nil, p.EstimateError
	}
	if p.EstimateResponse != nil {
		return p.EstimateResponse, nil
	}

	// Default canned response
	return &ai.Estimate{
		LengthCM:  "60",
		WidthCM:   "40",
		DepthCM:   "12",
		Severity:  "Medium",
		Reasoning: "Scaled against a standard brick visible beside the pothole. Edges are sharp, suggesting recent formation.",
	}, nil
}

// Annotate echoes the input image back as if it had been annotated
func (p *Provider) Annotate(ctx context.Context, image []byte) (*ai.AnnotatedImage, error) {
	p.AnnotateCalls++

	// If a custom response or error is set, use it
	if p.AnnotateError != nil {
		return nil, p.AnnotateError
	}
	if p.AnnotateResponse != nil {
		return p.AnnotateResponse, nil
	}

	out := make([]byte, len(image))
	copy(out, image)
	return &ai.AnnotatedImage{Data: out, ContentType: "image/jpeg"}, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.EstimateCalls = 0
	p.AnnotateCalls = 0
	p.EstimateResponse = nil
	p.EstimateError = nil
	p.AnnotateResponse = nil
	p.AnnotateError = nil
}
