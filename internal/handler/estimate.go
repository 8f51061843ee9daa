package handler

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/raahi-app/raahi/internal/ai"
	"github.com/raahi-app/raahi/internal/domain"
	"github.com/raahi-app/raahi/internal/metrics"
)

// EstimateHandler serves the standalone dimension-estimation endpoint. The
// endpoint runs the model over a single photo without creating a report.
type EstimateHandler struct {
	estimator ai.DimensionEstimator
	logger    *slog.Logger
}

// NewEstimateHandler creates an EstimateHandler.
func NewEstimateHandler(estimator ai.DimensionEstimator, logger *slog.Logger) *EstimateHandler {
	return &EstimateHandler{estimator: estimator, logger: logger}
}

type estimateRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

type estimateResult struct {
	Dimensions struct {
		LengthCM string `json:"length_cm"`
		WidthCM  string `json:"width_cm"`
		DepthCM  string `json:"depth_cm"`
	} `json:"dimensions"`
	Severity  string `json:"severity"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Estimate handles POST /api/estimate.
func (h *EstimateHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	const op = "handler.estimate"

	if h.estimator == nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(nil, op, "Dimension estimation is not configured"))
		return
	}

	var req estimateRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Request body must be JSON with an imageBase64 field"))
		return
	}
	if req.ImageBase64 == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "imageBase64 is required"))
		return
	}

	data, contentType, err := decodeImagePayload(req.ImageBase64)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "imageBase64 is not valid base64 image data"))
		return
	}

	estimate, err := h.estimator.Estimate(r.Context(), ai.EstimateParams{
		ImageData:   data,
		ContentType: contentType,
	})
	if err != nil {
		metrics.AIAPICalls.WithLabelValues("gemini", "error").Inc()
		ErrorResponse(w, r, h.logger, mapEstimateError(op, err))
		return
	}
	metrics.AIAPICalls.WithLabelValues("gemini", "ok").Inc()

	var resp estimateResult
	resp.Dimensions.LengthCM = estimate.LengthCM
	resp.Dimensions.WidthCM = estimate.WidthCM
	resp.Dimensions.DepthCM = estimate.DepthCM
	resp.Severity = string(domain.NormalizeSeverity(estimate.Severity))
	resp.Reasoning = estimate.Reasoning

	writeJSON(w, http.StatusOK, resp)
}

// decodeImagePayload accepts both bare base64 and data URLs
// ("data:image/jpeg;base64,...").
func decodeImagePayload(payload string) ([]byte, string, error) {
	if rest, ok := strings.CutPrefix(payload, "data:"); ok {
		if _, encoded, found := strings.Cut(rest, ","); found {
			payload = encoded
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", err
	}

	contentType := http.DetectContentType(firstBytes(data))
	return data, contentType, nil
}

// mapEstimateError translates inference errors into API error codes.
func mapEstimateError(op string, err error) error {
	switch {
	case errors.Is(err, ai.EInvalidImage):
		return domain.Invalid(op, "The model could not read the provided image")
	case errors.Is(err, ai.EMalformedResponse):
		return domain.Internal(err, op, "The model returned an unusable response")
	default:
		return domain.Unavailable(err, op, "Dimension estimation is temporarily unavailable")
	}
}
