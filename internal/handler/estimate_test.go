package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raahi-app/raahi/internal/ai"
)

type mockEstimator struct {
	EstimateFunc func(ctx context.Context, params ai.EstimateParams) (*ai.Estimate, error)
}

func (m *mockEstimator) Estimate(ctx context.Context, params ai.EstimateParams) (*ai.Estimate, error) {
	return m.EstimateFunc(ctx, params)
}

func estimateBody(t *testing.T, payload string) *strings.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]string{"imageBase64": payload})
	require.NoError(t, err)
	return strings.NewReader(string(body))
}

func TestEstimate_OK(t *testing.T) {
	var captured ai.EstimateParams
	mock := &mockEstimator{
		EstimateFunc: func(ctx context.Context, params ai.EstimateParams) (*ai.Estimate, error) {
			captured = params
			return &ai.Estimate{
				LengthCM:  "60",
				WidthCM:   "40",
				DepthCM:   "12",
				Severity:  "high",
				Reasoning: "shadow depth against the curb",
			}, nil
		},
	}
	h := NewEstimateHandler(mock, testLogger())

	encoded := base64.StdEncoding.EncodeToString(jpegBytes())
	req := httptest.NewRequest("POST", "/api/estimate", estimateBody(t, encoded))
	rec := httptest.NewRecorder()

	h.Estimate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", captured.ContentType)
	assert.Equal(t, jpegBytes(), captured.ImageData)

	var resp estimateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "60", resp.Dimensions.LengthCM)
	assert.Equal(t, "40", resp.Dimensions.WidthCM)
	assert.Equal(t, "12", resp.Dimensions.DepthCM)
	assert.Equal(t, "High", resp.Severity)
	assert.Equal(t, "shadow depth against the curb", resp.Reasoning)
}

func TestEstimate_AcceptsDataURL(t *testing.T) {
	mock := &mockEstimator{
		EstimateFunc: func(ctx context.Context, params ai.EstimateParams) (*ai.Estimate, error) {
			assert.Equal(t, jpegBytes(), params.ImageData)
			return &ai.Estimate{LengthCM: "1", WidthCM: "1", DepthCM: "1", Severity: "Low"}, nil
		},
	}
	h := NewEstimateHandler(mock, testLogger())

	payload := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes())
	req := httptest.NewRequest("POST", "/api/estimate", estimateBody(t, payload))
	rec := httptest.NewRecorder()

	h.Estimate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEstimate_RequiresImage(t *testing.T) {
	h := NewEstimateHandler(&mockEstimator{}, testLogger())

	req := httptest.NewRequest("POST", "/api/estimate", estimateBody(t, ""))
	rec := httptest.NewRecorder()

	h.Estimate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEstimate_RejectsBadBase64(t *testing.T) {
	h := NewEstimateHandler(&mockEstimator{}, testLogger())

	req := httptest.NewRequest("POST", "/api/estimate", estimateBody(t, "%%% not base64 %%%"))
	rec := httptest.NewRecorder()

	h.Estimate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEstimate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid image", fmt.Errorf("%w: blurry", ai.EInvalidImage), http.StatusBadRequest},
		{"malformed response", fmt.Errorf("%w: truncated JSON", ai.EMalformedResponse), http.StatusInternalServerError},
		{"rate limited", fmt.Errorf("%w: slow down", ai.ERateLimit), http.StatusServiceUnavailable},
		{"unavailable", fmt.Errorf("%w: upstream 503", ai.EUnavailable), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockEstimator{
				EstimateFunc: func(ctx context.Context, params ai.EstimateParams) (*ai.Estimate, error) {
					return nil, tt.err
				},
			}
			h := NewEstimateHandler(mock, testLogger())

			encoded := base64.StdEncoding.EncodeToString(jpegBytes())
			req := httptest.NewRequest("POST", "/api/estimate", estimateBody(t, encoded))
			rec := httptest.NewRecorder()

			h.Estimate(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestEstimate_NotConfigured(t *testing.T) {
	h := NewEstimateHandler(nil, testLogger())

	encoded := base64.StdEncoding.EncodeToString(jpegBytes())
	req := httptest.NewRequest("POST", "/api/estimate", estimateBody(t, encoded))
	rec := httptest.NewRecorder()

	h.Estimate(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
