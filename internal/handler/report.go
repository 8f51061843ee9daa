package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/raahi-app/raahi/internal/ai"
	"github.com/raahi-app/raahi/internal/domain"
	"github.com/raahi-app/raahi/internal/service"
	"github.com/raahi-app/raahi/internal/uploader"
)

// maxSubmissionBytes bounds an entire multipart submission in memory.
const maxSubmissionBytes = int64(domain.MaxImagesPerReport)*domain.MaxImageSize + 1<<20

// ReportHandler serves the report endpoints.
type ReportHandler struct {
	reports service.ReportService
	logger  *slog.Logger

	// currentUser resolves the authenticated user from the request context.
	// Injected to avoid a handler->middleware import cycle.
	currentUser func(r *http.Request) *domain.User
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(reports service.ReportService, currentUser func(r *http.Request) *domain.User, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		reports:     reports,
		currentUser: currentUser,
		logger:      logger,
	}
}

// =============================================================================
// Responses
// =============================================================================

type estimationResponse struct {
	LengthCM  string `json:"length_cm"`
	WidthCM   string `json:"width_cm"`
	DepthCM   string `json:"depth_cm"`
	Severity  string `json:"severity"`
	Reasoning string `json:"reasoning,omitempty"`
}

type reportResponse struct {
	ID          string              `json:"id"`
	Address     string              `json:"address"`
	Description string              `json:"description,omitempty"`
	Latitude    *float64            `json:"latitude"`
	Longitude   *float64            `json:"longitude"`
	Severity    string              `json:"severity"`
	Status      string              `json:"status"`
	Images      []string            `json:"images"`
	Thumbnail   string              `json:"thumbnail,omitempty"`
	Reporter    string              `json:"reporter"`
	Anonymous   bool                `json:"anonymous"`
	Estimate    *estimationResponse `json:"repair_estimate,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

type submitResponse struct {
	Report      reportResponse `json:"report"`
	SavedImages int            `json:"saved_images"`
	TotalImages int            `json:"total_images"`
}

func toReportResponse(r *domain.Report) reportResponse {
	resp := reportResponse{
		ID:          r.ID.String(),
		Address:     r.Address,
		Description: r.Description,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Severity:    string(r.Severity),
		Status:      string(r.Status),
		Images:      r.Images,
		Thumbnail:   r.Thumbnail,
		Reporter:    r.Reporter(),
		Anonymous:   r.Anonymous(),
		CreatedAt:   r.CreatedAt,
	}

	if r.Estimation != nil {
		resp.Estimate = &estimationResponse{
			LengthCM:  r.Estimation.LengthCM,
			WidthCM:   r.Estimation.WidthCM,
			DepthCM:   r.Estimation.DepthCM,
			Severity:  string(r.Estimation.Severity),
			Reasoning: r.Estimation.Reasoning,
		}
	} else if r.Dimension[0] != "" && r.Dimension != [2]string{"0", "0"} {
		// Older rows carry only the legacy length/width pair.
		resp.Estimate = &estimationResponse{
			LengthCM: r.Dimension[0],
			WidthCM:  r.Dimension[1],
			Severity: string(r.Severity),
		}
	}

	return resp
}

func toReportListResponse(reports []domain.Report) []reportResponse {
	out := make([]reportResponse, len(reports))
	for i := range reports {
		out[i] = toReportResponse(&reports[i])
	}
	return out
}

// =============================================================================
// Handlers
// =============================================================================

// Submit handles POST /api/reports. The request is multipart form data with
// one or more "images" files plus the report fields.
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	const op = "handler.report_submit"

	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Request must be multipart form data"))
		return
	}

	files, err := h.readImageFiles(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params := service.SubmitParams{
		Address:     r.FormValue("address"),
		Description: r.FormValue("description"),
		Severity:    r.FormValue("severity"),
		Files:       files,
	}

	// An estimate the reporter ran and accepted earlier arrives as the JSON
	// body of the estimation endpoint's response, re-posted verbatim.
	if raw := r.FormValue("estimation"); raw != "" {
		var est estimateResult
		if err := json.Unmarshal([]byte(raw), &est); err != nil {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "estimation must be the JSON estimate as returned by the estimation endpoint"))
			return
		}
		params.Estimation = &ai.Estimate{
			LengthCM:  est.Dimensions.LengthCM,
			WidthCM:   est.Dimensions.WidthCM,
			DepthCM:   est.Dimensions.DepthCM,
			Severity:  est.Severity,
			Reasoning: est.Reasoning,
		}
	}

	if lat, err := parseCoordinate(r.FormValue("latitude")); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Latitude must be a decimal number"))
		return
	} else {
		params.Latitude = lat
	}
	if lng, err := parseCoordinate(r.FormValue("longitude")); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Longitude must be a decimal number"))
		return
	} else {
		params.Longitude = lng
	}

	if user := h.currentUser(r); user != nil && user.ExternalID != "" {
		params.OwnerID = &user.ExternalID
	}

	result, err := h.reports.Submit(r.Context(), params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		Report:      toReportResponse(result.Report),
		SavedImages: result.SavedImages,
		TotalImages: result.TotalImages,
	})
}

// List handles GET /api/reports: the public civilian view.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.List(r.Context(), service.ViewCivilian)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": toReportListResponse(reports)})
}

// ListMine handles GET /api/my/reports: the caller's own submissions.
func (h *ReportHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(r)

	reports, err := h.reports.ListByOwner(r.Context(), user.ExternalID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": toReportListResponse(reports)})
}

// ListAdmin handles GET /api/admin/reports: the triage view.
func (h *ReportHandler) ListAdmin(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.List(r.Context(), service.ViewAdmin)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": toReportListResponse(reports)})
}

// Get handles GET /api/reports/{id}.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	const op = "handler.report_get"

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Report ID must be a UUID"))
		return
	}

	report, err := h.reports.Get(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(report))
}

// UpdateStatus handles PATCH /api/reports/{id}/status.
func (h *ReportHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	const op = "handler.report_update_status"

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Report ID must be a UUID"))
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Request body must be JSON with a status field"))
		return
	}

	report, err := h.reports.UpdateStatus(r.Context(), id, body.Status)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(report))
}

// =============================================================================
// Helpers
// =============================================================================

// readImageFiles extracts and validates the uploaded images.
func (h *ReportHandler) readImageFiles(r *http.Request) ([]uploader.File, error) {
	const op = "handler.report_submit"

	headers := r.MultipartForm.File["images"]
	files := make([]uploader.File, 0, len(headers))

	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, domain.Internal(err, op, "failed to open uploaded file")
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, domain.Internal(err, op, "failed to read uploaded file")
		}

		contentType := http.DetectContentType(firstBytes(data))
		if !domain.IsValidImageContentType(contentType) {
			return nil, domain.Invalid(op, "Unsupported image type: "+contentType+". Only JPEG, PNG, and WebP are supported.")
		}

		files = append(files, uploader.File{
			Name:        header.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}

	return files, nil
}

func firstBytes(data []byte) []byte {
	if len(data) > 512 {
		return data[:512]
	}
	return data
}

// parseCoordinate parses an optional decimal form field.
func parseCoordinate(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
