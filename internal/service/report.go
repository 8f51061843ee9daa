// Package service contains business logic for the Raahi application.
//
// This file implements the report service: the submission pipeline that
// turns a batch of photos plus form fields into a persisted report, and the
// read/triage operations over stored reports.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raahi-app/raahi/internal/ai"
	"github.com/raahi-app/raahi/internal/cache"
	"github.com/raahi-app/raahi/internal/domain"
	"github.com/raahi-app/raahi/internal/exifdata"
	"github.com/raahi-app/raahi/internal/metrics"
	"github.com/raahi-app/raahi/internal/retry"
	"github.com/raahi-app/raahi/internal/uploader"
)

// =============================================================================
// Interface Definitions
// =============================================================================

// ReportStore is the persistence surface the service needs. Implemented by
// repository.Store.
type ReportStore interface {
	CreateReport(ctx context.Context, report *domain.Report, claimKeys []string) error
	GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	ListReports(ctx context.Context, owner *string) ([]domain.Report, error)
	UpdateReportStatus(ctx context.Context, id uuid.UUID, status domain.ReportStatus) (*domain.Report, error)
	RecordUploadedAssets(ctx context.Context, reportID uuid.UUID, keys []string) error
}

// ImageUploader stores report images. Implemented by uploader.Uploader.
type ImageUploader interface {
	UploadAll(ctx context.Context, reportID uuid.UUID, files []uploader.File) []uploader.Result
	UploadThumbnail(ctx context.Context, reportID uuid.UUID, imageData []byte) (string, error)
	DeleteAll(ctx context.Context, keys []string) []string
}

// SubmitParams carries one report submission.
type SubmitParams struct {
	OwnerID     *string // nil for anonymous submissions
	Address     string
	Description string
	Severity    string // raw reporter-selected severity, normalized here
	Latitude    *float64
	Longitude   *float64
	Files       []uploader.File

	// Estimation is the dimension estimate the reporter ran and accepted
	// before submitting, if any. The pipeline never runs estimation itself.
	Estimation *ai.Estimate
}

// SubmitResult is the outcome of a successful submission. SavedImages may be
// less than TotalImages when some uploads failed; the report is still
// created from the survivors.
type SubmitResult struct {
	Report      *domain.Report
	SavedImages int
	TotalImages int
}

// ReportService defines report operations.
type ReportService interface {
	// Submit runs the submission pipeline. Returns domain.EINVALID when the
	// submission has no usable input or no image survived upload,
	// domain.ECONFLICT when the report has already been persisted, and
	// domain.EUNAVAILABLE when persistence failed after retries (uploaded
	// assets are cleaned up).
	Submit(ctx context.Context, params SubmitParams) (*SubmitResult, error)

	// List returns all reports newest first, read through the view cache.
	List(ctx context.Context, view string) ([]domain.Report, error)

	// ListByOwner returns one reporter's submissions, uncached.
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Report, error)

	// Get returns one report by ID.
	Get(ctx context.Context, id uuid.UUID) (*domain.Report, error)

	// UpdateStatus sets a report's triage status. Returns domain.EINVALID
	// for statuses outside the closed set.
	UpdateStatus(ctx context.Context, id uuid.UUID, rawStatus string) (*domain.Report, error)
}

// =============================================================================
// Implementation
// =============================================================================

type reportService struct {
	store    ReportStore
	uploads  ImageUploader
	detector ai.CrackDetector // may be nil
	exif     *exifdata.Scanner
	cache    *cache.Cache // nil disables caching
	logger   *slog.Logger

	// createPolicy retries report persistence with a fixed delay;
	// readPolicy retries reads with exponential backoff.
	createPolicy retry.Policy
	readPolicy   retry.Policy
}

// NewReportService creates a ReportService. detector is optional; passing
// nil disables crack annotation.
func NewReportService(
	store ReportStore,
	uploads ImageUploader,
	detector ai.CrackDetector,
	c *cache.Cache,
	logger *slog.Logger,
) ReportService {
	return &reportService{
		store:    store,
		uploads:  uploads,
		detector: detector,
		exif:     exifdata.NewScanner(logger),
		cache:    c,
		logger:   logger,
		createPolicy: retry.Policy{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			Backoff:      retry.Fixed,
			// Conflicts mean the row is already there; retrying can only
			// produce the same answer slower.
			RetryIf: func(err error) bool {
				return domain.ErrorCode(err) != domain.ECONFLICT
			},
		},
		readPolicy: retry.Policy{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			Backoff:      retry.Exponential,
			RetryIf:      isTransient,
		},
	}
}

// isTransient reports whether a store error is worth retrying. Validation,
// not-found, and conflict answers will not change on a second attempt.
func isTransient(err error) bool {
	switch domain.ErrorCode(err) {
	case domain.EINTERNAL, domain.EUNAVAILABLE:
		return true
	}
	return false
}

// =============================================================================
// Submit
// =============================================================================

func (s *reportService) Submit(ctx context.Context, params SubmitParams) (*SubmitResult, error) {
	const op = "report.submit"

	if err := s.validateSubmission(params); err != nil {
		return nil, err
	}

	reportID := uuid.New()
	severity := domain.NormalizeSeverity(params.Severity)

	// GPS first: EXIF must be read before any re-encode strips it.
	lat, lng := params.Latitude, params.Longitude
	if lat == nil || lng == nil {
		files := make([]exifdata.File, len(params.Files))
		for i, f := range params.Files {
			files[i] = exifdata.File{Name: f.Name, Data: f.Data}
		}
		if loc, ok := s.exif.FirstLocation(files); ok {
			lat, lng = &loc.Lat, &loc.Lng
		}
	}

	estimation := estimateFrom(params.Estimation)
	if extra := s.annotate(ctx, params.Files[0]); extra != nil {
		params.Files = append(params.Files, *extra)
	}
	s.downscaleAll(params.Files)

	results := s.uploads.UploadAll(ctx, reportID, params.Files)

	var urls, keys []string
	var firstSaved *uploader.File
	for i, r := range results {
		if r.Err != nil {
			metrics.ImagesUploaded.WithLabelValues("failed").Inc()
			continue
		}
		metrics.ImagesUploaded.WithLabelValues("ok").Inc()
		urls = append(urls, r.URL)
		keys = append(keys, r.Key)
		if firstSaved == nil {
			firstSaved = &params.Files[i]
		}
	}

	// A report without images violates its creation invariant, so zero
	// surviving uploads fails before persistence is ever attempted.
	if len(urls) == 0 {
		metrics.ReportsSubmitted.WithLabelValues("failed").Inc()
		return nil, domain.Invalid(op, "None of the uploaded images could be stored, please try again")
	}

	// Bookkeeping for the sweeper; failure here only risks a leaked object,
	// never the submission.
	if err := s.store.RecordUploadedAssets(ctx, reportID, keys); err != nil {
		s.logger.Error("failed to record uploaded assets", "report_id", reportID, "error", err)
	}

	thumbnail := ""
	if url, err := s.uploads.UploadThumbnail(ctx, reportID, firstSaved.Data); err != nil {
		s.logger.Warn("thumbnail generation failed", "report_id", reportID, "error", err)
	} else {
		thumbnail = url
	}

	report := &domain.Report{
		ID:          reportID,
		OwnerID:     params.OwnerID,
		Address:     params.Address,
		Description: params.Description,
		Latitude:    lat,
		Longitude:   lng,
		Severity:    severity,
		Status:      domain.StatusPending,
		Images:      urls,
		Thumbnail:   thumbnail,
		Dimension:   [2]string{"0", "0"},
		Estimation:  estimation,
	}

	attempt := 0
	err := retry.DoVoid(ctx, s.createPolicy, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.PersistenceRetries.Inc()
		}
		return s.store.CreateReport(ctx, report, keys)
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.ECONFLICT {
			metrics.ReportsSubmitted.WithLabelValues("conflict").Inc()
			return nil, err
		}

		// Persistence is gone; reclaim the uploaded objects. Whatever we
		// fail to delete stays recorded for the sweeper.
		if failed := s.uploads.DeleteAll(ctx, append(keys, thumbnailKeyOf(report))); len(failed) > 0 {
			s.logger.Error("compensation left orphaned assets",
				"report_id", reportID, "remaining", len(failed))
		}

		metrics.ReportsSubmitted.WithLabelValues("failed").Inc()
		s.logger.Error("report persistence failed after retries",
			"report_id", reportID, "attempts", attempt, "error", err)
		return nil, domain.Unavailable(err, op, "Could not save your report, please try again")
	}

	s.cache.InvalidateViews(ctx)
	metrics.ReportsSubmitted.WithLabelValues("created").Inc()

	s.logger.Info("report created",
		"report_id", reportID,
		"anonymous", report.Anonymous(),
		"severity", severity,
		"images_saved", len(urls),
		"images_total", len(params.Files),
		"has_location", report.HasLocation(),
		"has_estimation", estimation != nil)

	return &SubmitResult{
		Report:      report,
		SavedImages: len(urls),
		TotalImages: len(params.Files),
	}, nil
}

// validateSubmission fails fast before anything is uploaded.
func (s *reportService) validateSubmission(params SubmitParams) error {
	const op = "report.submit"

	var validation error
	fail := func(field, message string) {
		if validation == nil {
			validation = domain.NewValidationError(op, field, message)
		} else {
			validation = domain.AddFieldError(validation, field, message)
		}
	}

	if len(params.Files) == 0 {
		fail("images", "At least one image is required")
	}
	if len(params.Files) > domain.MaxImagesPerReport {
		fail("images", "Too many images in one submission")
	}
	if params.Address == "" {
		fail("address", "Address is required")
	}

	for _, f := range params.Files {
		if err := domain.ValidateImageSize(int64(len(f.Data))); err != nil {
			fail("images", domain.ErrorMessage(err))
			break
		}
	}

	return validation
}

// estimate runs AI dimension estimation on the lead image. Best effort: a
// failed estimate never blocks the report.
// estimateFrom converts the reporter-accepted estimate into the persisted
// sub-record. Centimeter values stay as the model's free-form numeric text.
func estimateFrom(est *ai.Estimate) *domain.DimensionEstimate {
	if est == nil {
		return nil
	}
	return &domain.DimensionEstimate{
		LengthCM:  est.LengthCM,
		WidthCM:   est.WidthCM,
		DepthCM:   est.DepthCM,
		Severity:  domain.NormalizeSeverity(est.Severity),
		Reasoning: est.Reasoning,
	}
}

// annotate runs crack detection on the lead image. On success it returns the
// annotated variant as an extra file for the upload set; on failure the
// submission proceeds with the originals only.
func (s *reportService) annotate(ctx context.Context, lead uploader.File) *uploader.File {
	if s.detector == nil {
		return nil
	}

	annotated, err := s.detector.Annotate(ctx, lead.Data)
	if err != nil {
		metrics.AIAPICalls.WithLabelValues("roadscan", "error").Inc()
		s.logger.Warn("crack annotation failed, proceeding without it", "error", err)
		return nil
	}
	metrics.AIAPICalls.WithLabelValues("roadscan", "ok").Inc()

	return &uploader.File{
		Name:        "annotated-" + lead.Name,
		ContentType: annotated.ContentType,
		Data:        annotated.Data,
		Annotated:   true,
	}
}

// downscaleAll bounds image dimensions before upload. Images that fail to
// decode are uploaded as-is; validation already checked their content type.
func (s *reportService) downscaleAll(files []uploader.File) {
	for i := range files {
		scaled, err := uploader.Downscale(files[i].Data)
		if err != nil {
			s.logger.Debug("downscale skipped", "file", files[i].Name, "error", err)
			continue
		}
		files[i].Data = scaled
	}
}

// thumbnailKeyOf extracts the storage key from the report's thumbnail URL.
// The uploader returns public URLs ending in the key; for compensation we
// only need a best-effort match, so an empty thumbnail yields no key.
func thumbnailKeyOf(report *domain.Report) string {
	if report.Thumbnail == "" {
		return ""
	}
	// URL format is {base}/{key} with the key starting at "reports/".
	if idx := strings.Index(report.Thumbnail, "/reports/"); idx >= 0 {
		return report.Thumbnail[idx+1:]
	}
	return ""
}

// =============================================================================
// Reads
// =============================================================================

// View cache identifiers accepted by List.
const (
	ViewCivilian = "civilian"
	ViewAdmin    = "admin"
)

func (s *reportService) List(ctx context.Context, view string) ([]domain.Report, error) {
	key := cache.KeyViewCivilian
	if view == ViewAdmin {
		key = cache.KeyViewAdmin
	}

	if b, err := s.cache.Get(ctx, key); err == nil {
		var reports []domain.Report
		if err := json.Unmarshal(b, &reports); err == nil {
			return reports, nil
		}
		// Unreadable cache entries are treated as misses.
	}

	reports, err := retry.Do(ctx, s.readPolicy, func(ctx context.Context) ([]domain.Report, error) {
		return s.store.ListReports(ctx, nil)
	})
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(reports); err == nil {
		if err := s.cache.Set(ctx, key, b); err != nil {
			s.logger.Warn("failed to populate view cache", "key", key, "error", err)
		}
	}

	return reports, nil
}

func (s *reportService) ListByOwner(ctx context.Context, ownerID string) ([]domain.Report, error) {
	return retry.Do(ctx, s.readPolicy, func(ctx context.Context) ([]domain.Report, error) {
		return s.store.ListReports(ctx, &ownerID)
	})
}

func (s *reportService) Get(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	return retry.Do(ctx, s.readPolicy, func(ctx context.Context) (*domain.Report, error) {
		return s.store.GetReport(ctx, id)
	})
}

// =============================================================================
// UpdateStatus
// =============================================================================

func (s *reportService) UpdateStatus(ctx context.Context, id uuid.UUID, rawStatus string) (*domain.Report, error) {
	status, err := domain.ParseReportStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	report, err := retry.Do(ctx, s.readPolicy, func(ctx context.Context) (*domain.Report, error) {
		return s.store.UpdateReportStatus(ctx, id, status)
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateViews(ctx)

	s.logger.Info("report status updated", "report_id", id, "status", status)

	return report, nil
}
