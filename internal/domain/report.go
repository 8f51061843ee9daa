// Package domain contains core business types for the Raahi application.
//
// This file defines the Report type: one citizen-submitted pothole complaint
// with its images, location, and triage status.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// Severity
// =============================================================================

// Severity is the reporter- or AI-assigned severity of a pothole.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// IsValid returns true if the severity is a recognized value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

var severityCaser = cases.Title(language.English)

// NormalizeSeverity case-normalizes a raw severity string ("HIGH", "low",
// "meDium") to its canonical form. Empty or unrecognized values fall back
// to Medium.
func NormalizeSeverity(raw string) Severity {
	s := Severity(severityCaser.String(strings.ToLower(strings.TrimSpace(raw))))
	if !s.IsValid() {
		return SeverityMedium
	}
	return s
}

// =============================================================================
// Status
// =============================================================================

// ReportStatus is the triage state of a report. Unlike severity, status is
// only ever changed by administrators.
type ReportStatus string

const (
	StatusPending    ReportStatus = "Pending"
	StatusInProgress ReportStatus = "In Progress"
	StatusFixed      ReportStatus = "Fixed"
)

// IsValid returns true if the status is a recognized value.
func (s ReportStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusFixed:
		return true
	}
	return false
}

// ParseReportStatus validates a raw status string from an admin update.
// Unrecognized values are rejected rather than stored as free text.
func ParseReportStatus(raw string) (ReportStatus, error) {
	s := ReportStatus(strings.TrimSpace(raw))
	if !s.IsValid() {
		return "", Invalid("report.status", "status must be one of: Pending, In Progress, Fixed")
	}
	return s, nil
}

// =============================================================================
// Report
// =============================================================================

// Image upload limits.
const (
	// MaxImageSize is the maximum size of a single uploaded image (10MB).
	MaxImageSize = 10 * 1024 * 1024

	// MaxImagesPerReport caps how many files one submission may carry.
	MaxImagesPerReport = 8
)

// Thumbnail generation settings.
const (
	ThumbnailMaxWidth    = 400
	ThumbnailMaxHeight   = 400
	ThumbnailJPEGQuality = 85
)

// ValidateImageSize checks an uploaded file's size against the limit.
func ValidateImageSize(size int64) error {
	if size <= 0 {
		return Invalid("report.image", "Uploaded image is empty")
	}
	if size > MaxImageSize {
		return Errorf(ETOOLARGE, "report.image", "Image exceeds the %dMB limit", MaxImageSize/(1024*1024))
	}
	return nil
}

// IsValidImageContentType reports whether a MIME type is accepted for upload.
func IsValidImageContentType(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/webp":
		return true
	}
	return false
}

// Report represents one pothole complaint stored in the database.
type Report struct {
	ID           uuid.UUID // Unique identifier, assigned at creation
	OwnerID      *string   // External identity ID of the reporter; nil for anonymous
	ReporterName string    // Registered reporter's display name; empty for anonymous or unregistered
	Address      string    // Free-text street address (required)
	Description  string    // Free-text description (may be empty)
	Latitude     *float64  // Decimal degrees; nil if no GPS source succeeded
	Longitude    *float64  // Decimal degrees; nil if no GPS source succeeded
	Severity     Severity  // Reporter-selected severity
	Status       ReportStatus
	Images       []string  // Public URLs of uploaded images, input order; never empty
	Thumbnail    string    // Public URL of the first image's thumbnail (may be empty)
	Dimension    [2]string // Legacy placeholder pair, superseded by Estimation

	// Estimation is the optional AI-derived measurement attached to this
	// report. Created atomically with the report or never.
	Estimation *DimensionEstimate

	CreatedAt time.Time
}

// Anonymous reports whether the report was submitted without a session.
func (r *Report) Anonymous() bool {
	return r.OwnerID == nil || *r.OwnerID == ""
}

// Reporter returns the display name shown in list views. Anonymous
// submissions, and reporters who never registered, show as "Anonymous".
func (r *Report) Reporter() string {
	if r.ReporterName != "" {
		return r.ReporterName
	}
	return "Anonymous"
}

// HasLocation reports whether both coordinates are present.
func (r *Report) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}
