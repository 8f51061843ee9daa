package domain

import (
	"time"

	"github.com/google/uuid"
)

// DimensionEstimate is the AI-derived measurement attached to a report.
//
// The dimension fields are kept as the free-form numeric text the upstream
// model returned ("25-30", "~12", "8.5") rather than parsed floats; the
// values are presentational, not engineering units.
type DimensionEstimate struct {
	ID        uuid.UUID
	ReportID  uuid.UUID
	LengthCM  string
	WidthCM   string
	DepthCM   string
	Severity  Severity
	Reasoning string // How the model derived the estimate; may be empty
	CreatedAt time.Time
}
