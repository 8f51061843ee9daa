package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Severity
	}{
		{"canonical", "High", SeverityHigh},
		{"all caps", "HIGH", SeverityHigh},
		{"all lower", "low", SeverityLow},
		{"mixed case", "meDIUm", SeverityMedium},
		{"surrounding space", "  High ", SeverityHigh},
		{"empty defaults to medium", "", SeverityMedium},
		{"unknown defaults to medium", "catastrophic", SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSeverity(tt.raw))
		})
	}
}

func TestParseReportStatus(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ReportStatus
		wantErr bool
	}{
		{"pending", "Pending", StatusPending, false},
		{"in progress", "In Progress", StatusInProgress, false},
		{"fixed", "Fixed", StatusFixed, false},
		{"trims whitespace", " Fixed ", StatusFixed, false},
		{"free text rejected", "working on it", "", true},
		{"wrong case rejected", "pending", "", true},
		{"empty rejected", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReportStatus(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, EINVALID, ErrorCode(err))
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestValidateImageSize(t *testing.T) {
	assert.NoError(t, ValidateImageSize(1024))
	assert.NoError(t, ValidateImageSize(MaxImageSize))

	err := ValidateImageSize(0)
	assert.Error(t, err)
	assert.Equal(t, EINVALID, ErrorCode(err))

	err = ValidateImageSize(MaxImageSize + 1)
	assert.Error(t, err)
	assert.Equal(t, ETOOLARGE, ErrorCode(err))
}

func TestReport_Anonymous(t *testing.T) {
	owner := "user_2abc"
	empty := ""

	assert.True(t, (&Report{}).Anonymous())
	assert.True(t, (&Report{OwnerID: &empty}).Anonymous())
	assert.False(t, (&Report{OwnerID: &owner}).Anonymous())
}

func TestReport_Reporter(t *testing.T) {
	owner := "user_2abc"

	assert.Equal(t, "Asha", (&Report{OwnerID: &owner, ReporterName: "Asha"}).Reporter())
	assert.Equal(t, "Anonymous", (&Report{}).Reporter())
	// Registered identity but no local user row: still shows as Anonymous.
	assert.Equal(t, "Anonymous", (&Report{OwnerID: &owner}).Reporter())
}
