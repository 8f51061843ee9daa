// Package exifdata recovers GPS coordinates from embedded image metadata.
//
// Absence of coordinates is the common case (screenshots, stripped
// metadata), so it is reported as a boolean rather than an error, and
// parse failures on corrupt or unsupported files are swallowed.
package exifdata

import (
	"bytes"
	"io"
	"log/slog"

	"github.com/rwcarlsen/goexif/exif"
)

// LatLng is a coordinate pair in decimal degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// Location attempts to read GPS latitude and longitude tags from an image.
// It returns ok=false when the file has no parseable metadata or no
// complete coordinate pair; it never returns an error.
func Location(r io.Reader) (LatLng, bool) {
	x, err := exif.Decode(r)
	if err != nil {
		return LatLng{}, false
	}

	lat, lng, err := x.LatLong()
	if err != nil {
		return LatLng{}, false
	}

	return LatLng{Lat: lat, Lng: lng}, true
}

// File is one member of an upload batch.
type File struct {
	Name string
	Data []byte
}

// Scanner extracts the first usable coordinate pair from a batch of files.
type Scanner struct {
	logger *slog.Logger

	// extract is swappable in tests.
	extract func(r io.Reader) (LatLng, bool)
}

// NewScanner creates a Scanner backed by EXIF parsing.
func NewScanner(logger *slog.Logger) *Scanner {
	return &Scanner{
		logger:  logger,
		extract: Location,
	}
}

// FirstLocation scans files in order and returns the coordinates of the
// first file that yields a pair. Once found, remaining files are not
// inspected. Files without metadata are logged at debug level and skipped.
func (s *Scanner) FirstLocation(files []File) (LatLng, bool) {
	for _, f := range files {
		loc, ok := s.extract(bytes.NewReader(f.Data))
		if ok {
			s.logger.Debug("extracted GPS coordinates", "file", f.Name, "lat", loc.Lat, "lng", loc.Lng)
			return loc, true
		}
		s.logger.Debug("no GPS metadata", "file", f.Name)
	}
	return LatLng{}, false
}
