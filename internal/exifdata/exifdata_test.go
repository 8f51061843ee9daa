package exifdata

import (
	"bytes"
	"encoding/binary"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// jpegWithGPS builds a minimal JPEG whose APP1 segment carries EXIF GPS
// tags for 37.7749 N, 122.4194 W (37°46'29.64" N, 122°25'9.84" W).
func jpegWithGPS() []byte {
	le := binary.LittleEndian
	var tiff bytes.Buffer

	// TIFF header, IFD0 immediately after it.
	tiff.WriteString("II")
	binary.Write(&tiff, le, uint16(0x2A))
	binary.Write(&tiff, le, uint32(8))

	writeEntry := func(tag, typ uint16, count uint32) {
		binary.Write(&tiff, le, tag)
		binary.Write(&tiff, le, typ)
		binary.Write(&tiff, le, count)
	}

	// IFD0: a single pointer to the GPS sub-IFD at offset 26.
	binary.Write(&tiff, le, uint16(1))
	writeEntry(0x8825, 4, 1)
	binary.Write(&tiff, le, uint32(26))
	binary.Write(&tiff, le, uint32(0))

	// GPS sub-IFD: hemisphere refs inline, rational triples at offsets
	// 80 (latitude) and 104 (longitude).
	binary.Write(&tiff, le, uint16(4))
	writeEntry(0x0001, 2, 2) // GPSLatitudeRef
	tiff.Write([]byte{'N', 0, 0, 0})
	writeEntry(0x0002, 5, 3) // GPSLatitude
	binary.Write(&tiff, le, uint32(80))
	writeEntry(0x0003, 2, 2) // GPSLongitudeRef
	tiff.Write([]byte{'W', 0, 0, 0})
	writeEntry(0x0004, 5, 3) // GPSLongitude
	binary.Write(&tiff, le, uint32(104))
	binary.Write(&tiff, le, uint32(0))

	for _, r := range [][2]uint32{
		{37, 1}, {46, 1}, {2964, 100}, // latitude deg/min/sec
		{122, 1}, {25, 1}, {984, 100}, // longitude deg/min/sec
	} {
		binary.Write(&tiff, le, r[0])
		binary.Write(&tiff, le, r[1])
	}

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	var jpg bytes.Buffer
	jpg.Write([]byte{0xFF, 0xD8, 0xFF, 0xE1})
	binary.Write(&jpg, binary.BigEndian, uint16(len(payload)+2))
	jpg.Write(payload)
	jpg.Write([]byte{0xFF, 0xD9})
	return jpg.Bytes()
}

func TestLocation_ReadsGPSTags(t *testing.T) {
	loc, ok := Location(bytes.NewReader(jpegWithGPS()))

	require.True(t, ok)
	assert.InDelta(t, 37.7749, loc.Lat, 1e-4)
	assert.InDelta(t, -122.4194, loc.Lng, 1e-4)
}

func TestLocation_CorruptDataIsNotAnError(t *testing.T) {
	// Random bytes, truncated JPEG marker, empty input: all must report
	// "no coordinates" without panicking.
	inputs := [][]byte{
		nil,
		{0x00, 0x01, 0x02},
		{0xFF, 0xD8, 0xFF},
		[]byte("definitely not an image"),
	}

	for _, in := range inputs {
		_, ok := Location(bytes.NewReader(in))
		assert.False(t, ok)
	}
}

func TestScanner_ExtractsFromRealMetadata(t *testing.T) {
	s := NewScanner(discardLogger())

	loc, ok := s.FirstLocation([]File{
		{Name: "stripped.jpg", Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}},
		{Name: "tagged.jpg", Data: jpegWithGPS()},
	})

	require.True(t, ok)
	assert.InDelta(t, 37.7749, loc.Lat, 1e-4)
	assert.InDelta(t, -122.4194, loc.Lng, 1e-4)
}

func TestScanner_FirstLocationWins(t *testing.T) {
	s := NewScanner(discardLogger())

	// First file has no tags, second has a pair, third also has a pair
	// but must never be consulted.
	inspected := []string{}
	s.extract = func(r io.Reader) (LatLng, bool) {
		data, _ := io.ReadAll(r)
		name := string(data)
		inspected = append(inspected, name)
		switch name {
		case "with-gps":
			return LatLng{Lat: 37.7749, Lng: -122.4194}, true
		case "also-with-gps":
			return LatLng{Lat: 51.5074, Lng: -0.1278}, true
		}
		return LatLng{}, false
	}

	loc, ok := s.FirstLocation([]File{
		{Name: "a.jpg", Data: []byte("no-gps")},
		{Name: "b.jpg", Data: []byte("with-gps")},
		{Name: "c.jpg", Data: []byte("also-with-gps")},
	})

	require.True(t, ok)
	assert.Equal(t, 37.7749, loc.Lat)
	assert.Equal(t, -122.4194, loc.Lng)
	assert.Equal(t, []string{"no-gps", "with-gps"}, inspected, "scan must stop at the first hit")
}

func TestScanner_NoFilesYieldCoordinates(t *testing.T) {
	s := NewScanner(discardLogger())
	s.extract = func(io.Reader) (LatLng, bool) { return LatLng{}, false }

	_, ok := s.FirstLocation([]File{
		{Name: "a.jpg", Data: []byte("x")},
		{Name: "b.jpg", Data: []byte("y")},
	})
	assert.False(t, ok)
}

func TestScanner_EmptyBatch(t *testing.T) {
	s := NewScanner(discardLogger())
	_, ok := s.FirstLocation(nil)
	assert.False(t, ok)
}
