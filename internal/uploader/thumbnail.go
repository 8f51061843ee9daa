package uploader

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/raahi-app/raahi/internal/domain"
)

// Thumbnail resizes the image to fit within maxWidth x maxHeight while
// preserving aspect ratio, and encodes it as JPEG.
func Thumbnail(data []byte, maxWidth, maxHeight int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	thumb := imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(domain.ThumbnailJPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return buf.Bytes(), nil
}

// maxUploadDimension bounds the longest side of a stored original. Phone
// cameras routinely produce 4000px images that waste bandwidth for triage.
const maxUploadDimension = 2048

// Downscale re-encodes an image whose longest side exceeds
// maxUploadDimension. Smaller images are returned unchanged, byte for byte,
// to avoid stripping original encoding (and any metadata) without need.
func Downscale(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxUploadDimension && bounds.Dy() <= maxUploadDimension {
		return data, nil
	}

	resized := imaging.Fit(img, maxUploadDimension, maxUploadDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(domain.ThumbnailJPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}
