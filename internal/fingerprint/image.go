package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/route-attendance/internal/database"
)

// DefaultMaxImageSize is the longest side sent to the embedding server.
const DefaultMaxImageSize = 1024

// PrepareImage decodes a photograph and re-encodes it as JPEG, downscaled to
// fit within maxSize while keeping the aspect ratio. Undecodable input is a
// validation error.
func PrepareImage(data []byte, maxSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, &database.ValidationError{Field: "image", Message: "is empty"}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &database.ValidationError{Field: "image", Message: fmt.Sprintf("cannot decode image: %v", err)}
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxImageSize
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, &database.ValidationError{Field: "image", Message: "has no pixels"}
	}

	var out image.Image = img
	if width > maxSize || height > maxSize {
		newWidth, newHeight := fitWithin(width, height, maxSize)
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// fitWithin scales width and height so the longer side equals maxSize.
func fitWithin(width, height, maxSize int) (int, int) {
	if width > height {
		return maxSize, max(1, height*maxSize/width)
	}
	return max(1, width*maxSize/height), maxSize
}
