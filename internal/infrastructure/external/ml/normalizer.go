package ml

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/dyslexia-hub/therapy-workflow/internal/application/port"
)

// DefaultMaxWidth is the widest image handed to the model.
const DefaultMaxWidth = 1600

// Normalizer decodes any supported upload, fixes EXIF orientation, bounds the
// width and re-encodes as PNG.
type Normalizer struct {
	MaxWidth int
}

var _ port.ImageNormalizer = Normalizer{}

func NewNormalizer(maxWidth int) Normalizer {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	return Normalizer{MaxWidth: maxWidth}
}

func (n Normalizer) Normalize(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	maxWidth := n.MaxWidth
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	if img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return out.Bytes(), nil
}
