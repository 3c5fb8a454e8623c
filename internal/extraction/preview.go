package extraction

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"
)

// ThumbnailWidth is the width of generated preview thumbnails.
const ThumbnailWidth = 320

// Thumbnail decodes a base64 page image and returns a base64 PNG scaled to width.
// Images narrower than width are re-encoded without upscaling.
func Thumbnail(preview string, width int) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(preview)
	if err != nil {
		return "", fmt.Errorf("decode preview: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode preview image: %w", err)
	}
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
