package build

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const maxImageWidth = 800

// imageInfo is the display size and format of an image file.
type imageInfo struct {
	Width  int
	Height int
	Format string
}

// decodeImage reads the image header only and scales the display size down
// to maxImageWidth, keeping the aspect ratio.
func decodeImage(content []byte) (imageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return imageInfo{}, fmt.Errorf("decode image: %w", err)
	}
	w, h := cfg.Width, cfg.Height
	if w > maxImageWidth {
		h = h * maxImageWidth / w
		w = maxImageWidth
	}
	return imageInfo{Width: w, Height: h, Format: format}, nil
}
