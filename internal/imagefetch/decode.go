package imagefetch

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// decodeDataURL decodes data:image/<type>;base64,<payload>
func decodeDataURL(ref string) (image.Image, error) {
	_, payload, ok := strings.Cut(ref, ";base64,")
	if !ok {
		return nil, fmt.Errorf("%w: missing base64 marker", ErrInvalidDataURL)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some encoders drop the padding.
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
		}
	}
	return decodeImage(raw)
}

func decodeImage(raw []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode image: empty %s image", format)
	}
	return img, nil
}
