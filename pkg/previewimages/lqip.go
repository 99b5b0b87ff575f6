package previewimages

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// registered decoders for image.Decode
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// placeholderQuality is the JPEG quality of the encoded placeholder.
const placeholderQuality = 60

// defaultMaxImagePixels is 50 megapixels.
const defaultMaxImagePixels = 50_000_000

// ErrImageTooLarge is returned for images whose header declares more pixels
// than allowed.
var ErrImageTooLarge = errors.New("image dimensions exceed limit")

// makePreview decodes an image and renders it as a tiny JPEG data URI of
// the given width, keeping the aspect ratio. Images declaring more than
// maxPixels pixels are rejected before decoding.
func makePreview(data []byte, width, maxPixels int) (*PreviewImage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	ow, oh := bounds.Dx(), bounds.Dy()
	if ow == 0 || oh == 0 {
		return nil, fmt.Errorf("decode image: empty %s image", format)
	}

	w := width
	if w <= 0 || w > ow {
		w = ow
	}
	h := max(1, oh*w/ow)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: placeholderQuality}); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}

	return &PreviewImage{
		OriginalWidth:  ow,
		OriginalHeight: oh,
		DataURIBase64:  "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}
