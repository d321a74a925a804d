package adapters

import (
	"context"
	"fmt"
	"strconv"

	"converter/errs"
	"converter/models"
)

// MagickAdapter converts and resizes raster images via ImageMagick.
type MagickAdapter struct {
	bin string
}

func NewMagickAdapter(bin string) *MagickAdapter {
	return &MagickAdapter{bin: bin}
}

func (a *MagickAdapter) Name() string { return "imagemagick" }

var magickTargets = map[string]bool{"png": true, "jpg": true, "gif": true, "bmp": true, "tiff": true, "webp": true}

func (a *MagickAdapter) Convert(ctx context.Context, inputPath, targetFormat string, opts models.Options) (string, error) {
	if !magickTargets[targetFormat] {
		return "", fmt.Errorf("%w: imagemagick target %q", errs.ErrUnsupportedFormat, targetFormat)
	}

	outputPath := outputPathFor(inputPath, targetFormat)
	args := []string{inputPath}

	if opts.Width > 0 || opts.Height > 0 {
		args = append(args, "-resize", resizeGeometry(opts.Width, opts.Height))
	}
	if opts.Quality > 0 {
		q := opts.Quality
		if q > 100 {
			q = 100
		}
		args = append(args, "-quality", strconv.Itoa(q))
	}
	// convert picks the encoder from the output extension.
	args = append(args, outputPath)

	if err := runTool(ctx, a.Name(), a.bin, args, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// resizeGeometry builds an ImageMagick geometry string; a missing
// dimension keeps the aspect ratio.
func resizeGeometry(w, h int) string {
	switch {
	case w > 0 && h > 0:
		return fmt.Sprintf("%dx%d", w, h)
	case w > 0:
		return strconv.Itoa(w)
	default:
		return fmt.Sprintf("x%d", h)
	}
}
