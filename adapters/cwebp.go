package adapters

import (
	"context"
	"fmt"
	"strconv"

	"converter/errs"
	"converter/models"
)

// CWebpAdapter encodes stills to lossy WebP. Only webp output; only the
// source formats cwebp can decode (the registry enforces that).
type CWebpAdapter struct {
	bin string
}

func NewCWebpAdapter(bin string) *CWebpAdapter {
	return &CWebpAdapter{bin: bin}
}

func (a *CWebpAdapter) Name() string { return "cwebp" }

const cwebpDefaultQuality = 80

func (a *CWebpAdapter) Convert(ctx context.Context, inputPath, targetFormat string, opts models.Options) (string, error) {
	if targetFormat != "webp" {
		return "", fmt.Errorf("%w: cwebp target %q", errs.ErrUnsupportedFormat, targetFormat)
	}

	outputPath := outputPathFor(inputPath, targetFormat)

	q := opts.Quality
	if q <= 0 {
		q = cwebpDefaultQuality
	} else if q > 100 {
		q = 100
	}
	args := []string{"-quiet", "-q", strconv.Itoa(q)}
	if opts.Width > 0 || opts.Height > 0 {
		// cwebp takes 0 as "derive from aspect ratio".
		args = append(args, "-resize", strconv.Itoa(opts.Width), strconv.Itoa(opts.Height))
	}
	args = append(args, inputPath, "-o", outputPath)

	if err := runTool(ctx, a.Name(), a.bin, args, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}
