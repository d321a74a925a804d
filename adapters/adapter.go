// Package adapters wraps the external conversion binaries behind a single
// Convert contract. Each adapter spawns exactly one process per call with
// an argv list (never a shell string), and the runner guarantees the child
// is reaped on every exit path.
package adapters

import (
	"context"
	"fmt"

	"converter/config"
	"converter/errs"
	"converter/models"
)

// Adapter converts one input file to one target format by invoking an
// external tool.
type Adapter interface {
	Name() string
	// Convert writes the converted asset next to the input and returns its
	// path. The context carries the per-kind timeout; on expiry the child
	// process is killed and ErrTimeout is returned.
	Convert(ctx context.Context, inputPath, targetFormat string, opts models.Options) (string, error)
}

// cwebp only decodes these sources; anything else going to webp is routed
// through ImageMagick instead.
var cwebpSources = map[string]bool{"png": true, "jpg": true, "tiff": true, "webp": true}

// Registry selects the adapter servicing a (source, target) pair. Selection
// is a pure function of the declared kinds and formats, never of content.
type Registry struct {
	ffmpeg *FFmpegAdapter
	magick *MagickAdapter
	cwebp  *CWebpAdapter
}

func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{
		ffmpeg: NewFFmpegAdapter(cfg.FFmpegBin),
		magick: NewMagickAdapter(cfg.MagickBin),
		cwebp:  NewCWebpAdapter(cfg.CWebpBin),
	}
}

// Select returns the adapter for a conversion pair, or ErrUnsupportedFormat
// when no adapter covers it. Formats must already be canonical
// (models.NormalizeFormat).
func (r *Registry) Select(sourceKind, targetKind models.Kind, sourceFormat, targetFormat string) (Adapter, error) {
	switch {
	case sourceKind == models.KindVideo && targetKind == models.KindVideo:
		return r.ffmpeg, nil
	case sourceKind == models.KindImage && targetKind == models.KindImage:
		if targetFormat == "webp" && cwebpSources[sourceFormat] {
			return r.cwebp, nil
		}
		return r.magick, nil
	default:
		return nil, fmt.Errorf("%w: %s/%s -> %s/%s",
			errs.ErrUnsupportedFormat, sourceKind, sourceFormat, targetKind, targetFormat)
	}
}
