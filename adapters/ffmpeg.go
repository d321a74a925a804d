package adapters

import (
	"context"
	"fmt"
	"strconv"

	"converter/errs"
	"converter/models"
)

// FFmpegAdapter transcodes video containers/codecs.
type FFmpegAdapter struct {
	bin string
}

func NewFFmpegAdapter(bin string) *FFmpegAdapter {
	return &FFmpegAdapter{bin: bin}
}

func (a *FFmpegAdapter) Name() string { return "ffmpeg" }

var videoTargets = map[string]bool{"mp4": true, "webm": true, "mkv": true, "mov": true, "avi": true}

func (a *FFmpegAdapter) Convert(ctx context.Context, inputPath, targetFormat string, opts models.Options) (string, error) {
	if !videoTargets[targetFormat] {
		return "", fmt.Errorf("%w: ffmpeg target %q", errs.ErrUnsupportedFormat, targetFormat)
	}

	outputPath := outputPathFor(inputPath, targetFormat)
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", inputPath}

	if opts.Width > 0 || opts.Height > 0 {
		w, h := opts.Width, opts.Height
		// -1 keeps aspect ratio for the unspecified dimension, but must stay
		// divisible by 2 for most encoders; -2 does both.
		if w == 0 {
			w = -2
		}
		if h == 0 {
			h = -2
		}
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", w, h))
	}
	if opts.Quality > 0 {
		crf := opts.Quality
		if crf > 51 {
			crf = 51
		}
		args = append(args, "-crf", strconv.Itoa(crf))
		if targetFormat == "webm" {
			// libvpx ignores -crf unless the bitrate cap is lifted.
			args = append(args, "-b:v", "0")
		}
	}
	args = append(args, outputPath)

	if err := runTool(ctx, a.Name(), a.bin, args, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}
