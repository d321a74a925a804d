package adapters

import (
	"os/exec"

	"converter/config"
	"converter/errs"
)

// CheckBinaries verifies every conversion binary resolves on PATH. Called
// once at startup so a misprovisioned host fails before the listener
// opens, not on the first request.
func CheckBinaries(cfg *config.Config) error {
	var missing []string
	for _, bin := range []string{cfg.FFmpegBin, cfg.MagickBin, cfg.CWebpBin} {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return &errs.MissingDependencyError{Binaries: missing}
	}
	return nil
}
