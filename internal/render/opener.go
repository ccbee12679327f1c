package render

import (
	"log/slog"
)

// Open shows path with the platform's default viewer. It does not wait for
// the viewer and never fails the caller; problems are logged at debug level.
func Open(p Platform, path string, logger *slog.Logger) {
	if p.Opener == nil {
		return
	}
	cmd := p.Opener(path)
	if err := cmd.Start(); err != nil {
		logger.Debug("could not open rendered image", "path", path, "error", err)
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Debug("image viewer exited with error", "path", path, "error", err)
		}
	}()
}
