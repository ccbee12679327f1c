// Package janitor removes stale per-request scratch directories on a cron schedule.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Janitor sweeps the subdirectories of Root older than TTL.
type Janitor struct {
	root     string
	ttl      time.Duration
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Janitor. spec is a five-field cron expression or a
// descriptor such as "@every 10m".
func New(root string, ttl time.Duration, spec string, logger *slog.Logger) (*Janitor, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("janitor: ttl must be positive")
	}
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{root: root, ttl: ttl, schedule: schedule, logger: logger, now: time.Now}, nil
}

// Next returns the first sweep time after from.
func (j *Janitor) Next(from time.Time) time.Time {
	return j.schedule.Next(from)
}

// Run sweeps on schedule until ctx is done. It always returns nil so it can
// run inside an errgroup without tearing down its siblings.
func (j *Janitor) Run(ctx context.Context) error {
	j.logger.Info("janitor started", "root", j.root, "ttl", j.ttl)
	for {
		wait := time.Until(j.schedule.Next(j.now()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info("janitor stopped")
			return nil
		case <-timer.C:
			if _, err := j.Sweep(); err != nil {
				j.logger.Error("scratch sweep failed", "error", err)
			}
		}
	}
}

// Sweep removes every subdirectory of root last modified before now-TTL and
// reports how many it removed. Files at the top level are left alone.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", j.root, err)
	}

	cutoff := j.now().Add(-j.ttl)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info("removed stale scratch directories", slog.Int("count", removed))
	}
	return removed, errors.Join(errs...)
}
