package worker

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// VideoCleaner removes per-session video directories older than the retention period.
type VideoCleaner struct {
	root      string
	retention time.Duration
	interval  time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewVideoCleaner creates a cleaner for the directories under root.
func NewVideoCleaner(root string, retention, interval time.Duration, log zerolog.Logger) *VideoCleaner {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &VideoCleaner{
		root:      root,
		retention: retention,
		interval:  interval,
		log:       log.With().Str("component", "video_cleaner").Logger(),
		now:       time.Now,
	}
}

// Start runs the cleanup loop until ctx is cancelled. The first pass runs immediately.
func (c *VideoCleaner) Start(ctx context.Context) {
	c.log.Info().
		Dur("interval", c.interval).
		Dur("retention", c.retention).
		Str("root", c.root).
		Msg("VideoCleaner started")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.cleanup(ctx)
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("VideoCleaner stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup returns the number of directories removed.
func (c *VideoCleaner) cleanup(ctx context.Context) int {
	if c.retention <= 0 {
		return 0
	}

	entries, err := os.ReadDir(c.root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.log.Error().Err(err).Msg("failed to list video directories")
		}
		return 0
	}

	cutoff := c.now().Add(-c.retention)
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		dir := filepath.Join(c.root, e.Name())
		if err := os.RemoveAll(dir); err != nil {
			c.log.Error().Err(err).Str("dir", dir).Msg("failed to remove video directory")
			continue
		}
		removed++
		c.log.Info().Str("session_id", e.Name()).Time("modified_at", info.ModTime()).Msg("expired video directory removed")
	}
	return removed
}
