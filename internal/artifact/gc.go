package artifact

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionPolicy configures the scheduled sweep. Zero durations disable
// collection for that kind.
type RetentionPolicy struct {
	// Schedule is a cron expression. Empty disables the sweep entirely.
	Schedule string

	// MaxAge per kind; artifacts older than the horizon are removed.
	MaxAge map[string]time.Duration
}

// Collector removes expired artifacts on a cron schedule.
type Collector struct {
	store   *Store
	policy  RetentionPolicy
	logger  *slog.Logger
	cron    *cron.Cron
	now     func() time.Time
	onSweep func(removed int)
}

// NewCollector builds a collector; Start arms the schedule.
func NewCollector(store *Store, policy RetentionPolicy, logger *slog.Logger) *Collector {
	return &Collector{
		store:  store,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Start arms the cron schedule. A collector without a schedule is inert.
func (c *Collector) Start() error {
	if c.policy.Schedule == "" {
		return nil
	}
	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.policy.Schedule, func() { c.Sweep() }); err != nil {
		return err
	}
	c.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for a running sweep.
func (c *Collector) Stop() {
	if c.cron != nil {
		ctx := c.cron.Stop()
		<-ctx.Done()
	}
}

// Sweep removes artifacts past their kind's retention horizon and
// returns how many were removed. Files younger than the horizon are
// never touched.
func (c *Collector) Sweep() int {
	removed := 0
	now := c.now()
	for kind, maxAge := range c.policy.MaxAge {
		if maxAge <= 0 || !validKinds[kind] {
			continue
		}
		horizon := now.Add(-maxAge)
		entries, err := c.store.List(kind, "")
		if err != nil {
			c.logger.Warn("artifact sweep list failed", "kind", kind, "error", err)
			continue
		}
		for _, e := range entries {
			if !e.Modified.Before(horizon) {
				continue
			}
			full := filepath.Join(c.store.root, e.Kind, filepath.FromSlash(e.Path))
			if err := os.Remove(full); err != nil {
				c.logger.Warn("artifact sweep remove failed", "uri", e.URI, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		c.logger.Info("artifact sweep complete", "removed", removed)
	}
	if c.onSweep != nil {
		c.onSweep(removed)
	}
	return removed
}
