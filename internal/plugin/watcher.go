package plugin

import (
	"context"
	"time"

	"github.com/keepmind9/botkit/internal/logger"
	"github.com/keepmind9/botkit/pkg/constants"
	"github.com/sirupsen/logrus"
)

// Watcher reloads a registry when its source fingerprint changes. Bursts of
// changes are coalesced: the reload runs once the fingerprint has been stable
// for the debounce window.
type Watcher struct {
	registry *Registry
	interval time.Duration
	debounce time.Duration
	onChange func(count int, err error)
}

// NewWatcher creates a watcher. Zero durations use the defaults. The debounce
// is raised to two poll intervals when shorter, since changes are only seen
// once per poll.
func NewWatcher(registry *Registry, interval, debounce time.Duration, onChange func(count int, err error)) *Watcher {
	if interval <= 0 {
		interval = constants.DefaultWatchInterval
	}
	if debounce <= 0 {
		debounce = constants.DefaultReloadDebounce
	}
	if debounce < 2*interval {
		debounce = 2 * interval
	}
	return &Watcher{
		registry: registry,
		interval: interval,
		debounce: debounce,
		onChange: onChange,
	}
}

// Run polls until ctx is cancelled. It blocks, so call it in a goroutine.
func (w *Watcher) Run(ctx context.Context) {
	last := w.registry.Snapshot().Fingerprint
	if last == "" {
		last, _ = w.registry.source.Fingerprint()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()
	pending := false

	logger.WithFields(logrus.Fields{
		"interval": w.interval.String(),
		"debounce": w.debounce.String(),
	}).Info("watching-handler-sources")

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			fp, err := w.registry.source.Fingerprint()
			if err != nil {
				logger.WithField("error", err).Warn("handler-source-fingerprint-failed")
				continue
			}
			if fp == last {
				continue
			}
			last = fp
			logger.WithField("fingerprint", shortFingerprint(fp)).Info("handler-change-detected")
			// restart the quiet period on every change
			if pending && !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(w.debounce)
			pending = true

		case <-debounce.C:
			pending = false
			count, err := w.registry.Load(ctx)
			if err != nil {
				logger.WithField("error", err).Error("handler-reload-failed")
			}
			if w.onChange != nil {
				w.onChange(count, err)
			}
		}
	}
}
