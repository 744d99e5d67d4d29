package service

import (
	"context"
	"time"

	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/events"
	"go.uber.org/zap"
)

// Watcher polls the floor fingerprint and announces changes that did not go
// through this process, such as writes from another replica.
type Watcher struct {
	svc      *FloorService
	pub      events.Publisher
	interval time.Duration
	log      *zap.Logger
	last     string
}

// NewWatcher creates a Watcher publishing snapshot.changed events to pub.
func NewWatcher(svc *FloorService, pub events.Publisher, interval time.Duration, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{svc: svc, pub: pub, interval: interval, log: log}
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll checks the fingerprint once and reports whether a change was published.
// The first successful poll only records the baseline.
func (w *Watcher) Poll(ctx context.Context) bool {
	tag, err := w.svc.ETag(ctx)
	if err != nil {
		w.log.Warn("snapshot poll failed", zap.Error(err))
		return false
	}
	if tag == w.last {
		return false
	}
	first := w.last == ""
	w.last = tag
	if first {
		return false
	}
	e := events.New(enum.EventSnapshotChanged, w.svc.now(), events.TopicAdmin, events.TopicKitchen, events.TopicBar)
	e.ETag = tag
	if err := w.pub.Publish(ctx, e); err != nil {
		w.log.Warn("publish snapshot change", zap.Error(err))
	}
	return true
}
