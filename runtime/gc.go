package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// GCWorker reclaims Badger value-log space on a fixed interval.
// Message appends are write-heavy; without periodic GC the value log
// only grows.
type GCWorker struct {
	db       *badger.DB
	interval time.Duration
	log      *slog.Logger
}

func NewGCWorker(db *badger.DB, interval time.Duration, log *slog.Logger) *GCWorker {
	return &GCWorker{db: db, interval: interval, log: log}
}

func (w *GCWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping value-log GC")
			return nil
		case <-ticker.C:
			// RunValueLogGC rewrites at most one file per call; loop
			// until it reports nothing left to rewrite.
			for {
				if err := w.db.RunValueLogGC(0.5); err != nil {
					break
				}
				w.log.Debug("value-log file reclaimed")
			}
		}
	}
}
