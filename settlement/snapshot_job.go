package settlement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"matchd/events"
	"matchd/snapshot"
)

// WriteSnapshot dumps the current book inside the critical section.
func (c *Coordinator) WriteSnapshot(w *snapshot.Writer) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.seq.Current()
	if err := w.Write(seq, c.eng.Book()); err != nil {
		return 0, err
	}
	return seq, nil
}

// RunSnapshotJob periodically snapshots the book, truncates the WAL behind
// the snapshot, and garbage-collects acked outbox entries.
func (c *Coordinator) RunSnapshotJob(ctx context.Context, dir string, interval time.Duration, outbox *events.Outbox) {
	w := &snapshot.Writer{Dir: dir}
	log := c.log.Named("snapshot")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq, err := c.WriteSnapshot(w)
			if err != nil {
				log.Warn("snapshot write failed", zap.Error(err))
				continue
			}
			if err := c.wal.TruncateBefore(seq); err != nil {
				log.Warn("wal truncate failed", zap.Error(err))
			}
			if err := outbox.GC(); err != nil {
				log.Warn("outbox gc failed", zap.Error(err))
			}
		}
	}
}
