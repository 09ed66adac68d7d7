package settlement

import (
	"fmt"

	"go.uber.org/zap"

	"matchd/domain/book"
	"matchd/engine"
	"matchd/infra/sequence"
	"matchd/infra/wal"
)

// Replay rebuilds the book from the entry WAL, skipping records already
// covered by the snapshot at afterSeq. It must finish before the
// coordinator accepts traffic. Ledger balances are durable on their own and
// are not replayed; matching here touches only book state.
func Replay(walDir string, afterSeq uint64, eng *engine.MatchingEngine, seq *sequence.Sequencer, log *zap.Logger) error {
	lastSeq, err := wal.Replay(walDir, func(rec *wal.Record) error {
		if rec.Seq <= afterSeq {
			return nil
		}

		switch rec.Type {
		case wal.RecordPlace:
			p, err := wal.DecodePlace(rec.Data)
			if err != nil {
				return err
			}
			_, _, err = eng.Place(rec.Seq, p.Trader, book.Side(p.Side), p.Price, p.Amount)
			return err

		case wal.RecordCancel:
			cn, err := wal.DecodeCancel(rec.Data)
			if err != nil {
				return err
			}
			_, err = eng.Cancel(cn.OrderID, cn.Requester)
			return err

		default:
			return fmt.Errorf("unknown wal record type %d", rec.Type)
		}
	})
	if err != nil {
		return err
	}

	if lastSeq < afterSeq {
		lastSeq = afterSeq
	}
	seq.Reset(lastSeq)

	log.Info("wal replay complete",
		zap.Uint64("last_seq", lastSeq),
		zap.Int("resting_orders", eng.Book().Resting()),
	)
	return nil
}
