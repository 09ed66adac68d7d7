// Package snapshot persists the resting book so restarts replay only the
// WAL tail.
package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"matchd/domain/book"
)

const fileName = "snapshot.bin"

type Snapshot struct {
	Seq     uint64
	Created time.Time
	Orders  []OrderEntry
}

type OrderEntry struct {
	ID        uint64
	Trader    string
	Side      int
	Price     int64
	Remaining int64
	CreatedAt uint64
}

type Writer struct {
	Dir string
}

// Write dumps every resting order, bids then asks, best level first.
// The caller holds the book's critical section.
func (w *Writer) Write(seq uint64, b *book.OrderBook) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}

	s := Snapshot{
		Seq:     seq,
		Created: time.Now(),
		Orders:  make([]OrderEntry, 0, b.Resting()),
	}

	collect := func(lvl *book.PriceLevel) bool {
		for o := lvl.Head(); o != nil; o = o.Next() {
			s.Orders = append(s.Orders, OrderEntry{
				ID:        o.ID,
				Trader:    o.Trader,
				Side:      int(o.Side),
				Price:     o.Price,
				Remaining: o.Remaining,
				CreatedAt: o.CreatedAt,
			})
		}
		return true
	}
	b.BidsWalk(collect)
	b.AsksWalk(collect)

	// write-then-rename so a crash never leaves a torn snapshot
	tmp := filepath.Join(w.Dir, fileName+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(&s); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(w.Dir, fileName))
}

// Load restores resting orders into an empty book and returns the snapshot
// seq, or 0 when no snapshot exists.
func Load(dir string, b *book.OrderBook) (uint64, error) {
	f, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return 0, err
	}

	// entries were dumped in book order, so re-inserting preserves FIFO
	for _, e := range s.Orders {
		b.Insert(&book.Order{
			ID:        e.ID,
			Trader:    e.Trader,
			Side:      book.Side(e.Side),
			Price:     e.Price,
			Remaining: e.Remaining,
			CreatedAt: e.CreatedAt,
		})
	}
	return s.Seq, nil
}
