package wal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()

	// --- write phase ---
	w, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}

	const n = 50
	for i := uint64(1); i <= n; i++ {
		rec := NewRecord(RecordPlace, i, Place{
			Trader: "alice",
			Side:   0,
			Price:  100,
			Amount: int64(i),
		}.Encode())
		if err := w.Append(rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// --- replay phase ---
	count := uint64(0)
	lastSeq, err := Replay(dir, func(rec *Record) error {
		count++
		if rec.Seq != count {
			t.Fatalf("seq = %d, want %d", rec.Seq, count)
		}
		p, err := DecodePlace(rec.Data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if p.Trader != "alice" || p.Amount != int64(count) {
			t.Fatalf("payload = %+v at seq %d", p, count)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if count != n || lastSeq != n {
		t.Errorf("replayed %d records, lastSeq %d, want %d", count, lastSeq, n)
	}
}

func TestRotationAndTruncate(t *testing.T) {
	dir := t.TempDir()

	// tiny segments force rotation every few records
	w, err := Open(Config{Dir: dir, SegmentSize: 256})
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}

	for i := uint64(1); i <= 40; i++ {
		rec := NewRecord(RecordCancel, i, Cancel{OrderID: i, Requester: "bob"}.Encode())
		if err := w.Append(rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	paths, _ := segmentPaths(dir)
	if len(paths) < 3 {
		t.Fatalf("expected several segments, got %d", len(paths))
	}

	// snapshot covered everything up to 20; older closed segments drop
	if err := w.TruncateBefore(20); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	after, _ := segmentPaths(dir)
	if len(after) >= len(paths) {
		t.Errorf("truncation removed nothing: %d -> %d segments", len(paths), len(after))
	}

	// the surviving records still replay cleanly and cover seq > 20
	var seqs []uint64
	if _, err := Replay(dir, func(rec *Record) error {
		seqs = append(seqs, rec.Seq)
		return nil
	}); err != nil {
		t.Fatalf("replay after truncate: %v", err)
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Fatalf("replay out of order: %v", seqs)
		}
	}
	if seqs[len(seqs)-1] != 40 {
		t.Errorf("last seq = %d, want 40", seqs[len(seqs)-1])
	}
	w.Close()
}

func TestReopenContinuesSegment(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	w.Append(NewRecord(RecordPlace, 1, Place{Trader: "a", Price: 1, Amount: 1}.Encode()))
	w.Close()

	w2, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	w2.Append(NewRecord(RecordPlace, 2, Place{Trader: "a", Price: 1, Amount: 1}.Encode()))
	w2.Close()

	count := 0
	if _, err := Replay(dir, func(*Record) error { count++; return nil }); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if count != 2 {
		t.Errorf("replayed %d records, want 2", count)
	}
}

func TestTornTailTolerated(t *testing.T) {
	dir := t.TempDir()

	w, _ := Open(Config{Dir: dir})
	w.Append(NewRecord(RecordPlace, 1, Place{Trader: "a", Price: 1, Amount: 1}.Encode()))
	w.Append(NewRecord(RecordPlace, 2, Place{Trader: "a", Price: 1, Amount: 1}.Encode()))
	w.Close()

	// chop a few bytes off the tail, as a crash mid-write would
	paths, _ := segmentPaths(dir)
	path := paths[0]
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0o644); err != nil {
		t.Fatalf("truncate segment: %v", err)
	}

	count := 0
	lastSeq, err := Replay(dir, func(*Record) error { count++; return nil })
	if err != nil {
		t.Fatalf("replay with torn tail: %v", err)
	}
	if count != 1 || lastSeq != 1 {
		t.Errorf("replayed %d records lastSeq %d, want the intact record only", count, lastSeq)
	}
}

func TestTruncateDropsTornFrame(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	w.Append(NewRecord(RecordPlace, 1, Place{Trader: "a", Price: 1, Amount: 1}.Encode()))

	// a failed append leaves partial frame bytes past the tracked offset;
	// truncate must restore a clean tail so later appends stay replayable
	before := w.current.offset
	if _, err := w.current.file.Write([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("write torn bytes: %v", err)
	}
	if err := w.current.truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	info, err := w.current.file.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != before {
		t.Fatalf("segment size = %d after truncate, want %d", info.Size(), before)
	}

	w.Append(NewRecord(RecordPlace, 2, Place{Trader: "a", Price: 1, Amount: 1}.Encode()))
	w.Close()

	count := 0
	lastSeq, err := Replay(dir, func(*Record) error { count++; return nil })
	if err != nil {
		t.Fatalf("replay after recovery: %v", err)
	}
	if count != 2 || lastSeq != 2 {
		t.Errorf("replayed %d records lastSeq %d, want both records", count, lastSeq)
	}
}

func TestCorruptRecordDetected(t *testing.T) {
	dir := t.TempDir()

	w, _ := Open(Config{Dir: dir})
	w.Append(NewRecord(RecordPlace, 1, Place{Trader: "alice", Price: 100, Amount: 5}.Encode()))
	w.Close()

	paths, _ := segmentPaths(dir)
	path := filepath.Clean(paths[0])
	data, _ := os.ReadFile(path)
	data[25] ^= 0xFF // flip a payload byte, leaving the length intact
	os.WriteFile(path, data, 0o644)

	_, err := Replay(dir, func(*Record) error { return nil })
	if !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("err = %v, want ErrCorruptRecord", err)
	}
}
