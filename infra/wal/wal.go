package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
)

type Config struct {
	Dir         string
	SegmentSize int64
}

const defaultSegmentSize = 2 << 20

// WAL appends request intents to size-rotated segment files.
// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4], crc over the
// preceding bytes.
type WAL struct {
	dir      string
	segSize  int64
	current  *segment
	segIndex int
}

func Open(cfg Config) (*WAL, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = defaultSegmentSize
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	// continue in the newest existing segment
	index := 0
	if paths, err := segmentPaths(cfg.Dir); err == nil && len(paths) > 0 {
		last := paths[len(paths)-1]
		if _, err := fmt.Sscanf(filepath.Base(last), "segment-%06d.wal", &index); err != nil {
			return nil, fmt.Errorf("unexpected segment name %q", last)
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}

	return &WAL{
		dir:      cfg.Dir,
		segSize:  cfg.SegmentSize,
		current:  seg,
		segIndex: index,
	}, nil
}

func (w *WAL) Append(r *Record) error {
	payloadLen := uint32(len(r.Data))

	buf := make([]byte, 21+payloadLen+4)
	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[21:], r.Data)

	crc := crc32.ChecksumIEEE(buf[:21+payloadLen])
	binary.BigEndian.PutUint32(buf[21+payloadLen:], crc)

	if err := w.current.append(buf); err != nil {
		// drop the torn frame; if even that fails, abandon the segment so
		// later appends land on a clean one and replay treats the tear as
		// a torn tail
		if terr := w.current.truncate(); terr != nil {
			_ = w.rotate()
		}
		return err
	}
	if err := w.current.sync(); err != nil {
		return err
	}

	if w.current.offset >= w.segSize {
		return w.rotate()
	}
	return nil
}

func (w *WAL) rotate() error {
	_ = w.current.close()
	w.segIndex++

	seg, err := openSegment(w.dir, w.segIndex)
	if err != nil {
		return err
	}
	w.current = seg
	return nil
}

// TruncateBefore removes closed segments whose every record is covered by a
// snapshot at seq. The current segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) error {
	paths, err := segmentPaths(w.dir)
	if err != nil {
		return err
	}

	for _, path := range paths {
		if path == w.current.file.Name() {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}

func (w *WAL) Close() error {
	return w.current.close()
}

func segmentPaths(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
