package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

type ReplayHandler func(*Record) error

// Replay feeds every record in seq order to fn and returns the last seq
// seen. It must finish before the engine accepts traffic.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	paths, err := segmentPaths(dir)
	if err != nil {
		return 0, err
	}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return lastSeq, err
		}

		for {
			rec, err := readRecord(f)
			if err != nil {
				if err == io.EOF {
					break
				}
				_ = f.Close()
				return lastSeq, fmt.Errorf("replay %s: %w", path, err)
			}

			if rec.Seq <= lastSeq {
				_ = f.Close()
				return lastSeq, fmt.Errorf("non-monotonic seq %d in %s", rec.Seq, path)
			}
			lastSeq = rec.Seq

			if err := fn(rec); err != nil {
				_ = f.Close()
				return lastSeq, err
			}
		}
		_ = f.Close()
	}

	return lastSeq, nil
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, 21)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			// torn write at the tail; everything before it is intact
			return nil, io.EOF
		}
		return nil, err
	}

	payloadLen := binary.BigEndian.Uint32(header[17:21])
	rest := make([]byte, payloadLen+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}

	payload := rest[:payloadLen]
	crc := binary.BigEndian.Uint32(rest[payloadLen:])
	if crc32.ChecksumIEEE(append(header, payload...)) != crc {
		return nil, ErrCorruptRecord
	}

	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, nil
}

// maxSeqInSegment scans one segment for its highest seq. Used only by
// snapshot truncation.
func maxSeqInSegment(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var max uint64
	for {
		header := make([]byte, 21)
		if _, err := io.ReadFull(f, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return max, nil
			}
			return max, err
		}

		seq := binary.BigEndian.Uint64(header[1:9])
		if seq > max {
			max = seq
		}

		payloadLen := binary.BigEndian.Uint32(header[17:21])
		if _, err := f.Seek(int64(payloadLen+4), io.SeekCurrent); err != nil {
			return max, err
		}
	}
}
