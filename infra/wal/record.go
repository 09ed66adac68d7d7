// Package wal is the segmented write-ahead log of accepted requests.
// Replaying it from the last snapshot rebuilds the book deterministically.
package wal

import (
	"encoding/binary"
	"errors"
	"time"
)

type RecordType uint8

const (
	RecordPlace RecordType = iota
	RecordCancel
)

var ErrCorruptRecord = errors.New("corrupt wal record")

// Record is an immutable WAL entry. Data holds the type-specific payload.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}

// Place is the payload of a RecordPlace entry.
type Place struct {
	Trader string
	Side   uint8
	Price  int64
	Amount int64
}

// Cancel is the payload of a RecordCancel entry.
type Cancel struct {
	OrderID   uint64
	Requester string
}

// payload layout: [side:1][price:8][amount:8][traderLen:2][trader]
func (p Place) Encode() []byte {
	buf := make([]byte, 19+len(p.Trader))
	buf[0] = p.Side
	binary.BigEndian.PutUint64(buf[1:9], uint64(p.Price))
	binary.BigEndian.PutUint64(buf[9:17], uint64(p.Amount))
	binary.BigEndian.PutUint16(buf[17:19], uint16(len(p.Trader)))
	copy(buf[19:], p.Trader)
	return buf
}

func DecodePlace(b []byte) (Place, error) {
	if len(b) < 19 {
		return Place{}, ErrCorruptRecord
	}
	n := binary.BigEndian.Uint16(b[17:19])
	if len(b) != int(19+n) {
		return Place{}, ErrCorruptRecord
	}
	return Place{
		Side:   b[0],
		Price:  int64(binary.BigEndian.Uint64(b[1:9])),
		Amount: int64(binary.BigEndian.Uint64(b[9:17])),
		Trader: string(b[19:]),
	}, nil
}

// payload layout: [orderID:8][requesterLen:2][requester]
func (c Cancel) Encode() []byte {
	buf := make([]byte, 10+len(c.Requester))
	binary.BigEndian.PutUint64(buf[:8], c.OrderID)
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(c.Requester)))
	copy(buf[10:], c.Requester)
	return buf
}

func DecodeCancel(b []byte) (Cancel, error) {
	if len(b) < 10 {
		return Cancel{}, ErrCorruptRecord
	}
	n := binary.BigEndian.Uint16(b[8:10])
	if len(b) != int(10+n) {
		return Cancel{}, ErrCorruptRecord
	}
	return Cancel{
		OrderID:   binary.BigEndian.Uint64(b[:8]),
		Requester: string(b[10:]),
	}, nil
}
