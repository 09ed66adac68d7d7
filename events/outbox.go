package events

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

// Record is one durable outbox entry.
type Record struct {
	Seq     uint64
	State   State
	Payload []byte
}

// value encoding: [state:1][len:4][payload]
func encodeValue(state State, payload []byte) []byte {
	buf := make([]byte, 5+len(payload))
	buf[0] = byte(state)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

func decodeValue(b []byte) (State, []byte, error) {
	if len(b) < 5 {
		return 0, nil, errors.New("short outbox record")
	}
	n := binary.BigEndian.Uint32(b[1:5])
	if len(b) != int(5+n) {
		return 0, nil, errors.New("outbox record length mismatch")
	}
	payload := make([]byte, n)
	copy(payload, b[5:])
	return State(b[0]), payload, nil
}

// Outbox is a pebble-backed durable queue between the settlement path and
// the Kafka broadcaster. Events are appended inside the placement critical
// section and drained asynchronously, so publication is at-least-once and
// never re-enters the engine.
type Outbox struct {
	db   *pebble.DB
	next uint64
}

func OpenOutbox(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open outbox at %s: %w", dir, err)
	}

	ob := &Outbox{db: db}
	if err := ob.resume(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ob, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// resume continues the sequence after the highest stored key.
func (o *Outbox) resume() error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("event/"),
		UpperBound: []byte("event0"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	if iter.Last() && iter.Valid() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		o.next = seq
	}
	return iter.Error()
}

// Append stores a new event payload and returns its sequence.
func (o *Outbox) Append(payload []byte) (uint64, error) {
	o.next++
	seq := o.next
	if err := o.db.Set(keyFor(seq), encodeValue(StateNew, payload), pebble.Sync); err != nil {
		o.next--
		return 0, err
	}
	return seq, nil
}

func (o *Outbox) mark(seq uint64, state State) error {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return err
	}
	_, payload, derr := decodeValue(val)
	closer.Close()
	if derr != nil {
		return derr
	}
	return o.db.Set(keyFor(seq), encodeValue(state, payload), pebble.Sync)
}

func (o *Outbox) MarkSent(seq uint64) error  { return o.mark(seq, StateSent) }
func (o *Outbox) MarkAcked(seq uint64) error { return o.mark(seq, StateAcked) }

// ScanPending visits every record not yet acked, in sequence order.
func (o *Outbox) ScanPending(fn func(*Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("event/"),
		UpperBound: []byte("event0"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		state, payload, err := decodeValue(iter.Value())
		if err != nil {
			return err
		}
		if state == StateAcked {
			continue
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if err := fn(&Record{Seq: seq, State: state, Payload: payload}); err != nil {
			return err
		}
	}
	return iter.Error()
}

// GC deletes every acked record.
func (o *Outbox) GC() error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("event/"),
		UpperBound: []byte("event0"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		state, _, err := decodeValue(iter.Value())
		if err != nil {
			return err
		}
		if state != StateAcked {
			continue
		}
		key := append([]byte(nil), iter.Key()...)
		if err := o.db.Delete(key, pebble.NoSync); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("event/%020d", seq))
}

func parseKey(key []byte) (uint64, error) {
	var seq uint64
	if _, err := fmt.Sscanf(string(key), "event/%d", &seq); err != nil {
		return 0, fmt.Errorf("malformed outbox key %q: %w", key, err)
	}
	return seq, nil
}
