// Package outbox is the durable boundary between the in-memory event
// queue and external delivery. Trade events bound for downstream
// consumers are written here keyed by trade sequence; the broadcaster
// job walks pending records and relays them to Kafka. The core queue
// itself stays volatile — only externally-bound records persist.
package outbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

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

// Record is one externally-bound event and its delivery state.
type Record struct {
	Seq      uint64
	State    State
	Attempts uint32
	Updated  int64 // unix nanos of last state change
	Payload  []byte
}

var ErrNotFound = errors.New("outbox: record not found")

// value encoding: [state:1][attempts:4][updated:8][payload]
func encode(r Record) []byte {
	buf := make([]byte, 1+4+8+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Attempts)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.Updated))
	copy(buf[13:], r.Payload)
	return buf
}

func decode(seq uint64, b []byte) (Record, error) {
	if len(b) < 13 {
		return Record{}, errors.New("outbox: truncated record")
	}
	return Record{
		Seq:      seq,
		State:    State(b[0]),
		Attempts: binary.BigEndian.Uint32(b[1:5]),
		Updated:  int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:  append([]byte(nil), b[13:]...),
	}, nil
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Put stores a new pending record. Called from an event-queue handler,
// so it must never block on anything but the local store.
func (o *Outbox) Put(seq uint64, payload []byte) error {
	rec := Record{State: StateNew, Payload: payload}
	return o.db.Set(key(seq), encode(rec), pebble.Sync)
}

// MarkSent flips a record to SENT before the relay attempt, bumping
// its attempt counter. Idempotent across retries.
func (o *Outbox) MarkSent(seq uint64) error {
	return o.transition(seq, StateSent)
}

// MarkAcked flips a record to ACKED after the broker accepted it.
func (o *Outbox) MarkAcked(seq uint64) error {
	return o.transition(seq, StateAcked)
}

func (o *Outbox) transition(seq uint64, state State) error {
	rec, err := o.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	if state == StateSent {
		rec.Attempts++
	}
	rec.Updated = time.Now().UnixNano()
	return o.db.Set(key(seq), encode(rec), pebble.Sync)
}

// Delete removes a record; used to garbage-collect ACKED entries.
func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(key(seq), pebble.Sync)
}

func (o *Outbox) Get(seq uint64) (Record, error) {
	val, closer, err := o.db.Get(key(seq))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	defer closer.Close()
	return decode(seq, val)
}

// ScanPending visits every record not yet ACKED, in sequence order.
// SENT records are visited too: a crash between send and ack means the
// relay must retry, so delivery is at-least-once.
func (o *Outbox) ScanPending(fn func(Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decode(seq, iter.Value())
		if err != nil {
			return err
		}
		if rec.State == StateAcked {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

const prefix = "trade/"

func key(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(b), prefix+"%d", &seq)
	return seq, err
}
