// Package queue implements the bounded packet queues connecting the real-time
// part of the Link Layer with the code processing data channel PDUs.
//
// A queue carries framed records: a two byte data channel header (LLID and
// payload length) followed by the payload. Each queue has exactly one
// producer and one consumer, which may run in different execution contexts.
// Neither side ever blocks; a full or empty queue is reported as ErrFull or
// ErrEOF and the caller retries later.
package queue

import (
	"errors"

	"github.com/muxable/lelink/pkg/pdu"
)

var (
	// ErrEOF is returned by Consumer.Consume when the queue holds no record.
	ErrEOF = errors.New("queue: no data")
	// ErrFull is returned by Producer.Produce when the record does not fit
	// into the currently free space.
	ErrFull = errors.New("queue: full")
	// ErrTooLarge is returned for records that could never fit, even into
	// an empty queue. It does not match ErrFull: retrying cannot succeed.
	ErrTooLarge = errors.New("queue: record too large")
)

// Producer is the writing half of a packet queue.
type Producer interface {
	// Capacity returns the size of the queue in bytes, record headers
	// included.
	Capacity() int

	// Free returns the largest payload size Produce currently accepts.
	Free() int

	// FreeBytes returns the free space in bytes, record headers included.
	// A sequence of records fits iff their framed sizes sum to at most
	// FreeBytes.
	FreeBytes() int

	// Produce reserves size payload bytes and calls fn to fill them. The
	// record is committed iff fn returns a nil error; its LLID is the one
	// returned by fn and its length the number of bytes fn wrote.
	Produce(size int, fn func(w *Writer) (pdu.LLID, error)) error
}

// Consumer is the reading half of a packet queue.
type Consumer interface {
	// HasData reports whether Consume would find a record.
	HasData() bool

	// Consume decodes the record at the head of the queue and passes it to
	// fn. The record is removed iff fn returns a Consume with Commit set.
	// The Pdu passed to fn is only valid for the duration of the call.
	Consume(fn func(pdu.Header, pdu.Pdu) Consume) error
}

// Consume is the outcome of processing a queued record.
type Consume struct {
	// Commit removes the record from the queue. When false the record stays
	// at the head, unchanged, for a later attempt.
	Commit bool
	Err    error
}

// Always commits the record regardless of err.
func Always(err error) Consume {
	return Consume{Commit: true, Err: err}
}

// Never leaves the record in the queue.
func Never(err error) Consume {
	return Consume{Commit: false, Err: err}
}

// OnSuccess commits the record iff err is nil.
func OnSuccess(err error) Consume {
	return Consume{Commit: err == nil, Err: err}
}
