package queue

import (
	"errors"
	"fmt"
	"io"

	"github.com/muxable/lelink/pkg/pdu"
	"github.com/smallnest/ringbuffer"
	"go.uber.org/atomic"
)

// ring is the storage shared by one producer and one consumer.
type ring struct {
	buf *ringbuffer.RingBuffer

	// held counts bytes the consumer has already taken out of buf for a head
	// record that is not yet committed. They still count against capacity.
	held atomic.Int32
}

// New creates a packet queue holding at most capacity bytes of framed
// records (two header bytes per record plus payload).
func New(capacity int) (Producer, Consumer) {
	if capacity < pdu.HeaderSize {
		panic(fmt.Sprintf("queue: capacity %d below record header size", capacity))
	}
	r := &ring{buf: ringbuffer.New(capacity)}
	return &producer{ring: r}, &consumer{ring: r}
}

func (r *ring) free() int {
	return r.buf.Free() - int(r.held.Load())
}

type producer struct {
	*ring
	scratch [pdu.HeaderSize + pdu.MaxPayloadSize]byte
}

func (p *producer) Capacity() int {
	return p.buf.Capacity()
}

func (p *producer) FreeBytes() int {
	if n := p.free(); n > 0 {
		return n
	}
	return 0
}

func (p *producer) Free() int {
	n := p.FreeBytes() - pdu.HeaderSize
	if n < 0 {
		return 0
	}
	if n > pdu.MaxPayloadSize {
		return pdu.MaxPayloadSize
	}
	return n
}

func (p *producer) Produce(size int, fn func(w *Writer) (pdu.LLID, error)) error {
	if size < 0 || size > pdu.MaxPayloadSize || size+pdu.HeaderSize > p.buf.Capacity() {
		return ErrTooLarge
	}
	if size > p.Free() {
		return ErrFull
	}
	w := newWriter(p.scratch[pdu.HeaderSize : pdu.HeaderSize+size])
	llid, err := fn(w)
	if err != nil {
		return err
	}
	h := pdu.Header{LLID: llid, Length: uint8(w.Len())}.Marshal()
	copy(p.scratch[:], h[:])
	record := p.scratch[:pdu.HeaderSize+w.Len()]
	// The only other party is the consumer, which can only grow the free
	// space, so a single write publishes the whole record.
	if _, err := p.buf.Write(record); err != nil {
		return fmt.Errorf("queue: commit record: %w", err)
	}
	return nil
}

type consumer struct {
	*ring
	head    [pdu.HeaderSize + pdu.MaxPayloadSize]byte
	headLen int
}

func (c *consumer) HasData() bool {
	return c.headLen > 0 || !c.buf.IsEmpty()
}

func (c *consumer) Consume(fn func(pdu.Header, pdu.Pdu) Consume) error {
	if c.headLen == 0 {
		if err := c.fetch(); err != nil {
			return err
		}
	}
	var hb [pdu.HeaderSize]byte
	copy(hb[:], c.head[:pdu.HeaderSize])
	h := pdu.UnmarshalHeader(hb)
	p, err := pdu.Decode(h, c.head[pdu.HeaderSize:c.headLen])
	if err != nil {
		c.commit()
		return err
	}
	res := fn(h, p)
	if res.Commit {
		c.commit()
	}
	return res.Err
}

// fetch moves the next record out of the ring into head. held is raised
// before each read so the producer never sees more space than exists.
func (c *consumer) fetch() error {
	c.held.Store(pdu.HeaderSize)
	n, err := c.buf.Read(c.head[:pdu.HeaderSize])
	if errors.Is(err, ringbuffer.ErrIsEmpty) {
		c.held.Store(0)
		return ErrEOF
	}
	if err == nil && n != pdu.HeaderSize {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		c.held.Store(0)
		return fmt.Errorf("queue: read header: %w", err)
	}
	length := int(c.head[1])
	c.held.Store(int32(pdu.HeaderSize + length))
	if length > 0 {
		n, err = c.buf.Read(c.head[pdu.HeaderSize : pdu.HeaderSize+length])
		if err == nil && n != length {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			c.held.Store(0)
			return fmt.Errorf("queue: read payload: %w", err)
		}
	}
	c.headLen = pdu.HeaderSize + length
	return nil
}

func (c *consumer) commit() {
	c.headLen = 0
	c.held.Store(0)
}
