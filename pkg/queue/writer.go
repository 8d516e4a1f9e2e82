package queue

import (
	"encoding/binary"
	"io"
)

// Writer fills the payload space reserved by Producer.Produce.
type Writer struct {
	buf []byte
	n   int
}

func newWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

func (w *Writer) Write(p []byte) (int, error) {
	if len(p) > w.Space() {
		return 0, io.ErrShortWrite
	}
	w.n += copy(w.buf[w.n:], p)
	return len(p), nil
}

func (w *Writer) WriteByte(b byte) error {
	if w.Space() < 1 {
		return io.ErrShortWrite
	}
	w.buf[w.n] = b
	w.n++
	return nil
}

// WriteUint16 writes v in little endian byte order.
func (w *Writer) WriteUint16(v uint16) error {
	if w.Space() < 2 {
		return io.ErrShortWrite
	}
	binary.LittleEndian.PutUint16(w.buf[w.n:], v)
	w.n += 2
	return nil
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.n
}

// Space returns the number of bytes that can still be written.
func (w *Writer) Space() int {
	return len(w.buf) - w.n
}

func (w *Writer) bytes() []byte {
	return w.buf[:w.n]
}
