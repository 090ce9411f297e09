package comm

import (
	"io"
	"time"
)

type deadliner interface {
	SetDeadline(time.Time) error
}

// Terminator wraps a ReadWriter, appending the Tx byte to every write and
// reading through the Rx byte on every read
type Terminator struct {
	rw     io.ReadWriter
	rx, tx byte
}

// NewTerminator returns a Terminator around rw
func NewTerminator(rw io.ReadWriter, rx, tx byte) *Terminator {
	return &Terminator{rw: rw, rx: rx, tx: tx}
}

// Write sends b followed by the Tx terminator in a single write.  The
// returned count excludes the terminator.
func (t *Terminator) Write(b []byte) (int, error) {
	buf := make([]byte, len(b), len(b)+1)
	copy(buf, b)
	buf = append(buf, t.tx)
	n, err := t.rw.Write(buf)
	if n > len(b) {
		n = len(b)
	}
	return n, err
}

// Read fills b one byte at a time until the Rx terminator is read, which is
// included in b.  Nothing past the terminator is consumed from the
// underlying reader.  If b fills before the terminator is seen,
// ErrTerminatorNotFound is returned alongside the data.
func (t *Terminator) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		m, err := t.rw.Read(b[n : n+1])
		n += m
		if m == 1 && b[n-1] == t.rx {
			return n, nil
		}
		if err != nil {
			if err == io.EOF && n > 0 {
				return n, ErrTerminatorNotFound
			}
			return n, err
		}
		if m == 0 {
			// serial ports report a read timeout this way
			return n, io.ErrNoProgress
		}
	}
	return n, ErrTerminatorNotFound
}

// SetDeadline passes the deadline to the wrapped ReadWriter if it supports
// deadlines, and is a no-op otherwise
func (t *Terminator) SetDeadline(tm time.Time) error {
	if d, ok := t.rw.(deadliner); ok {
		return d.SetDeadline(tm)
	}
	return nil
}

// Timeout wraps a ReadWriter, refreshing its deadline before every read and write
type Timeout struct {
	rw io.ReadWriter
	d  deadliner
	to time.Duration
}

// NewTimeout returns a Timeout around rw.  Links without deadlines (serial
// ports, whose read timeout lives in their config) are returned unwrapped.
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (io.ReadWriter, error) {
	d, ok := rw.(deadliner)
	if !ok {
		return rw, nil
	}
	if err := d.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	return &Timeout{rw: rw, d: d, to: timeout}, nil
}

// Write refreshes the deadline and writes b
func (t *Timeout) Write(b []byte) (int, error) {
	if err := t.d.SetDeadline(time.Now().Add(t.to)); err != nil {
		return 0, err
	}
	return t.rw.Write(b)
}

// Read refreshes the deadline and reads into b
func (t *Timeout) Read(b []byte) (int, error) {
	if err := t.d.SetDeadline(time.Now().Add(t.to)); err != nil {
		return 0, err
	}
	return t.rw.Read(b)
}
