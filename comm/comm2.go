package comm

import (
	"io"
	"sync"
	"time"
)

// Pool is a communication pool which holds one or more connections to a device
// that will be closed if they are not in use, and re-opened as needed.
// it is concurrent safe.  Pools must be created with NewPool.
type Pool struct {
	maxSize int           // maximum number of connections, == cap(lease)
	timeout time.Duration // time after the last Put to free idle connections
	maker   CreationFunc

	// lease holds one token per connection given out; a full channel
	// blocks Get until something is returned
	lease chan struct{}

	mu    sync.Mutex
	idle  []io.ReadWriteCloser
	timer *time.Timer
}

// NewPool creates a new pool which will hold up to maxSize connections made
// by maker, closing them after timeout has elapsed with none of them in use
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Pool{
		maxSize: maxSize,
		timeout: timeout,
		maker:   maker,
		lease:   make(chan struct{}, maxSize),
	}
}

// Get retrieves a communicator from the pool, blocking until one is
// available if all are in use.  It is guaranteed that there is no contestion
// for the ReadWriter.  The consumer should not attempt to cast it to its
// concrete type and use it outside this interface.
//
// When done with the communicator, return it with Put(), or discard it with
// Destroy() if it has become no good (e.g., all calls error).
//
// If the error from Get is not nil, you must not return it
// to the pool.
func (p *Pool) Get() (io.ReadWriter, error) {
	p.lease <- struct{}{}

	p.mu.Lock()
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c, err := p.maker()
	if err != nil {
		<-p.lease
		return nil, err
	}
	return c, nil
}

// Put restores a communicator to the pool.  It may be reused, or will be
// automatically freed after the timeout elapses without it being taken again.
// Junk communicators (ones that always error) should be
// Destroy()'d and not returned with Put.
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	p.mu.Lock()
	p.idle = append(p.idle, rwc)
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.timeout, p.reclaim)
	p.mu.Unlock()
	<-p.lease
}

// Destroy immediately frees a communicator from the pool.  This should be used
// instead of Put if the communicator has gone bad.
func (p *Pool) Destroy(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	rwc.Close()
	<-p.lease
}

// ReturnWithError returns rw to the pool if err is nil, and destroys it
// otherwise.  A connection that saw an error may hold a half-read reply.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if err != nil {
		p.Destroy(rw)
		return
	}
	p.Put(rw)
}

// Size returns the number of connections in the pool, or given out from it
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle) + len(p.lease)
}

// Active returns the number of connections owned by the pool that are currently
// given out
func (p *Pool) Active() int {
	return len(p.lease)
}

// Close frees every idle connection.  Connections on lease are unaffected
// and are kept if they are Put back.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	var first error
	for _, c := range idle {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// reclaim is run by the idle timer
func (p *Pool) reclaim() {
	p.Close()
}
