/*Package comm provides the transport used to talk to lab hardware.

Most usages of this package will boil down to:
	1.  make a CreationFunc for the link the hardware sits on, with
		BackingOffTCPConnMaker or SerialConnMaker
	2.  put it in a Pool so connections are reused and freed when idle
	3.  wrap each connection taken from the pool in a Terminator (and a
		Timeout, for network links) for the duration of one exchange

A minimal example is provided below for a temperature sensor that responds to
"RD?" with the current temperature, terminated by a newline

	import "strconv"

	type MySensor struct {
		pool *comm.Pool
	}

	func (ms *MySensor) ReadTemp() (float64, error) {
		conn, err := ms.pool.Get()
		if err != nil {
			return 0, err
		}
		defer func() { ms.pool.ReturnWithError(conn, err) }()
		wrap := comm.NewTerminator(conn, '\n', '\n')
		_, err = wrap.Write([]byte("RD?"))
		if err != nil {
			return 0, err
		}
		buf := make([]byte, 64)
		n, err := wrap.Read(buf)
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(string(buf[:n-1]), 64)
	}
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrNoSerialConf is generated when a serial connection is requested
	// without a configuration
	ErrNoSerialConf = errors.New("serial connection requested without a serial.Config")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}

// BackingOffTCPConnMaker returns a CreationFunc which dials addr with an
// exponential backoff.  Dials that time out are retried for a few seconds;
// a refused connection fails immediately, since nobody is listening.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		// instruments do not like being connection thrashed
		wasTimeout := false
		op := func() error {
			var err error
			conn, err = TCPSetup(addr, timeout)
			if err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "refused") {
					wasTimeout = false
					return backoff.Permanent(err)
				}
				wasTimeout = true
				return err
			}
			wasTimeout = false
			return nil
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err == nil {
			return conn, nil
		}
		if wasTimeout {
			return nil, fmt.Errorf("connection timeout to %s: %w", addr, err)
		}
		return nil, err
	}
}

// SerialConnMaker returns a CreationFunc which opens the serial port
// described by conf
func SerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		if conf == nil {
			return nil, ErrNoSerialConf
		}
		port, err := serial.OpenPort(conf)
		if err != nil {
			return nil, err
		}
		return port, nil
	}
}
