// Package tsp provides primitives for working with instruments that are
// driven by Keithley's Test Script Processor (TSP) command language.
//
// TSP commands are lines of Lua.  Assignments and function calls produce no
// output, so anything that should come back over the wire must be wrapped
// in print(...).  Query does that wrapping; Write does not.
package tsp

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nasa-jpl/golab-switch/comm"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is used when TSP.Timeout is zero
	DefaultTimeout = 5 * time.Second

	tcpFrameSize = 1500

	// maxReplySize bounds a reply that never terminates
	maxReplySize = 1 << 20
)

// ErrNotBoolean is returned when a reply is neither true nor false
var ErrNotBoolean = errors.New("not a boolean")

// PrintWrap wraps cmd in the print(...) envelope the instrument
// needs before it will send a reply
func PrintWrap(cmd string) string {
	return "print(" + cmd + ")"
}

// TSP is a type for encapsulating TSP communication
type TSP struct {
	Pool *comm.Pool

	// Limiter, if not nil, paces every command sent to the instrument
	Limiter *rate.Limiter

	// Timeout bounds each read and write; DefaultTimeout if zero
	Timeout time.Duration
}

func (t *TSP) timeout() time.Duration {
	if t.Timeout == 0 {
		return DefaultTimeout
	}
	return t.Timeout
}

func (t *TSP) exchange(cmd string, read bool) ([]byte, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(context.Background()); err != nil {
			return nil, err
		}
	}
	conn, err := t.Pool.Get()
	if err != nil {
		return nil, err
	}
	defer func() { t.Pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap = comm.NewTerminator(conn, '\n', '\n')
	wrap, err = comm.NewTimeout(wrap, t.timeout())
	if err != nil {
		return nil, err
	}
	_, err = io.WriteString(wrap, cmd)
	if err != nil || !read {
		return nil, err
	}
	// long replies such as channel.getclose span many frames
	var resp []byte
	buf := make([]byte, tcpFrameSize)
	for {
		var n int
		n, err = wrap.Read(buf)
		resp = append(resp, buf[:n]...)
		if err == comm.ErrTerminatorNotFound && n == len(buf) {
			if len(resp) >= maxReplySize {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

// Write sends a command to the device.  No reply is read.
func (t *TSP) Write(cmd string) error {
	_, err := t.exchange(cmd, false)
	return err
}

// WriteRead sends a command verbatim and reads one line of reply
func (t *TSP) WriteRead(cmd string) ([]byte, error) {
	return t.exchange(cmd, true)
}

// QueryRaw sends cmd without the print wrapper and returns the reply as a
// string with the line ending removed.  It is meant for common commands
// such as *IDN? which reply on their own.
func (t *TSP) QueryRaw(cmd string) (string, error) {
	resp, err := t.WriteRead(cmd)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(resp), "\r\n"), nil
}

// Query sends print(cmd) to the device and returns the reply
func (t *TSP) Query(cmd string) (string, error) {
	return t.QueryRaw(PrintWrap(cmd))
}

// QueryFloat sends a query and parses the reply as a floating point value
func (t *TSP) QueryFloat(cmd string) (float64, error) {
	resp, err := t.Query(cmd)
	if err != nil {
		return 0, err
	}
	return ParseFloat(resp)
}

// QueryInt sends a query and parses the reply as an integer.  TSP prints
// every number as a float ("2.40000e+01"), so the value is truncated.
func (t *TSP) QueryInt(cmd string) (int, error) {
	resp, err := t.Query(cmd)
	if err != nil {
		return 0, err
	}
	return ParseInt(resp)
}

// QueryBool sends a query and parses the reply as a boolean
func (t *TSP) QueryBool(cmd string) (bool, error) {
	resp, err := t.Query(cmd)
	if err != nil {
		return false, err
	}
	return ParseBool(resp)
}

// Raw sends a command to the device and returns a response if it was a query,
// else a blank string.  print(...) lines and lines with a ? are queries.
func (t *TSP) Raw(str string) (string, error) {
	if strings.Contains(str, "?") || strings.HasPrefix(strings.TrimSpace(str), "print(") {
		return t.QueryRaw(str)
	}
	return "", t.Write(str)
}

// ParseFloat parses a TSP number
func ParseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "reply %q is not a number", s)
	}
	return f, nil
}

// ParseInt parses a TSP number and truncates it to an integer
func ParseInt(s string) (int, error) {
	f, err := ParseFloat(s)
	return int(f), err
}

// ParseBool parses a TSP boolean.  print() renders them only as true or
// false; anything else is an error.
func ParseBool(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, errors.Wrapf(ErrNotBoolean, "reply %q", s)
}
