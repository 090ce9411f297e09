package keithley

import (
	"bufio"
	"fmt"
	"log"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MockCard is a card installed in a MockInstrument
type MockCard struct {
	SlotInfo
	Rows    int
	Columns int
}

// MockInstrument emulates the subset of the 3706A's TSP interface used by
// Switch, listening on a TCP port.  It is used by the tests and by switchsrv
// when configured with Mock: true.
type MockInstrument struct {
	mu sync.Mutex

	Identity string
	Cards    map[int]MockCard

	GPIBEnable  bool
	GPIBAddress int
	LANEnable   bool
	IP          string

	// Saved and Recalled hold the arguments of every setup.save and
	// setup.recall call
	Saved    []string
	Recalled []string

	closed map[string]bool
	errs   []string

	ln    net.Listener
	conns map[net.Conn]struct{}
}

// NewMockInstrument returns a mock mainframe with a 3730 (6x16) in slot 1 and
// a 3732 (4x28) in slot 3
func NewMockInstrument() *MockInstrument {
	return &MockInstrument{
		Identity: "KEITHLEY INSTRUMENTS,MODEL 3706A,1234567,01.53a",
		Cards: map[int]MockCard{
			1: {SlotInfo{Slot: 1, Model: "3730", MatrixType: "6x16 High Density Matrix", Firmware: "01.40a", Serial: "4447150"}, 6, 16},
			3: {SlotInfo{Slot: 3, Model: "3732", MatrixType: "Quad 4x28 Ultra-high Density Reed Relay Matrix", Firmware: "01.40d", Serial: "4447152"}, 4, 28},
		},
		GPIBEnable:  true,
		GPIBAddress: 16,
		LANEnable:   true,
		IP:          "192.168.0.2",
		closed:      map[string]bool{},
		conns:       map[net.Conn]struct{}{},
	}
}

// Listen starts serving on addr, e.g. 127.0.0.1:0, and returns the address
// actually bound
func (m *MockInstrument) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	m.ln = ln
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			m.mu.Lock()
			m.conns[conn] = struct{}{}
			m.mu.Unlock()
			go m.serve(conn)
		}
	}()
	return ln.Addr().String(), nil
}

// Setups returns the arguments of every setup.save and setup.recall seen so far
func (m *MockInstrument) Setups() (saved, recalled []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Saved...), append([]string(nil), m.Recalled...)
}

// Address returns the current GPIB address
func (m *MockInstrument) Address() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GPIBAddress
}

// Close stops listening and hangs up every open connection
func (m *MockInstrument) Close() error {
	if m.ln == nil {
		return nil
	}
	err := m.ln.Close()
	m.mu.Lock()
	for conn := range m.conns {
		conn.Close()
	}
	m.mu.Unlock()
	return err
}

// Connections returns the number of connections being served
func (m *MockInstrument) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *MockInstrument) serve(conn net.Conn) {
	defer func() {
		conn.Close()
		m.mu.Lock()
		delete(m.conns, conn)
		m.mu.Unlock()
	}()
	scn := bufio.NewScanner(conn)
	for scn.Scan() {
		reply, ok := m.Handle(strings.TrimSpace(scn.Text()))
		if ok {
			if _, err := conn.Write([]byte(reply + "\n")); err != nil {
				return
			}
		}
	}
}

// Handle executes one line of TSP.  ok is true if the line produces output.
func (m *MockInstrument) Handle(line string) (reply string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if line == cmdIDN {
		return m.Identity, true
	}
	if strings.HasPrefix(line, "print(") && strings.HasSuffix(line, ")") {
		return m.eval(line[len("print(") : len(line)-1]), true
	}
	if idx := strings.Index(line, " = "); idx != -1 {
		m.assign(line[:idx], line[idx+3:])
		return "", false
	}
	m.call(line)
	return "", false
}

func tspNumber(i int) string {
	return strconv.FormatFloat(float64(i), 'e', 5, 64)
}

func (m *MockInstrument) card(expr, suffix string) (MockCard, bool) {
	var slot int
	if _, err := fmt.Sscanf(expr, "slot[%d]."+suffix, &slot); err != nil {
		return MockCard{}, false
	}
	c, ok := m.Cards[slot]
	if !ok {
		c.Slot = slot
	}
	return c, ok
}

func (m *MockInstrument) eval(expr string) string {
	switch expr {
	case cmdGPIBEnable:
		return strconv.FormatBool(m.GPIBEnable)
	case cmdGPIBAddress:
		return tspNumber(m.GPIBAddress)
	case cmdLANEnable:
		return strconv.FormatBool(m.LANEnable)
	case cmdIPAddress:
		return m.IP
	case cmdMemoryAvailable:
		return "87.50, 99.01, 100.00, 98.43"
	case cmdErrorCount:
		return tspNumber(len(m.errs))
	case cmdErrorNext:
		if len(m.errs) == 0 {
			return "0, Queue Is Empty, 0, 0"
		}
		e := m.errs[0]
		m.errs = m.errs[1:]
		return e
	case cmdClosedChannels:
		if len(m.closed) == 0 {
			return "nil"
		}
		chs := make([]string, 0, len(m.closed))
		for ch := range m.closed {
			chs = append(chs, ch)
		}
		sort.Strings(chs)
		return strings.Join(chs, ";")
	}
	switch {
	case strings.HasSuffix(expr, ".idn"):
		c, ok := m.card(expr, "idn")
		if !ok {
			return EmptySlot
		}
		return strings.Join([]string{c.Model, c.MatrixType, c.Firmware, c.Serial}, ",")
	case strings.HasSuffix(expr, ".rows.matrix"):
		c, _ := m.card(expr, "rows.matrix")
		return tspNumber(c.Rows)
	case strings.HasSuffix(expr, ".columns.matrix"):
		c, _ := m.card(expr, "columns.matrix")
		return tspNumber(c.Columns)
	}
	m.syntaxError(expr)
	return "nil"
}

func (m *MockInstrument) assign(attr, val string) {
	switch attr {
	case cmdGPIBEnable:
		m.GPIBEnable = val == "true"
	case cmdLANEnable:
		m.LANEnable = val == "true"
	case cmdGPIBAddress:
		i, err := strconv.Atoi(val)
		if err != nil || i < minGPIBAddress || i > maxGPIBAddress {
			m.errs = append(m.errs, "-222, Parameter data out of range, 2, 0")
			return
		}
		m.GPIBAddress = i
	default:
		m.syntaxError(attr)
	}
}

// args returns the text between the outer parens of a call and unquotes it
func args(line, fcn string) (string, bool) {
	if !strings.HasPrefix(line, fcn+"(") || !strings.HasSuffix(line, ")") {
		return "", false
	}
	a := line[len(fcn)+1 : len(line)-1]
	if uq, err := strconv.Unquote(a); err == nil {
		a = uq
	}
	return a, true
}

func (m *MockInstrument) call(line string) {
	if line == cmdLANReset {
		return
	}
	if a, ok := args(line, "setup.save"); ok {
		m.Saved = append(m.Saved, a)
		return
	}
	if a, ok := args(line, "setup.recall"); ok {
		m.Recalled = append(m.Recalled, a)
		return
	}
	if a, ok := args(line, "channel.close"); ok {
		for _, ch := range strings.Split(a, ",") {
			m.closed[strings.TrimSpace(ch)] = true
		}
		return
	}
	if a, ok := args(line, "channel.open"); ok {
		if a == "allslots" {
			m.closed = map[string]bool{}
			return
		}
		for _, ch := range strings.Split(a, ",") {
			delete(m.closed, strings.TrimSpace(ch))
		}
		return
	}
	m.syntaxError(line)
}

func (m *MockInstrument) syntaxError(s string) {
	log.Printf("mock 3706A: unhandled command %q\n", s)
	m.errs = append(m.errs, fmt.Sprintf("-285, TSP Syntax error at line 1: unexpected symbol near `%s', 2, 0", s))
}
