// Package keithley provides an interface to the Keithley 3706A system switch
// and its matrix cards.
//
// The 3706A speaks TSP.  Queries are wrapped in print(...) by the
// Commander; *IDN? is the one command sent as-is.
package keithley

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nasa-jpl/golab-switch/comm"
	"github.com/nasa-jpl/golab-switch/tsp"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

const (
	// NumSlots is the number of card slots in the 3706A mainframe
	NumSlots = 6

	// EmptySlot is the reply to slot[i].idn for a slot with no card
	EmptySlot = "Empty Slot"

	// idnModelPrefix is stripped from the model field of *IDN?, "MODEL 3706A" -> "3706A"
	idnModelPrefix = 6

	minGPIBAddress = 1
	maxGPIBAddress = 30
)

// ErrGPIBAddressRange is returned when a GPIB address outside 1..30 is requested
var ErrGPIBAddressRange = fmt.Errorf("GPIB address must be between %d and %d", minGPIBAddress, maxGPIBAddress)

// Commander is the transport a Switch talks through.  *tsp.TSP satisfies it.
type Commander interface {
	// Write sends a command with no reply
	Write(string) error

	// Query sends print(cmd) and returns the reply line
	Query(string) (string, error)

	// QueryRaw sends cmd as-is and returns the reply line
	QueryRaw(string) (string, error)
}

// Identity is the parsed *IDN? reply
type Identity struct {
	Vendor   string `json:"vendor"`
	Model    string `json:"model"`
	Serial   string `json:"serial"`
	Firmware string `json:"firmware"`
}

// SlotInfo describes one installed switch card
type SlotInfo struct {
	Slot       int    `json:"slot"`
	Model      string `json:"model"`
	MatrixType string `json:"matrixType"`
	Firmware   string `json:"firmware"`
	Serial     string `json:"serial"`
}

// Memory holds the free memory percentages reported by memory.available()
type Memory struct {
	System  string `json:"system"`
	Script  string `json:"script"`
	Pattern string `json:"pattern"`
	Config  string `json:"config"`
}

// Switch is a 3706A system switch
type Switch struct {
	c Commander
}

// New returns a Switch which communicates through c
func New(c Commander) *Switch {
	return &Switch{c: c}
}

// NewSwitch creates a new Switch at addr, which is host:port for a LAN
// connection (the 3706A listens for raw commands on port 5025) or a
// device path such as /dev/ttyUSB0 if useSerial is true
func NewSwitch(addr string, useSerial bool) *Switch {
	var maker comm.CreationFunc
	if useSerial {
		maker = comm.SerialConnMaker(makeSerConf(addr))
	} else {
		maker = comm.BackingOffTCPConnMaker(addr, 3*time.Second)
	}
	pool := comm.NewPool(1, 10*time.Second, maker)
	return New(&tsp.TSP{Pool: pool})
}

// makeSerConf makes a new serial.Config with the 3706A's factory RS-232 settings
func makeSerConf(addr string) *serial.Config {
	return &serial.Config{
		Name:        addr,
		Baud:        9600,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: tsp.DefaultTimeout}
}

// splitFields splits a comma separated reply into exactly n trimmed fields
func splitFields(resp string, n int) ([]string, error) {
	pieces := strings.Split(resp, ",")
	if len(pieces) != n {
		return nil, fmt.Errorf("expected %d comma separated fields, got %d in %q", n, len(pieces), resp)
	}
	for i := range pieces {
		pieces[i] = strings.TrimSpace(pieces[i])
	}
	return pieces, nil
}

// parseIdentity parses a reply such as
//
// KEITHLEY INSTRUMENTS,MODEL 3706A,1234567,1.0.0
func parseIdentity(resp string) (Identity, error) {
	f, err := splitFields(resp, 4)
	if err != nil {
		return Identity{}, err
	}
	model := ""
	if len(f[1]) > idnModelPrefix {
		model = f[1][idnModelPrefix:]
	}
	return Identity{Vendor: f[0], Model: model, Serial: f[2], Firmware: f[3]}, nil
}

// parseSlot parses a slot[i].idn reply.  ok is false for an empty slot.
func parseSlot(slot int, resp string) (info SlotInfo, ok bool, err error) {
	if strings.TrimSpace(resp) == EmptySlot {
		return SlotInfo{}, false, nil
	}
	f, err := splitFields(resp, 4)
	if err != nil {
		return SlotInfo{}, false, errors.Wrapf(err, "slot %d", slot)
	}
	return SlotInfo{Slot: slot, Model: f[0], MatrixType: f[1], Firmware: f[2], Serial: f[3]}, true, nil
}

func parseMemory(resp string) (Memory, error) {
	f, err := splitFields(resp, 4)
	if err != nil {
		return Memory{}, err
	}
	return Memory{System: f[0], Script: f[1], Pattern: f[2], Config: f[3]}, nil
}

func (s *Switch) queryInt(cmd string) (int, error) {
	resp, err := s.c.Query(cmd)
	if err != nil {
		return 0, err
	}
	return tsp.ParseInt(resp)
}

func (s *Switch) queryBool(cmd string) (bool, error) {
	resp, err := s.c.Query(cmd)
	if err != nil {
		return false, err
	}
	return tsp.ParseBool(resp)
}

// Identify returns the vendor, model, serial number and firmware of the mainframe
func (s *Switch) Identify() (Identity, error) {
	resp, err := s.c.QueryRaw(cmdIDN)
	if err != nil {
		return Identity{}, err
	}
	return parseIdentity(resp)
}

// SwitchCards returns the cards installed in the mainframe, in slot order.
// Empty slots are left out.
func (s *Switch) SwitchCards() ([]SlotInfo, error) {
	cards := []SlotInfo{}
	for i := 1; i <= NumSlots; i++ {
		resp, err := s.c.Query(cmdSlotIDN(i))
		if err != nil {
			return nil, err
		}
		info, ok, err := parseSlot(i, resp)
		if err != nil {
			return nil, err
		}
		if ok {
			cards = append(cards, info)
		}
	}
	return cards, nil
}

// Rows returns the number of matrix rows on the card in slot
func (s *Switch) Rows(slot int) (int, error) {
	return s.queryInt(cmdSlotRows(slot))
}

// Columns returns the number of matrix columns on the card in slot
func (s *Switch) Columns(slot int) (int, error) {
	return s.queryInt(cmdSlotColumns(slot))
}

// Channels lists every matrix channel on the installed cards.
// The list is built fresh from the instrument on every call.
func (s *Switch) Channels() ([]string, error) {
	cards, err := s.SwitchCards()
	if err != nil {
		return nil, err
	}
	return EnumerateChannels(cards, s.Rows, s.Columns)
}

// GPIBEnabled returns true if the GPIB interface is enabled
func (s *Switch) GPIBEnabled() (bool, error) {
	return s.queryBool(cmdGPIBEnable)
}

// SetGPIBEnabled enables or disables the GPIB interface
func (s *Switch) SetGPIBEnabled(b bool) error {
	return s.c.Write(assignBool(cmdGPIBEnable, b))
}

// GPIBAddress returns the GPIB address of the mainframe
func (s *Switch) GPIBAddress() (int, error) {
	return s.queryInt(cmdGPIBAddress)
}

// SetGPIBAddress sets the GPIB address, which must be in 1..30
func (s *Switch) SetGPIBAddress(addr int) error {
	if addr < minGPIBAddress || addr > maxGPIBAddress {
		return ErrGPIBAddressRange
	}
	return s.c.Write(cmdSetGPIBAddress(addr))
}

// LANEnabled returns true if the LAN interface is enabled
func (s *Switch) LANEnabled() (bool, error) {
	return s.queryBool(cmdLANEnable)
}

// SetLANEnabled enables or disables the LAN interface
func (s *Switch) SetLANEnabled(b bool) error {
	return s.c.Write(assignBool(cmdLANEnable, b))
}

// IPAddress returns the IP address of the LAN interface
func (s *Switch) IPAddress() (string, error) {
	return s.c.Query(cmdIPAddress)
}

// ResetLAN resets the LAN interface to its stored settings
func (s *Switch) ResetLAN() error {
	return s.c.Write(cmdLANReset)
}

// SaveSetup saves the present setup.  An empty name saves to internal
// memory; otherwise name is a file path, e.g. /usb1/matrix_setup.
func (s *Switch) SaveSetup(name string) error {
	return s.c.Write(cmdSetupSave(name))
}

// RecallSetup recalls a setup saved in internal memory.  0 is the factory default.
func (s *Switch) RecallSetup(id int) error {
	return s.c.Write(cmdSetupRecall(id))
}

// RecallSetupFile recalls a setup saved to a file
func (s *Switch) RecallSetupFile(name string) error {
	return s.c.Write(cmdSetupRecallFile(name))
}

// AvailableMemory returns the percentage of free system, script, pattern and config memory
func (s *Switch) AvailableMemory() (Memory, error) {
	resp, err := s.c.Query(cmdMemoryAvailable)
	if err != nil {
		return Memory{}, err
	}
	return parseMemory(resp)
}

// CloseChannel closes a channel, or a comma separated list of them
func (s *Switch) CloseChannel(ch string) error {
	return s.c.Write(cmdChannelClose(ch))
}

// OpenChannel opens a channel, or a comma separated list of them
func (s *Switch) OpenChannel(ch string) error {
	return s.c.Write(cmdChannelOpen(ch))
}

// OpenAll opens every channel in every slot
func (s *Switch) OpenAll() error {
	return s.c.Write(cmdOpenAll)
}

// ClosedChannels returns the channels which are closed
func (s *Switch) ClosedChannels() ([]string, error) {
	resp, err := s.c.Query(cmdClosedChannels)
	if err != nil {
		return nil, err
	}
	resp = strings.TrimSpace(resp)
	if resp == "nil" || resp == "" {
		return []string{}, nil
	}
	return strings.Split(resp, ";"), nil
}

// Errors drains the error queue of the instrument.  Each entry looks like
//
// -285, TSP Syntax error at line 1: unexpected symbol near `*', 2, 0
func (s *Switch) Errors() ([]error, error) {
	n, err := s.queryInt(cmdErrorCount)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		n = 0
	}
	errs := make([]error, 0, n)
	for i := 0; i < n; i++ {
		resp, err := s.c.Query(cmdErrorNext)
		if err != nil {
			return errs, err
		}
		errs = append(errs, parseQueueEntry(resp))
	}
	return errs, nil
}

// InstrumentError is an entry from the instrument error queue
type InstrumentError struct {
	Code    int
	Message string
}

// Error satisfies stdlib error interface
func (e InstrumentError) Error() string {
	return fmt.Sprintf("%d - %s", e.Code, e.Message)
}

func parseQueueEntry(resp string) error {
	pieces := strings.Split(resp, ",")
	code, err := tsp.ParseInt(pieces[0])
	if err != nil || len(pieces) < 2 {
		return InstrumentError{Message: strings.TrimSpace(resp)}
	}
	// the message may itself contain commas; severity and node trail it
	msg := pieces[1:]
	if len(msg) > 2 {
		msg = msg[:len(msg)-2]
	}
	return InstrumentError{Code: code, Message: strings.TrimSpace(strings.Join(msg, ","))}
}

// Raw sends a command and returns the reply if it was a query
func (s *Switch) Raw(cmd string) (string, error) {
	if r, ok := s.c.(interface {
		Raw(string) (string, error)
	}); ok {
		return r.Raw(cmd)
	}
	if strings.HasPrefix(strings.TrimSpace(cmd), "print(") || strings.Contains(cmd, "?") {
		return s.c.QueryRaw(cmd)
	}
	return "", s.c.Write(cmd)
}

// ConnectMessage identifies the mainframe and its cards, logs the result
// and returns it as lines of text
func (s *Switch) ConnectMessage() ([]string, error) {
	idn, err := s.Identify()
	if err != nil {
		return nil, err
	}
	cards, err := s.SwitchCards()
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(cards)+1)
	lines = append(lines, fmt.Sprintf("Connected to: %s %s SYSTEM SWITCH (serial:%s, firmware:%s)",
		idn.Vendor, idn.Model, idn.Serial, idn.Firmware))
	log.Printf("connected to instrument: %+v\n", idn)
	for _, c := range cards {
		lines = append(lines, fmt.Sprintf("Slot %d- Model:%s, Matrix Type:%s, Firmware:%s, Serial:%s",
			c.Slot, c.Model, c.MatrixType, c.Firmware, c.Serial))
		log.Printf("switch card: %+v\n", c)
	}
	return lines, nil
}
