package keithley

import (
	"fmt"
	"strconv"
)

// command strings understood by the 3706A.  Queries are sent through the
// print wrapper, except cmdIDN which the instrument answers directly.
const (
	cmdIDN             = "*IDN?"
	cmdGPIBEnable      = "comm.gpib.enable"
	cmdGPIBAddress     = "gpib.address"
	cmdLANEnable       = "comm.lan.enable"
	cmdIPAddress       = "lan.status.ipaddress"
	cmdLANReset        = "lan.reset()"
	cmdMemoryAvailable = "memory.available()"
	cmdErrorCount      = "errorqueue.count"
	cmdErrorNext       = "errorqueue.next()"
	cmdClosedChannels  = `channel.getclose("allslots")`
	cmdOpenAll         = `channel.open("allslots")`
)

func cmdSlotIDN(slot int) string {
	return fmt.Sprintf("slot[%d].idn", slot)
}

func cmdSlotRows(slot int) string {
	return fmt.Sprintf("slot[%d].rows.matrix", slot)
}

func cmdSlotColumns(slot int) string {
	return fmt.Sprintf("slot[%d].columns.matrix", slot)
}

// assignBool formats "<attr> = <value>" for a boolean attribute
func assignBool(attr string, b bool) string {
	return attr + " = " + strconv.FormatBool(b)
}

func cmdSetGPIBAddress(addr int) string {
	return cmdGPIBAddress + " = " + strconv.Itoa(addr)
}

// cmdSetupSave saves to internal nonvolatile memory when name is empty
func cmdSetupSave(name string) string {
	if name == "" {
		return "setup.save()"
	}
	return fmt.Sprintf("setup.save(%q)", name)
}

func cmdSetupRecall(id int) string {
	return fmt.Sprintf("setup.recall(%d)", id)
}

func cmdSetupRecallFile(name string) string {
	return fmt.Sprintf("setup.recall(%q)", name)
}

func cmdChannelClose(ch string) string {
	return fmt.Sprintf("channel.close(%q)", ch)
}

func cmdChannelOpen(ch string) string {
	return fmt.Sprintf("channel.open(%q)", ch)
}
