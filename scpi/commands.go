// Package scpi holds the BK Precision 549x command set and turns raw CONF?
// and READ? responses into display text.
package scpi

import "github.com/allbin/bkmeter/serial"

// IdentitySignature is contained in the *IDN? answer of every 549x model.
const IdentitySignature = "BK Precision,549"

const (
	Identify                 serial.Command = "*IDN?"
	Reset                    serial.Command = "*RST"
	Remote                   serial.Command = "SYST:REM"
	Local                    serial.Command = "LOC"
	QueryConfig              serial.Command = "CONF?"
	Read                     serial.Command = "READ?"
	QueryFunction            serial.Command = "SENS:FUNC1?"
	QueryContinuityThreshold serial.Command = "SENS:CONT:THR?"
	BeepOn                   serial.Command = "SYST:BEEP:STAT 1"
	BeepOff                  serial.Command = "SYST:BEEP:STAT 0"
	Beep                     serial.Command = "SYST:BEEP"
	ACSpeedFast              serial.Command = "VOLT:AC:SPEE FAST"
	DCIntegrationFast        serial.Command = "VOLT:NPLC 1"
	ResistanceAutoZero       serial.Command = "RES:ZERO:AUTO ON"
)

// BeepPolicy returns the command enabling or disabling the key beeper.
func BeepPolicy(enabled bool) serial.Command {
	if enabled {
		return BeepOn
	}
	return BeepOff
}

// ForcedBeep sounds the beeper once even when it is disabled, then turns it
// back off.
func ForcedBeep() []serial.Command {
	return []serial.Command{BeepOn, Beep, BeepOff}
}

// FastReadings trades resolution for update rate on the voltage functions.
func FastReadings() []serial.Command {
	return []serial.Command{ACSpeedFast, DCIntegrationFast}
}
