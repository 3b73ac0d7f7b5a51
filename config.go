package qspi

import (
	"errors"
	"fmt"
	"log/slog"
)

// Edge is the clock transition on which data lines are sampled.
type Edge uint8

const (
	EdgeRising Edge = iota
	EdgeFalling
)

func (e Edge) String() string {
	if e == EdgeFalling {
		return "falling"
	}
	return "rising"
}

// ParseEdge parses "rising" or "falling".
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "rising", "r":
		return EdgeRising, nil
	case "falling", "f":
		return EdgeFalling, nil
	}
	return 0, fmt.Errorf("qspi: invalid clock edge %q", s)
}

// BitOrder of bits within a line group.
//
// The decoder always assembles bytes most significant bit first. The
// option is carried so configurations from other tools are accepted, and
// has no effect on decoding.
type BitOrder uint8

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

func (b BitOrder) String() string {
	if b == LSBFirst {
		return "lsb-first"
	}
	return "msb-first"
}

// ParseBitOrder parses "msb-first" or "lsb-first".
func ParseBitOrder(s string) (BitOrder, error) {
	switch s {
	case "msb-first", "msb":
		return MSBFirst, nil
	case "lsb-first", "lsb":
		return LSBFirst, nil
	}
	return 0, fmt.Errorf("qspi: invalid bit order %q", s)
}

var (
	ErrMissingMOSI  = errors.New("qspi: MOSI/IO0 line not connected")
	ErrMissingClock = errors.New("qspi: clock line not connected")
)

// Config is fixed for the lifetime of a Decoder.
type Config struct {
	ClockEdge Edge
	BitOrder  BitOrder
	// InstructionSet names a built-in set. Empty selects DefaultInstructionSet.
	InstructionSet string
	// Logger receives decoder logs. Nil disables logging.
	Logger *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		ClockEdge:      EdgeRising,
		BitOrder:       MSBFirst,
		InstructionSet: DefaultInstructionSet,
	}
}
