package sim

import "github.com/soypat/qspi"

// Frame is one memory bus transaction. Phases are clocked at the line
// widths the instruction set defines for Opcode; an opcode the set does not
// know sends Data on one line from the master.
type Frame struct {
	Opcode  uint8
	Address []byte
	Dummy   []byte
	Data    []byte
	// Partial bit groups sent after Data at the data phase width, taken
	// from the most significant end of PartialByte.
	PartialGroups int
	PartialByte   byte
}

// Send clocks f onto the bus between chip select assertion and release.
func (b *Bus) Send(set *qspi.InstructionSet, f Frame) {
	b.Select()
	b.Write(1, []byte{f.Opcode})
	ins := set.Lookup(f.Opcode)
	if ins == nil {
		b.Write(1, f.Data)
		b.Bits(1, f.PartialByte, f.PartialGroups)
		b.Deselect()
		return
	}
	b.Write(phaseWidth(ins.Address), f.Address)
	b.Write(phaseWidth(ins.Dummy), f.Dummy)
	width := ins.Data.Width
	if ins.Data.Direction == qspi.MasterWrite || !ins.Data.Active {
		b.Write(width, f.Data)
	} else {
		b.Read(width, f.Data)
	}
	b.Bits(width, f.PartialByte, f.PartialGroups)
	b.Deselect()
}

// SendAll sends frames back to back and returns the first error the bus
// recorded.
func SendAll(b *Bus, set *qspi.InstructionSet, frames ...Frame) error {
	for _, f := range frames {
		b.Send(set, f)
	}
	return b.err
}

func phaseWidth(p qspi.CountPhase) uint8 {
	if !p.Active {
		return 1
	}
	return p.Width
}
