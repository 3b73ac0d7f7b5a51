package qspi

import (
	"errors"
	"fmt"
	"slices"
)

// Phase spec encodings in the table below:
//
//	address, dummy: byte count in bits 0-1, |4 if Dual, |8 if Quad.
//	data:           |1 if master driven, |2 if slave driven, |4 if Dual, |8 if Quad.
type instructionDef struct {
	opcode  uint8
	address uint8
	dummy   uint8
	data    uint8
	// Display labels, longest first.
	labels []string
}

// DefaultInstructionSet is the name of the built-in instruction set. It
// holds the commands most commonly implemented across SPI NOR flash chips.
const DefaultInstructionSet = "auto"

var autoDefs = []instructionDef{
	{0x01, 0, 0, 1, []string{"Write status reg 1", "Write SR1", "W SR1"}},
	{0x02, 3, 0, 1, []string{"Write data", "Write", "W"}},
	{0x03, 3, 0, 2, []string{"Read data", "Read", "R"}},
	{0x04, 0, 0, 0, []string{"Write Disable", "WrDis"}},
	{0x05, 0, 0, 2, []string{"Read status reg 1", "Read SR1", "R SR1"}},
	{0x06, 0, 0, 0, []string{"Write Enable", "WrEn"}},
	{0x0B, 3, 1, 2, []string{"Read fast", "Readf", "Rf"}},
	{0x11, 0, 0, 1, []string{"Write status reg 3", "Write SR3", "W SR3"}},
	{0x15, 0, 0, 2, []string{"Read status reg 3", "Read SR3", "R SR3"}},
	{0x20, 3, 0, 0, []string{"4K Erase", "E4K"}},
	{0x31, 0, 0, 1, []string{"Write status reg 2", "Write SR2", "W SR2"}},
	{0x35, 0, 0, 2, []string{"Read status reg 2", "Read SR2", "R SR2"}},
	{0x36, 3, 0, 0, []string{"Block lock", "Lock", "Lk"}},
	{0x39, 3, 0, 0, []string{"Block unlock", "Unlock", "UnLk"}},
	{0x3D, 3, 0, 2, []string{"Read block lock", "Read lock", "R Lk"}},
	{0x42, 3, 0, 1, []string{"Write security reg", "Write Sec", "W Sec"}},
	{0x44, 3, 0, 0, []string{"Erase security reg", "Erase Sec", "E Sec"}},
	{0x48, 3, 1, 2, []string{"Read security reg", "Read Sec", "R Sec"}},
	{0x4B, 0, 4, 2, []string{"Read UID", "UID"}},
	{0x50, 0, 0, 0, []string{"Volatile Write Enable", "VolWrEn"}},
	{0x52, 3, 0, 0, []string{"32K Erase", "E32K"}},
	{0x5A, 3, 1, 2, []string{"Read SFDP", "SFDP"}},
	{0x60, 0, 0, 0, []string{"Chip Erase", "EChip"}},
	{0x66, 0, 0, 0, []string{"Enable Reset", "RSTen"}},
	{0x75, 0, 0, 0, []string{"Suspend"}},
	{0x7A, 0, 0, 0, []string{"Resume"}},
	{0x7E, 0, 0, 0, []string{"Global block lock", "Global lock", "Glock"}},
	{0x90, 3, 0, 2, []string{"Manufacturer/Device ID", "MF/Dev ID"}},
	{0x98, 0, 0, 0, []string{"Global block unlock", "Global unlock", "Gunlock"}},
	{0x99, 0, 0, 0, []string{"Reset", "RST"}},
	{0x9F, 0, 0, 2, []string{"JEDEC ID", "JEDEC"}},
	{0xAB, 3, 0, 2, []string{"Power up/Device ID", "PowUp/Dev ID"}},
	{0xB9, 0, 0, 0, []string{"Power-down"}},
	{0xC7, 0, 0, 0, []string{"Chip Erase", "EChip"}},
	{0xD8, 3, 0, 0, []string{"64K Erase", "E64K"}},

	// Dual.
	{0x3B, 3, 2 | specDual, 2 | specDual, []string{"Read Dual O", "DReadO"}},
	{0x92, 3 | specDual, 1 | specDual, 2 | specDual, []string{"Mfr/Dev ID Dual I/O", "IDDual"}},
	{0xBB, 3 | specDual, 1 | specDual, 2 | specDual, []string{"Read Dual I/O", "DReadIO"}},

	// Quad.
	{0x32, 3, 0, 1 | specQuad, []string{"Write Quad", "WQ"}},
	{0x6B, 3, 0 | specQuad, 2 | specQuad, []string{"Read Quad O", "ReadQO", "RQO"}},
	{0x77, 0, 3 | specQuad, 1 | specQuad, []string{"Set Burst Wrap", "Burst Wrap", "BWrap"}},
	{0x94, 3 | specQuad, 3 | specQuad, 2 | specQuad, []string{"Mfr/Dev ID Quad I/O", "IDQuad"}},
	{0xEB, 3 | specQuad, 3 | specQuad, 2 | specQuad, []string{"Read Quad I/O", "ReadQ", "RQ"}},
}

var (
	ErrUnknownInstructionSet = errors.New("qspi: unknown instruction set")
	ErrBadPhaseSpec          = errors.New("qspi: bad phase spec")
)

// PhaseSpecError reports an instruction table entry whose encoded phase
// spec is contradictory.
type PhaseSpecError struct {
	Opcode uint8
	Phase  string
	Spec   uint8
}

func (e *PhaseSpecError) Error() string {
	return fmt.Sprintf("qspi: opcode %#04x %s spec %#x: both dual and quad set or out of range", e.Opcode, e.Phase, e.Spec)
}

func (e *PhaseSpecError) Unwrap() error { return ErrBadPhaseSpec }

// Instruction is a decoded instruction table entry.
type Instruction struct {
	Opcode  uint8
	Address CountPhase
	Dummy   CountPhase
	Data    DataPhase
	// Labels from longest to shortest.
	Labels []string
}

// Name returns the longest label.
func (ins *Instruction) Name() string {
	if len(ins.Labels) == 0 {
		return ""
	}
	return ins.Labels[0]
}

// InstructionSet maps opcodes to instructions. It is read-only after
// construction and may be shared between decoders.
type InstructionSet struct {
	name  string
	table [256]*Instruction
}

var builtinSets = map[string][]instructionDef{
	DefaultInstructionSet: autoDefs,
}

// LookupInstructionSet returns the built-in instruction set called name.
func LookupInstructionSet(name string) (*InstructionSet, error) {
	defs, ok := builtinSets[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownInstructionSet, name)
	}
	return compileInstructionSet(name, defs)
}

// compileInstructionSet validates defs and decodes their phase specs once.
func compileInstructionSet(name string, defs []instructionDef) (*InstructionSet, error) {
	set := &InstructionSet{name: name}
	var errs []error
	for _, def := range defs {
		for _, p := range [...]struct {
			name string
			spec uint8
		}{{"address", def.address}, {"dummy", def.dummy}, {"data", def.data}} {
			if !checkPhaseSpec(p.spec) {
				errs = append(errs, &PhaseSpecError{Opcode: def.opcode, Phase: p.name, Spec: p.spec})
			}
		}
		if set.table[def.opcode] != nil {
			errs = append(errs, fmt.Errorf("qspi: duplicate opcode %#04x in instruction set %q", def.opcode, name))
		}
		set.table[def.opcode] = &Instruction{
			Opcode:  def.opcode,
			Address: DecodeCountPhase(def.address),
			Dummy:   DecodeCountPhase(def.dummy),
			Data:    DecodeDataPhase(def.data),
			Labels:  slices.Clone(def.labels),
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}

// Name of the instruction set.
func (set *InstructionSet) Name() string { return set.name }

// Lookup returns the instruction for opcode or nil if the opcode is not
// part of the set.
func (set *InstructionSet) Lookup(opcode uint8) *Instruction {
	return set.table[opcode]
}

// Instructions returns all instructions in ascending opcode order.
func (set *InstructionSet) Instructions() []*Instruction {
	var list []*Instruction
	for _, ins := range set.table {
		if ins != nil {
			list = append(list, ins)
		}
	}
	return list
}
