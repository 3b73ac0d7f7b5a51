package qspi

import (
	"strconv"
	"strings"
)

// Category classifies an annotation. Values match the annotation ids of
// the sigrok QUADSPI decoder so exported annotations stay comparable.
type Category uint8

const (
	CatOpcode Category = iota
	CatAddress1
	CatAddress2
	CatAddress4
	CatDummy1
	CatDummy2
	CatDummy4
	CatMaster1
	CatMaster2
	CatMaster4
	CatSlave1
	CatSlave2
	CatSlave4
	CatInstruction
	CatAddress
	CatMasterData
	CatSlaveData
	CatIncomplete
	numCategories
)

// Bytes that follow an unrecognized opcode or outlive their instruction
// share the dummy byte categories.
const (
	CatUndecoded1 = CatDummy1
	CatUndecoded2 = CatDummy2
	CatUndecoded4 = CatDummy4
)

var categoryNames = [numCategories][2]string{
	CatOpcode:      {"instr", "Instruction code"},
	CatAddress1:    {"addr1", "Address byte"},
	CatAddress2:    {"addr2", "Address byte (Dual)"},
	CatAddress4:    {"addr4", "Address byte (Quad)"},
	CatDummy1:      {"dummy1", "Dummy byte"},
	CatDummy2:      {"dummy2", "Dummy byte (Dual)"},
	CatDummy4:      {"dummy4", "Dummy byte (Quad)"},
	CatMaster1:     {"master1", "Master data byte"},
	CatMaster2:     {"master2", "Master data byte (Dual)"},
	CatMaster4:     {"master4", "Master data byte (Quad)"},
	CatSlave1:      {"slave1", "Slave data byte"},
	CatSlave2:      {"slave2", "Slave data byte (Dual)"},
	CatSlave4:      {"slave4", "Slave data byte (Quad)"},
	CatInstruction: {"instruction", "Instruction"},
	CatAddress:     {"address", "Address"},
	CatMasterData:  {"master", "Master data"},
	CatSlaveData:   {"slave", "Slave data"},
	CatIncomplete:  {"garbage", "Undecodable"},
}

func (c Category) String() string {
	if c >= numCategories {
		return "unknown"
	}
	return categoryNames[c][0]
}

// Description is the human readable category name.
func (c Category) Description() string {
	if c >= numCategories {
		return "Unknown"
	}
	return categoryNames[c][1]
}

// Row groups categories for display.
type Row uint8

const (
	RowBytes Row = iota
	RowParsed
	RowError
)

func (r Row) String() (s string) {
	switch r {
	case RowBytes:
		s = "bytes"
	case RowParsed:
		s = "parsed"
	case RowError:
		s = "error"
	}
	return s
}

// Row returns the display row the category belongs to.
func (c Category) Row() Row {
	switch {
	case c <= CatSlave4:
		return RowBytes
	case c <= CatSlaveData:
		return RowParsed
	}
	return RowError
}

// widthCategory offsets a one-line base category by line width.
func widthCategory(base Category, width uint8) Category {
	switch width {
	case 4:
		return base + 2
	case 2:
		return base + 1
	}
	return base
}

// Annotation is one output record of the decoder.
type Annotation struct {
	Start    int64
	End      int64
	Category Category
	// Labels from longest to shortest, the consumer picks what fits.
	Labels []string
}

// Annotator consumes decoder output. Annotations arrive in the order they
// are produced, which is non-decreasing in End.
type Annotator interface {
	Annotate(Annotation) error
}

// AnnotatorFunc adapts a function to the Annotator interface.
type AnnotatorFunc func(Annotation) error

func (f AnnotatorFunc) Annotate(a Annotation) error { return f(a) }

func byteLabels(b uint8) []string {
	h := hex8(b)
	return []string{"0x" + h, h}
}

func addressLabels(addr uint32) []string {
	padded := hexPad(uint64(addr), 6)
	return []string{
		"Addr: 0x" + padded,
		"A: 0x" + padded,
		"0x" + strconv.FormatUint(uint64(addr), 16),
	}
}

// payloadLabel formats a data run as count[hex bytes].
func payloadLabel(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data)*3 + 8)
	sb.WriteString(strconv.Itoa(len(data)))
	sb.WriteByte('[')
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(hex8(b))
	}
	sb.WriteByte(']')
	return sb.String()
}

func incompleteLabels(partial uint8) []string {
	h := hex8(partial)
	return []string{"Incomplete: 0x" + h, "Incomplete: " + h}
}

func hex8(b uint8) string {
	const hextable = "0123456789abcdef"
	return string([]byte{hextable[b>>4], hextable[b&0xf]})
}

func hexPad(v uint64, width int) string {
	s := strconv.FormatUint(v, 16)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}
