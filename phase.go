package qspi

// Phase spec bit layout shared by address, dummy and data specs.
const (
	specCountMask = 0b0011
	specDual      = 1 << 2
	specQuad      = 1 << 3
	// Data spec only: payload driven by master (MOSI) or slave (MISO).
	specDataMaster = 1 << 0
	specDataSlave  = 1 << 1

	maxPhaseSpec = 0xf
)

// Direction of a data phase payload.
type Direction uint8

const (
	// MasterWrite payload is driven by the bus master (MOSI side).
	MasterWrite Direction = iota
	// SlaveRead payload is driven by the device (MISO side).
	SlaveRead
)

func (d Direction) String() string {
	if d == MasterWrite {
		return "master"
	}
	return "slave"
}

// CountPhase is the decoded form of an address or dummy phase spec.
type CountPhase struct {
	Active bool
	// Width is the number of data lines: 1, 2 or 4.
	Width uint8
	// Count is the encoded byte count 0..3. See Bytes.
	Count uint8
}

// Bytes returns the number of bytes the phase consumes on the bus. An
// active phase with an encoded count of 0 still consumes one byte.
func (p CountPhase) Bytes() int {
	if !p.Active {
		return 0
	}
	return max(int(p.Count), 1)
}

// DataPhase is the decoded form of a data phase spec. A data phase has no
// length, it lasts until the frame is terminated.
type DataPhase struct {
	Active    bool
	Width     uint8
	Direction Direction
}

// DecodeCountPhase decodes an address or dummy phase spec.
func DecodeCountPhase(spec uint8) CountPhase {
	return CountPhase{
		Active: spec != 0,
		Width:  specWidth(spec),
		Count:  spec & specCountMask,
	}
}

// DecodeDataPhase decodes a data phase spec. Bit 0 selects a master driven
// payload; anything else is read from the device.
func DecodeDataPhase(spec uint8) DataPhase {
	dir := SlaveRead
	if spec&specDataMaster != 0 {
		dir = MasterWrite
	}
	return DataPhase{
		Active:    spec != 0,
		Width:     specWidth(spec),
		Direction: dir,
	}
}

func specWidth(spec uint8) uint8 {
	switch {
	case spec&specQuad != 0:
		return 4
	case spec&specDual != 0:
		return 2
	}
	return 1
}

// checkPhaseSpec rejects encodings the decoder cannot represent.
func checkPhaseSpec(spec uint8) bool {
	return spec <= maxPhaseSpec && spec&(specDual|specQuad) != specDual|specQuad
}
