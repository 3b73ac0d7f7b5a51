package qspi

// Line identifies one signal of the bus as seen by the acquisition side.
type Line uint8

const (
	LineCLK Line = iota
	// IO0 in Dual/Quad phases, master out slave in otherwise.
	LineIO0
	// IO1 in Dual/Quad phases, master in slave out otherwise.
	LineIO1
	LineIO2
	LineIO3
	// Chip select, active low.
	LineCS
	NumLines

	LineMOSI = LineIO0
	LineMISO = LineIO1
)

func (l Line) String() (s string) {
	switch l {
	case LineCLK:
		s = "clk"
	case LineIO0:
		s = "io0"
	case LineIO1:
		s = "io1"
	case LineIO2:
		s = "io2"
	case LineIO3:
		s = "io3"
	case LineCS:
		s = "cs"
	default:
		s = "unknown"
	}
	return s
}

// Level is the logic level of a line at one sample.
type Level uint8

const (
	Low  Level = 0
	High Level = 1
	// LevelNC is reported for lines that are not connected.
	LevelNC Level = 0xff
)

// Bit maps a level to a single bit. Anything that is not High reads as 0,
// so an unconnected line never contributes a set bit.
func (lv Level) Bit() uint8 { return b2u8(lv == High) }

// Levels holds the level of every line at one sample.
type Levels [NumLines]Level

// Event tells which wait condition ended a call to Sampler.Wait.
type Event uint8

const (
	eventNone Event = iota
	// EventClockEdge is a clock transition of the configured polarity.
	EventClockEdge
	// EventChipSelectRise is a rising edge on chip select (deselect).
	EventChipSelectRise
	// EventIdleTimeout means the requested number of samples elapsed
	// without any other condition matching.
	EventIdleTimeout
)

func (ev Event) String() (s string) {
	switch ev {
	case EventClockEdge:
		s = "clock-edge"
	case EventChipSelectRise:
		s = "cs-rise"
	case EventIdleTimeout:
		s = "idle-timeout"
	default:
		s = "none"
	}
	return s
}

// Sample is the result of a Wait: which condition matched, where in the
// stream it matched and the levels of all lines at that sample.
type Sample struct {
	Event  Event
	Index  int64
	Levels Levels
}

// WaitConditions is the set of conditions a Wait call returns on. The
// first sample after the current one that satisfies any of them ends the
// wait. When several are satisfied by the same sample the clock edge takes
// precedence, then chip select, then the timeout.
type WaitConditions struct {
	// ClockEdge selects the clock polarity that matches.
	ClockEdge Edge
	// ChipSelectRise enables matching on a rising chip select edge.
	ChipSelectRise bool
	// Timeout in samples counted from the current sample. Zero disables it.
	Timeout int64
}

// Sampler is the acquisition collaborator the decoder consumes.
type Sampler interface {
	// Wait blocks until the next sample matching cond. When the stream is
	// exhausted Wait returns io.EOF and a Sample whose Index is the last
	// sample of the stream.
	Wait(cond WaitConditions) (Sample, error)
	// Connected reports whether line is physically present in the capture.
	Connected(line Line) bool
}

func b2u8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
