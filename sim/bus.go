// Package sim is a software bit-bang Quad/Dual SPI master that records the
// waveform it drives instead of toggling pins. The recorded trace is what
// a logic analyzer attached to the bus would have captured.
package sim

import (
	"errors"

	"github.com/soypat/qspi"
	"github.com/soypat/qspi/logic"
	"golang.org/x/exp/constraints"
)

// Bus drives clock, chip select and up to four data lines. Data lines are
// set up during the half period before the sampling edge and held until
// the half period after it, like SPI mode 0 (or mode 3 with a falling
// sampling edge).
type Bus struct {
	// HalfPeriod is the number of samples per clock half period. Zero means 1.
	HalfPeriod int64
	// Gap is the number of idle samples before chip select falls and after
	// it rises. Zero means 4 half periods.
	Gap int64

	trace *logic.Trace
	now   int64
	edge  qspi.Edge
	lv    qspi.Levels
	edges []int64
	err   error
}

// NewBus returns a bus sampled on edge whose recording captures only the
// given lines. The clock and IO0 lines are always captured.
func NewBus(edge qspi.Edge, lines ...qspi.Line) *Bus {
	lines = append(lines[:len(lines):len(lines)], qspi.LineCLK, qspi.LineIO0)
	b := &Bus{trace: logic.NewTrace(lines...), edge: edge}
	b.lv[qspi.LineCS] = qspi.High
	b.lv[qspi.LineCLK] = b.idleClock()
	return b
}

// AllLines is the full set of lines of a Quad SPI bus with chip select.
var AllLines = []qspi.Line{qspi.LineCLK, qspi.LineIO0, qspi.LineIO1, qspi.LineIO2, qspi.LineIO3, qspi.LineCS}

// Trace returns the recorded waveform with its cursor rewound. The trace
// ends one gap after the last activity.
func (b *Bus) Trace() (*logic.Trace, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.record()
	b.trace.Extend(b.now + b.gap())
	b.trace.Rewind()
	return b.trace, nil
}

// SampleEdges returns the sample index of every sampling clock edge driven
// so far, in order.
func (b *Bus) SampleEdges() []int64 { return b.edges }

// Now returns the sample the bus is currently at.
func (b *Bus) Now() int64 { return b.now }

// Select pulls chip select low after an idle gap.
func (b *Bus) Select() {
	b.Idle(b.gap())
	b.lv[qspi.LineCS] = qspi.Low
	b.record()
}

// Deselect releases all data lines and raises chip select.
func (b *Bus) Deselect() {
	b.Idle(b.half())
	b.release()
	b.lv[qspi.LineCS] = qspi.High
	b.record()
	b.Idle(b.gap())
}

// Idle holds all lines for n samples.
func (b *Bus) Idle(n int64) {
	b.record()
	b.now += n
}

// Write sends data from the master on width data lines. On one line the
// master drives IO0 and IO1 idles low.
func (b *Bus) Write(width uint8, data []byte) {
	for _, v := range data {
		b.transfer(width, v, qspi.LineIO0)
	}
}

// Read clocks in data driven by the device on width data lines. On one
// line the device drives IO1 and IO0 idles low.
func (b *Bus) Read(width uint8, data []byte) {
	for _, v := range data {
		b.transfer(width, v, qspi.LineIO1)
	}
}

// Exchange is a full duplex single line transfer: sdo on IO0 and sdi on
// IO1 at the same time.
func (b *Bus) Exchange(sdo, sdi byte) {
	for i := 7; i >= 0; i-- {
		b.lv[qspi.LineIO0] = level(sdo, i)
		b.lv[qspi.LineIO1] = level(sdi, i)
		b.clock()
	}
}

// Bits drives n bit groups of width lines taken from the most significant
// end of v. It is used to send partial bytes.
func (b *Bus) Bits(width uint8, v byte, n int) {
	if n*int(width) > 8 {
		b.err = errors.New("sim: more than 8 bits requested")
		return
	}
	for i := 0; i < n; i++ {
		b.group(width, v>>(8-int(width)*(i+1)), qspi.LineIO0)
		b.clock()
	}
}

func (b *Bus) transfer(width uint8, v byte, single qspi.Line) {
	switch width {
	case 1, 2, 4:
	default:
		b.err = errors.New("sim: line width must be 1, 2 or 4")
		return
	}
	for shift := 8 - int(width); shift >= 0; shift -= int(width) {
		b.group(width, v>>shift, single)
		b.clock()
	}
}

// group places the low width bits of v on the data lines.
func (b *Bus) group(width uint8, v byte, single qspi.Line) {
	b.release()
	switch width {
	case 4:
		b.lv[qspi.LineIO3] = level(v, 3)
		b.lv[qspi.LineIO2] = level(v, 2)
		fallthrough
	case 2:
		b.lv[qspi.LineIO1] = level(v, 1)
		b.lv[qspi.LineIO0] = level(v, 0)
	default:
		b.lv[single] = level(v, 0)
	}
}

func (b *Bus) release() {
	for _, l := range [...]qspi.Line{qspi.LineIO0, qspi.LineIO1, qspi.LineIO2, qspi.LineIO3} {
		b.lv[l] = qspi.Low
	}
}

// clock emits one full clock period with the data lines as currently set.
func (b *Bus) clock() {
	b.Idle(b.half())
	b.lv[qspi.LineCLK] = toggle(b.idleClock())
	b.edges = append(b.edges, b.now)
	b.Idle(b.half())
	b.lv[qspi.LineCLK] = b.idleClock()
	b.record()
}

func (b *Bus) record() {
	if err := b.trace.Append(b.now, b.lv); err != nil && b.err == nil {
		b.err = err
	}
}

func (b *Bus) idleClock() qspi.Level {
	if b.edge == qspi.EdgeFalling {
		return qspi.High
	}
	return qspi.Low
}

func (b *Bus) half() int64 { return max(b.HalfPeriod, 1) }

func (b *Bus) gap() int64 {
	if b.Gap > 0 {
		return b.Gap
	}
	return 4 * b.half()
}

func level[T constraints.Integer](v T, bit int) qspi.Level {
	return qspi.Level(v>>bit) & 1
}

func toggle(lv qspi.Level) qspi.Level {
	if lv == qspi.High {
		return qspi.Low
	}
	return qspi.High
}
