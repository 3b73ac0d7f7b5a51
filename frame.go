package qspi

import (
	"log/slog"
	"slices"
)

// Payload bytes buffered before an intermediate data run is flushed.
const maxPayload = 256

type phase uint8

// Phases advance in declaration order within a frame. Data and passthrough
// persist until the frame is terminated.
const (
	phaseOpcode phase = iota
	phaseAddress
	phaseDummy
	phaseData
	phasePassthrough
)

func (p phase) String() (s string) {
	switch p {
	case phaseOpcode:
		s = "opcode"
	case phaseAddress:
		s = "address"
	case phaseDummy:
		s = "dummy"
	case phaseData:
		s = "data"
	case phasePassthrough:
		s = "passthrough"
	}
	return s
}

// frameState is everything the decoder knows about the frame in progress.
// It is replaced with a fresh value at every frame boundary.
type frameState struct {
	phase phase
	width uint8
	dir   Direction
	bits  bitAssembler
	// fieldStart is the first sample of the current multi-byte field, -1
	// until the first bit of the field arrives.
	fieldStart int64
	// remaining bytes of a fixed length phase, including the one in progress.
	remaining int
	address   uint32
	ins       *Instruction
	payload   []byte
}

// newFrameState returns the state at the start of a frame. buf is reused
// as payload storage.
func newFrameState(buf []byte) frameState {
	return frameState{
		phase:      phaseOpcode,
		width:      1,
		fieldStart: -1,
		payload:    buf[:0],
	}
}

// inProgress reports whether any part of a frame has been received.
func (f *frameState) inProgress() bool {
	return f.phase != phaseOpcode || !f.bits.empty()
}

// advance selects the next active phase of the instruction that has not
// been visited yet. When none is left the frame continues as raw
// passthrough at the line width last used.
func (f *frameState) advance() {
	f.fieldStart = -1
	ins := f.ins
	switch {
	case f.phase < phaseAddress && ins.Address.Active:
		f.phase = phaseAddress
		f.width = ins.Address.Width
		f.remaining = ins.Address.Bytes()
		f.address = 0
	case f.phase < phaseDummy && ins.Dummy.Active:
		f.phase = phaseDummy
		f.width = ins.Dummy.Width
		f.remaining = ins.Dummy.Bytes()
	case f.phase < phaseData && ins.Data.Active:
		f.phase = phaseData
		f.width = ins.Data.Width
		f.dir = ins.Data.Direction
		f.payload = f.payload[:0]
	default:
		f.phase = phasePassthrough
	}
}

// countdown consumes one byte of a fixed length phase and reports whether
// the phase is complete.
func (f *frameState) countdown() (done bool) {
	if f.remaining > 1 {
		f.remaining--
		return false
	}
	return true
}

// clockEdge feeds one sampling clock edge into the frame.
func (d *Decoder) clockEdge(s *Sample) error {
	d.clk.observe(s.Index)
	f := &d.frame
	if f.bits.empty() && f.fieldStart < 0 {
		f.fieldStart = s.Index
	}
	if !f.bits.shift(s.Index, f.width, &s.Levels) {
		return nil
	}
	b, start := f.bits.value, f.bits.start
	f.bits.clear()
	d.stats.Bytes++
	return d.classify(b, start, s.Index)
}

// classify handles a completed byte according to the phase it arrived in.
func (d *Decoder) classify(b uint8, start, end int64) (err error) {
	f := &d.frame
	switch f.phase {
	case phaseOpcode:
		err = d.emit(start, end, CatOpcode, byteLabels(b))
		if err != nil {
			return err
		}
		ins := d.set.Lookup(b)
		if ins == nil {
			d.stats.UnknownOpcodes++
			d.debug("unknown opcode", slog.String("opcode", hex8(b)), slog.Int64("sample", start))
			f.phase = phasePassthrough
			f.width = 1
			return nil
		}
		f.ins = ins
		d.trace("instruction", slog.String("name", ins.Name()), slog.Int64("sample", start))
		err = d.emit(start, end, CatInstruction, slices.Clone(ins.Labels))
		f.advance()

	case phaseAddress:
		err = d.emit(start, end, widthCategory(CatAddress1, f.width), byteLabels(b))
		if err != nil {
			return err
		}
		f.address = f.address<<8 | uint32(b)
		if f.countdown() {
			err = d.emit(f.fieldStart, end, CatAddress, addressLabels(f.address))
			f.advance()
		}

	case phaseDummy:
		err = d.emit(start, end, widthCategory(CatDummy1, f.width), byteLabels(b))
		if err != nil {
			return err
		}
		if f.countdown() {
			f.advance()
		}

	case phaseData:
		base := CatSlave1
		if f.dir == MasterWrite {
			base = CatMaster1
		}
		err = d.emit(start, end, widthCategory(base, f.width), byteLabels(b))
		if err != nil {
			return err
		}
		f.payload = append(f.payload, b)
		if len(f.payload) >= maxPayload {
			err = d.flush(end)
		}

	case phasePassthrough:
		err = d.emit(start, end, widthCategory(CatUndecoded1, f.width), byteLabels(b))
	}
	return err
}

// flush emits the buffered payload as one data run and starts a new run at
// the next byte.
func (d *Decoder) flush(end int64) error {
	f := &d.frame
	cat := CatSlaveData
	if f.dir == MasterWrite {
		cat = CatMasterData
	}
	err := d.emit(f.fieldStart, end, cat, []string{payloadLabel(f.payload)})
	f.payload = f.payload[:0]
	f.fieldStart = -1
	return err
}

// terminate ends the frame at sample now: it flushes buffered payload,
// reports a partially received byte and starts a new frame.
func (d *Decoder) terminate(now int64, cause Event) error {
	f := &d.frame
	if !f.inProgress() {
		return nil
	}
	d.trace("frame end", slog.String("cause", cause.String()), slog.Int64("sample", now), slog.String("phase", f.phase.String()))
	var err error
	if f.phase == phaseData && len(f.payload) > 0 {
		err = d.flush(now)
	}
	if err == nil && !f.bits.empty() {
		d.stats.Incomplete++
		d.warn("incomplete byte", slog.Int64("start", f.bits.start), slog.Int64("end", now), slog.Int("bits", int(f.bits.count)))
		err = d.emit(f.bits.start, now, CatIncomplete, incompleteLabels(f.bits.value))
	}
	d.stats.Frames++
	d.frame = newFrameState(f.payload)
	return err
}

// clockTracker remembers the last sampling edge to estimate bus idle time.
// It survives frame boundaries.
type clockTracker struct {
	last   int64
	period int64
	seen   bool
}

func (c *clockTracker) observe(sample int64) {
	if c.seen {
		c.period = sample - c.last
	}
	c.last = sample
	c.seen = true
}
