// Package qspi decodes captured Quad/Dual SPI memory bus traffic into
// instruction, address, dummy and data annotations.
//
// A frame starts with an 8 bit opcode sent on one line. The opcode selects
// an instruction whose address, dummy and data phases may each use 1, 2 or
// 4 data lines. Frames end only when chip select rises or, when no chip
// select line was captured, when the clock stays idle for twice the last
// clock period.
package qspi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Stats counts what a Decoder has seen since creation or the last Reset.
type Stats struct {
	Frames         int
	Bytes          int
	Annotations    int
	Incomplete     int
	UnknownOpcodes int
	IdleTimeouts   int
}

// Decoder runs the per-sample protocol state machine over a Sampler and
// writes annotations to an Annotator. A Decoder is not safe for concurrent
// use.
type Decoder struct {
	src    Sampler
	ann    Annotator
	set    *InstructionSet
	cfg    Config
	hasCS  bool
	logger *slog.Logger

	frame frameState
	clk   clockTracker
	stats Stats
}

// NewDecoder returns a decoder reading from src. The clock and MOSI/IO0
// lines must be connected.
func NewDecoder(src Sampler, ann Annotator, cfg Config) (*Decoder, error) {
	if src == nil || ann == nil {
		return nil, errors.New("qspi: nil sampler or annotator")
	}
	if !src.Connected(LineCLK) {
		return nil, ErrMissingClock
	}
	if !src.Connected(LineMOSI) {
		return nil, ErrMissingMOSI
	}
	name := cfg.InstructionSet
	if name == "" {
		name = DefaultInstructionSet
	}
	set, err := LookupInstructionSet(name)
	if err != nil {
		return nil, err
	}
	d := &Decoder{
		src:    src,
		ann:    ann,
		set:    set,
		cfg:    cfg,
		hasCS:  src.Connected(LineCS),
		logger: cfg.Logger,
		frame:  newFrameState(make([]byte, 0, maxPayload)),
	}
	var lines []string
	for l := LineCLK; l < NumLines; l++ {
		if src.Connected(l) {
			lines = append(lines, l.String())
		}
	}
	d.info("decoder:init",
		slog.String("set", set.Name()),
		slog.String("edge", cfg.ClockEdge.String()),
		slog.String("bitorder", cfg.BitOrder.String()),
		slog.Any("lines", lines),
	)
	if cfg.BitOrder == LSBFirst {
		d.warn("lsb-first bit order has no effect, bytes are assembled msb first")
	}
	return d, nil
}

// InstructionSet returns the instruction set in use.
func (d *Decoder) InstructionSet() *InstructionSet { return d.set }

// Stats returns the counters accumulated so far.
func (d *Decoder) Stats() Stats { return d.stats }

// Reset discards the frame in progress, the clock history and the
// counters. Feeding the same samples after Reset reproduces the same output.
func (d *Decoder) Reset() {
	d.frame = newFrameState(d.frame.payload)
	d.clk = clockTracker{}
	d.stats = Stats{}
}

// Decode consumes samples until the stream ends. At the end of the stream
// the frame in progress is terminated as if chip select had risen. Errors
// from the annotator or sampler stop decoding.
func (d *Decoder) Decode(ctx context.Context) error {
	cond := WaitConditions{
		ClockEdge:      d.cfg.ClockEdge,
		ChipSelectRise: d.hasCS,
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cond.Timeout = 0
		if !d.hasCS && d.clk.period > 0 && d.frame.inProgress() {
			cond.Timeout = 2 * d.clk.period
		}
		s, err := d.src.Wait(cond)
		if errors.Is(err, io.EOF) {
			err = d.terminate(s.Index, eventNone)
			if err != nil {
				return fmt.Errorf("qspi: end of stream at sample %d: %w", s.Index, err)
			}
			d.info("decoder:done",
				slog.Int("frames", d.stats.Frames),
				slog.Int("bytes", d.stats.Bytes),
				slog.Int("annotations", d.stats.Annotations),
				slog.Int("incomplete", d.stats.Incomplete),
				slog.Int("unknown", d.stats.UnknownOpcodes),
				slog.Int("timeouts", d.stats.IdleTimeouts),
			)
			return nil
		} else if err != nil {
			d.logerr("decoder:wait", slog.String("err", err.Error()))
			return err
		}
		switch s.Event {
		case EventClockEdge:
			err = d.clockEdge(&s)
		case EventIdleTimeout:
			d.stats.IdleTimeouts++
			d.debug("idle timeout", slog.Int64("sample", s.Index), slog.Int64("period", d.clk.period))
			err = d.terminate(s.Index, s.Event)
		case EventChipSelectRise:
			err = d.terminate(s.Index, s.Event)
		default:
			err = fmt.Errorf("qspi: sampler returned unexpected event %d", s.Event)
		}
		if err != nil {
			return fmt.Errorf("qspi: sample %d: %w", s.Index, err)
		}
	}
}

func (d *Decoder) emit(start, end int64, cat Category, labels []string) error {
	d.stats.Annotations++
	return d.ann.Annotate(Annotation{
		Start:    start,
		End:      end,
		Category: cat,
		Labels:   labels,
	})
}
