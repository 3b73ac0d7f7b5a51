// Package logic implements an in-memory digital sample stream that serves
// the qspi decoder's wait conditions.
package logic

import (
	"errors"
	"io"

	"github.com/soypat/qspi"
)

// Change is a sample at which at least one line differs from the sample
// before it. Levels hold every line from Sample until the next change.
type Change struct {
	Sample int64
	Levels qspi.Levels
}

var ErrUnsorted = errors.New("logic: samples out of order")

// Trace is a transition compressed capture of all bus lines plus a read
// cursor. Samples are indexed from 0; the first change is the initial
// state of the lines.
type Trace struct {
	connected [qspi.NumLines]bool
	changes   []Change
	length    int64
	// cursor: pos is the sample last returned by Wait, ci the change in
	// effect at pos.
	pos int64
	ci  int
}

// NewTrace returns an empty trace where only the given lines are connected.
func NewTrace(connected ...qspi.Line) *Trace {
	t := &Trace{}
	for _, l := range connected {
		if l < qspi.NumLines {
			t.connected[l] = true
		}
	}
	return t
}

func (t *Trace) Connected(line qspi.Line) bool {
	return line < qspi.NumLines && t.connected[line]
}

// ConnectedLines returns the connected lines in ascending order.
func (t *Trace) ConnectedLines() (lines []qspi.Line) {
	for l := qspi.Line(0); l < qspi.NumLines; l++ {
		if t.connected[l] {
			lines = append(lines, l)
		}
	}
	return lines
}

// Append records the levels of all lines starting at sample. Samples must
// be appended in non-decreasing order; appending the same sample twice
// overwrites it. Unconnected lines are stored as LevelNC.
func (t *Trace) Append(sample int64, lv qspi.Levels) error {
	if sample < 0 {
		return ErrUnsorted
	}
	for l := range lv {
		if !t.connected[l] {
			lv[l] = qspi.LevelNC
		}
	}
	n := len(t.changes)
	switch {
	case n > 0 && sample < t.changes[n-1].Sample:
		return ErrUnsorted
	case n > 0 && sample == t.changes[n-1].Sample:
		t.changes = t.changes[:n-1]
		n--
	}
	if n == 0 && sample != 0 {
		// Lines are undefined before the first sample, hold its levels.
		sample = 0
	}
	if n > 0 && t.changes[n-1].Levels == lv {
		t.length = max(t.length, sample+1)
		return nil
	}
	t.changes = append(t.changes, Change{Sample: sample, Levels: lv})
	t.length = max(t.length, sample+1)
	return nil
}

// Extend makes the trace at least n samples long, holding the last levels.
func (t *Trace) Extend(n int64) {
	t.length = max(t.length, n)
}

// Len returns the number of samples in the trace.
func (t *Trace) Len() int64 { return t.length }

// Changes returns the recorded transitions. The slice must not be modified.
func (t *Trace) Changes() []Change { return t.changes }

// At returns the levels at sample.
func (t *Trace) At(sample int64) qspi.Levels {
	var lv qspi.Levels
	for l := range lv {
		lv[l] = qspi.LevelNC
	}
	for i := range t.changes {
		if t.changes[i].Sample > sample {
			break
		}
		lv = t.changes[i].Levels
	}
	return lv
}

// Rewind moves the cursor back to the first sample.
func (t *Trace) Rewind() {
	t.pos = 0
	t.ci = 0
}

// Wait returns the first sample after the cursor that satisfies cond and
// moves the cursor to it. Levels are constant between changes so clock and
// chip select edges can only occur at changes.
func (t *Trace) Wait(cond qspi.WaitConditions) (qspi.Sample, error) {
	if len(t.changes) == 0 {
		return qspi.Sample{Index: max(t.length-1, 0)}, io.EOF
	}
	deadline := int64(-1)
	if cond.Timeout > 0 {
		deadline = t.pos + cond.Timeout
	}
	for next := t.ci + 1; next < len(t.changes); next++ {
		c := &t.changes[next]
		if deadline >= 0 && deadline < c.Sample {
			break
		}
		ev := match(cond, &t.changes[next-1].Levels, &c.Levels)
		if ev == 0 && c.Sample == deadline {
			ev = qspi.EventIdleTimeout
		}
		t.ci = next
		t.pos = c.Sample
		if ev != 0 {
			return qspi.Sample{Event: ev, Index: c.Sample, Levels: c.Levels}, nil
		}
	}
	last := t.length - 1
	if deadline >= 0 && deadline <= last {
		t.pos = deadline
		return qspi.Sample{Event: qspi.EventIdleTimeout, Index: deadline, Levels: t.changes[t.ci].Levels}, nil
	}
	t.ci = len(t.changes) - 1
	t.pos = last
	return qspi.Sample{Index: last, Levels: t.changes[t.ci].Levels}, io.EOF
}

// match evaluates edge conditions between two consecutive levels.
func match(cond qspi.WaitConditions, prev, cur *qspi.Levels) qspi.Event {
	clkPrev := prev[qspi.LineCLK] == qspi.High
	clkCur := cur[qspi.LineCLK] == qspi.High
	switch {
	case cond.ClockEdge == qspi.EdgeRising && !clkPrev && clkCur,
		cond.ClockEdge == qspi.EdgeFalling && clkPrev && !clkCur:
		return qspi.EventClockEdge
	case cond.ChipSelectRise && prev[qspi.LineCS] != qspi.High && cur[qspi.LineCS] == qspi.High:
		return qspi.EventChipSelectRise
	}
	return 0
}
