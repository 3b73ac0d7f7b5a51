package qspi_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/soypat/qspi"
	"github.com/soypat/qspi/logic"
	"github.com/soypat/qspi/report"
	"github.com/soypat/qspi/sim"
)

type decodeResult struct {
	col   *report.Collector
	bus   *sim.Bus
	trace *logic.Trace
	stats qspi.Stats
}

func decodeFrames(t *testing.T, edge qspi.Edge, lines []qspi.Line, frames ...sim.Frame) decodeResult {
	t.Helper()
	set := defaultSet(t)
	bus := sim.NewBus(edge, lines...)
	err := sim.SendAll(bus, set, frames...)
	if err != nil {
		t.Fatal(err)
	}
	trace, err := bus.Trace()
	if err != nil {
		t.Fatal(err)
	}
	col := &report.Collector{}
	cfg := qspi.DefaultConfig()
	cfg.ClockEdge = edge
	dec, err := qspi.NewDecoder(trace, col, cfg)
	if err != nil {
		t.Fatal(err)
	}
	err = dec.Decode(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return decodeResult{col: col, bus: bus, trace: trace, stats: dec.Stats()}
}

func defaultSet(t *testing.T) *qspi.InstructionSet {
	t.Helper()
	set, err := qspi.LookupInstructionSet(qspi.DefaultInstructionSet)
	if err != nil {
		t.Fatal(err)
	}
	return set
}

// csRises returns the samples at which chip select goes high.
func csRises(trace *logic.Trace) (rises []int64) {
	changes := trace.Changes()
	for i := 1; i < len(changes); i++ {
		if changes[i-1].Levels[qspi.LineCS] == qspi.Low && changes[i].Levels[qspi.LineCS] == qspi.High {
			rises = append(rises, changes[i].Sample)
		}
	}
	return rises
}

func categories(anns []qspi.Annotation) []qspi.Category {
	cats := make([]qspi.Category, len(anns))
	for i := range anns {
		cats[i] = anns[i].Category
	}
	return cats
}

func TestDecodeReadData(t *testing.T) {
	res := decodeFrames(t, qspi.EdgeRising, sim.AllLines, sim.Frame{
		Opcode:  0x03,
		Address: []byte{0x00, 0x10, 0x20},
		Data:    []byte{0xaa, 0xbb},
	})
	e := res.bus.SampleEdges()
	if len(e) != 6*8 {
		t.Fatalf("expected 48 sampling edges, got %d", len(e))
	}
	cs := csRises(res.trace)
	if len(cs) != 1 {
		t.Fatalf("expected one chip select rise, got %v", cs)
	}
	expect := []qspi.Annotation{
		{Start: e[0], End: e[7], Category: qspi.CatOpcode, Labels: []string{"0x03", "03"}},
		{Start: e[0], End: e[7], Category: qspi.CatInstruction, Labels: []string{"Read data", "Read", "R"}},
		{Start: e[8], End: e[15], Category: qspi.CatAddress1, Labels: []string{"0x00", "00"}},
		{Start: e[16], End: e[23], Category: qspi.CatAddress1, Labels: []string{"0x10", "10"}},
		{Start: e[24], End: e[31], Category: qspi.CatAddress1, Labels: []string{"0x20", "20"}},
		{Start: e[8], End: e[31], Category: qspi.CatAddress, Labels: []string{"Addr: 0x001020", "A: 0x001020", "0x1020"}},
		{Start: e[32], End: e[39], Category: qspi.CatSlave1, Labels: []string{"0xaa", "aa"}},
		{Start: e[40], End: e[47], Category: qspi.CatSlave1, Labels: []string{"0xbb", "bb"}},
		{Start: e[32], End: cs[0], Category: qspi.CatSlaveData, Labels: []string{"2[aa bb]"}},
	}
	if diff := cmp.Diff(expect, res.col.Annotations); diff != "" {
		t.Errorf("annotation mismatch (-want +got):\n%s", diff)
	}
	expectStats := qspi.Stats{Frames: 1, Bytes: 6, Annotations: len(expect)}
	if res.stats != expectStats {
		t.Errorf("stats mismatch: got %+v; expected %+v", res.stats, expectStats)
	}
}

func TestDecodeJEDECID(t *testing.T) {
	for _, edge := range []qspi.Edge{qspi.EdgeRising, qspi.EdgeFalling} {
		t.Run(edge.String(), func(t *testing.T) {
			res := decodeFrames(t, edge, sim.AllLines, sim.Frame{
				Opcode: 0x9F,
				Data:   []byte{0xef, 0x40, 0x18},
			})
			got := categories(res.col.Annotations)
			expect := []qspi.Category{
				qspi.CatOpcode, qspi.CatInstruction,
				qspi.CatSlave1, qspi.CatSlave1, qspi.CatSlave1,
				qspi.CatSlaveData,
			}
			if diff := cmp.Diff(expect, got); diff != "" {
				t.Fatalf("category mismatch (-want +got):\n%s", diff)
			}
			last := res.col.Annotations[len(got)-1]
			if last.Labels[0] != "3[ef 40 18]" {
				t.Errorf("bad data label %q", last.Labels[0])
			}
			if len(res.col.Filter(qspi.CatAddress, qspi.CatAddress1, qspi.CatDummy1)) != 0 {
				t.Error("JEDEC ID has no address or dummy phase")
			}
		})
	}
}

func TestDecodeQuadIO(t *testing.T) {
	res := decodeFrames(t, qspi.EdgeRising, sim.AllLines, sim.Frame{
		Opcode:  0xEB,
		Address: []byte{0x12, 0x34, 0x56},
		Dummy:   []byte{0xff, 0x00, 0xa5},
		Data:    []byte{0xde, 0xad},
	})
	expect := []qspi.Category{
		qspi.CatOpcode, qspi.CatInstruction,
		qspi.CatAddress4, qspi.CatAddress4, qspi.CatAddress4, qspi.CatAddress,
		qspi.CatDummy4, qspi.CatDummy4, qspi.CatDummy4,
		qspi.CatSlave4, qspi.CatSlave4,
		qspi.CatSlaveData,
	}
	anns := res.col.Annotations
	if diff := cmp.Diff(expect, categories(anns)); diff != "" {
		t.Fatalf("category mismatch (-want +got):\n%s", diff)
	}
	if anns[5].Labels[0] != "Addr: 0x123456" {
		t.Errorf("bad address label %q", anns[5].Labels[0])
	}
	if anns[8].Labels[0] != "0xa5" {
		t.Errorf("bad dummy label %q", anns[8].Labels[0])
	}
	if anns[11].Labels[0] != "2[de ad]" {
		t.Errorf("bad data label %q", anns[11].Labels[0])
	}
	// 8 single line opcode edges, then 2 edges per quad byte.
	if n := len(res.bus.SampleEdges()); n != 8+2*8 {
		t.Errorf("unexpected edge count %d", n)
	}
	e := res.bus.SampleEdges()
	if anns[2].Start != e[8] || anns[2].End != e[9] {
		t.Errorf("quad address byte spans %d-%d; expected %d-%d", anns[2].Start, anns[2].End, e[8], e[9])
	}
}

func TestDecodeDualIO(t *testing.T) {
	res := decodeFrames(t, qspi.EdgeRising, sim.AllLines, sim.Frame{
		Opcode:  0xBB,
		Address: []byte{0xab, 0xcd, 0xef},
		Dummy:   []byte{0xf0},
		Data:    []byte{0x5a, 0xc3, 0x3c},
	})
	expect := []qspi.Category{
		qspi.CatOpcode, qspi.CatInstruction,
		qspi.CatAddress2, qspi.CatAddress2, qspi.CatAddress2, qspi.CatAddress,
		qspi.CatDummy2,
		qspi.CatSlave2, qspi.CatSlave2, qspi.CatSlave2,
		qspi.CatSlaveData,
	}
	anns := res.col.Annotations
	if diff := cmp.Diff(expect, categories(anns)); diff != "" {
		t.Fatalf("category mismatch (-want +got):\n%s", diff)
	}
	if anns[5].Labels[0] != "Addr: 0xabcdef" {
		t.Errorf("bad address label %q", anns[5].Labels[0])
	}
	if anns[10].Labels[0] != "3[5a c3 3c]" {
		t.Errorf("bad data label %q", anns[10].Labels[0])
	}
}

func TestDecodeMasterWrite(t *testing.T) {
	res := decodeFrames(t, qspi.EdgeRising, sim.AllLines, sim.Frame{
		Opcode:  0x32,
		Address: []byte{0x00, 0x01, 0x00},
		Data:    []byte{0x01, 0x23, 0x45},
	})
	data := res.col.Filter(qspi.CatMaster4, qspi.CatMasterData)
	if len(data) != 4 {
		t.Fatalf("expected 3 quad master bytes and one run, got %d annotations", len(data))
	}
	if data[3].Category != qspi.CatMasterData || data[3].Labels[0] != "3[01 23 45]" {
		t.Errorf("bad master data run %+v", data[3])
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	res := decodeFrames(t, qspi.EdgeRising, sim.AllLines, sim.Frame{
		Opcode: 0x00,
		Data:   []byte{0x12, 0x34},
	})
	e := res.bus.SampleEdges()
	expect := []qspi.Annotation{
		{Start: e[0], End: e[7], Category: qspi.CatOpcode, Labels: []string{"0x00", "00"}},
		{Start: e[8], End: e[15], Category: qspi.CatUndecoded1, Labels: []string{"0x12", "12"}},
		{Start: e[16], End: e[23], Category: qspi.CatUndecoded1, Labels: []string{"0x34", "34"}},
	}
	if diff := cmp.Diff(expect, res.col.Annotations); diff != "" {
		t.Errorf("annotation mismatch (-want +got):\n%s", diff)
	}
	if res.stats.UnknownOpcodes != 1 {
		t.Errorf("expected one unknown opcode, got %d", res.stats.UnknownOpcodes)
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	// 4K erase has no data phase, anything after the address is undecoded.
	res := decodeFrames(t, qspi.EdgeRising, sim.AllLines, sim.Frame{
		Opcode:  0x20,
		Address: []byte{0x01, 0x02, 0x03},
		Data:    []byte{0x99},
	})
	expect := []qspi.Category{
		qspi.CatOpcode, qspi.CatInstruction,
		qspi.CatAddress1, qspi.CatAddress1, qspi.CatAddress1, qspi.CatAddress,
		qspi.CatUndecoded1,
	}
	if diff := cmp.Diff(expect, categories(res.col.Annotations)); diff != "" {
		t.Errorf("category mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodePartialByte(t *testing.T) {
	res := decodeFrames(t, qspi.EdgeRising, sim.AllLines, sim.Frame{
		Opcode:        0x9F,
		Data:          []byte{0xef},
		PartialGroups: 3,
		PartialByte:   0b1010_0000,
	})
	e := res.bus.SampleEdges()
	cs := csRises(res.trace)
	anns := res.col.Annotations
	if len(anns) < 2 {
		t.Fatalf("too few annotations: %d", len(anns))
	}
	expect := []qspi.Annotation{
		{Start: e[8], End: cs[0], Category: qspi.CatSlaveData, Labels: []string{"1[ef]"}},
		{Start: e[16], End: cs[0], Category: qspi.CatIncomplete, Labels: []string{"Incomplete: 0x05", "Incomplete: 05"}},
	}
	if diff := cmp.Diff(expect, anns[len(anns)-2:]); diff != "" {
		t.Errorf("annotation mismatch (-want +got):\n%s", diff)
	}
	if got := res.col.Filter(qspi.CatIncomplete); len(got) != 1 {
		t.Errorf("expected exactly one incomplete annotation, got %d", len(got))
	}
	if res.stats.Incomplete != 1 {
		t.Errorf("stats: expected 1 incomplete, got %d", res.stats.Incomplete)
	}
}

func TestDecodeLongPayload(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}
	res := decodeFrames(t, qspi.EdgeRising, sim.AllLines, sim.Frame{
		Opcode:  0x03,
		Address: []byte{0, 0, 0},
		Data:    data,
	})
	e := res.bus.SampleEdges()
	cs := csRises(res.trace)
	runs := res.col.Filter(qspi.CatSlaveData)
	if len(runs) != 2 {
		t.Fatalf("expected 2 data runs, got %d", len(runs))
	}
	const first = 4 // Bytes before the data phase.
	if !strings.HasPrefix(runs[0].Labels[0], "256[00 01 02") || !strings.HasSuffix(runs[0].Labels[0], " fe ff]") {
		t.Errorf("bad first run label %q", runs[0].Labels[0])
	}
	if runs[0].Start != e[8*first] || runs[0].End != e[8*(first+255)+7] {
		t.Errorf("first run spans %d-%d", runs[0].Start, runs[0].End)
	}
	if !strings.HasPrefix(runs[1].Labels[0], "44[00 01") || !strings.HasSuffix(runs[1].Labels[0], " 2b]") {
		t.Errorf("bad second run label %q", runs[1].Labels[0])
	}
	if runs[1].Start != e[8*(first+256)] || runs[1].End != cs[0] {
		t.Errorf("second run spans %d-%d", runs[1].Start, runs[1].End)
	}
	if n := len(res.col.Filter(qspi.CatSlave1)); n != len(data) {
		t.Errorf("expected %d data byte annotations, got %d", len(data), n)
	}
	for i := 1; i < len(res.col.Annotations); i++ {
		if res.col.Annotations[i].End < res.col.Annotations[i-1].End {
			t.Fatalf("annotation %d ends before its predecessor", i)
		}
	}
}

func TestDecodeIdleTimeout(t *testing.T) {
	lines := []qspi.Line{qspi.LineCLK, qspi.LineIO0, qspi.LineIO1}
	for _, edge := range []qspi.Edge{qspi.EdgeRising, qspi.EdgeFalling} {
		t.Run(edge.String(), func(t *testing.T) {
			res := decodeFrames(t, edge, lines,
				sim.Frame{Opcode: 0x9F, Data: []byte{0xef, 0x40, 0x18}},
				sim.Frame{Opcode: 0x05, Data: []byte{0x02}},
			)
			runs := res.col.Filter(qspi.CatSlaveData, qspi.CatInstruction)
			var labels []string
			for _, a := range runs {
				labels = append(labels, a.Labels[0])
			}
			expect := []string{"JEDEC ID", "3[ef 40 18]", "Read status reg 1", "1[02]"}
			if diff := cmp.Diff(expect, labels); diff != "" {
				t.Fatalf("label mismatch (-want +got):\n%s", diff)
			}
			e := res.bus.SampleEdges()
			// Clock period is 2 samples so the bus is declared idle 4 samples
			// after the last edge of the first frame.
			if end := runs[1].End; end != e[31]+4 {
				t.Errorf("first frame terminated at %d; expected %d", end, e[31]+4)
			}
			if res.stats.IdleTimeouts != 2 || res.stats.Frames != 2 {
				t.Errorf("bad stats %+v", res.stats)
			}
		})
	}
}

func TestDecodeEndOfStream(t *testing.T) {
	bus := sim.NewBus(qspi.EdgeRising, sim.AllLines...)
	bus.Select()
	bus.Write(1, []byte{0x9F})
	bus.Read(1, []byte{0xef, 0x40})
	trace, err := bus.Trace()
	if err != nil {
		t.Fatal(err)
	}
	col := &report.Collector{}
	dec, err := qspi.NewDecoder(trace, col, qspi.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	err = dec.Decode(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	runs := col.Filter(qspi.CatSlaveData)
	if len(runs) != 1 {
		t.Fatalf("expected payload flushed at end of stream, got %d runs", len(runs))
	}
	if runs[0].Labels[0] != "2[ef 40]" || runs[0].End != trace.Len()-1 {
		t.Errorf("bad run %+v, trace length %d", runs[0], trace.Len())
	}
	if dec.Stats().Frames != 1 {
		t.Errorf("expected 1 frame, got %d", dec.Stats().Frames)
	}
}

func TestDecodeReset(t *testing.T) {
	set := defaultSet(t)
	bus := sim.NewBus(qspi.EdgeRising, sim.AllLines...)
	err := sim.SendAll(bus, set,
		sim.Frame{Opcode: 0x06},
		sim.Frame{Opcode: 0x0B, Address: []byte{1, 2, 3}, Dummy: []byte{0}, Data: []byte{4, 5, 6}},
		sim.Frame{Opcode: 0x9F, Data: []byte{7}, PartialGroups: 5, PartialByte: 0xff},
	)
	if err != nil {
		t.Fatal(err)
	}
	trace, err := bus.Trace()
	if err != nil {
		t.Fatal(err)
	}
	col := &report.Collector{}
	dec, err := qspi.NewDecoder(trace, col, qspi.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := dec.Decode(context.Background()); err != nil {
		t.Fatal(err)
	}
	first, stats := col.Annotations, dec.Stats()
	if stats.Frames != 3 {
		t.Errorf("expected 3 frames, got %d", stats.Frames)
	}

	col.Annotations = nil
	trace.Rewind()
	dec.Reset()
	if dec.Stats() != (qspi.Stats{}) {
		t.Error("reset did not clear stats")
	}
	if err := dec.Decode(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, col.Annotations); diff != "" {
		t.Errorf("second decode differs (-first +second):\n%s", diff)
	}
	if dec.Stats() != stats {
		t.Errorf("stats differ: %+v != %+v", dec.Stats(), stats)
	}
}

func TestDecodeAnnotatorError(t *testing.T) {
	set := defaultSet(t)
	bus := sim.NewBus(qspi.EdgeRising, sim.AllLines...)
	bus.Send(set, sim.Frame{Opcode: 0x9F, Data: []byte{1, 2, 3}})
	trace, err := bus.Trace()
	if err != nil {
		t.Fatal(err)
	}
	errFull := errors.New("annotation buffer full")
	n := 0
	ann := qspi.AnnotatorFunc(func(a qspi.Annotation) error {
		n++
		if n > 2 {
			return errFull
		}
		return nil
	})
	dec, err := qspi.NewDecoder(trace, ann, qspi.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	err = dec.Decode(context.Background())
	if !errors.Is(err, errFull) {
		t.Fatalf("expected annotator error, got %v", err)
	}
	if n != 3 {
		t.Errorf("decoding continued after annotator error: %d calls", n)
	}
}

func TestDecodeCanceled(t *testing.T) {
	trace := logic.NewTrace(sim.AllLines...)
	trace.Append(0, qspi.Levels{})
	dec, err := qspi.NewDecoder(trace, &report.Collector{}, qspi.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = dec.Decode(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewDecoderLines(t *testing.T) {
	col := &report.Collector{}
	_, err := qspi.NewDecoder(logic.NewTrace(qspi.LineCLK, qspi.LineCS), col, qspi.DefaultConfig())
	if !errors.Is(err, qspi.ErrMissingMOSI) {
		t.Errorf("expected ErrMissingMOSI, got %v", err)
	}
	_, err = qspi.NewDecoder(logic.NewTrace(qspi.LineIO0), col, qspi.DefaultConfig())
	if !errors.Is(err, qspi.ErrMissingClock) {
		t.Errorf("expected ErrMissingClock, got %v", err)
	}
	cfg := qspi.DefaultConfig()
	cfg.InstructionSet = "nonexistent"
	_, err = qspi.NewDecoder(logic.NewTrace(qspi.LineCLK, qspi.LineIO0), col, cfg)
	if !errors.Is(err, qspi.ErrUnknownInstructionSet) {
		t.Errorf("expected ErrUnknownInstructionSet, got %v", err)
	}
	dec, err := qspi.NewDecoder(logic.NewTrace(qspi.LineCLK, qspi.LineIO0), col, qspi.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if dec.InstructionSet().Name() != qspi.DefaultInstructionSet {
		t.Errorf("empty config should select the default instruction set, got %q", dec.InstructionSet().Name())
	}
}

func TestDecodeAllInstructions(t *testing.T) {
	set := defaultSet(t)
	noCS := []qspi.Line{qspi.LineCLK, qspi.LineIO0, qspi.LineIO1, qspi.LineIO2, qspi.LineIO3}
	address := []byte{0x12, 0x34, 0x56}
	dummy := []byte{0xa5, 0x5a, 0xc3}
	payload := []byte{0xde, 0xad, 0xbe}
	for _, ins := range set.Instructions() {
		for _, withCS := range []bool{true, false} {
			for _, n := range []int{0, 1, 3} {
				name := fmt.Sprintf("%#04x/cs=%v/n=%d", ins.Opcode, withCS, n)
				t.Run(name, func(t *testing.T) {
					lines := sim.AllLines
					if !withCS {
						lines = noCS
					}
					f := sim.Frame{
						Opcode:  ins.Opcode,
						Address: address[:ins.Address.Bytes()],
						Dummy:   dummy[:ins.Dummy.Bytes()],
					}
					if ins.Data.Active {
						f.Data = payload[:n]
					}
					res := decodeFrames(t, qspi.EdgeRising, lines, f)
					checkInstructionFrame(t, ins, f, res)
				})
			}
		}
	}
}

func checkInstructionFrame(t *testing.T, ins *qspi.Instruction, f sim.Frame, res decodeResult) {
	t.Helper()
	col := res.col
	if ops := col.Filter(qspi.CatOpcode); len(ops) != 1 || ops[0].Labels[0] != fmt.Sprintf("0x%02x", ins.Opcode) {
		t.Errorf("expected one opcode annotation, got %v", ops)
	}
	if got := col.Filter(qspi.CatInstruction); len(got) != 1 || got[0].Labels[0] != ins.Name() {
		t.Errorf("expected instruction %q, got %v", ins.Name(), got)
	}
	addrs := col.Filter(qspi.CatAddress)
	if ins.Address.Active {
		var expect uint32
		for _, b := range f.Address {
			expect = expect<<8 | uint32(b)
		}
		if len(addrs) != 1 || addrs[0].Labels[0] != fmt.Sprintf("Addr: 0x%06x", expect) {
			t.Errorf("expected address %#06x, got %v", expect, addrs)
		}
		if n := len(col.Filter(qspi.CatAddress1, qspi.CatAddress2, qspi.CatAddress4)); n != ins.Address.Bytes() {
			t.Errorf("got %d address bytes; expected %d", n, ins.Address.Bytes())
		}
	} else if len(addrs) != 0 {
		t.Errorf("unexpected address annotations %v", addrs)
	}
	if n := len(col.Filter(qspi.CatDummy1, qspi.CatDummy2, qspi.CatDummy4)); n != ins.Dummy.Bytes() {
		t.Errorf("got %d dummy bytes; expected %d", n, ins.Dummy.Bytes())
	}
	runs := col.Filter(qspi.CatMasterData, qspi.CatSlaveData)
	switch {
	case len(f.Data) == 0:
		if len(runs) != 0 {
			t.Errorf("unexpected data runs %v", runs)
		}
	case len(runs) != 1:
		t.Errorf("expected one data run, got %v", runs)
	default:
		expect := qspi.CatSlaveData
		if ins.Data.Direction == qspi.MasterWrite {
			expect = qspi.CatMasterData
		}
		prefix := fmt.Sprintf("%d[", len(f.Data))
		if runs[0].Category != expect || !strings.HasPrefix(runs[0].Labels[0], prefix) {
			t.Errorf("bad data run %v", runs[0])
		}
	}
	if inc := col.Filter(qspi.CatIncomplete); len(inc) != 0 {
		t.Errorf("unexpected incomplete bytes %v", inc)
	}
	if res.stats.Frames != 1 {
		t.Errorf("expected 1 frame, got %d", res.stats.Frames)
	}
}

func TestDecodeCountZeroDummy(t *testing.T) {
	// Encoded count 0 with a width flag still clocks one dummy byte.
	for _, tc := range []struct {
		opcode  uint8
		address []byte
		cat     qspi.Category
	}{
		{0x4B, nil, qspi.CatDummy2},
		{0x6B, []byte{0, 0, 0x40}, qspi.CatDummy4},
	} {
		res := decodeFrames(t, qspi.EdgeRising, sim.AllLines, sim.Frame{
			Opcode:  tc.opcode,
			Address: tc.address,
			Dummy:   []byte{0xff},
			Data:    []byte{0x01, 0x02},
		})
		dummies := res.col.Filter(tc.cat)
		if len(dummies) != 1 || dummies[0].Labels[0] != "0xff" {
			t.Errorf("%#04x: expected one dummy byte, got %v", tc.opcode, dummies)
		}
		runs := res.col.Filter(qspi.CatSlaveData)
		if len(runs) != 1 || runs[0].Labels[0] != "2[01 02]" {
			t.Errorf("%#04x: bad data runs %v", tc.opcode, runs)
		}
	}
}

func TestDecodeLabelsNotShared(t *testing.T) {
	set := defaultSet(t)
	bus := sim.NewBus(qspi.EdgeRising, sim.AllLines...)
	bus.Send(set, sim.Frame{Opcode: 0x9F, Data: []byte{1}})
	trace, err := bus.Trace()
	if err != nil {
		t.Fatal(err)
	}
	ann := qspi.AnnotatorFunc(func(a qspi.Annotation) error {
		for i := range a.Labels {
			a.Labels[i] = "overwritten"
		}
		return nil
	})
	dec, err := qspi.NewDecoder(trace, ann, qspi.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := dec.Decode(context.Background()); err != nil {
		t.Fatal(err)
	}
	if name := dec.InstructionSet().Lookup(0x9F).Name(); name != "JEDEC ID" {
		t.Errorf("decoder instruction set modified through annotations: %q", name)
	}
	if name := defaultSet(t).Lookup(0x9F).Name(); name != "JEDEC ID" {
		t.Errorf("built-in instruction table modified through annotations: %q", name)
	}
}

func TestDecodeDummyAnnotatorError(t *testing.T) {
	set := defaultSet(t)
	bus := sim.NewBus(qspi.EdgeRising, sim.AllLines...)
	bus.Send(set, sim.Frame{Opcode: 0x0B, Address: []byte{1, 2, 3}, Dummy: []byte{0}, Data: []byte{4, 5}})
	trace, err := bus.Trace()
	if err != nil {
		t.Fatal(err)
	}
	errDummy := errors.New("dummy rejected")
	var got []qspi.Category
	ann := qspi.AnnotatorFunc(func(a qspi.Annotation) error {
		got = append(got, a.Category)
		if a.Category == qspi.CatDummy1 {
			return errDummy
		}
		return nil
	})
	dec, err := qspi.NewDecoder(trace, ann, qspi.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	err = dec.Decode(context.Background())
	if !errors.Is(err, errDummy) {
		t.Fatalf("expected dummy annotation error, got %v", err)
	}
	if got[len(got)-1] != qspi.CatDummy1 {
		t.Errorf("decoding continued after dummy annotation error: %v", got)
	}
}
