package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/soypat/qspi"
	"github.com/soypat/qspi/capture"
	"github.com/soypat/qspi/sim"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "qspigen - Generate a synthetic Quad/Dual SPI capture CSV from frame descriptions.\n"+
			"\tFrames are separated by ';', fields by ':' as opcode:address:dummy:data in hex, e.g. '03:001020::aabb;9f:::ef4018'.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	frames := flag.String("frames", "9f:::ef4018", "Frames to send.")
	output := flag.String("o", "capture.csv", "Output filename.")
	half := flag.Int64("half", 2, "Samples per clock half period.")
	edge := flag.String("clk-edge", "rising", "Sampling clock edge: rising or falling.")
	noCS := flag.Bool("no-cs", false, "Omit the chip select line from the capture.")
	proto := flag.String("proto", qspi.DefaultInstructionSet, "Instruction set used to pick phase line widths.")
	flag.Parse()

	set, err := qspi.LookupInstructionSet(*proto)
	if err != nil {
		log.Fatal(err)
	}
	e, err := qspi.ParseEdge(*edge)
	if err != nil {
		log.Fatal(err)
	}
	parsed, err := parseFrames(*frames)
	if err != nil {
		log.Fatal(err)
	}
	lines := sim.AllLines
	if *noCS {
		lines = lines[:len(lines)-1]
	}
	bus := sim.NewBus(e, lines...)
	bus.HalfPeriod = *half
	if err := sim.SendAll(bus, set, parsed...); err != nil {
		log.Fatal(err)
	}
	trace, err := bus.Trace()
	if err != nil {
		log.Fatal(err)
	}
	fp, err := os.Create(*output)
	if err != nil {
		log.Fatal(err)
	}
	defer fp.Close()
	if err := capture.WriteCSV(fp, trace); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %d frames, %d samples to %s", len(parsed), trace.Len(), *output)
}

func parseFrames(s string) ([]sim.Frame, error) {
	var frames []sim.Frame
	for i, desc := range strings.Split(s, ";") {
		desc = strings.TrimSpace(desc)
		if desc == "" {
			continue
		}
		fields := strings.Split(desc, ":")
		if len(fields) > 4 {
			return nil, fmt.Errorf("frame %d: too many fields in %q", i+1, desc)
		}
		var parts [4][]byte
		for j, field := range fields {
			b, err := hex.DecodeString(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("frame %d field %d: %w", i+1, j+1, err)
			}
			parts[j] = b
		}
		if len(parts[0]) != 1 {
			return nil, fmt.Errorf("frame %d: opcode must be one byte", i+1)
		}
		frames = append(frames, sim.Frame{
			Opcode:  parts[0][0],
			Address: parts[1],
			Dummy:   parts[2],
			Data:    parts[3],
		})
	}
	return frames, nil
}
