package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/soypat/qspi"
	"github.com/soypat/qspi/capture"
	"github.com/soypat/qspi/logic"
	"github.com/soypat/qspi/report"
)

// Optional flags.
var (
	mqttBroker string
	mqttTopic  string
)

type DecodeCtl struct {
	Config  qspi.Config
	Capture capture.Options
	// Output format: text, table or jsonl.
	Format string
	Rows   []qspi.Row
	Output string
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "qspidecode - Decode Quad/Dual SPI memory bus captures into instruction, address and data annotations.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	input := flag.String("f", "", "Input capture: .csv, .json or .parquet with one column per line.")
	saleaeClk := flag.String("f-clk", "", "Saleae binary digital export of the clock. Selects standard SPI Saleae input.")
	saleaeCS := flag.String("f-cs", "", "Saleae binary digital export of chip select.")
	saleaeSDO := flag.String("f-sdo", "", "Saleae binary digital export of MOSI.")
	saleaeSDI := flag.String("f-sdi", "", "Saleae binary digital export of MISO (optional).")
	columns := flag.String("cols", "", "Column names per line, e.g. 'clk=Channel 0,mosi=Channel 1,cs=Channel 5'.")
	sampleCol := flag.String("sample-col", "", "Column holding sample indices. Defaults to 'sample' if present, else the row number.")
	timeCol := flag.String("time-col", "", "Column holding timestamps in seconds, as in Saleae digital.csv exports. Requires -rate.")
	rate := flag.Float64("rate", 0, "Sample rate in Hz used to convert the time column to sample indices.")
	edge := flag.String("clk-edge", "rising", "Sample data on CLK edge: rising or falling.")
	bitorder := flag.String("bitorder", "msb-first", "Bit order: msb-first or lsb-first.")
	proto := flag.String("proto", qspi.DefaultInstructionSet, "Instruction set.")
	output := flag.String("o", "", "Output filename. Defaults to stdout.")
	format := flag.String("format", "text", "Output format: text, table or jsonl.")
	rows := flag.String("rows", "", "Comma separated annotation rows to output: bytes, parsed, error. Defaults to all.")
	list := flag.Bool("list", false, "List the instruction set and exit.")
	loglevel := flag.String("log", "info", "Log level: trace, debug, info, warn or error.")
	flag.StringVar(&mqttBroker, "mqtt", "", "Also publish annotations to this MQTT broker (host:port).")
	flag.StringVar(&mqttTopic, "mqtt-topic", "qspi/annotations", "MQTT topic for published annotations.")
	flag.Parse()

	level, err := parseLevel(*loglevel)
	if err != nil {
		log.Fatal(err)
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)

	if *list {
		set, err := qspi.LookupInstructionSet(*proto)
		if err != nil {
			log.Fatal(err)
		}
		listInstructions(os.Stdout, set)
		return
	}

	cfg := qspi.DefaultConfig()
	cfg.InstructionSet = *proto
	cfg.Logger = logger
	cfg.ClockEdge, err = qspi.ParseEdge(*edge)
	if err != nil {
		log.Fatal(err)
	}
	cfg.BitOrder, err = qspi.ParseBitOrder(*bitorder)
	if err != nil {
		log.Fatal(err)
	}
	ctl := DecodeCtl{
		Config: cfg,
		Capture: capture.Options{
			SampleColumn: *sampleCol,
			TimeColumn:   *timeCol,
			SampleRate:   *rate,
		},
		Format: *format,
		Output: *output,
	}
	ctl.Capture.Columns, err = parseColumns(*columns)
	if err != nil {
		log.Fatal(err)
	}
	ctl.Rows, err = parseRows(*rows)
	if err != nil {
		log.Fatal(err)
	}

	start := time.Now()
	var trace *logic.Trace
	switch {
	case *saleaeClk != "":
		var set *qspi.InstructionSet
		set, err = qspi.LookupInstructionSet(*proto)
		if err != nil {
			log.Fatal(err)
		}
		trace, err = loadSaleae(logger, set, *saleaeClk, *saleaeCS, *saleaeSDO, *saleaeSDI)
	case *input != "":
		trace, err = capture.Load(*input, ctl.Capture)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
	logger.Info("capture loaded", slog.Int64("samples", trace.Len()), slog.Int("changes", len(trace.Changes())), slog.Duration("elapsed", time.Since(start)))
	if err := ctl.run(context.Background(), trace); err != nil {
		log.Fatal(err.Error())
	}
	logger.Info("finished", slog.Duration("elapsed", time.Since(start)))
}

func (ctl *DecodeCtl) run(ctx context.Context, src qspi.Sampler) (err error) {
	var w io.Writer = os.Stdout
	if ctl.Output != "" {
		fp, err := os.Create(ctl.Output)
		if err != nil {
			return err
		}
		defer fp.Close()
		w = fp
	}
	out, err := report.New(ctl.Format, w)
	if err != nil {
		return err
	}
	annotators := []qspi.Annotator{out}
	if mqttBroker != "" {
		pub, err := report.DialMQTT(ctx, report.MQTTConfig{Broker: mqttBroker, Topic: mqttTopic})
		if err != nil {
			return fmt.Errorf("connecting to mqtt broker: %w", err)
		}
		defer pub.Close()
		annotators = append(annotators, pub)
	}
	var ann qspi.Annotator = report.Multi(annotators...)
	if len(ctl.Rows) > 0 {
		ann = report.Rows(ann, ctl.Rows...)
	}
	dec, err := qspi.NewDecoder(src, ann, ctl.Config)
	if err != nil {
		return err
	}
	err = dec.Decode(ctx)
	if f, ok := out.(report.Flusher); ok {
		err = errors.Join(err, f.Flush())
	}
	return err
}

func loadSaleae(logger *slog.Logger, set *qspi.InstructionSet, clk, cs, sdo, sdi string) (*logic.Trace, error) {
	if cs == "" || sdo == "" {
		return nil, errors.New("saleae input needs -f-cs and -f-sdo")
	}
	var files capture.SaleaeFiles
	for _, f := range []struct {
		name string
		dst  *io.Reader
	}{{clk, &files.Clock}, {cs, &files.Enable}, {sdo, &files.SDO}, {sdi, &files.SDI}} {
		if f.name == "" {
			continue
		}
		fp, err := os.Open(f.name)
		if err != nil {
			return nil, err
		}
		defer fp.Close()
		*f.dst = fp
	}
	txs, err := capture.ReadSaleaeSPI(files)
	if err != nil {
		return nil, err
	}
	if len(txs) > 0 {
		logger.Info("saleae transactions", slog.Int("count", len(txs)), slog.Float64("first", txs[0].Start))
	}
	return capture.Resynthesize(set, txs)
}

// parseColumns parses line=column pairs.
func parseColumns(s string) (map[qspi.Line]string, error) {
	if s == "" {
		return nil, nil
	}
	cols := make(map[qspi.Line]string)
	for _, pair := range strings.Split(s, ",") {
		name, col, ok := strings.Cut(pair, "=")
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid column mapping %q", pair)
		}
		line, err := parseLine(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		cols[line] = strings.TrimSpace(col)
	}
	return cols, nil
}

func parseLine(s string) (qspi.Line, error) {
	switch strings.ToLower(s) {
	case "clk", "sck":
		return qspi.LineCLK, nil
	case "mosi", "io0":
		return qspi.LineIO0, nil
	case "miso", "io1":
		return qspi.LineIO1, nil
	case "io2":
		return qspi.LineIO2, nil
	case "io3":
		return qspi.LineIO3, nil
	case "cs":
		return qspi.LineCS, nil
	}
	return 0, fmt.Errorf("unknown line %q", s)
}

func parseRows(s string) ([]qspi.Row, error) {
	if s == "" {
		return nil, nil
	}
	var rows []qspi.Row
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(name) {
		case "bytes":
			rows = append(rows, qspi.RowBytes)
		case "parsed":
			rows = append(rows, qspi.RowParsed)
		case "error":
			rows = append(rows, qspi.RowError)
		default:
			return nil, fmt.Errorf("unknown annotation row %q", name)
		}
	}
	return rows, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "trace":
		return slog.LevelDebug - 1, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q", s)
}

func listInstructions(w io.Writer, set *qspi.InstructionSet) {
	for _, ins := range set.Instructions() {
		fmt.Fprintf(w, "%#04x  %-24s addr=%s dummy=%s data=%s\n", ins.Opcode, ins.Name(),
			countPhaseString(ins.Address), countPhaseString(ins.Dummy), dataPhaseString(ins.Data))
	}
}

func countPhaseString(p qspi.CountPhase) string {
	if !p.Active {
		return "-"
	}
	return fmt.Sprintf("%dx%d", p.Bytes(), p.Width)
}

func dataPhaseString(p qspi.DataPhase) string {
	if !p.Active {
		return "-"
	}
	return fmt.Sprintf("%s x%d", p.Direction, p.Width)
}
