// Package capture loads logic analyzer captures into logic traces.
//
// Tabular captures have one column per bus line and one row per sample.
// Exports that only list transitions carry an explicit sample column; the
// levels of a row then hold until the next row.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/exports"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/soypat/qspi"
	"github.com/soypat/qspi/logic"
	"github.com/xitongsys/parquet-go-source/local"
)

var (
	ErrEmptyCapture    = errors.New("capture: no samples")
	ErrMissingColumn   = errors.New("capture: missing column")
	ErrUnsortedSamples = errors.New("capture: sample column not in ascending order")
	ErrBadLevel        = errors.New("capture: value is not a logic level")
	ErrUnknownFormat   = errors.New("capture: unknown file format")
)

// Options select capture columns.
type Options struct {
	// Columns maps lines to column names, overriding the defaults.
	// Column names match case insensitively.
	Columns map[qspi.Line]string
	// SampleColumn holds explicit sample indices. When empty a column
	// named "sample" is used if present, otherwise the row number.
	SampleColumn string
	// TimeColumn holds timestamps in seconds, as in Saleae Logic
	// digital.csv exports. Each row's sample index is the timestamp times
	// SampleRate, relative to the first row. Ignored when SampleRate is 0.
	TimeColumn string
	SampleRate float64
}

var defaultColumns = [qspi.NumLines][]string{
	qspi.LineCLK: {"clk", "sck", "sclk", "clock"},
	qspi.LineIO0: {"mosi", "io0", "sio0"},
	qspi.LineIO1: {"miso", "io1", "sio1"},
	qspi.LineIO2: {"io2", "sio2"},
	qspi.LineIO3: {"io3", "sio3"},
	qspi.LineCS:  {"cs", "ncs", "ss", "csn"},
}

// Load reads a capture choosing the format by file extension: .csv, .json
// or .parquet.
func Load(path string, opts Options) (*logic.Trace, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path, opts)
	case ".json", ".jsonl":
		return LoadJSON(path, opts)
	case ".parquet":
		return LoadParquet(path, opts)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// LoadCSV reads a CSV capture whose first row is the header.
func LoadCSV(path string, opts Options) (*logic.Trace, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return ReadCSV(fp, opts)
}

// ReadCSV reads a CSV capture from r.
func ReadCSV(r io.ReadSeeker, opts Options) (*logic.Trace, error) {
	df, err := imports.LoadFromCSV(context.Background(), r, imports.CSVLoadOptions{
		InferDataTypes: true,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: csv: %w", err)
	}
	return FromDataFrame(df, opts)
}

// LoadJSON reads a capture of JSON records, one object per sample row.
func LoadJSON(path string, opts Options) (*logic.Trace, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := imports.LoadFromJSON(context.Background(), fp)
	if err != nil {
		return nil, fmt.Errorf("capture: json: %w", err)
	}
	return FromDataFrame(df, opts)
}

// LoadParquet reads a Parquet capture.
func LoadParquet(path string, opts Options) (*logic.Trace, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, err
	}
	defer fr.Close()
	df, err := imports.LoadFromParquet(context.Background(), fr)
	if err != nil {
		return nil, fmt.Errorf("capture: parquet: %w", err)
	}
	return FromDataFrame(df, opts)
}

// FromDataFrame converts a capture table to a trace. Lines without a
// column are not connected.
func FromDataFrame(df *dataframe.DataFrame, opts Options) (*logic.Trace, error) {
	if df == nil || len(df.Series) == 0 || df.Series[0].NRows() == 0 {
		return nil, ErrEmptyCapture
	}
	var cols [qspi.NumLines]dataframe.Series
	var connected []qspi.Line
	for l := qspi.Line(0); l < qspi.NumLines; l++ {
		names := defaultColumns[l]
		if name, ok := opts.Columns[l]; ok {
			names = []string{name}
		}
		cols[l] = findSeries(df, names...)
		if cols[l] != nil {
			connected = append(connected, l)
		} else if _, ok := opts.Columns[l]; ok {
			return nil, fmt.Errorf("%w %q for line %s", ErrMissingColumn, opts.Columns[l], l)
		}
	}
	if cols[qspi.LineCLK] == nil {
		return nil, fmt.Errorf("%w: clock", ErrMissingColumn)
	}
	var sampleCol, timeCol dataframe.Series
	if opts.SampleRate > 0 {
		timeCol = findSeries(df, opts.TimeColumn, "time [s]", "time")
		if timeCol == nil {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, opts.TimeColumn)
		}
	}
	if opts.SampleColumn != "" {
		sampleCol = findSeries(df, opts.SampleColumn)
		if sampleCol == nil {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, opts.SampleColumn)
		}
	} else {
		sampleCol = findSeries(df, "sample")
	}

	trace := logic.NewTrace(connected...)
	nrows := df.Series[0].NRows()
	prev := int64(-1)
	var t0 float64
	for row := 0; row < nrows; row++ {
		sample := int64(row)
		switch {
		case timeCol != nil:
			ts, ok := timeCol.Value(row).(float64)
			if !ok {
				n, isInt := int64Value(timeCol.Value(row))
				if !isInt {
					return nil, fmt.Errorf("capture: row %d: bad timestamp %v", row, timeCol.Value(row))
				}
				ts = float64(n)
			}
			if row == 0 {
				t0 = ts
			}
			sample = int64(math.Round((ts - t0) * opts.SampleRate))
		case sampleCol != nil:
			v, ok := int64Value(sampleCol.Value(row))
			if !ok {
				return nil, fmt.Errorf("capture: row %d: bad sample index %v", row, sampleCol.Value(row))
			}
			sample = v
		}
		if sample < prev {
			return nil, fmt.Errorf("%w: row %d", ErrUnsortedSamples, row)
		}
		prev = sample
		var lv qspi.Levels
		for l, s := range cols {
			if s == nil {
				lv[l] = qspi.LevelNC
				continue
			}
			level, err := levelValue(s.Value(row))
			if err != nil {
				return nil, fmt.Errorf("capture: row %d column %q: %w", row, s.Name(), err)
			}
			lv[l] = level
		}
		if err := trace.Append(sample, lv); err != nil {
			return nil, fmt.Errorf("capture: row %d: %w", row, err)
		}
	}
	trace.Rewind()
	return trace, nil
}

// ToDataFrame converts a trace to a transition table with a sample column
// followed by one column per connected line.
func ToDataFrame(t *logic.Trace) *dataframe.DataFrame {
	changes := t.Changes()
	lines := t.ConnectedLines()
	samples := make([]interface{}, 0, len(changes)+1)
	values := make([][]interface{}, len(lines))
	for _, c := range changes {
		samples = append(samples, c.Sample)
		for i, l := range lines {
			values[i] = append(values[i], int64(c.Levels[l].Bit()))
		}
	}
	if last := t.Len() - 1; len(changes) > 0 && last > changes[len(changes)-1].Sample {
		// Terminal row so the trace length survives a round trip.
		samples = append(samples, last)
		final := changes[len(changes)-1].Levels
		for i, l := range lines {
			values[i] = append(values[i], int64(final[l].Bit()))
		}
	}
	series := []dataframe.Series{dataframe.NewSeriesInt64("sample", nil, samples...)}
	for i, l := range lines {
		series = append(series, dataframe.NewSeriesInt64(defaultColumns[l][0], nil, values[i]...))
	}
	return dataframe.NewDataFrame(series...)
}

// WriteCSV writes t as a CSV transition table readable by ReadCSV.
func WriteCSV(w io.Writer, t *logic.Trace) error {
	return exports.ExportToCSV(context.Background(), w, ToDataFrame(t))
}

func findSeries(df *dataframe.DataFrame, names ...string) dataframe.Series {
	for _, name := range names {
		for _, s := range df.Series {
			if strings.EqualFold(strings.TrimSpace(s.Name()), name) {
				return s
			}
		}
	}
	return nil
}

func int64Value(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case int32:
		return int64(val), true
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int64(val), true
	}
	return 0, false
}

// levelValue interprets a table cell as a logic level. Empty cells are
// reported as not connected.
func levelValue(v interface{}) (qspi.Level, error) {
	switch val := v.(type) {
	case nil:
		return qspi.LevelNC, nil
	case bool:
		if val {
			return qspi.High, nil
		}
		return qspi.Low, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "h", "high", "true":
			return qspi.High, nil
		case "0", "l", "low", "false":
			return qspi.Low, nil
		case "", "x", "z", "nc":
			return qspi.LevelNC, nil
		}
	default:
		if n, ok := int64Value(v); ok && (n == 0 || n == 1) {
			return qspi.Level(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %v", ErrBadLevel, v)
}
