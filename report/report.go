// Package report writes qspi annotations for people and other programs.
package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/soypat/qspi"
)

// Collector keeps every annotation in memory.
type Collector struct {
	Annotations []qspi.Annotation
}

func (c *Collector) Annotate(a qspi.Annotation) error {
	c.Annotations = append(c.Annotations, a)
	return nil
}

// Filter returns the collected annotations in categories cats.
func (c *Collector) Filter(cats ...qspi.Category) []qspi.Annotation {
	var out []qspi.Annotation
	for _, a := range c.Annotations {
		for _, cat := range cats {
			if a.Category == cat {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// Multi sends each annotation to all annotators in order, stopping at the
// first error.
func Multi(annotators ...qspi.Annotator) qspi.Annotator {
	return qspi.AnnotatorFunc(func(a qspi.Annotation) error {
		for _, an := range annotators {
			if err := an.Annotate(a); err != nil {
				return err
			}
		}
		return nil
	})
}

// Rows restricts an annotator to categories in the given rows.
func Rows(an qspi.Annotator, rows ...qspi.Row) qspi.Annotator {
	return qspi.AnnotatorFunc(func(a qspi.Annotation) error {
		for _, r := range rows {
			if a.Category.Row() == r {
				return an.Annotate(a)
			}
		}
		return nil
	})
}

// Text writes one line per annotation:
//
//	start-end row category label
type Text struct {
	w *bufio.Writer
}

func NewText(w io.Writer) *Text {
	return &Text{w: bufio.NewWriter(w)}
}

func (t *Text) Annotate(a qspi.Annotation) error {
	_, err := fmt.Fprintf(t.w, "%d-%d %s %s %s\n", a.Start, a.End, a.Category.Row(), a.Category, longest(a.Labels))
	return err
}

// Flush writes buffered lines.
func (t *Text) Flush() error { return t.w.Flush() }

// Table buffers annotations and renders them as an aligned table on Flush.
type Table struct {
	w    io.Writer
	rows [][]string
}

func NewTable(w io.Writer) *Table {
	return &Table{w: w}
}

func (t *Table) Annotate(a qspi.Annotation) error {
	t.rows = append(t.rows, []string{
		strconv.FormatInt(a.Start, 10),
		strconv.FormatInt(a.End, 10),
		a.Category.Row().String(),
		a.Category.Description(),
		longest(a.Labels),
	})
	return nil
}

func (t *Table) Flush() error {
	table := tablewriter.NewWriter(t.w)
	table.SetHeader([]string{"Start", "End", "Row", "Category", "Label"})
	table.SetAutoWrapText(false)
	table.AppendBulk(t.rows)
	table.Render()
	t.rows = t.rows[:0]
	return nil
}

// Record is the JSON form of an annotation.
type Record struct {
	Start    int64    `json:"start"`
	End      int64    `json:"end"`
	ID       uint8    `json:"id"`
	Category string   `json:"category"`
	Row      string   `json:"row"`
	Labels   []string `json:"labels"`
}

func NewRecord(a qspi.Annotation) Record {
	return Record{
		Start:    a.Start,
		End:      a.End,
		ID:       uint8(a.Category),
		Category: a.Category.String(),
		Row:      a.Category.Row().String(),
		Labels:   a.Labels,
	}
}

// JSONLines writes one JSON Record per line.
type JSONLines struct {
	w   *bufio.Writer
	enc *json.Encoder
}

func NewJSONLines(w io.Writer) *JSONLines {
	bw := bufio.NewWriter(w)
	return &JSONLines{w: bw, enc: json.NewEncoder(bw)}
}

func (j *JSONLines) Annotate(a qspi.Annotation) error {
	return j.enc.Encode(NewRecord(a))
}

func (j *JSONLines) Flush() error { return j.w.Flush() }

// Flusher is implemented by annotators that buffer output.
type Flusher interface {
	Flush() error
}

// New returns the annotator for an output format name: text, table or jsonl.
func New(format string, w io.Writer) (qspi.Annotator, error) {
	switch strings.ToLower(format) {
	case "text", "":
		return NewText(w), nil
	case "table":
		return NewTable(w), nil
	case "jsonl", "json":
		return NewJSONLines(w), nil
	}
	return nil, errors.New("report: unknown format " + strconv.Quote(format))
}

func longest(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	return labels[0]
}
