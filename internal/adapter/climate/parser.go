package climate

import (
	"bytes"
	"iter"
	"strings"

	"golang.org/x/net/html"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
)

// Row markup: <tr data-row="date" data-date="YYYY-MM-DD">.
const (
	rowTag        = "tr"
	rowMarkerAttr = "data-row"
	rowMarkerVal  = "date"
	rowDateAttr   = "data-date"
)

// labels are the case-sensitive value labels captured inside a data row.
var labels = map[string]bool{
	domain.FieldMax: true,
	domain.FieldMin: true,
}

type rowState int

const (
	stateIdle rowState = iota
	stateInRow
	stateFlushing
)

func (s rowState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateInRow:
		return "in_row"
	case stateFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// rowContext is the accumulator for the row currently being read.
type rowContext struct {
	date   string
	fields map[string]string
}

func (c *rowContext) reset(date string) {
	c.date = date
	c.fields = make(map[string]string, len(labels))
}

// RowScanner turns one page of markup into daily raw rows by walking the
// tokenizer's start-tag, end-tag and text events. It builds no DOM and keeps
// only the current row in memory. A RowScanner is single-use.
//
//	s := climate.NewRowScanner(page, sink)
//	for s.Scan() {
//		row := s.Row()
//	}
type RowScanner struct {
	z     *html.Tokenizer
	sink  domain.DefectSink
	state rowState
	cur   rowContext
	row   domain.RawRow
	done  bool
}

// NewRowScanner creates a scanner over page. Rows that carry a date but no
// recognized values are reported to sink as ParseDefects. A nil sink discards.
func NewRowScanner(page []byte, sink domain.DefectSink) *RowScanner {
	if sink == nil {
		sink = domain.DiscardDefects
	}
	return &RowScanner{
		z:    html.NewTokenizer(bytes.NewReader(page)),
		sink: sink,
	}
}

// Rows returns the rows of page as a lazy, single-use sequence.
func Rows(page []byte, sink domain.DefectSink) iter.Seq[domain.RawRow] {
	s := NewRowScanner(page, sink)
	return func(yield func(domain.RawRow) bool) {
		for s.Scan() {
			if !yield(s.Row()) {
				return
			}
		}
	}
}

// Scan advances to the next emitted row. It returns false once the input is
// exhausted; an unterminated row at end of input is flushed first.
func (s *RowScanner) Scan() bool {
	for !s.done {
		tt := s.z.Next()
		switch tt {
		case html.ErrorToken:
			s.done = true
			if s.state == stateInRow && s.flush() {
				return true
			}
		case html.StartTagToken:
			if s.startTag() {
				return true
			}
		case html.EndTagToken:
			if s.endTag() {
				return true
			}
		case html.TextToken:
			if s.state == stateInRow {
				s.text(string(s.z.Text()))
			}
		}
	}
	return false
}

// Row returns the row produced by the last successful Scan.
func (s *RowScanner) Row() domain.RawRow {
	return s.row
}

// startTag handles a start tag. A new data row while one is open flushes the
// open row first, so malformed pages without </tr> still yield their data.
func (s *RowScanner) startTag() bool {
	name, hasAttr := s.z.TagName()
	if string(name) != rowTag || !hasAttr {
		return false
	}

	date, isDataRow := s.rowAttrs()
	if !isDataRow || date == "" {
		return false
	}

	emitted := false
	if s.state == stateInRow {
		emitted = s.flush()
	}
	s.cur.reset(date)
	s.state = stateInRow
	return emitted
}

func (s *RowScanner) endTag() bool {
	name, _ := s.z.TagName()
	if string(name) != rowTag || s.state != stateInRow {
		return false
	}
	return s.flush()
}

// rowAttrs reads the current tag's attributes, reporting whether it is marked
// as a data row and the trimmed date token it carries.
func (s *RowScanner) rowAttrs() (date string, isDataRow bool) {
	for {
		key, val, more := s.z.TagAttr()
		switch string(key) {
		case rowMarkerAttr:
			isDataRow = string(val) == rowMarkerVal
		case rowDateAttr:
			date = strings.TrimSpace(string(val))
		}
		if !more {
			return date, isDataRow
		}
	}
}

// text records label/value pairs from a text event. The first value seen for
// a label within a row wins.
func (s *RowScanner) text(data string) {
	tokens := strings.Fields(data)
	for i := 0; i+1 < len(tokens); i++ {
		label := tokens[i]
		if !labels[label] {
			continue
		}
		if _, seen := s.cur.fields[label]; !seen {
			s.cur.fields[label] = tokens[i+1]
		}
		i++
	}
}

// flush moves InRow -> Flushing -> Idle, emitting the accumulated row when it
// has a date and at least one field.
func (s *RowScanner) flush() bool {
	s.state = stateFlushing
	defer func() {
		s.state = stateIdle
		s.cur = rowContext{}
	}()

	if s.cur.date == "" {
		return false
	}
	if len(s.cur.fields) == 0 {
		s.sink.Report(domain.Defect{
			Row:     s.cur.date,
			Kind:    domain.ParseDefect,
			Message: "row has no Max or Min value",
		})
		return false
	}

	s.row = domain.RawRow{Date: s.cur.date, Fields: s.cur.fields}
	return true
}
