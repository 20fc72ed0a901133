package climate

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
)

type collectingSink struct {
	defects []domain.Defect
}

func (s *collectingSink) Report(d domain.Defect) { s.defects = append(s.defects, d) }

func scanAll(t *testing.T, page string) ([]domain.RawRow, []domain.Defect) {
	t.Helper()
	sink := &collectingSink{}
	s := NewRowScanner([]byte(page), sink)
	var rows []domain.RawRow
	for s.Scan() {
		rows = append(rows, s.Row())
	}
	return rows, sink.defects
}

const twoDayPage = `<html><body><table>
<thead><tr><th>Day</th><th>Max Temp</th><th>Min Temp</th></tr></thead>
<tbody>
<tr data-row="date" data-date="2022-01-01"><td>1</td><td>Max 5.0</td><td>Min -2.0</td></tr>
<tr data-row="date" data-date="2022-01-02"><td>2</td><td>Max x5</td><td>Min -3.0</td></tr>
<tr data-row="summary"><td>Sum</td><td>Max 99</td></tr>
</tbody></table></body></html>`

func TestRowScanner_WellFormedRows(t *testing.T) {
	rows, defects := scanAll(t, twoDayPage)

	want := []domain.RawRow{
		{Date: "2022-01-01", Fields: map[string]string{"Max": "5.0", "Min": "-2.0"}},
		{Date: "2022-01-02", Fields: map[string]string{"Max": "x5", "Min": "-3.0"}},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, defects)
}

func TestRowScanner_OnlyFieldsPresent(t *testing.T) {
	rows, _ := scanAll(t, `<table><tr data-row="date" data-date="2022-02-01"><td>Min -10.5</td></tr></table>`)

	require.Len(t, rows, 1)
	assert.Equal(t, map[string]string{"Min": "-10.5"}, rows[0].Fields)
}

func TestRowScanner_LabelsAreCaseSensitive(t *testing.T) {
	rows, defects := scanAll(t, `<table><tr data-row="date" data-date="2022-02-01"><td>max 1</td><td>MIN 2</td></tr></table>`)

	assert.Empty(t, rows)
	require.Len(t, defects, 1)
	assert.Equal(t, domain.ParseDefect, defects[0].Kind)
	assert.Equal(t, "2022-02-01", defects[0].Row)
}

func TestRowScanner_PairsWithinOneTextNode(t *testing.T) {
	rows, _ := scanAll(t, `<tr data-row="date" data-date="2022-03-01"><td>Max 4.5 Min -1.5 Mean 1.5</td></tr>`)

	require.Len(t, rows, 1)
	assert.Equal(t, map[string]string{"Max": "4.5", "Min": "-1.5"}, rows[0].Fields)
}

func TestRowScanner_IgnoresRowsWithoutDate(t *testing.T) {
	page := `<table>
<tr data-row="date"><td>Max 1</td></tr>
<tr data-row="date" data-date="  "><td>Max 2</td></tr>
<tr data-date="2022-01-03"><td>Max 3</td></tr>
<tr><td>Max 4</td></tr>
</table>`
	rows, defects := scanAll(t, page)

	assert.Empty(t, rows)
	assert.Empty(t, defects)
}

func TestRowScanner_FlushesUnterminatedRowAtEOF(t *testing.T) {
	rows, _ := scanAll(t, `<table><tr data-row="date" data-date="2022-04-01"><td>Max 10`)

	require.Len(t, rows, 1)
	assert.Equal(t, "2022-04-01", rows[0].Date)
	assert.Equal(t, "10", rows[0].Fields["Max"])
}

func TestRowScanner_NewRowFlushesOpenRow(t *testing.T) {
	page := `<tr data-row="date" data-date="2022-05-01"><td>Max 1</td>
<tr data-row="date" data-date="2022-05-02"><td>Min 2</td></tr>`
	rows, _ := scanAll(t, page)

	require.Len(t, rows, 2)
	assert.Equal(t, "2022-05-01", rows[0].Date)
	assert.Equal(t, map[string]string{"Max": "1"}, rows[0].Fields)
	assert.Equal(t, "2022-05-02", rows[1].Date)
	assert.Equal(t, map[string]string{"Min": "2"}, rows[1].Fields)
}

func TestRowScanner_FirstValueWins(t *testing.T) {
	rows, _ := scanAll(t, `<tr data-row="date" data-date="2022-06-01"><td>Max 1</td><td>Max 2</td></tr>`)

	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].Fields["Max"])
}

func TestRowScanner_EmptyAndGarbageInput(t *testing.T) {
	for _, page := range []string{"", "not html at all", "<<<>>>", strings.Repeat("</tr>", 10)} {
		rows, defects := scanAll(t, page)
		assert.Empty(t, rows)
		assert.Empty(t, defects)
	}
}

func TestRowScanner_NilSink(t *testing.T) {
	s := NewRowScanner([]byte(`<tr data-row="date" data-date="2022-01-01"></tr>`), nil)
	assert.NotPanics(t, func() {
		for s.Scan() {
		}
	})
}

func TestRowScanner_ScanAfterEndStaysFalse(t *testing.T) {
	s := NewRowScanner([]byte(twoDayPage), nil)
	for s.Scan() {
	}
	assert.False(t, s.Scan())
}

func TestRows_SequenceIsSingleUse(t *testing.T) {
	seq := Rows([]byte(twoDayPage), nil)

	var first []string
	for row := range seq {
		first = append(first, row.Date)
	}
	assert.Equal(t, []string{"2022-01-01", "2022-01-02"}, first)

	for range seq {
		t.Fatal("sequence must not restart")
	}
}

func TestRows_EarlyBreak(t *testing.T) {
	n := 0
	for range Rows([]byte(twoDayPage), nil) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}
