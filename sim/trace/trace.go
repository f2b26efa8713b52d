package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	clockFmtWidth  = 10
	actionFmtWidth = 9
	minFmtWidth    = 20
)

// Config controls trace collection behavior.
type Config struct {
	// RunID identifies the run in rendered output. Optional.
	RunID string
	// MaxEvents caps the number of recorded events; zero means no cap.
	MaxEvents int
}

// Column is an optional output column: a named property whose value is
// sampled at the moment each event is recorded.
type Column struct {
	Name  string
	Value func() string
}

// Trace collects activity records during a simulation run.
type Trace struct {
	Config  Config
	columns []Column
	records []Record
	dropped int
}

// New creates a Trace ready for recording.
func New(config Config) *Trace {
	return &Trace{Config: config, records: make([]Record, 0)}
}

// AddColumn adds an output column sampled at every subsequent record.
// Name becomes the column header; Value is typically a closure over a
// model element property, e.g. a queue's current population.
func (t *Trace) AddColumn(name string, value func() string) {
	if value == nil {
		panic(fmt.Sprintf("trace column %s has no value function", name))
	}
	t.columns = append(t.columns, Column{Name: name, Value: value})
}

// Record appends one activity record, sampling every configured column.
// Records beyond the MaxEvents cap are counted but not kept.
func (t *Trace) Record(time float64, object string, action Action, args []string) {
	if t.Config.MaxEvents > 0 && len(t.records) >= t.Config.MaxEvents {
		t.dropped++
		return
	}
	var cols []string
	if len(t.columns) > 0 {
		cols = make([]string, len(t.columns))
		for i, c := range t.columns {
			cols[i] = c.Value()
		}
	}
	t.records = append(t.records, Record{
		Time:    time,
		Object:  object,
		Action:  action,
		Args:    args,
		Columns: cols,
	})
}

// Records returns the collected records in recording order.
func (t *Trace) Records() []Record { return t.records }

// Len returns the number of records kept.
func (t *Trace) Len() int { return len(t.records) }

// Truncated reports whether any records were dropped by the MaxEvents cap.
func (t *Trace) Truncated() bool { return t.dropped > 0 }

// fmtWidths sizes the object and argument table fields to the widest
// collected values.
func (t *Trace) fmtWidths() (int, int) {
	objectWidth, argsWidth := minFmtWidth, minFmtWidth
	for _, r := range t.records {
		if w := len(r.Object) + 2; w > objectWidth {
			objectWidth = w
		}
		if w := len(r.ArgsString()) + 2; w > argsWidth {
			argsWidth = w
		}
	}
	return objectWidth, argsWidth
}

// WriteTable renders the records as a fixed-width table: a Time column,
// then object, action and arguments, then any configured columns. The
// header row names only Time and the configured columns.
func (t *Trace) WriteTable(w io.Writer) error {
	objectWidth, argsWidth := t.fmtWidths()
	eventWidth := objectWidth + actionFmtWidth + argsWidth + 3
	tableWidth := clockFmtWidth + eventWidth

	if t.Config.RunID != "" {
		if _, err := fmt.Fprintf(w, "Run %s\n", t.Config.RunID); err != nil {
			return fmt.Errorf("writing trace table: %w", err)
		}
	}
	header := fmt.Sprintf("%*s%*s", clockFmtWidth, "Time", eventWidth, "")
	for _, c := range t.columns {
		header += c.Name + " "
		tableWidth += len(c.Name) + 1
	}
	if _, err := fmt.Fprintf(w, "%s\n%s\n", header, strings.Repeat("=", tableWidth)); err != nil {
		return fmt.Errorf("writing trace table: %w", err)
	}

	for _, r := range t.records {
		row := fmt.Sprintf("%*.2f %-*s %-*s %-*s",
			clockFmtWidth, r.Time,
			objectWidth, r.Object,
			actionFmtWidth, string(r.Action),
			argsWidth, r.ArgsString())
		for i, c := range t.columns {
			row += fmt.Sprintf("%-*s ", len(c.Name)+1, r.Columns[i])
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(row, " ")); err != nil {
			return fmt.Errorf("writing trace table: %w", err)
		}
	}
	return nil
}

// WriteCSV renders the records as comma separated values with a header
// row: Time, Object, Action, Arguments, then any configured columns.
func (t *Trace) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	header := append([]string{"Time", "Object", "Action", "Arguments"}, t.columnNames()...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, r := range t.records {
		row := []string{
			strconv.FormatFloat(r.Time, 'f', -1, 64),
			r.Object,
			string(r.Action),
			r.ArgsString(),
		}
		row = append(row, r.Columns...)
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func (t *Trace) columnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}
