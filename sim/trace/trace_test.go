package trace

import (
	"strings"
	"testing"
)

func TestArgsString_SingleArgumentVerbatim(t *testing.T) {
	// GIVEN a record with one argument
	r := Record{Args: []string{"Bank.Teller"}}

	// THEN it is rendered as-is
	if got := r.ArgsString(); got != "Bank.Teller" {
		t.Errorf("expected Bank.Teller, got %q", got)
	}
}

func TestArgsString_CollapsesDuplicates(t *testing.T) {
	// GIVEN a record naming the same resource three times
	r := Record{Args: []string{"Bank.Teller", "Bank.Teller", "Bank.Clerk", "Bank.Teller"}}

	// WHEN formatted
	got := r.ArgsString()

	// THEN duplicates collapse to "name (n)" in first-appearance order
	if got != "Bank.Teller (3) Bank.Clerk" {
		t.Errorf("expected collapsed arguments, got %q", got)
	}
}

func TestArgsString_EmptyArguments(t *testing.T) {
	r := Record{}
	if got := r.ArgsString(); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestRecord_MaxEventsCapDropsExcess(t *testing.T) {
	// GIVEN a trace capped at two events
	tr := New(Config{MaxEvents: 2})

	// WHEN three events are recorded
	tr.Record(0, "Customer#1", MoveTo, []string{"Bank.Queue"})
	tr.Record(1, "Customer#1", Acquired, []string{"Bank.Teller"})
	tr.Record(2, "Customer#1", Release, []string{"Bank.Teller"})

	// THEN only the first two are kept and the trace reports truncation
	if tr.Len() != 2 {
		t.Errorf("expected 2 records, got %d", tr.Len())
	}
	if !tr.Truncated() {
		t.Error("expected trace to report truncation")
	}
	if got := tr.Records()[1].Action; got != Acquired {
		t.Errorf("expected second record action Acquired, got %s", got)
	}
}

func TestRecord_NoCapKeepsEverything(t *testing.T) {
	tr := New(Config{})
	for i := 0; i < 100; i++ {
		tr.Record(float64(i), "Customer#1", MoveTo, nil)
	}
	if tr.Len() != 100 {
		t.Errorf("expected 100 records, got %d", tr.Len())
	}
	if tr.Truncated() {
		t.Error("expected no truncation without a cap")
	}
}

func TestAddColumn_SampledAtRecordTime(t *testing.T) {
	// GIVEN a column sampling a changing value
	tr := New(Config{})
	population := "0"
	tr.AddColumn("Queue:pop", func() string { return population })

	// WHEN two events are recorded around a change
	tr.Record(0, "Customer#1", MoveTo, []string{"Bank.Queue"})
	population = "1"
	tr.Record(1, "Customer#2", MoveTo, []string{"Bank.Queue"})

	// THEN each record holds the value at its own recording instant
	if got := tr.Records()[0].Columns[0]; got != "0" {
		t.Errorf("expected first record to sample 0, got %q", got)
	}
	if got := tr.Records()[1].Columns[0]; got != "1" {
		t.Errorf("expected second record to sample 1, got %q", got)
	}
}

func TestWriteCSV_HeaderAndRows(t *testing.T) {
	// GIVEN a trace with one column and two events
	tr := New(Config{})
	tr.AddColumn("Queue:pop", func() string { return "3" })
	tr.Record(0.25, "Customer#1", MoveTo, []string{"Bank.Queue"})
	tr.Record(1.5, "Customer#1", Acquired, []string{"Bank.Teller", "Bank.Teller"})

	// WHEN written as CSV
	var buf strings.Builder
	if err := tr.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	// THEN the header and rows carry the expected fields
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 CSV lines, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "Time,Object,Action,Arguments,Queue:pop" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if lines[1] != "0.25,Customer#1,Move-to,Bank.Queue,3" {
		t.Errorf("unexpected first row: %q", lines[1])
	}
	if lines[2] != "1.5,Customer#1,Acquired,Bank.Teller (2),3" {
		t.Errorf("unexpected second row: %q", lines[2])
	}
}

func TestWriteTable_FormatsRows(t *testing.T) {
	// GIVEN a trace with a run ID and two events
	tr := New(Config{RunID: "run-1"})
	tr.Record(0, "Customer#1", MoveTo, []string{"Bank.Queue"})
	tr.Record(2.5, "Customer#1", Acquired, []string{"Bank.Teller"})

	// WHEN written as a table
	var buf strings.Builder
	if err := tr.WriteTable(&buf); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	// THEN the output has a run line, a Time header, a rule, and one
	// line per record
	if len(lines) != 5 {
		t.Fatalf("expected 5 table lines, got %d: %q", len(lines), out)
	}
	if lines[0] != "Run run-1" {
		t.Errorf("unexpected run line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "Time") {
		t.Errorf("expected Time in header, got %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "====") {
		t.Errorf("expected rule line, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "0.00") || !strings.Contains(lines[3], "Move-to") {
		t.Errorf("unexpected first row: %q", lines[3])
	}
	if !strings.Contains(lines[4], "2.50") || !strings.Contains(lines[4], "Bank.Teller") {
		t.Errorf("unexpected second row: %q", lines[4])
	}
}
