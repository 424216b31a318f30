package export

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/lgerste/chainopt/pkg/sequence"
)

func TestResultWriter(t *testing.T) {
	var buf bytes.Buffer
	rw := NewResultWriter(&buf, 2)

	row := ResultRow{
		Length: 2,
		ID:     0,
		Results: []ThreadResult{
			{BnBBnBFinished: true, BnBBnBMakespan: 120, BnBListMakespan: 130, DPMakespan: 120, DPBnBMakespan: 120},
			{BnBBnBFinished: false, BnBBnBMakespan: 90, BnBListMakespan: 95, DPMakespan: 100, DPBnBMakespan: 92},
		},
	}
	if err := rw.Write(row); err != nil {
		t.Fatal(err)
	}
	if err := rw.Flush(); err != nil {
		t.Fatal(err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want header + 1 row", len(records))
	}

	header := records[0]
	if header[2] != "BnB_BnB_finished_1" || header[7] != "BnB_BnB_finished_2" {
		t.Errorf("unexpected header: %v", header)
	}

	got := records[1]
	want := []string{"2", "0", "true", "120", "130", "120", "120", "false", "90", "95", "100", "92"}
	if len(got) != len(want) {
		t.Fatalf("row has %d fields, want %d", len(got), len(want))
	}
	for idx := range want {
		if got[idx] != want[idx] {
			t.Errorf("field %d = %q, want %q", idx, got[idx], want[idx])
		}
	}
}

func TestResultWriterUnsolvedCellsAreEmpty(t *testing.T) {
	var buf bytes.Buffer
	rw := NewResultWriter(&buf, 1)

	row := ResultRow{Length: 3, ID: 1, Results: []ThreadResult{{
		BnBBnBMakespan:  sequence.Infinity,
		BnBListMakespan: sequence.Infinity,
		DPMakespan:      40,
		DPBnBMakespan:   40,
	}}}
	if err := rw.Write(row); err != nil {
		t.Fatal(err)
	}
	if err := rw.Flush(); err != nil {
		t.Fatal(err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	got := records[1]
	if got[3] != "" || got[4] != "" {
		t.Errorf("unsolved makespans not empty: %v", got)
	}
	if got[5] != "40" {
		t.Errorf("DP makespan = %q, want 40", got[5])
	}
}
