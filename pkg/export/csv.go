package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/lgerste/chainopt/pkg/errors"
	"github.com/lgerste/chainopt/pkg/sequence"
)

// ThreadResult is the outcome of one chain solved for one thread count.
type ThreadResult struct {
	// BnBBnBFinished reports whether the branch-and-bound solver with the
	// branch-and-bound scheduler ran to exhaustion in time.
	BnBBnBFinished bool
	// BnBBnBMakespan is its makespan.
	BnBBnBMakespan uint64
	// BnBListMakespan is the branch-and-bound solver's makespan under the
	// priority-list scheduler.
	BnBListMakespan uint64
	// DPMakespan is the makespan of the reconstructed DP sequence.
	DPMakespan uint64
	// DPBnBMakespan is the DP sequence after the branch-and-bound
	// scheduling post-pass.
	DPBnBMakespan uint64
}

// ResultRow is one generated chain: its per-thread results for t = 1..L.
type ResultRow struct {
	Length  int
	ID      int
	Results []ThreadResult
}

// ResultWriter streams batch results as CSV, one row per chain. The header
// repeats the five result columns per thread count.
type ResultWriter struct {
	w       *csv.Writer
	threads int
	wrote   bool
}

// NewResultWriter returns a writer emitting columns for t = 1..threads.
func NewResultWriter(w io.Writer, threads int) *ResultWriter {
	return &ResultWriter{w: csv.NewWriter(w), threads: threads}
}

// Write appends one chain row, emitting the header first if needed.
func (rw *ResultWriter) Write(row ResultRow) error {
	if !rw.wrote {
		header := []string{"length", "id"}
		for t := 1; t <= rw.threads; t++ {
			header = append(header,
				fmt.Sprintf("BnB_BnB_finished_%d", t),
				fmt.Sprintf("BnB_BnB_makespan_%d", t),
				fmt.Sprintf("BnB_List_makespan_%d", t),
				fmt.Sprintf("DP_makespan_%d", t),
				fmt.Sprintf("DP_BnB_makespan_%d", t),
			)
		}
		if err := rw.w.Write(header); err != nil {
			return errors.Wrap(errors.CodeIO, err, "write CSV header")
		}
		rw.wrote = true
	}

	record := []string{strconv.Itoa(row.Length), strconv.Itoa(row.ID)}
	for t := 0; t < rw.threads; t++ {
		var r ThreadResult
		if t < len(row.Results) {
			r = row.Results[t]
		}
		record = append(record,
			strconv.FormatBool(r.BnBBnBFinished),
			formatMakespan(r.BnBBnBMakespan),
			formatMakespan(r.BnBListMakespan),
			formatMakespan(r.DPMakespan),
			formatMakespan(r.DPBnBMakespan),
		)
	}
	if err := rw.w.Write(record); err != nil {
		return errors.Wrap(errors.CodeIO, err, "write CSV row")
	}
	return nil
}

// Flush flushes the underlying CSV writer.
func (rw *ResultWriter) Flush() error {
	rw.w.Flush()
	if err := rw.w.Error(); err != nil {
		return errors.Wrap(errors.CodeIO, err, "flush CSV")
	}
	return nil
}

func formatMakespan(v uint64) string {
	if v == sequence.Infinity {
		return ""
	}
	return strconv.FormatUint(v, 10)
}
