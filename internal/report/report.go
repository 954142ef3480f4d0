// Package report aggregates per-host outcomes and renders the run
// summary and failures CSV (spec.md §4.8).
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
	"github.com/jeremyschulman/netcfgbu-go/internal/inventory"
)

const timeFormat = "2006-Jan-02 03:04:05 PM"

// Outcome is one host's pass/fail result, paired with the record that
// produced it.
type Outcome struct {
	Rec inventory.Record
	Err error
}

// Report tracks successes and failures with monotonic start/stop
// timestamps, matching the original Report class's start_tm/stop_tm.
type Report struct {
	startTS time.Time
	startTM time.Time
	stopTS  time.Time
	stopTM  time.Time

	outcomes []Outcome
}

// New creates a Report and starts timing.
func New() *Report {
	r := &Report{}
	r.StartTiming()
	return r
}

// StartTiming records the run's start instant.
func (r *Report) StartTiming() {
	r.startTS = time.Now()
	r.startTM = time.Now()
}

// StopTiming records the run's stop instant.
func (r *Report) StopTiming() {
	r.stopTS = time.Now()
	r.stopTM = time.Now()
}

// Record adds one host's outcome.
func (r *Report) Record(rec inventory.Record, err error) {
	r.outcomes = append(r.outcomes, Outcome{Rec: rec, Err: err})
}

// Counts returns (ok, fail) totals.
func (r *Report) Counts() (ok, fail int) {
	for _, o := range r.outcomes {
		if o.Err == nil {
			ok++
		} else {
			fail++
		}
	}
	return
}

// Duration returns the wall-clock run duration.
func (r *Report) Duration() time.Duration {
	if r.stopTM.IsZero() {
		r.StopTiming()
	}
	return r.stopTM.Sub(r.startTM)
}

// Print renders the summary to stdout and, when failures exist, writes
// failures.csv in the current working directory.
func (r *Report) Print() error {
	if r.stopTM.IsZero() {
		r.StopTiming()
	}

	ok, fail := r.Counts()
	total := ok + fail

	sep := "# " + strings.Repeat("-", 78)
	fmt.Println(sep)
	fmt.Printf("Summary: TOTAL=%d, OK=%d, FAIL=%d\n", total, ok, fail)
	fmt.Printf("         START=%s, STOP=%s\n", r.startTS.Format(timeFormat), r.stopTS.Format(timeFormat))
	fmt.Printf("         DURATION=%.3fs\n", r.Duration().Seconds())

	if fail == 0 {
		fmt.Println(sep)
		return nil
	}

	rows := make([][]string, 0, fail)
	for _, o := range r.outcomes {
		if o.Err == nil {
			continue
		}
		rows = append(rows, []string{o.Rec.Host(), o.Rec.OSName(), errs.Reason(o.Err)})
	}

	if err := writeFailuresCSV("failures.csv", rows); err != nil {
		return err
	}

	fmt.Printf("\n\nFAILURES: %d\n", fail)
	fmt.Printf("%-20s %-12s %s\n", "host", "os_name", "reason")
	for _, row := range rows {
		fmt.Printf("%-20s %-12s %s\n", row[0], row[1], row[2])
	}
	fmt.Println(sep)

	return nil
}

func writeFailuresCSV(path string, rows [][]string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"host", "os_name", "reason"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
