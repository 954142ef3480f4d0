// Package inventory loads the tabular device inventory and compiles
// --limit/--exclude filter expressions against it (spec.md §4.1).
package inventory

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
)

// Record is one row of the inventory. It always carries at least
// "host" and "os_name", usually "ipaddr"; arbitrary extra columns are
// preserved verbatim. Records are read-only once loaded.
type Record map[string]string

// Host returns the record's host field.
func (r Record) Host() string { return r["host"] }

// OSName returns the record's os_name field.
func (r Record) OSName() string { return r["os_name"] }

// Addr returns the address to dial: ipaddr if present, else host.
func (r Record) Addr() string {
	if v, ok := r["ipaddr"]; ok && v != "" {
		return v
	}
	return r["host"]
}

// Name returns the name under which a capture is persisted: host if
// present, else ipaddr (spec.md §4.6).
func (r Record) Name() string {
	if v, ok := r["host"]; ok && v != "" {
		return v
	}
	return r["ipaddr"]
}

// Clone returns a copy of the record, safe for per-connector mutation.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

const (
	fieldHost   = "host"
	fieldOSName = "os_name"
)

// Load reads a delimited (comma-separated) table with a header row from
// path. Lines whose first field starts with "#" are comments and are
// skipped. Required columns: host, os_name.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.NewInventoryError("open inventory "+path, err)
	}
	defer f.Close()

	recs, err := load(f)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errs.NewInventoryError("inventory "+path+" is empty", nil)
	}
	return recs, nil
}

func load(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errs.NewInventoryError("empty inventory", nil)
	}
	if err != nil {
		return nil, errs.NewInventoryError("read inventory header", err)
	}

	hasHost, hasOS := false, false
	for _, h := range header {
		switch h {
		case fieldHost:
			hasHost = true
		case fieldOSName:
			hasOS = true
		}
	}
	if !hasHost || !hasOS {
		return nil, errs.NewInventoryError("inventory missing required columns: host, os_name", nil)
	}

	var out []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.NewInventoryError("read inventory row", err)
		}
		if len(row) > 0 && strings.HasPrefix(strings.TrimSpace(row[0]), "#") {
			continue
		}

		rec := make(Record, len(header))
		for i, h := range header {
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}

	return out, nil
}

// FieldNames returns the set of field names present across recs, used
// to validate filter expressions against known columns.
func FieldNames(recs []Record) []string {
	seen := map[string]bool{}
	var names []string
	for _, r := range recs {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	return names
}

// OSCount is one row of the os_name histogram produced by Summarize.
type OSCount struct {
	OSName string
	Count  int
}

// Summarize counts recs by os_name, sorted by count descending (ties
// broken by name), matching cli/inventory.py's "list" summary table.
func Summarize(recs []Record) []OSCount {
	counts := map[string]int{}
	for _, r := range recs {
		counts[r.OSName()]++
	}
	out := make([]OSCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, OSCount{OSName: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].OSName < out[j].OSName
	})
	return out
}

// WriteCSV serializes recs back to a comma-separated table with a
// header row, used by the load/store round-trip test.
func WriteCSV(w io.Writer, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	header := FieldNames(recs)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range recs {
		row := make([]string, len(header))
		for i, h := range header {
			row[i] = r[h]
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
