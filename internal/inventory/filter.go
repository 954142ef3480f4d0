package inventory

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
)

// Predicate reports whether a record should be kept.
type Predicate func(Record) bool

// constraint is one compiled "field=regex" / "ipaddr=cidr" / "@file"
// term of a filter expression.
type constraint func(Record) bool

var fieldValueRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)=(\S+)$`)

// CreateFilter compiles constraint expressions into a single Predicate.
// With include=true, a record is kept only when ALL constraints match.
// With include=false, a record is dropped when ANY constraint matches.
func CreateFilter(constraints []string, fieldNames []string, include bool) (Predicate, error) {
	known := make(map[string]bool, len(fieldNames))
	for _, f := range fieldNames {
		known[f] = true
	}

	var ops []constraint
	for _, expr := range constraints {
		if strings.HasPrefix(expr, "@") {
			op, err := fileConstraint(expr[1:])
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
			continue
		}

		m := fieldValueRe.FindStringSubmatch(expr)
		if m == nil {
			return nil, errs.NewConfigError(fmt.Sprintf("invalid filter expression: %s", expr), nil)
		}
		field, value := m[1], m[2]

		if len(fieldNames) > 0 && !known[field] {
			return nil, errs.NewConfigError(fmt.Sprintf("unknown filter field: %s", field), nil)
		}

		var op constraint
		var err error
		if field == "ipaddr" {
			op, err = ipConstraint(value)
		} else {
			op, err = regexConstraint(field, value)
		}
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	if include {
		return func(rec Record) bool {
			for _, op := range ops {
				if !op(rec) {
					return false
				}
			}
			return true
		}, nil
	}

	return func(rec Record) bool {
		for _, op := range ops {
			if op(rec) {
				return false
			}
		}
		return true
	}, nil
}

func regexConstraint(field, pattern string) (constraint, error) {
	re, err := regexp.Compile("(?i)^" + pattern + "$")
	if err != nil {
		return nil, errs.NewConfigError(fmt.Sprintf("invalid filter expression: %s=%s", field, pattern), err)
	}
	return func(rec Record) bool {
		return re.MatchString(rec[field])
	}, nil
}

// ipConstraint handles the "ipaddr=cidr_or_ip" form: if the value
// parses as an IP or network, membership is tested numerically;
// otherwise the value must still be a syntactically valid IP/CIDR, per
// the §9 REDESIGN FLAG ("a port should treat an unparsable IP as a user
// error" rather than silently falling back to regex).
func ipConstraint(value string) (constraint, error) {
	if addr, err := netip.ParseAddr(value); err == nil {
		return func(rec Record) bool {
			other, err := netip.ParseAddr(rec["ipaddr"])
			if err != nil {
				return false
			}
			return other == addr
		}, nil
	}

	if prefix, err := netip.ParsePrefix(value); err == nil {
		return func(rec Record) bool {
			other, err := netip.ParseAddr(rec["ipaddr"])
			if err != nil {
				return false
			}
			return prefix.Contains(other)
		}, nil
	}

	return nil, errs.NewConfigError(fmt.Sprintf("invalid ipaddr filter value: %s", value), nil)
}

// fileConstraint handles the "@path" form: path must be a ".csv" file;
// the filter matches records whose host is listed in it. The file is
// read with the inventory loader, so it must carry both a "host" and an
// "os_name" column; a file lacking either is rejected.
func fileConstraint(path string) (constraint, error) {
	if filepath.Ext(path) != ".csv" {
		return nil, errs.NewConfigError(fmt.Sprintf("%s: not a CSV file", path), nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errs.NewConfigError("filter file "+path, err)
	}
	defer f.Close()

	recs, err := load(f)
	if err != nil {
		return nil, errs.NewConfigError("filter file "+path, err)
	}

	hosts := make(map[string]bool, len(recs))
	for _, r := range recs {
		if _, ok := r[fieldHost]; !ok {
			return nil, errs.NewConfigError(fmt.Sprintf("%s: missing host column", path), nil)
		}
		hosts[r[fieldHost]] = true
	}

	return func(rec Record) bool {
		return hosts[rec[fieldHost]]
	}, nil
}

// Apply filters recs through pred, preserving order.
func Apply(recs []Record, pred Predicate) []Record {
	if pred == nil {
		return recs
	}
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}
