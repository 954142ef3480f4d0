package inventory

import (
	"os"
	"path/filepath"
	"testing"
)

func recs() []Record {
	return []Record{
		{"host": "sw1", "os_name": "ios", "ipaddr": "10.0.0.1"},
		{"host": "sw2", "os_name": "eos", "ipaddr": "10.0.0.2"},
		{"host": "rtr1", "os_name": "ios", "ipaddr": "10.1.0.1"},
	}
}

func TestCreateFilterFieldRegexInclude(t *testing.T) {
	pred, err := CreateFilter([]string{"os_name=ios"}, []string{"host", "os_name", "ipaddr"}, true)
	if err != nil {
		t.Fatalf("CreateFilter() error = %v", err)
	}
	got := Apply(recs(), pred)
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
}

func TestCreateFilterFieldRegexExclude(t *testing.T) {
	pred, err := CreateFilter([]string{"os_name=ios"}, []string{"host", "os_name", "ipaddr"}, false)
	if err != nil {
		t.Fatalf("CreateFilter() error = %v", err)
	}
	got := Apply(recs(), pred)
	if len(got) != 1 || got[0].Host() != "sw2" {
		t.Errorf("got = %+v, want only sw2", got)
	}
}

func TestCreateFilterIPCIDR(t *testing.T) {
	pred, err := CreateFilter([]string{"ipaddr=10.0.0.0/24"}, []string{"host", "os_name", "ipaddr"}, true)
	if err != nil {
		t.Fatalf("CreateFilter() error = %v", err)
	}
	got := Apply(recs(), pred)
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
}

func TestCreateFilterIPSingleAddr(t *testing.T) {
	pred, err := CreateFilter([]string{"ipaddr=10.1.0.1"}, []string{"host", "os_name", "ipaddr"}, true)
	if err != nil {
		t.Fatalf("CreateFilter() error = %v", err)
	}
	got := Apply(recs(), pred)
	if len(got) != 1 || got[0].Host() != "rtr1" {
		t.Errorf("got = %+v, want only rtr1", got)
	}
}

func TestCreateFilterIPMalformedRejected(t *testing.T) {
	if _, err := CreateFilter([]string{"ipaddr=not-an-ip"}, nil, true); err == nil {
		t.Fatal("CreateFilter() expected error for malformed ipaddr value")
	}
}

func TestCreateFilterUnknownField(t *testing.T) {
	if _, err := CreateFilter([]string{"region=us-east"}, []string{"host", "os_name"}, true); err == nil {
		t.Fatal("CreateFilter() expected error for unknown field")
	}
}

func TestCreateFilterFileConstraint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.csv")
	if err := os.WriteFile(path, []byte("host,os_name\nsw1,ios\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pred, err := CreateFilter([]string{"@" + path}, nil, true)
	if err != nil {
		t.Fatalf("CreateFilter() error = %v", err)
	}
	got := Apply(recs(), pred)
	if len(got) != 1 || got[0].Host() != "sw1" {
		t.Errorf("got = %+v, want only sw1", got)
	}
}

func TestCreateFilterFileConstraintRequiresCSVExt(t *testing.T) {
	if _, err := CreateFilter([]string{"@hosts.txt"}, nil, true); err == nil {
		t.Fatal("CreateFilter() expected error for non-csv file constraint")
	}
}

func TestApplyNilPredicateReturnsAll(t *testing.T) {
	got := Apply(recs(), nil)
	if len(got) != len(recs()) {
		t.Errorf("len(got) = %d, want %d", len(got), len(recs()))
	}
}
