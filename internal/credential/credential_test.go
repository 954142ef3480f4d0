package credential

import (
	"testing"

	"github.com/jeremyschulman/netcfgbu-go/internal/config"
	"github.com/jeremyschulman/netcfgbu-go/internal/inventory"
)

func TestResolveOrdering(t *testing.T) {
	rec := inventory.Record{"host": "sw1", "os_name": "ios", "username": "hostuser", "password": "hostpass"}
	osSpec := config.OSNameSpec{
		Credentials: []config.Credential{{Username: "osuser", Password: "ospass"}},
	}
	cfg := &config.Config{
		Defaults: config.Defaults{
			Credential: config.Credential{Username: "defaultuser", Password: "defaultpass"},
		},
		Credentials: []config.Credential{{Username: "globaluser", Password: "globalpass"}},
	}

	got, err := Resolve(rec, osSpec, cfg)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []Credential{
		{Username: "hostuser", Password: "hostpass"},
		{Username: "osuser", Password: "ospass"},
		{Username: "defaultuser", Password: "defaultpass"},
		{Username: "globaluser", Password: "globalpass"},
	}
	if len(got) != len(want) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestResolveSkipsPartialHostCredential(t *testing.T) {
	rec := inventory.Record{"host": "sw1", "os_name": "ios", "username": "onlyuser"}
	cfg := &config.Config{
		Defaults: config.Defaults{Credential: config.Credential{Username: "defaultuser", Password: "defaultpass"}},
	}

	got, err := Resolve(rec, config.OSNameSpec{}, cfg)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 1 || got[0].Username != "defaultuser" {
		t.Errorf("got = %+v, want only the default credential", got)
	}
}

func TestResolveEmptyIsConfigError(t *testing.T) {
	rec := inventory.Record{"host": "sw1", "os_name": "ios"}
	cfg := &config.Config{}

	if _, err := Resolve(rec, config.OSNameSpec{}, cfg); err == nil {
		t.Fatal("Resolve() expected ConfigError for empty credential list")
	}
}
