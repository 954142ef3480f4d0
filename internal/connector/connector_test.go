package connector

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/jeremyschulman/netcfgbu-go/internal/config"
	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
	"github.com/jeremyschulman/netcfgbu-go/internal/inventory"
)

func testConfig() *config.Config {
	return &config.Config{
		OSName: map[string]config.OSNameSpec{
			"ios": {
				Credentials: []config.Credential{{Username: "admin", Password: "pw"}},
			},
			"wlc": {
				Credentials: []config.Credential{{Username: "admin", Password: "pw"}},
				Connection:  string(KindPrompted),
			},
			"eos": {
				Credentials:  []config.Credential{{Username: "admin", Password: "pw"}},
				PreGetConfig: []string{"terminal length 0"},
			},
		},
	}
}

func TestNewResolvesKindFromConnection(t *testing.T) {
	cfg := testConfig()

	c, err := New(inventory.Record{"host": "sw1", "os_name": "ios"}, cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.kind != KindDefault {
		t.Errorf("kind = %v, want KindDefault", c.kind)
	}

	c, err = New(inventory.Record{"host": "wlc1", "os_name": "wlc"}, cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.kind != KindPrompted {
		t.Errorf("kind = %v, want KindPrompted", c.kind)
	}
}

func TestNewFailsWithoutCredentials(t *testing.T) {
	cfg := &config.Config{}
	if _, err := New(inventory.Record{"host": "sw1", "os_name": "ios"}, cfg, nil); err == nil {
		t.Fatal("New() expected error when no credential resolves")
	}
}

func TestInteractiveReflectsPreGetConfig(t *testing.T) {
	cfg := testConfig()

	c, err := New(inventory.Record{"host": "sw1", "os_name": "eos"}, cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !c.interactive() {
		t.Error("interactive() = false, want true when pre_get_config is set")
	}

	c, err = New(inventory.Record{"host": "sw1", "os_name": "ios"}, cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.interactive() {
		t.Error("interactive() = true, want false when pre_get_config is empty")
	}
}

func TestGetConfigCmdDefault(t *testing.T) {
	cfg := testConfig()
	c, err := New(inventory.Record{"host": "sw1", "os_name": "ios"}, cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.getConfigCmd() != defaultShowRunning {
		t.Errorf("getConfigCmd() = %q, want %q", c.getConfigCmd(), defaultShowRunning)
	}
}

func TestStripEchoedCommand(t *testing.T) {
	out := stripEchoedCommand("show running-config\nhostname sw1\n", "show running-config")
	if out != "hostname sw1\n" {
		t.Errorf("stripEchoedCommand() = %q, want %q", out, "hostname sw1\n")
	}
}

func TestStripEchoedCommandNoMatch(t *testing.T) {
	out := stripEchoedCommand("hostname sw1\n", "show running-config")
	if out != "hostname sw1\n" {
		t.Errorf("stripEchoedCommand() = %q, want unchanged", out)
	}
}

// fakeTimeoutErr simulates a net.Error with Timeout() true, standing in
// for what net.Dialer.DialContext returns on a context deadline.
type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string   { return "i/o timeout" }
func (fakeTimeoutErr) Timeout() bool   { return true }
func (fakeTimeoutErr) Temporary() bool { return false }

func TestClassifyConnectErrorTimeout(t *testing.T) {
	err := classifyConnectError(fakeTimeoutErr{})
	te, ok := err.(*errs.TimeoutError)
	if !ok {
		t.Fatalf("err type = %T, want *errs.TimeoutError", err)
	}
	if te.Phase != errs.PhaseConnect {
		t.Errorf("Phase = %v, want PhaseConnect", te.Phase)
	}
}

func TestClassifyConnectErrorDeadlineExceeded(t *testing.T) {
	err := classifyConnectError(fmt.Errorf("dial tcp 10.0.0.1:22: %w", context.DeadlineExceeded))
	if _, ok := err.(*errs.TimeoutError); !ok {
		t.Fatalf("err type = %T, want *errs.TimeoutError", err)
	}
}

func TestClassifyConnectErrorOtherIsTransport(t *testing.T) {
	err := classifyConnectError(&net.OpError{Op: "dial", Err: fmt.Errorf("connection refused")})
	if _, ok := err.(*errs.TransportError); !ok {
		t.Fatalf("err type = %T, want *errs.TransportError", err)
	}
}

func TestClassifyDialErrorPassesThroughTimeoutAndTransport(t *testing.T) {
	if _, ok := classifyDialError(&errs.TimeoutError{Phase: errs.PhaseConnect}).(*errs.TimeoutError); !ok {
		t.Error("classifyDialError() should pass through an existing TimeoutError unchanged")
	}
	if _, ok := classifyDialError(&errs.TransportError{Err: fmt.Errorf("boom")}).(*errs.TransportError); !ok {
		t.Error("classifyDialError() should pass through an existing TransportError unchanged")
	}
	if _, ok := classifyDialError(fmt.Errorf("unexpected packet")).(*errs.ProtocolError); !ok {
		t.Error("classifyDialError() should map an unrecognized error to ProtocolError")
	}
}

func TestClassifyDialErrorDetectsNetTimeout(t *testing.T) {
	err := classifyDialError(fakeTimeoutErr{})
	if _, ok := err.(*errs.TimeoutError); !ok {
		t.Fatalf("err type = %T, want *errs.TimeoutError", err)
	}
}
