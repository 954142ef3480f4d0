// Package jumphost matches inventory records to proxy hops and opens
// and shares tunnel connections through them (spec.md §4.3).
package jumphost

import (
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/jeremyschulman/netcfgbu-go/internal/config"
	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
	"github.com/jeremyschulman/netcfgbu-go/internal/inventory"
)

// JumpHost is a single proxy hop, matched against inventory records by
// its include/exclude filters.
type JumpHost struct {
	Spec config.JumphostSpec

	include inventory.Predicate
	exclude inventory.Predicate

	conn *ssh.Client
}

// Tunnel returns the live SSH connection to dial onward through, or nil
// if Connect has not succeeded yet.
func (j *JumpHost) Tunnel() *ssh.Client { return j.conn }

// matches reports whether rec should be routed through this jump-host:
// true if either its include-filter or its exclude-filter accepts the
// record (each already encodes include=true/false constraint
// semantics internally), matching JumpHost.filter in the original
// implementation.
func (j *JumpHost) matches(rec inventory.Record) bool {
	if j.include != nil && j.include(rec) {
		return true
	}
	if j.exclude != nil && j.exclude(rec) {
		return true
	}
	return false
}

// Manager holds the jump-hosts required by the current run: those
// whose filters match at least one inventory record.
type Manager struct {
	required []*JumpHost
}

// Build matches every jumphost spec against recs, keeping only the
// ones that match at least one record (the "required" set), per
// spec.md §4.3 and the testable invariant in §8.
func Build(specs []config.JumphostSpec, recs []inventory.Record) (*Manager, error) {
	fieldNames := inventory.FieldNames(recs)

	var candidates []*JumpHost
	for _, spec := range specs {
		jh := &JumpHost{Spec: spec}

		if len(spec.Include) > 0 {
			pred, err := inventory.CreateFilter(spec.Include, fieldNames, true)
			if err != nil {
				return nil, err
			}
			jh.include = pred
		}
		if len(spec.Exclude) > 0 {
			pred, err := inventory.CreateFilter(spec.Exclude, fieldNames, false)
			if err != nil {
				return nil, err
			}
			jh.exclude = pred
		}

		candidates = append(candidates, jh)
	}

	var required []*JumpHost
	for _, jh := range candidates {
		for _, rec := range recs {
			if jh.matches(rec) {
				required = append(required, jh)
				break
			}
		}
	}

	return &Manager{required: required}, nil
}

// Required reports whether any jump-host is in play for this run.
func (m *Manager) Required() bool { return len(m.required) > 0 }

// Connect dials every required jump-host once, recording per-proxy
// failures without aborting the others.
func (m *Manager) Connect() map[string]error {
	failures := make(map[string]error)
	for _, jh := range m.required {
		if err := jh.connect(); err != nil {
			log.Printf("[jumphost] connect to %s failed: %v", jh.Spec.Proxy, err)
			failures[jh.Spec.Proxy] = err
			continue
		}
		log.Printf("[jumphost] connected to %s", jh.Spec.Proxy)
	}
	return failures
}

// Close closes every connected jump-host tunnel.
func (m *Manager) Close() {
	for _, jh := range m.required {
		if jh.conn != nil {
			jh.conn.Close()
		}
	}
}

// For returns the first required jump-host whose filters accept rec,
// or nil if rec does not need one.
func (m *Manager) For(rec inventory.Record) (*JumpHost, error) {
	for _, jh := range m.required {
		if jh.matches(rec) {
			if jh.conn == nil {
				return nil, &errs.JumpHostError{Proxy: jh.Spec.Proxy, Err: fmt.Errorf("not connected")}
			}
			return jh, nil
		}
	}
	return nil, nil
}

// connect dials the proxy endpoint ("[user@]host[:port]") and
// authenticates with the keys offered by the running SSH agent, not
// with the inventory/config credentials a direct connector uses — see
// buildProxyAuth.
func (j *JumpHost) connect() error {
	user, host, port := parseProxy(j.Spec.Proxy)

	timeout := time.Duration(j.Spec.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            buildProxyAuth(),
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(host, port)
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return &errs.TransportError{Err: err}
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake %s: %w", addr, err)
	}

	j.conn = ssh.NewClient(sshConn, chans, reqs)
	return nil
}

// buildProxyAuth authenticates to the jump-host itself via a running
// SSH agent (SSH_AUTH_SOCK), matching the original implementation's
// reliance on ambient agent/key auth rather than a jump-host-specific
// credential in the config schema (spec.md's Jump-Host Spec carries no
// username/password field).
func buildProxyAuth() []ssh.AuthMethod {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil
	}
	return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(conn).Signers)}
}

func parseProxy(proxy string) (user, host, port string) {
	user = ""
	rest := proxy
	if i := strings.Index(proxy, "@"); i >= 0 {
		user = proxy[:i]
		rest = proxy[i+1:]
	}
	host = rest
	port = "22"
	if h, p, err := net.SplitHostPort(rest); err == nil {
		host, port = h, p
	}
	return user, host, port
}
