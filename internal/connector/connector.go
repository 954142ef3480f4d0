// Package connector implements the per-host login, optional paging
// disable, config capture, and close state machine — the design
// centerpiece of spec.md §4.4.
package connector

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/jeremyschulman/netcfgbu-go/internal/config"
	"github.com/jeremyschulman/netcfgbu-go/internal/credential"
	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
	"github.com/jeremyschulman/netcfgbu-go/internal/inventory"
)

// Kind selects the connector variant. Kinds are enumerated in code per
// the §9 design note ("do not require users to ship plugin modules";
// enumerate kinds, select by configuration).
type Kind string

const (
	// KindDefault uses library-level SSH auth only.
	KindDefault Kind = "default"
	// KindPrompted additionally waits for "User:"/"Password:" banner
	// prompts on the interactive session after SSH auth succeeds —
	// for devices (e.g. a wireless controller) whose login is not part
	// of SSH authentication itself.
	KindPrompted Kind = "prompted"
)

const (
	defaultPromptTimeout  = 10 * time.Second
	defaultPreCapTimeout  = 10 * time.Second
	defaultCaptureTimeout = 60 * time.Second
	defaultShowRunning    = "show running-config"
	defaultPromptCharset  = `a-zA-Z0-9.\-_@()/:~`
)

// Runtime is the process-wide state shared, read-only, by every
// Connector task: the max-startups semaphore and the jump-host
// registry. Passed explicitly rather than held in package globals, per
// the §9 design note.
type Runtime interface {
	// AcquireLogin blocks until a login slot is available, bounding
	// concurrent authentication attempts to the configured max-startups.
	AcquireLogin(ctx context.Context) error
	// ReleaseLogin releases a login slot acquired via AcquireLogin.
	ReleaseLogin()
	// Tunnel returns the jump-host to dial through for rec, or nil.
	Tunnel(rec inventory.Record) (*ssh.Client, error)
}

// State names a node of the interactive-mode state diagram (spec.md §4.4).
type State string

const (
	StateInit            State = "INIT"
	StateConnecting      State = "CONNECTING"
	StateAuthenticated   State = "AUTHENTICATED"
	StateAtPrompt        State = "AT_PROMPT"
	StatePagingDisabled  State = "PAGING_DISABLED"
	StateCapturing       State = "CAPTURING"
	StateCaptured        State = "CAPTURED"
	StateClosing         State = "CLOSING"
	StateDone            State = "DONE"
	StateAuthFailed      State = "AUTH_FAILED"
	StateTimeout         State = "TIMEOUT"
	StateIOError         State = "IO_ERROR"
)

// Connector drives the capture protocol for a single inventory record.
// Created per record, transitioned through its state machine, and
// discarded.
type Connector struct {
	rec    inventory.Record
	osSpec config.OSNameSpec
	cfg    *config.Config
	rt     Runtime
	kind   Kind

	name  string
	state State

	client  *ssh.Client
	session *ssh.Session
	stdin   io.Writer
	stdout  chanReader

	loggedInAs string
	bannerPW   string
}

// New builds a Connector for rec. Returns a ConfigError if the
// credential list resolves empty.
func New(rec inventory.Record, cfg *config.Config, rt Runtime) (*Connector, error) {
	osSpec := cfg.OSName[rec.OSName()]

	if _, err := credential.Resolve(rec, osSpec, cfg); err != nil {
		return nil, err
	}

	kind := KindDefault
	if osSpec.Connection == string(KindPrompted) {
		kind = KindPrompted
	}

	return &Connector{
		rec:    rec.Clone(),
		osSpec: osSpec,
		cfg:    cfg,
		rt:     rt,
		kind:   kind,
		name:   rec.Name(),
		state:  StateInit,
	}, nil
}

// Name returns the identity used for persistence and reporting.
func (c *Connector) Name() string { return c.name }

// interactive reports whether the OS policy requires the pre-capture
// (paging-disable) dance, selecting Interactive mode over Exec mode.
func (c *Connector) interactive() bool {
	return len(c.osSpec.PreGetConfig) > 0
}

func (c *Connector) timeout() time.Duration {
	if c.osSpec.TimeoutSecs > 0 {
		return time.Duration(c.osSpec.TimeoutSecs) * time.Second
	}
	return defaultCaptureTimeout
}

func (c *Connector) getConfigCmd() string {
	if c.osSpec.GetConfig != "" {
		return c.osSpec.GetConfig
	}
	return defaultShowRunning
}

// Login attempts each candidate credential in order, under the
// max-startups bound, keeping the connected client on the Connector on
// success. On
// "permission denied" it advances to the next credential; any other
// transport error is returned immediately. If the credential list is
// exhausted, it fails with AuthError.
func (c *Connector) Login(ctx context.Context) error {
	creds, err := credential.Resolve(c.rec, c.osSpec, c.cfg)
	if err != nil {
		return err
	}

	if err := c.rt.AcquireLogin(ctx); err != nil {
		return &errs.TimeoutError{Phase: errs.PhaseConnect, Msg: err.Error()}
	}
	released := false
	release := func() {
		if !released {
			released = true
			c.rt.ReleaseLogin()
		}
	}
	// The login phase holds the semaphore only across the
	// authentication attempt, not across any subsequent PTY open or
	// capture — resolving the §9 REDESIGN FLAG about over-throttling.
	defer release()

	c.state = StateConnecting

	tunnel, err := c.rt.Tunnel(c.rec)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(c.rec.Addr(), "22")

	var lastErr error
	for _, cr := range creds {
		client, err := dial(ctx, addr, cr, tunnel)
		if err == nil {
			release()
			c.client = client
			c.state = StateAuthenticated
			c.loggedInAs = cr.Username
			c.bannerPW = cr.Password

			if c.kind == KindPrompted || c.interactive() {
				if err := c.openSession(ctx); err != nil {
					c.closeClient()
					return err
				}
			}
			return nil
		}

		if isPermissionDenied(err) {
			lastErr = err
			continue
		}

		return classifyDialError(err)
	}

	c.state = StateAuthFailed
	_ = lastErr
	return &errs.AuthError{Attempted: len(creds)}
}

func dial(ctx context.Context, addr string, cr credential.Credential, tunnel *ssh.Client) (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{
		User: cr.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(cr.Password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	if tunnel != nil {
		conn, err := tunnel.Dial("tcp", addr)
		if err != nil {
			return nil, classifyConnectError(err)
		}
		sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return ssh.NewClient(sshConn, chans, reqs), nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, classifyConnectError(err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// classifyConnectError inspects a raw DialContext/tunnel.Dial failure
// before it gets wrapped in a TransportError, so a connect-phase
// timeout (including a cancelled --timeout context) surfaces as
// TimeoutError{PhaseConnect} rather than being buried inside an opaque
// transport wrapper that classifyDialError can no longer see through.
func classifyConnectError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &errs.TimeoutError{Phase: errs.PhaseConnect, Msg: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &errs.TimeoutError{Phase: errs.PhaseConnect, Msg: err.Error()}
	}
	return &errs.TransportError{Err: err}
}

func isPermissionDenied(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "no supported methods remain")
}

func classifyDialError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &errs.TimeoutError{Phase: errs.PhaseConnect, Msg: err.Error()}
	}
	var transportErr *errs.TransportError
	if errors.As(err, &transportErr) {
		return err
	}
	var timeoutErr *errs.TimeoutError
	if errors.As(err, &timeoutErr) {
		return err
	}
	return &errs.ProtocolError{Msg: err.Error()}
}

func (c *Connector) closeClient() {
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

// Close terminates any open session and connection. Always safe to
// call, including after a failed Login.
func (c *Connector) Close() {
	c.state = StateClosing
	c.closeClient()
	c.state = StateDone
}

// TestLogin attempts to authenticate only, returning the username that
// succeeded, or "" if every credential was rejected (permission-denied
// is not itself an error here — the spec's test_login returns "none").
// Any other error (transport, timeout, jump-host) propagates.
func (c *Connector) TestLogin(ctx context.Context, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := c.Login(ctx)
	defer c.Close()

	if err == nil {
		return c.loggedInAs, nil
	}
	if _, ok := err.(*errs.AuthError); ok {
		return "", nil
	}
	return "", err
}

// BackupConfig runs the full login -> capture -> close sequence,
// returning the raw captured text. Persistence and linting are the
// caller's responsibility (spec.md's C5/C6), keeping this package
// focused purely on the connector's own contract.
func (c *Connector) BackupConfig(ctx context.Context) (string, error) {
	if err := c.Login(ctx); err != nil {
		return "", err
	}
	defer c.Close()

	content, err := c.capture(ctx)
	if err != nil {
		return "", err
	}

	return content, nil
}

func (c *Connector) capture(ctx context.Context) (string, error) {
	if !c.interactive() && c.kind != KindPrompted {
		return c.captureExec(ctx)
	}
	return c.captureInteractive(ctx)
}
