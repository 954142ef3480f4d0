package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
)

// chanReader turns a blocking io.Reader into a channel of chunks so
// that reads can be combined with a timeout/cancellation via select,
// the way the scheduler's suspension points require (spec.md §5).
type chanReader struct {
	ch  chan []byte
	err chan error
}

func newChanReader(r io.Reader) *chanReader {
	cr := &chanReader{
		ch:  make(chan []byte, 16),
		err: make(chan error, 1),
	}
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				cr.ch <- chunk
			}
			if err != nil {
				cr.err <- err
				return
			}
		}
	}()
	return cr
}

// readUntil accumulates chunks (normalizing \r\n to \n as it goes, per
// the §9 REDESIGN FLAG about devices echoing \r\n) until match reports
// true for the accumulated buffer, or timeout/ctx elapses.
func (cr *chanReader) readUntil(ctx context.Context, timeout time.Duration, phase errs.Phase, match func(buf string) bool) (string, error) {
	var buf strings.Builder

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case chunk := <-cr.ch:
			buf.Write(normalizeNewlines(chunk))
			if match(buf.String()) {
				return buf.String(), nil
			}
		case err := <-cr.err:
			return buf.String(), &errs.TransportError{Err: err}
		case <-timer.C:
			return buf.String(), &errs.TimeoutError{Phase: phase}
		case <-ctx.Done():
			return buf.String(), &errs.TimeoutError{Phase: phase, Msg: ctx.Err().Error()}
		}
	}
}

func normalizeNewlines(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
}

// openSession opens a pseudo-terminal session on the already-
// authenticated connection and, for the prompted kind, waits out the
// banner-style User:/Password: exchange that isn't part of SSH
// authentication itself.
func (c *Connector) openSession(ctx context.Context) error {
	session, err := c.client.NewSession()
	if err != nil {
		return &errs.TransportError{Err: err}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO: 0,
	}
	if err := session.RequestPty("vt100", 80, 200, modes); err != nil {
		session.Close()
		return &errs.ProtocolError{Msg: fmt.Sprintf("request pty: %v", err)}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return &errs.TransportError{Err: err}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return &errs.TransportError{Err: err}
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return &errs.ProtocolError{Msg: fmt.Sprintf("start shell: %v", err)}
	}

	c.session = session
	c.stdin = stdin
	c.stdout = *newChanReader(stdout)

	if c.kind == KindPrompted {
		if err := c.runBannerLogin(ctx); err != nil {
			return err
		}
	}

	return nil
}

// runBannerLogin waits for "User:" then "Password:" prompts on the
// interactive session, each under a 10s timeout, and writes the
// credential that already succeeded SSH auth.
func (c *Connector) runBannerLogin(ctx context.Context) error {
	cred := c.loggedInAs

	if _, err := c.stdout.readUntil(ctx, defaultPromptTimeout, errs.PhasePrompt, func(buf string) bool {
		return strings.Contains(buf, "User:")
	}); err != nil {
		return err
	}
	if _, err := c.stdin.Write([]byte(cred + "\n")); err != nil {
		return &errs.TransportError{Err: err}
	}

	if _, err := c.stdout.readUntil(ctx, defaultPromptTimeout, errs.PhasePrompt, func(buf string) bool {
		return strings.Contains(buf, "Password:")
	}); err != nil {
		return err
	}
	if _, err := c.stdin.Write([]byte(c.bannerPassword() + "\n")); err != nil {
		return &errs.TransportError{Err: err}
	}

	return nil
}

// bannerPassword returns the password used for banner-style login,
// matching whatever credential authenticated the SSH session.
func (c *Connector) bannerPassword() string {
	return c.bannerPW
}
