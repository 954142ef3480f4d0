package connector

import (
	"bytes"
	"context"
	"strings"

	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
)

// captureExec runs the Exec-mode capture: open a single remote-exec of
// the capture command, bounded by the OS timeout (resolving the §9
// REDESIGN FLAG that the original never applied a timeout here), strip
// the echoed command line, and return the remainder.
func (c *Connector) captureExec(ctx context.Context) (string, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", &errs.TransportError{Err: err}
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout

	cmd := c.getConfigCmd()

	if err := session.Start(cmd); err != nil {
		return "", &errs.ProtocolError{Msg: err.Error()}
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	select {
	case <-ctx.Done():
		session.Close()
		return "", &errs.TimeoutError{Phase: errs.PhaseCapture}
	case err := <-done:
		if err != nil {
			return "", &errs.ProtocolError{Msg: err.Error()}
		}
	}

	output := string(normalizeNewlines(stdout.Bytes()))
	return stripEchoedCommand(output, cmd), nil
}

// stripEchoedCommand scans for the first occurrence of cmd and returns
// the remainder, offset by the command length plus one newline.
func stripEchoedCommand(output, cmd string) string {
	idx := strings.Index(output, cmd)
	if idx < 0 {
		return output
	}
	at := idx + len(cmd) + 1
	if at > len(output) {
		at = len(output)
	}
	return output[at:]
}
