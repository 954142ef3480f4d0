package connector

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
)

// captureInteractive drives the three-phase conversation: wait for
// prompt, run each pre-capture command (e.g. "terminal length 0"),
// then run the capture command. Each phase has its own timeout.
func (c *Connector) captureInteractive(ctx context.Context) (string, error) {
	re := c.promptRe()

	if _, err := c.waitForPrompt(ctx, defaultPromptTimeout, re); err != nil {
		return "", err
	}
	c.state = StateAtPrompt

	for _, cmd := range c.osSpec.PreGetConfig {
		if _, err := c.runCommand(ctx, defaultPreCapTimeout, cmd, re, errs.PhasePreCapture); err != nil {
			return "", err
		}
	}
	c.state = StatePagingDisabled

	c.state = StateCapturing
	out, err := c.runCommand(ctx, c.timeout(), c.getConfigCmd(), re, errs.PhaseCapture)
	if err != nil {
		return "", err
	}
	c.state = StateCaptured

	return strings.ReplaceAll(out, "\r", ""), nil
}

// waitForPrompt reads until a line matching re appears as the tail of
// the buffer (the text after the last newline), per the Prompt
// detection rule in spec.md §4.4. The first read waits at most the
// given timeout.
func (c *Connector) waitForPrompt(ctx context.Context, timeout time.Duration, re *regexp.Regexp) (string, error) {
	buf, err := c.stdout.readUntil(ctx, timeout, errs.PhasePrompt, func(buf string) bool {
		return matchesTailPrompt(buf, re)
	})
	if err != nil {
		return "", err
	}
	return buf, nil
}

// runCommand writes command+"\n" to the session, then reads until the
// prompt reappears, returning the output between the echoed command
// and the prompt.
func (c *Connector) runCommand(ctx context.Context, timeout time.Duration, command string, re *regexp.Regexp, phase errs.Phase) (string, error) {
	wrCmd := command + "\n"
	if _, err := c.stdin.Write([]byte(wrCmd)); err != nil {
		return "", &errs.TransportError{Err: err}
	}

	buf, err := c.stdout.readUntil(ctx, timeout, phase, func(buf string) bool {
		nlAt := strings.LastIndex(buf, "\n")
		return nlAt > 0 && matchesTailPrompt(buf, re)
	})
	if err != nil {
		return "", err
	}

	nlAt := strings.LastIndex(buf, "\n")
	if nlAt < 0 {
		nlAt = len(buf)
	}
	start := len(wrCmd)
	if start > nlAt {
		start = nlAt
	}
	return buf[start:nlAt], nil
}

// matchesTailPrompt reports whether the text after the last newline in
// buf matches the prompt pattern.
func matchesTailPrompt(buf string, re *regexp.Regexp) bool {
	nlAt := strings.LastIndex(buf, "\n")
	return re.MatchString(buf[nlAt+1:])
}
