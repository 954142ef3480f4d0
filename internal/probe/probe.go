// Package probe implements a bounded TCP reachability check against a
// host:port, used by the `probe` operation (spec.md §4.9). Grounded on
// the teacher's net.DialTimeout reachability checks
// (internal/daemon/netscan.go's checkListeningPorts/checkHostReachability).
package probe

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Probe attempts a TCP connect to host:port within timeout. With
// raiseExc=false it returns (false, nil) on any failure. With
// raiseExc=true, a timeout surfaces as an error and so does every
// other dial error.
func Probe(ctx context.Context, host string, port int, timeout time.Duration, raiseExc bool) (bool, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		if raiseExc {
			return false, err
		}
		return false, nil
	}
	conn.Close()
	return true, nil
}
