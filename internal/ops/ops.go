// Package ops implements the three top-level operations exposed by the
// netcfgbu binary (spec.md §4.10): probe, login, and backup. Each is a
// schedule.TaskFunc composing the lower-level packages (connector,
// linter, persist, probe) the same way the teacher's cmd/*/main.go
// files compose internal/ packages into one operation per subcommand.
package ops

import (
	"context"
	"log"
	"time"

	"github.com/jeremyschulman/netcfgbu-go/internal/config"
	"github.com/jeremyschulman/netcfgbu-go/internal/connector"
	"github.com/jeremyschulman/netcfgbu-go/internal/inventory"
	"github.com/jeremyschulman/netcfgbu-go/internal/linter"
	"github.com/jeremyschulman/netcfgbu-go/internal/persist"
	"github.com/jeremyschulman/netcfgbu-go/internal/probe"
	"github.com/jeremyschulman/netcfgbu-go/internal/schedule"
)

const (
	defaultProbeTimeout = 5 * time.Second
	defaultLoginTimeout = 30 * time.Second
)

// Probe checks TCP reachability on port 22 for rec, never touching
// credentials.
func Probe(cfg *config.Config) schedule.TaskFunc {
	return func(ctx context.Context, rt *schedule.Runtime, rec inventory.Record) (interface{}, error) {
		ok, err := probe.Probe(ctx, rec.Addr(), 22, defaultProbeTimeout, true)
		if err != nil {
			return false, err
		}
		return ok, nil
	}
}

// Login attempts to authenticate only, returning the username that
// succeeded or "" if every credential was rejected.
func Login(cfg *config.Config) schedule.TaskFunc {
	return func(ctx context.Context, rt *schedule.Runtime, rec inventory.Record) (interface{}, error) {
		conn, err := connector.New(rec, cfg, rt)
		if err != nil {
			return "", err
		}
		user, err := conn.TestLogin(ctx, defaultLoginTimeout)
		if err == nil && user != "" {
			log.Printf("[login] %s: authenticated as %s", rec.Name(), user)
		}
		return user, err
	}
}

// Backup runs the full login/capture sequence, lints the output per the
// OS policy's named linter, and persists it under configs_dir. The
// returned value is the destination file path.
func Backup(cfg *config.Config) schedule.TaskFunc {
	return func(ctx context.Context, rt *schedule.Runtime, rec inventory.Record) (interface{}, error) {
		conn, err := connector.New(rec, cfg, rt)
		if err != nil {
			return "", err
		}

		content, err := conn.BackupConfig(ctx)
		if err != nil {
			return "", err
		}

		osSpec := cfg.OSName[rec.OSName()]
		if osSpec.Linter != "" {
			if spec, ok := cfg.Linters[osSpec.Linter]; ok {
				content = linter.Lint(content, spec)
			}
		}

		path, err := persist.Save(cfg.Defaults.ConfigsDir, rec.Name(), []byte(content))
		if err != nil {
			return "", err
		}

		return path, nil
	}
}
