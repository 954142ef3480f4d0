// Package credential materializes the ordered list of credentials to
// try for a host (spec.md §4.2).
package credential

import (
	"github.com/jeremyschulman/netcfgbu-go/internal/config"
	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
	"github.com/jeremyschulman/netcfgbu-go/internal/inventory"
)

// Credential is a (username, password) pair to attempt.
type Credential struct {
	Username string
	Password string
}

// Resolve builds the deterministic ordered candidate list for rec,
// given its OS policy (osSpec may be zero-value when the os_name has
// no configured policy) and the global config:
//
//  1. rec's own username/password, if both present ($VAR / ${VAR}
//     references expanded via config.ExpandEnv)
//  2. each credential listed under the host's OS policy
//  3. the default credential
//  4. each global credential
//
// An empty result, or an undefined variable in rec's credentials, is a
// fatal per-host ConfigError.
func Resolve(rec inventory.Record, osSpec config.OSNameSpec, cfg *config.Config) ([]Credential, error) {
	var out []Credential

	if u, p := rec["username"], rec["password"]; u != "" && p != "" {
		u, err := config.ExpandEnv(u)
		if err != nil {
			return nil, err
		}
		p, err := config.ExpandEnv(p)
		if err != nil {
			return nil, err
		}
		out = append(out, Credential{Username: u, Password: p})
	}

	for _, c := range osSpec.Credentials {
		out = append(out, Credential{Username: c.Username, Password: c.Password})
	}

	if cfg.Defaults.Credential.Username != "" {
		out = append(out, Credential{
			Username: cfg.Defaults.Credential.Username,
			Password: cfg.Defaults.Credential.Password,
		})
	}

	for _, c := range cfg.Credentials {
		out = append(out, Credential{Username: c.Username, Password: c.Password})
	}

	if len(out) == 0 {
		return nil, errs.NewConfigError("no credentials available for host "+rec.Name(), nil)
	}

	return out, nil
}
