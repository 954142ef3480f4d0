// Package config loads and validates the netcfgbu TOML configuration
// document: defaults, credentials, per-os_name policy, linters,
// inventory sources, jump-hosts, the git post-processor boundary, raw
// ssh_configs passthrough, and logging.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"

	"github.com/jeremyschulman/netcfgbu-go/internal/errs"
)

// Environment variables with special meaning, per spec.md §6.
const (
	EnvConfigFile       = "NETCFGBU_CONFIG"
	EnvInventory        = "NETCFGBU_INVENTORY"
	EnvConfigsDir       = "NETCFGBU_CONFIGSDIR"
	EnvDefaultUsername  = "NETCFGBU_DEFAULT_USERNAME"
	EnvDefaultPassword  = "NETCFGBU_DEFAULT_PASSWORD"
)

// Credential is a (username, password) pair. Values may carry
// $VAR / ${VAR} references, expanded against the process environment at
// load time.
type Credential struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// OSNameSpec is the per-os_name connector policy (spec.md §3 "OS Policy").
type OSNameSpec struct {
	Credentials       []Credential      `toml:"credentials"`
	PreGetConfig      []string          `toml:"pre_get_config"`
	GetConfig         string            `toml:"get_config"`
	Connection        string            `toml:"connection"`
	Linter            string            `toml:"linter"`
	TimeoutSecs       int               `toml:"timeout"`
	SSHConfigs        map[string]string `toml:"ssh_configs"`
	PromptNameCharset string            `toml:"prompt_charset"`
}

// LinterSpec describes a named trimming rule (spec.md §3/§4.5).
type LinterSpec struct {
	ConfigStartsAfter string `toml:"config_starts_after"`
	ConfigEndsAt      string `toml:"config_ends_at"`
}

// InventorySpec names an external inventory-build script. Generation
// itself is out of scope (spec.md §1); the section is parsed but not
// used: `inventory build` returns a fixed "not implemented" error
// without reading it.
type InventorySpec struct {
	Name   string `toml:"name"`
	Script string `toml:"script"`
}

// JumphostSpec is a proxy endpoint plus the filters selecting which
// inventory records route through it (spec.md §3/§4.3).
type JumphostSpec struct {
	Name    string   `toml:"name"`
	Proxy   string   `toml:"proxy"`
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
	Timeout int      `toml:"timeout"`
}

// GitSpec documents the Git post-processor boundary (spec.md §3): the
// core only ever hands it a configs directory.
type GitSpec struct {
	Repo           string `toml:"repo"`
	Username       string `toml:"username"`
	Email          string `toml:"email"`
	PersonalToken  string `toml:"token"`
	DeployKeyFile  string `toml:"deploy_key_file"`
	DeployKeyPass  string `toml:"deploy_key_passphrase"`
}

// Validate enforces "exactly one of {personal token, deploy key}".
func (g *GitSpec) Validate() error {
	if g == nil {
		return nil
	}
	hasToken := g.PersonalToken != ""
	hasKey := g.DeployKeyFile != ""
	if hasToken == hasKey {
		return errs.NewConfigError("git: exactly one of token or deploy_key_file must be set", nil)
	}
	return nil
}

// Defaults holds the [defaults] section.
type Defaults struct {
	ConfigsDir string     `toml:"configs_dir"`
	Inventory  string     `toml:"inventory"`
	Credential Credential `toml:"credentials"`

	MaxStartups int `toml:"max_startups"`
}

const defaultMaxStartups = 100

// Config is the fully loaded and validated application configuration.
type Config struct {
	Defaults    Defaults                 `toml:"defaults"`
	Credentials []Credential             `toml:"credentials"`
	OSName      map[string]OSNameSpec    `toml:"os_name"`
	Linters     map[string]LinterSpec    `toml:"linters"`
	Inventory   []InventorySpec          `toml:"inventory"`
	Jumphost    []JumphostSpec           `toml:"jumphost"`
	Git         *GitSpec                 `toml:"git"`
	SSHConfigs  map[string]string        `toml:"ssh_configs"`
	Logging     map[string]interface{}   `toml:"logging"`
}

// DefaultConfig returns a config with sane defaults, mirroring the
// teacher's DefaultConfig() pattern for the daemon's own Config type.
func DefaultConfig() Config {
	return Config{
		Defaults: Defaults{
			MaxStartups: defaultMaxStartups,
		},
	}
}

// LoadConfig reads, expands, and validates the TOML document at path.
// Absence of the file is permitted as long as the required defaults
// come from the environment (spec.md §6).
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, errs.NewConfigError(fmt.Sprintf("parse %s", path), err)
			}
		} else if !os.IsNotExist(err) {
			return nil, errs.NewConfigError(fmt.Sprintf("stat %s", path), err)
		}
	}

	if err := expandConfig(&cfg); err != nil {
		return nil, err
	}

	if err := applyEnvFallbacks(&cfg); err != nil {
		return nil, err
	}

	if cfg.Defaults.MaxStartups <= 0 {
		cfg.Defaults.MaxStartups = defaultMaxStartups
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.Defaults.ConfigsDir == "" {
		cfg.Defaults.ConfigsDir = "."
	}
	if err := os.MkdirAll(cfg.Defaults.ConfigsDir, 0o755); err != nil {
		return nil, errs.NewConfigError("create configs_dir "+cfg.Defaults.ConfigsDir, err)
	}

	return &cfg, nil
}

// applyEnvFallbacks fills in defaults.{configs_dir,inventory} and the
// default credential from the special-cased NETCFGBU_* environment
// variables when the config file did not provide them.
func applyEnvFallbacks(cfg *Config) error {
	if cfg.Defaults.ConfigsDir == "" {
		if v := os.Getenv(EnvConfigsDir); v != "" {
			cfg.Defaults.ConfigsDir = v
		}
	}
	if cfg.Defaults.Inventory == "" {
		if v := os.Getenv(EnvInventory); v != "" {
			cfg.Defaults.Inventory = v
		}
	}
	if cfg.Defaults.Credential.Username == "" {
		cfg.Defaults.Credential.Username = os.Getenv(EnvDefaultUsername)
	}
	if cfg.Defaults.Credential.Password == "" {
		cfg.Defaults.Credential.Password = os.Getenv(EnvDefaultPassword)
	}
	return nil
}

func validate(cfg *Config) error {
	if err := cfg.Git.Validate(); err != nil {
		return err
	}

	// Every linter named by an os_name policy must exist (spec.md §8).
	for osName, spec := range cfg.OSName {
		if spec.Linter != "" {
			if _, ok := cfg.Linters[spec.Linter]; !ok {
				return errs.NewConfigError(
					fmt.Sprintf("os_name.%s: unknown linter %q", osName, spec.Linter), nil)
			}
		}
	}

	return nil
}

var varRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnv expands $VAR / ${VAR} references in s against the process
// environment. An undefined or empty variable is a fatal configuration
// error, matching EnvExpand in the original config_model.
func ExpandEnv(s string) (string, error) {
	var firstErr error
	out := varRe.ReplaceAllStringFunc(s, func(match string) string {
		name := match
		if sub := varRe.FindStringSubmatch(match); sub != nil {
			if sub[1] != "" {
				name = sub[1]
			} else {
				name = sub[2]
			}
		}
		val, ok := os.LookupEnv(name)
		if !ok || val == "" {
			if firstErr == nil {
				firstErr = errs.NewConfigError(fmt.Sprintf("environment variable %q missing", name), nil)
			}
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func expandCredential(c *Credential) error {
	if c.Username != "" {
		v, err := ExpandEnv(c.Username)
		if err != nil {
			return err
		}
		c.Username = v
	}
	if c.Password != "" {
		v, err := ExpandEnv(c.Password)
		if err != nil {
			return err
		}
		c.Password = v
	}
	return nil
}

func expandConfig(cfg *Config) error {
	if err := expandCredential(&cfg.Defaults.Credential); err != nil {
		return err
	}
	if cfg.Defaults.ConfigsDir != "" {
		v, err := ExpandEnv(cfg.Defaults.ConfigsDir)
		if err != nil {
			return err
		}
		cfg.Defaults.ConfigsDir = v
	}
	if cfg.Defaults.Inventory != "" {
		v, err := ExpandEnv(cfg.Defaults.Inventory)
		if err != nil {
			return err
		}
		cfg.Defaults.Inventory = v
	}
	for i := range cfg.Credentials {
		if err := expandCredential(&cfg.Credentials[i]); err != nil {
			return err
		}
	}
	for name, spec := range cfg.OSName {
		for i := range spec.Credentials {
			if err := expandCredential(&spec.Credentials[i]); err != nil {
				return err
			}
		}
		cfg.OSName[name] = spec
	}
	return nil
}

// ConfigsDirAbs returns the absolute path of the configured configs_dir.
func (c *Config) ConfigsDirAbs() (string, error) {
	return filepath.Abs(c.Defaults.ConfigsDir)
}
