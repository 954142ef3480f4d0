package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigMissingFileUsesEnv(t *testing.T) {
	t.Setenv(EnvDefaultUsername, "admin")
	t.Setenv(EnvDefaultPassword, "secret")
	t.Setenv(EnvInventory, "inventory.csv")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Defaults.Credential.Username != "admin" {
		t.Errorf("Credential.Username = %q, want admin", cfg.Defaults.Credential.Username)
	}
	if cfg.Defaults.Inventory != "inventory.csv" {
		t.Errorf("Inventory = %q, want inventory.csv", cfg.Defaults.Inventory)
	}
	if cfg.Defaults.MaxStartups != defaultMaxStartups {
		t.Errorf("MaxStartups = %d, want %d", cfg.Defaults.MaxStartups, defaultMaxStartups)
	}
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("MY_PASSWORD", "hunter2")

	doc := `
[defaults]
configs_dir = "./configs"

[defaults.credentials]
username = "admin"
password = "$MY_PASSWORD"
`
	path := writeTemp(t, "netcfgbu.toml", doc)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Defaults.Credential.Password != "hunter2" {
		t.Errorf("Password = %q, want hunter2", cfg.Defaults.Credential.Password)
	}
}

func TestLoadConfigMissingEnvVarFails(t *testing.T) {
	doc := `
[defaults.credentials]
username = "admin"
password = "${NOT_SET_ANYWHERE}"
`
	path := writeTemp(t, "netcfgbu.toml", doc)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() expected error for undefined env var")
	}
}

func TestValidateUnknownLinter(t *testing.T) {
	doc := `
[os_name.ios]
linter = "missing"
`
	path := writeTemp(t, "netcfgbu.toml", doc)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("LoadConfig() expected error for unknown linter reference")
	}
}

func TestGitSpecValidateExactlyOne(t *testing.T) {
	cases := []struct {
		name    string
		spec    GitSpec
		wantErr bool
	}{
		{"neither", GitSpec{}, true},
		{"both", GitSpec{PersonalToken: "tok", DeployKeyFile: "key"}, true},
		{"token only", GitSpec{PersonalToken: "tok"}, false},
		{"key only", GitSpec{DeployKeyFile: "key"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestExpandEnvUndefined(t *testing.T) {
	if _, err := ExpandEnv("${DEFINITELY_NOT_SET}"); err == nil {
		t.Fatal("ExpandEnv() expected error for undefined variable")
	}
}

func TestExpandEnvDefined(t *testing.T) {
	t.Setenv("FOO", "bar")
	got, err := ExpandEnv("prefix-$FOO-suffix")
	if err != nil {
		t.Fatalf("ExpandEnv() error = %v", err)
	}
	if got != "prefix-bar-suffix" {
		t.Errorf("ExpandEnv() = %q, want prefix-bar-suffix", got)
	}
}
