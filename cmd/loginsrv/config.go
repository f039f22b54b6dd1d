package main

import (
	"fmt"

	login "github.com/goliatone/go-login"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

type serverConfig struct {
	Addr        string `koanf:"addr" json:"addr"`
	MetricsAddr string `koanf:"metrics_addr" json:"metrics_addr"`
	DSN         string `koanf:"dsn" json:"-"`
	Verbose     bool   `koanf:"verbose" json:"verbose"`
}

type appConfig struct {
	Server serverConfig `koanf:"server" json:"server"`
	Login  login.Config `koanf:"login" json:"login"`
}

func defaultAppConfig() *appConfig {
	loginCfg := login.DefaultConfig()
	loginCfg.Email.From = "noreply@example.com"

	return &appConfig{
		Server: serverConfig{
			Addr: ":8572",
			DSN:  "file:login.db?cache=shared",
		},
		Login: loginCfg,
	}
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"dsn":          "server.dsn",
	"verbose":      "server.verbose",
	"addr":         "server.addr",
	"metrics-addr": "server.metrics_addr",
	"base-url":     "login.site.base_url",
}

// loadConfig layers the YAML file at path and the changed flags over the
// defaults.
func loadConfig(path string, flags *pflag.FlagSet) (*appConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	cfg := defaultAppConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}
