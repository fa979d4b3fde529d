package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const envPrefix = "IDP_"

// Load assembles the configuration in layers:
//  1. built-in defaults
//  2. <configDir>/config.yaml (optional)
//  3. <configDir>/config.<env>.yaml (optional), env taken from APP_ENV
//  4. environment variables with prefix IDP_, __ as the nesting separator,
//     e.g. IDP_BACKOFFICE__CLIENT_SECRET
//
// The result is validated before use so a broken deployment fails at startup
// rather than on the first request.
func Load(configDir string) (*AppConfig, error) {
	if configDir == "" {
		configDir = "config"
	}

	envName := os.Getenv("APP_ENV")
	if envName == "" {
		envName = "development"
	}

	k := koanf.New(".")

	if err := k.Load(defaultsProvider(envName), nil); err != nil {
		return nil, errors.Wrap(err, "[config.Load] defaults")
	}

	for _, name := range []string{"config.yaml", "config." + envName + ".yaml"} {
		path := filepath.Join(configDir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "[config.Load] loading %s", path)
		}
	}

	// IDP_BACKOFFICE__CLIENT_SECRET -> backoffice.client_secret
	envTransform := func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}
	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, errors.Wrap(err, "[config.Load] environment")
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] unmarshal")
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] validation")
	}

	return &cfg, nil
}

func defaultsProvider(envName string) koanf.Provider {
	return confmap.Provider(map[string]interface{}{
		"env":      envName,
		"port":     "5000",
		"app_name": "Docket IDP",
		"issuer":   "http://localhost:5000",

		"tokens.access_ttl_minutes":      60,
		"tokens.id_ttl_minutes":          60,
		"tokens.refresh_ttl_hours":       168,
		"tokens.code_ttl_minutes":        5,
		"tokens.interaction_ttl_minutes": 10,

		"backoffice.client_id":     "docket-manager",
		"backoffice.client_secret": "secret",
		"backoffice.backend_url":   "https://localhost:5002/",
		"backoffice.frontend_url":  "https://localhost:5001/",
		"backoffice.tenant_name":   "docket & docket",
	}, ".")
}
