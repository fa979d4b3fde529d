// Package config loads and validates the provider's deployment configuration.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the read surface handed to the rest of the application.
type Config interface {
	EnvConfig
	TokenConfig
	SigningConfig
	BackOfficeConfig
}

type EnvConfig interface {
	GetEnv() string
	IsProduction() bool
	GetPort() string
	GetAppName() string
	GetIssuerURL() string
}

type TokenConfig interface {
	GetAccessTokenTTL() time.Duration
	GetIDTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetCodeTTL() time.Duration
	GetInteractionTTL() time.Duration
}

// SigningConfig optionally pins the token signing key. When the PEM is empty
// a fresh key is generated at startup.
type SigningConfig interface {
	GetSigningKeyPEM() string
	GetSigningKeyID() string
}

// BackOfficeConfig describes the docket-manager back-office integration: the
// relying party credentials and the URLs of the hosting application.
type BackOfficeConfig interface {
	GetBackOfficeClientID() string
	GetBackOfficeClientSecret() string
	GetBackOfficeBackendURL() string
	GetBackOfficeFrontendURL() string
	GetTenantName() string
}

// AppConfig is the koanf-mapped configuration tree.
type AppConfig struct {
	Env     string `koanf:"env" validate:"required"`
	Port    string `koanf:"port" validate:"required"`
	AppName string `koanf:"app_name"`
	Issuer  string `koanf:"issuer" validate:"required,url"`

	Tokens struct {
		AccessTTLMinutes  int `koanf:"access_ttl_minutes" validate:"gt=0"`
		IDTTLMinutes      int `koanf:"id_ttl_minutes" validate:"gt=0"`
		RefreshTTLHours   int `koanf:"refresh_ttl_hours" validate:"gt=0"`
		CodeTTLMinutes    int `koanf:"code_ttl_minutes" validate:"gt=0"`
		InteractionTTLMin int `koanf:"interaction_ttl_minutes" validate:"gt=0"`
	} `koanf:"tokens"`

	Signing struct {
		KeyPEM string `koanf:"key_pem"`
		KeyID  string `koanf:"key_id"`
	} `koanf:"signing"`

	BackOffice struct {
		ClientID     string `koanf:"client_id" validate:"required"`
		ClientSecret string `koanf:"client_secret" validate:"required"`
		BackendURL   string `koanf:"backend_url" validate:"required,url"`
		FrontendURL  string `koanf:"frontend_url" validate:"required,url"`
		TenantName   string `koanf:"tenant_name" validate:"required"`
	} `koanf:"backoffice"`
}

var _ Config = (*AppConfig)(nil)

func (c *AppConfig) GetEnv() string { return c.Env }

func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c *AppConfig) GetPort() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func (c *AppConfig) GetAppName() string { return c.AppName }

// GetIssuerURL returns the issuer without a trailing slash so endpoint URLs
// compose cleanly.
func (c *AppConfig) GetIssuerURL() string {
	return strings.TrimRight(c.Issuer, "/")
}

func (c *AppConfig) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Tokens.AccessTTLMinutes) * time.Minute
}

func (c *AppConfig) GetIDTokenTTL() time.Duration {
	return time.Duration(c.Tokens.IDTTLMinutes) * time.Minute
}

func (c *AppConfig) GetRefreshTokenTTL() time.Duration {
	return time.Duration(c.Tokens.RefreshTTLHours) * time.Hour
}

func (c *AppConfig) GetCodeTTL() time.Duration {
	return time.Duration(c.Tokens.CodeTTLMinutes) * time.Minute
}

func (c *AppConfig) GetInteractionTTL() time.Duration {
	return time.Duration(c.Tokens.InteractionTTLMin) * time.Minute
}

func (c *AppConfig) GetSigningKeyPEM() string { return c.Signing.KeyPEM }
func (c *AppConfig) GetSigningKeyID() string  { return c.Signing.KeyID }

func (c *AppConfig) GetBackOfficeClientID() string     { return c.BackOffice.ClientID }
func (c *AppConfig) GetBackOfficeClientSecret() string { return c.BackOffice.ClientSecret }
func (c *AppConfig) GetBackOfficeBackendURL() string   { return c.BackOffice.BackendURL }
func (c *AppConfig) GetBackOfficeFrontendURL() string  { return c.BackOffice.FrontendURL }
func (c *AppConfig) GetTenantName() string             { return c.BackOffice.TenantName }
