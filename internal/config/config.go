// Package config defines the global configuration structure for the ScribePay
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved from the OS environment, optionally seeded from a .env
// file for local development. Any missing required value or invalid format
// causes startup to fail immediately (fail fast).
package config

import (
	"time"

	"scribepay/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the ScribePay service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"scribepay"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Gateway  GatewayConfig
	Identity IdentityConfig
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// GatewayConfig holds the PayFast merchant account settings.
//
// MerchantID is the gateway-issued account ID; inbound notifications declaring
// a different merchant are rejected outright. Passphrase is the shared secret
// appended to the canonical string before hashing; an empty passphrase means
// the merchant account has none configured.
type GatewayConfig struct {
	MerchantID string       `envconfig:"PAYFAST_MERCHANT_ID" validate:"required"`
	Passphrase SecretString `envconfig:"PAYFAST_PASSPHRASE"`

	// Sandbox selects the gateway's test environment for outbound API calls.
	Sandbox bool `envconfig:"PAYFAST_SANDBOX" default:"true"`

	APIBaseURL    string        `envconfig:"PAYFAST_API_URL" default:"https://api.payfast.co.za"`
	CancelTimeout time.Duration `envconfig:"PAYFAST_CANCEL_TIMEOUT" default:"20s"`
}

// IdentityConfig holds the connection settings for the identity service that
// resolves bearer credentials on the user-facing cancellation endpoint.
type IdentityConfig struct {
	BaseURL string        `envconfig:"IDENTITY_SERVICE_URL" validate:"required,url"`
	Timeout time.Duration `envconfig:"IDENTITY_TIMEOUT" default:"5s"`
}
