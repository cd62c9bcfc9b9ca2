package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment variable names shared with the archive plugin deployments.
const (
	EnvConnectionString = "AZURE_CONNECTION_STRING"
	EnvAccount          = "AZURE_ACCOUNT"
	EnvAccountKey       = "AZURE_ACCOUNT_KEY"
	EnvAccountFile      = "AZURE_ACCOUNT_FILE"
	EnvEndpointSuffix   = "AZURE_ENDPOINT_SUFFIX"

	// HTTPSPrefix starts every connection string assembled from account credentials.
	HTTPSPrefix = "DefaultEndpointsProtocol=https"

	DefaultEndpointSuffix = "core.windows.net"
	DefaultListenPort     = 4566
	DefaultTimeout        = 10 * time.Minute
)

// Keys used in the config file and bound to environment variables.
const (
	KeyConnection     = "connection"
	KeyAccount        = "account"
	KeyAccountKey     = "account_key"
	KeyAccountFile    = "account_file"
	KeyEndpointSuffix = "endpoint_suffix"
	KeyLogLevel       = "log_level"
	KeyListenPort     = "listen_port"
	KeyTimeout        = "timeout"
	KeyOTelEndpoint   = "otel_endpoint"
)

// Config holds the resolved settings for the CLI and the HTTP surface.
// The adapter itself never reads it: callers turn it into a connection string.
type Config struct {
	// Connection is an explicit connection string and wins over account credentials.
	Connection string

	// Account and AccountKey name an Azure storage account.
	// When AccountFile is set they are read from it instead.
	Account     string
	AccountKey  string
	AccountFile string

	// EndpointSuffix completes account-based connection strings.
	// Default: core.windows.net
	EndpointSuffix string

	// LogLevel controls the verbosity of logging (debug, info, warn, error).
	// Default: "info"
	LogLevel string

	// ListenPort is where `serve` listens.
	// Default: 4566
	ListenPort int

	// Timeout bounds a single archive operation.
	// Default: 10m
	Timeout time.Duration

	// OTelEndpoint is the OTLP/HTTP collector for traces; empty disables export.
	OTelEndpoint string
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyEndpointSuffix, DefaultEndpointSuffix)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyListenPort, DefaultListenPort)
	v.SetDefault(KeyTimeout, DefaultTimeout)

	_ = v.BindEnv(KeyConnection, EnvConnectionString)
	_ = v.BindEnv(KeyAccount, EnvAccount)
	_ = v.BindEnv(KeyAccountKey, EnvAccountKey)
	_ = v.BindEnv(KeyAccountFile, EnvAccountFile)
	_ = v.BindEnv(KeyEndpointSuffix, EnvEndpointSuffix)
	_ = v.BindEnv(KeyLogLevel, "LOG_LEVEL")
	_ = v.BindEnv(KeyListenPort, "LISTEN_PORT")
	_ = v.BindEnv(KeyTimeout, "OP_TIMEOUT")
	_ = v.BindEnv(KeyOTelEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Load resolves a Config from v. An account file, when set, overrides
// account and key from every other source.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Connection:     strings.TrimSpace(v.GetString(KeyConnection)),
		Account:        v.GetString(KeyAccount),
		AccountKey:     v.GetString(KeyAccountKey),
		AccountFile:    v.GetString(KeyAccountFile),
		EndpointSuffix: v.GetString(KeyEndpointSuffix),
		LogLevel:       v.GetString(KeyLogLevel),
		ListenPort:     v.GetInt(KeyListenPort),
		Timeout:        v.GetDuration(KeyTimeout),
		OTelEndpoint:   v.GetString(KeyOTelEndpoint),
	}

	if cfg.AccountFile != "" {
		account, key, err := ReadAccountFile(cfg.AccountFile)
		if err != nil {
			return nil, err
		}
		cfg.Account, cfg.AccountKey = account, key
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return cfg, nil
}

// ReadAccountFile reads an account file: the account name on the first
// non-empty line and the key on the second.
func ReadAccountFile(path string) (account, key string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to open account file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && len(lines) < 2 {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("failed to read account file: %w", err)
	}
	if len(lines) < 2 {
		return "", "", fmt.Errorf("account file %s must contain an account name and a key", path)
	}
	return lines[0], lines[1], nil
}

// ConnectionString returns the explicit connection string or assembles one
// from the account credentials.
func (c *Config) ConnectionString() (string, error) {
	if c.Connection != "" {
		return c.Connection, nil
	}
	if c.Account == "" || c.AccountKey == "" {
		return "", fmt.Errorf("no connection configured: set %s or %s and %s", EnvConnectionString, EnvAccount, EnvAccountKey)
	}
	suffix := c.EndpointSuffix
	if suffix == "" {
		suffix = DefaultEndpointSuffix
	}
	return fmt.Sprintf("%s;AccountName=%s;AccountKey=%s;EndpointSuffix=%s", HTTPSPrefix, c.Account, c.AccountKey, suffix), nil
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort >= 65536 {
		return fmt.Errorf("invalid LISTEN_PORT: %d (must be 1-65535)", c.ListenPort)
	}
	if _, err := c.ConnectionString(); err != nil {
		return err
	}
	return nil
}
