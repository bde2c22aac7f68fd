// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the forwarding relay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shineum/forward-relay/internal/rewrite"
)

const (
	defaultPrefix           = "emails/"
	defaultConfigurationSet = "mailing-default"
	defaultMaxRetries       = 2
)

// Config holds the complete application configuration.
type Config struct {
	Provider string        `yaml:"provider"`
	Intake   IntakeConfig  `yaml:"intake"`
	Forward  ForwardConfig `yaml:"forward"`
	AWS      AWSConfig     `yaml:"aws"`
	SES      SESConfig     `yaml:"ses"`
	SMTP     SMTPConfig    `yaml:"smtp"`
	Graph    GraphConfig   `yaml:"graph"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Logging  LoggingConfig `yaml:"logging"`
}

// IntakeConfig locates the stored inbound messages. With the local backend
// Bucket names the base directory.
type IntakeConfig struct {
	Backend  string `yaml:"backend"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
}

// ForwardConfig holds the identities applied to every forwarded message.
type ForwardConfig struct {
	BouncePath string `yaml:"bounce_path"`
	AsName     string `yaml:"as_name"`
	AsEmail    string `yaml:"as_email"`
	ToName     string `yaml:"to_name"`
	ToEmail    string `yaml:"to_email"`
}

// AWSConfig holds settings shared by every AWS client.
type AWSConfig struct {
	Region string `yaml:"region"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	ConfigurationSet string `yaml:"configuration_set"`
	Region           string `yaml:"region"`
	AccessKeyID      string `yaml:"access_key_id"`
	SecretAccessKey  string `yaml:"secret_access_key"`
	MaxRetries       int    `yaml:"max_retries"`
}

// SMTPConfig holds the upstream SMTP relay configuration.
type SMTPConfig struct {
	Host       string `yaml:"host"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	TLS        string `yaml:"tls"`
	CAFile     string `yaml:"ca_file"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	SkipVerify bool   `yaml:"skip_verify"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// MetricsConfig holds CloudWatch metrics configuration.
// An empty Namespace disables metrics.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ConfigurationError lists every missing or invalid setting. It is fatal:
// no message is processed with an invalid configuration.
type ConfigurationError struct {
	Missing  []string
	Problems []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required environment variables: "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return "invalid configuration: " + strings.Join(parts, "; ")
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// Validate returns a *ConfigurationError naming every missing required
// variable and every invalid value, or nil.
func (c *Config) Validate() error {
	cerr := &ConfigurationError{}

	required := []struct {
		env   string
		value string
	}{
		{"MAIL_BUCKET", c.Intake.Bucket},
		{"FORWARD_BOUNCE_PATH", c.Forward.BouncePath},
		{"FORWARD_AS_NAME", c.Forward.AsName},
		{"FORWARD_AS_EMAIL", c.Forward.AsEmail},
		{"FORWARD_TO_NAME", c.Forward.ToName},
		{"FORWARD_TO_EMAIL", c.Forward.ToEmail},
	}
	for _, r := range required {
		if r.value == "" {
			cerr.Missing = append(cerr.Missing, r.env)
		}
	}

	switch c.Intake.Backend {
	case "s3", "local":
	default:
		cerr.Problems = append(cerr.Problems, fmt.Sprintf("unknown INTAKE_BACKEND %q", c.Intake.Backend))
	}

	switch c.Provider {
	case "ses", "stdout":
	case "smtp":
		if c.SMTP.Host == "" {
			cerr.Missing = append(cerr.Missing, "SMTP_RELAY_HOST")
		}
		switch c.SMTP.TLS {
		case "none", "starttls", "tls":
		default:
			cerr.Problems = append(cerr.Problems, fmt.Sprintf("unknown SMTP_RELAY_TLS %q", c.SMTP.TLS))
		}
	case "graph":
		if !c.GraphConfigured() {
			for _, r := range []struct{ env, value string }{
				{"GRAPH_TENANT_ID", c.Graph.TenantID},
				{"GRAPH_CLIENT_ID", c.Graph.ClientID},
				{"GRAPH_CLIENT_SECRET", c.Graph.ClientSecret},
				{"GRAPH_SENDER", c.Graph.Sender},
			} {
				if r.value == "" {
					cerr.Missing = append(cerr.Missing, r.env)
				}
			}
		}
	default:
		cerr.Problems = append(cerr.Problems, fmt.Sprintf("unknown RELAY_PROVIDER %q", c.Provider))
	}

	if len(cerr.Missing) > 0 || len(cerr.Problems) > 0 {
		return cerr
	}
	return nil
}

// RewriteConfig converts the forward identities for the rewrite engine.
func (c *Config) RewriteConfig() rewrite.ForwardConfig {
	return rewrite.ForwardConfig{
		BouncePath:       c.Forward.BouncePath,
		ForwardAsName:    c.Forward.AsName,
		ForwardAsAddress: c.Forward.AsEmail,
		ForwardToName:    c.Forward.ToName,
		ForwardToAddress: c.Forward.ToEmail,
	}
}

// SESRegion returns the SES region, falling back to the shared AWS region.
func (c *Config) SESRegion() string {
	if c.SES.Region != "" {
		return c.SES.Region
	}
	return c.AWS.Region
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// SMTPAuthEnabled returns true if both SMTP relay username and password are set.
func (c *Config) SMTPAuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Provider = "ses"
	c.Intake.Backend = "s3"
	c.Intake.Prefix = defaultPrefix
	c.SES.ConfigurationSet = defaultConfigurationSet
	c.SES.MaxRetries = defaultMaxRetries
	c.SMTP.TLS = "starttls"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	setString(&c.Provider, "RELAY_PROVIDER", strings.ToLower)

	setString(&c.Intake.Backend, "INTAKE_BACKEND", strings.ToLower)
	setString(&c.Intake.Bucket, "MAIL_BUCKET", nil)
	setString(&c.Intake.Prefix, "INTAKE_PREFIX", nil)
	setString(&c.Intake.Endpoint, "S3_ENDPOINT", nil)

	setString(&c.Forward.BouncePath, "FORWARD_BOUNCE_PATH", nil)
	setString(&c.Forward.AsName, "FORWARD_AS_NAME", nil)
	setString(&c.Forward.AsEmail, "FORWARD_AS_EMAIL", nil)
	setString(&c.Forward.ToName, "FORWARD_TO_NAME", nil)
	setString(&c.Forward.ToEmail, "FORWARD_TO_EMAIL", nil)

	setString(&c.AWS.Region, "AWS_REGION", nil)

	setString(&c.SES.ConfigurationSet, "SES_CONFIGURATION_SET", nil)
	setString(&c.SES.Region, "SES_REGION", nil)
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID", nil)
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY", nil)
	if v := os.Getenv("RELAY_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.SES.MaxRetries = n
		}
	}

	setString(&c.SMTP.Host, "SMTP_RELAY_HOST", nil)
	setString(&c.SMTP.Username, "SMTP_RELAY_USERNAME", nil)
	setString(&c.SMTP.Password, "SMTP_RELAY_PASSWORD", nil)
	setString(&c.SMTP.TLS, "SMTP_RELAY_TLS", strings.ToLower)
	setString(&c.SMTP.CAFile, "SMTP_RELAY_CA_FILE", nil)
	setString(&c.SMTP.CertFile, "SMTP_RELAY_CLIENT_CERT", nil)
	setString(&c.SMTP.KeyFile, "SMTP_RELAY_CLIENT_KEY", nil)
	if v := os.Getenv("SMTP_RELAY_TLS_SKIP_VERIFY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SMTP.SkipVerify = b
		}
	}

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID", nil)
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID", nil)
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET", nil)
	setString(&c.Graph.Sender, "GRAPH_SENDER", nil)

	setString(&c.Metrics.Namespace, "METRICS_NAMESPACE", nil)

	setString(&c.Logging.Level, "LOG_LEVEL", strings.ToLower)
}

// setString overwrites *dst with the value of env when it is non-empty,
// passing it through norm first if given.
func setString(dst *string, env string, norm func(string) string) {
	v := os.Getenv(env)
	if v == "" {
		return
	}
	if norm != nil {
		v = norm(v)
	}
	*dst = v
}
