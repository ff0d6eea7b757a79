package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/eolsync/pkg/constants"
	"github.com/agentstation/eolsync/pkg/errors"
	"github.com/agentstation/eolsync/pkg/port"
)

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string
	DryRun  bool

	// Config file
	ConfigFile string

	// Catalog connection
	BaseURL      string        `validate:"required,url"`
	APIKey       string
	ClientID     string        `validate:"required_without=APIKey"`
	ClientSecret string        `validate:"required_without=APIKey"`
	HTTPTimeout  time.Duration `validate:"gte=0"`

	// Reconciliation
	Relation           string `validate:"required"`
	ServiceBlueprint   string `validate:"required"`
	FrameworkBlueprint string `validate:"required"`
	Property           string `validate:"required"`

	// Logging configuration. LogLevel comes from --log-level only;
	// EnvLogLevel from LOG_LEVEL ranks below -v and -q.
	LogLevel    string
	EnvLogLevel string
	LogFormat   string
	LogOutput   string
}

// Flags holds the values of the persistent command-line flags.
type Flags struct {
	ConfigFile string
	Verbose    bool
	Quiet      bool
	NoColor    bool
	Format     string
	LogLevel   string
	DryRun     bool
	Relation   string
}

// Configuration keys. Each is read from the environment variable of the
// same name in upper case, or from the config file.
const (
	keyBaseURL            = "port_api_url"
	keyAPIKey             = "port_api_key"
	keyClientID           = "port_client_id"
	keyClientSecret       = "port_client_secret"
	keyRelation           = "eol_relation"
	keyServiceBlueprint   = "eol_service_blueprint"
	keyFrameworkBlueprint = "eol_framework_blueprint"
	keyProperty           = "eol_property"
	keyHTTPTimeout        = "http_timeout"
)

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (applied later by UpdateFromFlags)
// 2. Environment variables
// 3. .env files
// 4. Config file (configFile, or ~/.eolsync.yaml / ./.eolsync.yaml)
// 5. Defaults
func LoadConfig(configFile string) (*Config, error) {
	// Load .env files first (before Viper env binding)
	loadEnvFiles()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	v.SetDefault(keyBaseURL, constants.DefaultBaseURL)
	v.SetDefault(keyRelation, constants.FrameworkRelation)
	v.SetDefault(keyServiceBlueprint, constants.ServiceBlueprint)
	v.SetDefault(keyFrameworkBlueprint, constants.FrameworkBlueprint)
	v.SetDefault(keyProperty, constants.EOLCountProperty)
	v.SetDefault(keyHTTPTimeout, constants.DefaultHTTPTimeout)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config file", fmt.Sprintf("cannot read %s", configFile), err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".eolsync")
		// A missing config file is fine
		_ = v.ReadInConfig()
	}

	config := &Config{
		Verbose: v.GetBool("verbose"),
		Quiet:   v.GetBool("quiet"),
		NoColor: v.GetBool("no_color"),
		Format:  v.GetString("format"),

		ConfigFile: v.ConfigFileUsed(),

		BaseURL:      v.GetString(keyBaseURL),
		APIKey:       v.GetString(keyAPIKey),
		ClientID:     v.GetString(keyClientID),
		ClientSecret: v.GetString(keyClientSecret),
		HTTPTimeout:  v.GetDuration(keyHTTPTimeout),

		Relation:           v.GetString(keyRelation),
		ServiceBlueprint:   v.GetString(keyServiceBlueprint),
		FrameworkBlueprint: v.GetString(keyFrameworkBlueprint),
		Property:           v.GetString(keyProperty),

		EnvLogLevel: getEnvOrDefault("LOG_LEVEL", ""),
		LogFormat:   getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput:   getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}

	return config, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(f Flags) {
	c.Verbose = c.Verbose || f.Verbose
	c.Quiet = c.Quiet || f.Quiet
	c.NoColor = c.NoColor || f.NoColor
	c.DryRun = f.DryRun
	if f.Format != "" {
		c.Format = f.Format
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.Relation != "" {
		c.Relation = f.Relation
	}
}

var validate = validator.New()

// Validate checks the settings a reconciliation pass needs.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.NewConfigError("app", err.Error(), err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.NewConfigError("app", strings.Join(msgs, "; "), err)
}

// envNames maps config fields to the variables users set.
var envNames = map[string]string{
	"BaseURL":            "PORT_API_URL",
	"APIKey":             "PORT_API_KEY",
	"ClientID":           "PORT_CLIENT_ID",
	"ClientSecret":       "PORT_CLIENT_SECRET",
	"HTTPTimeout":        "HTTP_TIMEOUT",
	"Relation":           "EOL_RELATION",
	"ServiceBlueprint":   "EOL_SERVICE_BLUEPRINT",
	"FrameworkBlueprint": "EOL_FRAMEWORK_BLUEPRINT",
	"Property":           "EOL_PROPERTY",
}

func describe(fe validator.FieldError) string {
	name := envNames[fe.Field()]
	if name == "" {
		name = fe.Field()
	}
	switch fe.Tag() {
	case "required_without":
		return name + " is required when PORT_API_KEY is not set"
	case "url":
		return fmt.Sprintf("%s %q is not a valid URL", name, fe.Value())
	case "gte":
		return name + " cannot be negative"
	default:
		return name + " is required"
	}
}

// PortConfig returns the catalog client settings.
func (c *Config) PortConfig() port.Config {
	return port.Config{
		BaseURL:      c.BaseURL,
		Token:        c.APIKey,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
	}
}

// loadEnvFiles loads environment variables from .env files.
// Variables already set in the environment are never overridden.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
