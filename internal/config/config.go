package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the appshell binaries.
type Config struct {
	// ListenAddress is the gRPC address of the backend command service.
	ListenAddress string `yaml:"listen_addr"`
	// BridgeAddress is the HTTP address the webview front-end talks to. Empty disables the bridge.
	BridgeAddress string `yaml:"bridge_addr,omitempty"`
	// AllowedOrigins lists the web origins allowed to call the bridge.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	// Endpoints are release feed URLs, tried in order.
	Endpoints []string `yaml:"endpoints,omitempty"`
	// PublicKeys are trusted SSH public keys (authorized_keys format) for payload signatures.
	PublicKeys []string `yaml:"public_keys,omitempty"`
	// Timeout bounds every feed and download request, and CLI calls to the backend.
	Timeout time.Duration `yaml:"timeout"`
	// CheckInterval enables background update checks when positive.
	CheckInterval time.Duration `yaml:"check_interval,omitempty"`
	// InstallPath is the file replaced on install. Empty means the running executable.
	InstallPath string `yaml:"install_path,omitempty"`
	// RestartAfterInstall starts the installed executable after a successful install.
	RestartAfterInstall bool `yaml:"restart_after_install,omitempty"`
	// TerminateProcesses names executables that are killed before the target is replaced.
	TerminateProcesses []string `yaml:"terminate_processes,omitempty"`
	// JournalFile is the path of the YAML install journal.
	JournalFile string `yaml:"journal_file"`
	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level,omitempty"`
	// LogFile enables a rotated JSON log file when set.
	LogFile string `yaml:"log_file,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "appshell-settings.yaml"

	// DefaultJournalFilename is the default filename for the install journal.
	DefaultJournalFilename = "appshell-journal.yaml"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 30 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errListenAddressRequired is returned when the gRPC address is missing.
	errListenAddressRequired = errors.New("listen address must be provided")
	// errNegativeInterval is returned for a negative check interval.
	errNegativeInterval = errors.New("check interval must not be negative")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting,
// filling defaults for optional ones.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ListenAddress == "" {
		return errListenAddressRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if settings.BridgeAddress != "" {
		if _, err := net.ResolveTCPAddr("tcp", settings.BridgeAddress); err != nil {
			return fmt.Errorf("invalid bridge address: %w", err)
		}
	}

	for _, endpoint := range settings.Endpoints {
		if _, err := url.ParseRequestURI(endpoint); err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
	}

	if settings.CheckInterval < 0 {
		return errNegativeInterval
	}

	// Set default timeout if not specified.
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	// Set default journal file if not specified.
	if settings.JournalFile == "" {
		settings.JournalFile = DefaultJournalFilename
	}

	return nil
}
