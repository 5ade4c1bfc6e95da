package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/srediag/spsc-shm/pkg/shm"
)

// ConfigFileName is the config file looked up in the working directory.
const ConfigFileName = "spscq.json"

// ConfigEnv names an explicit config file, like --config.
const ConfigEnv = "SPSCQ_CONFIG"

var (
	errConfigInvalid  = errors.New("invalid config")
	errConfigNotFound = errors.New("config file not found")
	errConfigExists   = errors.New("config file already exists")
)

// Config holds the settings shared by every command. The file is JSONC:
// comments and trailing commas are allowed.
type Config struct {
	// Dir holds the segment files, /dev/shm on Linux when empty.
	Dir string `json:"dir,omitempty"`
	// Capacity of queues created by create, produce and repl.
	Capacity uint64 `json:"capacity"`
	// AttachWait bounds how long commands wait for a segment to be created.
	AttachWait string `json:"attach_wait"`
	// Listen is the address of serve.
	Listen string `json:"listen"`
	// LogLevel is passed to shm.SetLogLevel.
	LogLevel int `json:"log_level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:   shm.DefaultCapacity,
		AttachWait: "5s",
		Listen:     "127.0.0.1:9464",
		LogLevel:   shm.LogLevelWarn,
	}
}

func (c Config) attachWait() time.Duration {
	d, _ := time.ParseDuration(c.AttachWait)
	return d
}

func validateConfig(c Config) error {
	if c.Capacity < shm.MinCapacity || c.Capacity > shm.MaxCapacity {
		return fmt.Errorf("%w: capacity %d out of [%d, %d]", errConfigInvalid, c.Capacity, shm.MinCapacity, uint64(shm.MaxCapacity))
	}
	d, err := time.ParseDuration(c.AttachWait)
	if err != nil {
		return fmt.Errorf("%w: attach_wait: %w", errConfigInvalid, err)
	}
	if d < 0 {
		return fmt.Errorf("%w: attach_wait %s is negative", errConfigInvalid, d)
	}
	if c.LogLevel < shm.LogLevelTrace || c.LogLevel > shm.LogLevelNoPrint {
		return fmt.Errorf("%w: log_level %d out of [%d, %d]", errConfigInvalid, c.LogLevel, shm.LogLevelTrace, shm.LogLevelNoPrint)
	}
	return nil
}

// configPath resolves the config file: the explicit path, then $SPSCQ_CONFIG,
// then spscq.json in workDir. explicit reports whether the file must exist.
func configPath(workDir, flagPath string, env map[string]string) (path string, explicit bool) {
	switch {
	case flagPath != "":
		path, explicit = flagPath, true
	case env[ConfigEnv] != "":
		path, explicit = env[ConfigEnv], true
	default:
		path = ConfigFileName
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	return path, explicit
}

// LoadConfig merges the config file over the defaults. It returns the path
// of the file it read, empty when none was found.
func LoadConfig(path string, mustExist bool) (Config, string, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, "", fmt.Errorf("%w: %s", errConfigNotFound, path)
			}
			return cfg, "", nil
		}
		return Config{}, "", fmt.Errorf("read config %s: %w", path, err)
	}

	if err := parseConfig(data, &cfg); err != nil {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, "", fmt.Errorf("%s: %w", path, err)
	}
	return cfg, path, nil
}

func parseConfig(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fmt.Errorf("invalid JSONC: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// FormatConfig renders cfg as indented JSON.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// WriteConfig atomically writes cfg to path. An existing file is kept unless
// force is set.
func WriteConfig(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", errConfigExists, path)
		}
	}
	formatted, err := FormatConfig(cfg)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(path, bytes.NewReader([]byte(formatted+"\n"))); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
