package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	LogLevel         string `json:"log_level" mapstructure:"log_level"`
	LogDir           string `json:"log_dir" mapstructure:"log_dir"`
	MaxContinuations int    `json:"max_continuations" mapstructure:"max_continuations"`
	// SystemPrompt replaces the built-in system prompt template when set.
	SystemPrompt     string `json:"system_prompt" mapstructure:"system_prompt"`
	LLM              struct {
		BaseURL          string `json:"base_url" mapstructure:"base_url"`
		APIKey           string `json:"api_key" mapstructure:"api_key"`
		Model            string `json:"model" mapstructure:"model"`
		ReasoningEffort  string `json:"reasoning_effort" mapstructure:"reasoning_effort"`
		MaxOutputTokens  int    `json:"max_output_tokens" mapstructure:"max_output_tokens"`
		MaxContextTokens int    `json:"max_context_tokens" mapstructure:"max_context_tokens"`
		OutputReserve    int    `json:"output_reserve" mapstructure:"output_reserve"`
		RetryAttempts    int    `json:"retry_attempts" mapstructure:"retry_attempts"`
	} `json:"llm" mapstructure:"llm"`
	Tools struct {
		Enabled               []string `json:"enabled" mapstructure:"enabled"`
		FetchProxy            string   `json:"fetch_proxy" mapstructure:"fetch_proxy"`
		FetchTimeoutSeconds   int      `json:"fetch_timeout_seconds" mapstructure:"fetch_timeout_seconds"`
		MaxFetchChars         int      `json:"max_fetch_chars" mapstructure:"max_fetch_chars"`
		SandboxInterpreter    string   `json:"sandbox_interpreter" mapstructure:"sandbox_interpreter"`
		SandboxTimeoutSeconds int      `json:"sandbox_timeout_seconds" mapstructure:"sandbox_timeout_seconds"`
	} `json:"tools" mapstructure:"tools"`
}

// Dir returns the default configuration directory, ~/.thinkstream.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".thinkstream")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	cfg := &Config{
		LogLevel:         "info",
		LogDir:           filepath.Join(Dir(), "logs"),
		MaxContinuations: 8,
	}
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-5-mini"
	cfg.LLM.ReasoningEffort = "medium"
	cfg.LLM.MaxOutputTokens = 16000
	cfg.LLM.MaxContextTokens = 272000
	cfg.LLM.OutputReserve = 16000
	cfg.LLM.RetryAttempts = 3
	cfg.Tools.Enabled = []string{"all"}
	cfg.Tools.FetchProxy = "https://r.jina.ai/"
	cfg.Tools.FetchTimeoutSeconds = 30
	cfg.Tools.MaxFetchChars = 50000
	cfg.Tools.SandboxInterpreter = "python3"
	cfg.Tools.SandboxTimeoutSeconds = 60
	return cfg
}

// Load reads the config file at path, layered over the defaults and under the
// environment. A missing file is created with the defaults.
func Load(path string) (*Config, error) {
	defaults := Defaults()
	v := viper.New()
	v.SetConfigType("json")

	defMap, err := ToMap(defaults)
	if err != nil {
		return nil, err
	}
	dv := viper.New()
	if err := dv.MergeConfigMap(defMap); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	for _, k := range dv.AllKeys() {
		v.SetDefault(k, dv.Get(k))
	}

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, defaults); err != nil {
			return nil, err
		}
	} else {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	// Override from env (highest precedence)
	v.SetEnvPrefix("THINKSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", "THINKSTREAM_LLM_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("llm.base_url", "THINKSTREAM_LLM_BASE_URL", "OPENAI_BASE_URL"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON using an atomic rename.
func Save(path string, cfg *Config) error {
	m, err := ToMap(cfg)
	if err != nil {
		return err
	}
	return writeMap(path, m)
}

// ToMap converts the config into its JSON object form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns the config as flat dot-separated keys, optionally with
// secrets masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	if err := v.MergeConfigMap(m); err != nil {
		return nil, fmt.Errorf("load config map: %w", err)
	}
	flat := make(map[string]any, len(v.AllKeys()))
	for _, k := range v.AllKeys() {
		flat[k] = v.Get(k)
	}
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns the raw value stored in the config file for key. The file
// is created with defaults when missing.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	v, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if !v.IsSet(key) {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v.Get(key), nil
}

// SetValue stores value under key in the config file. Values that parse as
// JSON (numbers, booleans, arrays) are stored typed, anything else as a
// string.
func SetValue(path, key, value string) error {
	v, err := readFile(path)
	if err != nil {
		return err
	}

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	v.Set(key, parsed)
	return writeMap(path, v.AllSettings())
}

// readFile loads only the config file, without defaults or environment.
func readFile(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

func writeMap(path string, m map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
