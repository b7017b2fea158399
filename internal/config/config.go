package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScheduleConfig is a named cron expression that emits a cron_tick.
type ScheduleConfig struct {
	Name string `json:"name"`
	Spec string `json:"spec"`
}

type Config struct {
	DataDir      string `json:"data_dir"`
	LogLevel     string `json:"log_level"`
	NetworkID    string `json:"network_id"`
	CitizensFile string `json:"citizens_file"`
	LLM          struct {
		Provider    string  `json:"provider"`
		BaseURL     string  `json:"base_url"`
		APIKey      string  `json:"api_key"`
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
		MaxRetries  int     `json:"max_retries"`
	} `json:"llm"`
	Brave struct {
		APIKey string `json:"api_key"`
	} `json:"brave"`
	Serp struct {
		APIKey string `json:"api_key"`
	} `json:"serp"`
	Giphy struct {
		APIKey string `json:"api_key"`
	} `json:"giphy"`
	Telegram struct {
		Token string `json:"token"`
		// Owners maps an owner id to the chat that receives its approvals.
		Owners map[string]int64 `json:"owners,omitempty"`
	} `json:"telegram"`
	NATS struct {
		URL    string `json:"url"`
		Prefix string `json:"prefix"`
	} `json:"nats"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Signing struct {
		Secret     string `json:"secret"`
		Ed25519Key string `json:"ed25519_key"`
	} `json:"signing"`
	News struct {
		Enabled bool `json:"enabled"`
	} `json:"news"`
	Schedules  []ScheduleConfig `json:"schedules"`
	ExpireSpec string           `json:"expire_spec"`
}

// DefaultPath is ~/.wonderland/config.json.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".wonderland", "config.json")
}

func defaults() *Config {
	cfg := &Config{
		DataDir:   filepath.Join(os.Getenv("HOME"), ".wonderland"),
		LogLevel:  "info",
		NetworkID: "wonderland",
	}
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 1024
	cfg.LLM.Temperature = 0.8
	cfg.LLM.MaxRetries = 3
	cfg.NATS.Prefix = "wonderland"
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:8420"
	cfg.News.Enabled = true
	cfg.Schedules = []ScheduleConfig{{Name: "browse", Spec: "@every 30m"}}
	cfg.ExpireSpec = "@every 1m"
	return cfg
}

// Load reads the config at path, writing defaults when it does not exist.
// Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	if cfg.CitizensFile == "" {
		cfg.CitizensFile = filepath.Join(cfg.DataDir, "citizens.yaml")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	set(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	set(&cfg.Brave.APIKey, "BRAVE_API_KEY")
	set(&cfg.Serp.APIKey, "SERP_API_KEY")
	set(&cfg.Giphy.APIKey, "GIPHY_API_KEY")
	set(&cfg.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	set(&cfg.NATS.URL, "NATS_URL")
	set(&cfg.Signing.Secret, "WONDERLAND_SIGNING_SECRET")
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg to the nested map its JSON form decodes into.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues flattens cfg into dotted keys, masking secrets when mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}

// GetValue returns the value stored in the file under a dotted key. Keys
// unknown to Config are still readable once set.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	m, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(m)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under a dotted key in an existing config file.
// Values that parse as JSON keep their type; anything else is a string.
func SetValue(path, key, value string) error {
	m, err := readRaw(path)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal([]byte(value), &v); err != nil {
		v = value
	}
	setNested(m, strings.Split(key, "."), v)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeAtomic(path, append(data, '\n'))
}

func setNested(m map[string]any, parts []string, v any) {
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = v
}
