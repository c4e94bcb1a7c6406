package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config 运行配置:默认值 < 配置文件 < 环境变量
// Config is the runtime configuration. Defaults are overridden by the
// JSON config file, which is overridden by environment variables.
type Config struct {
	Assistant AssistantConfig `json:"assistant"`
	Run       RunConfig       `json:"run"`
	Storage   StorageConfig   `json:"storage"`
	Calendar  CalendarConfig  `json:"calendar"`
}

type AssistantConfig struct {
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	TimeoutMS int    `json:"timeout_ms"`
}

type RunConfig struct {
	PollIntervalMS   int `json:"poll_interval_ms"`
	InitialTimeoutMS int `json:"initial_timeout_ms"`
	ToolTimeoutMS    int `json:"tool_timeout_ms"`
	CancelGraceMS    int `json:"cancel_grace_ms"`
	MaxInputTokens   int `json:"max_input_tokens"`
}

type StorageConfig struct {
	BaseDir string `json:"base_dir"`
}

type CalendarConfig struct {
	CalendarID  string `json:"calendar_id"`
	AccessToken string `json:"access_token"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Assistant: AssistantConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			TimeoutMS: 60000,
		},
		Run: RunConfig{
			PollIntervalMS:   500,
			InitialTimeoutMS: 30000,
			ToolTimeoutMS:    120000,
			CancelGraceMS:    2000,
			MaxInputTokens:   4000,
		},
		Storage: StorageConfig{
			BaseDir: filepath.Join(home, ".calbot"),
		},
		Calendar: CalendarConfig{
			CalendarID: "primary",
		},
	}
}

// Load reads the config file over the defaults, then applies
// environment overrides. A missing file is not an error; a malformed
// one is.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults apply
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if strings.TrimSpace(cfg.Assistant.APIKey) == "" {
		return Config{}, fmt.Errorf("assistant api_key is not set (config file or CALBOT_API_KEY)")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CALBOT_API_KEY"); v != "" {
		cfg.Assistant.APIKey = v
	}
	if v := os.Getenv("CALBOT_BASE_URL"); v != "" {
		cfg.Assistant.BaseURL = v
	}
	if v := os.Getenv("CALBOT_MODEL"); v != "" {
		cfg.Assistant.Model = v
	}
	if v := os.Getenv("CALBOT_DATA_DIR"); v != "" {
		cfg.Storage.BaseDir = v
	}
	if v := os.Getenv("CALBOT_CALENDAR_ID"); v != "" {
		cfg.Calendar.CalendarID = v
	}
	if v := os.Getenv("CALBOT_CALENDAR_TOKEN"); v != "" {
		cfg.Calendar.AccessToken = v
	}
}
