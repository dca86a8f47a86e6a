// Package config loads the coordination fabric's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level coordfab.yaml document.
type Config struct {
	RateLimits  RateLimitsConfig  `yaml:"rate_limits"`
	Planner     PlannerConfig     `yaml:"planner"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Sandbox     SandboxConfig     `yaml:"sandbox"`
	Review      ReviewConfig      `yaml:"review"`
	Complexity  ComplexityConfig  `yaml:"complexity_thresholds"`
	EventBus    EventBusConfig    `yaml:"event_bus"`
	Store       StoreConfig       `yaml:"store"`
	Forge       ForgeConfig       `yaml:"forge"`
	Escalation  EscalationConfig  `yaml:"escalation"`
	Server      ServerConfig      `yaml:"server"`
}

type RateLimitsConfig struct {
	Operations map[string]OperationLimits `yaml:"operations"`
}

type OperationLimits struct {
	PerMinute           int     `yaml:"per_minute"`
	PerHour             int     `yaml:"per_hour"`
	PerDay              int     `yaml:"per_day"`
	CooldownSecs        float64 `yaml:"cooldown_seconds"`
	BurstWindow         float64 `yaml:"burst_window_seconds"`
	BurstMax            int     `yaml:"burst_max"`
	DuplicateWindowSecs float64 `yaml:"duplicate_window_seconds"`
	MaxDuplicates       int     `yaml:"max_duplicates"`
}

type PlannerConfig struct {
	MaxSubtasksPerPlan int `yaml:"max_subtasks_per_plan"`
	DefaultPriority    int `yaml:"default_priority"`
}

type MonitorConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

type SandboxConfig struct {
	DefaultTimeoutSeconds int      `yaml:"default_timeout_seconds"`
	MaxTimeoutSeconds     int      `yaml:"max_timeout_seconds"`
	AllowedBaseDirs       []string `yaml:"allowed_base_dirs"`
	BlockedCommands       []string `yaml:"blocked_commands"`
	BlockedPatterns       []string `yaml:"blocked_patterns"`
	AllowedCommands       []string `yaml:"allowed_commands"`
	MaxOutputBytes        int      `yaml:"max_output_bytes"`
}

type ReviewConfig struct {
	LLMEnabled   bool   `yaml:"llm_enabled"`
	OllamaURL    string `yaml:"ollama_url"`
	OllamaModel  string `yaml:"ollama_model"`
	TestTimeoutS int    `yaml:"test_timeout_seconds"`
}

type ComplexityConfig struct {
	SimpleThreshold  int `yaml:"simple_threshold"`
	ComplexThreshold int `yaml:"complex_threshold"`
	LLMAssisted      bool `yaml:"llm_assisted"`
}

type EventBusConfig struct {
	BufferSize int    `yaml:"buffer_size"`
	NATSURL    string `yaml:"nats_url,omitempty"`
}

type StoreConfig struct {
	SQLitePath   string `yaml:"sqlite_path"`
	PlanDir      string `yaml:"plan_dir"`
	UseCgoDriver bool   `yaml:"use_cgo_driver"`
}

type ForgeConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"`
	BotLogin   string `yaml:"bot_login"`
}

type EscalationConfig struct {
	MaxFilesSimple        int     `yaml:"max_files_simple"`
	MaxComponentsSimple    int    `yaml:"max_components_simple"`
	MaxFailedAttempts      int    `yaml:"max_failed_attempts"`
	MaxStuckTimeMinutes    float64 `yaml:"max_stuck_time_minutes"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration's built-in defaults, matching the
// constants carried over from the original implementation's RateLimitConfig,
// IssueComplexityAnalyzer, AgentEscalator and ShellSafetyConfig.
func Default() *Config {
	return &Config{
		RateLimits: RateLimitsConfig{
			Operations: map[string]OperationLimits{
				"comment":       {PerMinute: 3, PerHour: 30, PerDay: 200, CooldownSecs: 20, BurstWindow: 60, BurstMax: 10, DuplicateWindowSecs: 3600, MaxDuplicates: 2},
				"pr_create":     {PerMinute: 1, PerHour: 5, PerDay: 30, CooldownSecs: 120, BurstWindow: 60, BurstMax: 10, DuplicateWindowSecs: 3600, MaxDuplicates: 2},
				"pr_merge":      {PerMinute: 1, PerHour: 10, PerDay: 50, CooldownSecs: 10, BurstWindow: 60, BurstMax: 10, DuplicateWindowSecs: 3600, MaxDuplicates: 2},
				"label_change":  {PerMinute: 5, PerHour: 60, PerDay: 300, CooldownSecs: 2, BurstWindow: 60, BurstMax: 10, DuplicateWindowSecs: 3600, MaxDuplicates: 2},
				"branch_create": {PerMinute: 2, PerHour: 20, PerDay: 100, CooldownSecs: 5, BurstWindow: 60, BurstMax: 10, DuplicateWindowSecs: 3600, MaxDuplicates: 2},
			},
		},
		Planner: PlannerConfig{MaxSubtasksPerPlan: 20, DefaultPriority: 5},
		Monitor: MonitorConfig{PollIntervalSeconds: 30},
		Sandbox: SandboxConfig{
			DefaultTimeoutSeconds: 300,
			MaxTimeoutSeconds:     3600,
			AllowedBaseDirs:       []string{"/tmp/coordfab-workspaces"},
			BlockedCommands:       []string{"rm -rf /", "dd", "mkfs", "shutdown", "reboot", "sudo", "su", ":(){ :|:& };:"},
			BlockedPatterns:       []string{`rm\s+-rf\s+/`, `>\s*/dev/sd`, `curl.*\|\s*sh`, `wget.*\|\s*sh`},
			AllowedCommands:       []string{"git", "go", "npm", "pytest", "python", "python3", "cargo", "mvn", "ls", "cat", "grep", "find"},
			MaxOutputBytes:        1000,
		},
		Review: ReviewConfig{LLMEnabled: false, OllamaURL: "http://localhost:11434", OllamaModel: "codellama", TestTimeoutS: 60},
		Complexity: ComplexityConfig{SimpleThreshold: 10, ComplexThreshold: 25, LLMAssisted: false},
		EventBus:   EventBusConfig{BufferSize: 256},
		Store:      StoreConfig{SQLitePath: "coordfab.db", PlanDir: "plans"},
		Forge:      ForgeConfig{BaseURL: "https://api.github.com", APIVersion: "2022-11-28", BotLogin: "coordfab-bot"},
		Escalation: EscalationConfig{MaxFilesSimple: 5, MaxComponentsSimple: 3, MaxFailedAttempts: 2, MaxStuckTimeMinutes: 30},
		Server:     ServerConfig{Addr: ":8080"},
	}
}

// Load reads a YAML config file, filling unset fields from Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
