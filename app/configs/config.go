package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Agent  AgentConfig  `json:"agent"`
	Oracle OracleConfig `json:"oracle"`
	Chat   ChatConfig   `json:"chat"`
	Server ServerConfig `json:"server"`
}

type AgentConfig struct {
	Name string `json:"name"`
}

type OracleConfig struct {
	Model              string `json:"model"`
	BaseURL            string `json:"base_url,omitempty"`
	DecideTimeoutSec   int    `json:"decide_timeout_sec"`
	FinalizeTimeoutSec int    `json:"finalize_timeout_sec"`
}

type ChatConfig struct {
	HistoryLimit     int `json:"history_limit"`
	MaxToolCalls     int `json:"max_tool_calls"`
	StoreRetryWaitMS int `json:"store_retry_wait_ms"`
}

type ServerConfig struct {
	Port      int    `json:"port"`
	CLIUserID string `json:"cli_user_id"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		Agent: AgentConfig{
			Name: "Todo Assistant",
		},
		Oracle: OracleConfig{
			Model:              "gpt-4o-mini",
			DecideTimeoutSec:   30,
			FinalizeTimeoutSec: 30,
		},
		Chat: ChatConfig{
			HistoryLimit:     40,
			MaxToolCalls:     8,
			StoreRetryWaitMS: 200,
		},
		Server: ServerConfig{
			Port:      8080,
			CLIUserID: "local_user",
		},
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Agent.Name) == "" {
		cfg.Agent.Name = "Todo Assistant"
	}
	if strings.TrimSpace(cfg.Oracle.Model) == "" {
		cfg.Oracle.Model = "gpt-4o-mini"
	}
	if cfg.Oracle.DecideTimeoutSec <= 0 {
		cfg.Oracle.DecideTimeoutSec = 30
	}
	if cfg.Oracle.FinalizeTimeoutSec <= 0 {
		cfg.Oracle.FinalizeTimeoutSec = 30
	}
	if cfg.Chat.HistoryLimit <= 0 {
		cfg.Chat.HistoryLimit = 40
	}
	if cfg.Chat.MaxToolCalls <= 0 {
		cfg.Chat.MaxToolCalls = 8
	}
	if cfg.Chat.StoreRetryWaitMS <= 0 {
		cfg.Chat.StoreRetryWaitMS = 200
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if strings.TrimSpace(cfg.Server.CLIUserID) == "" {
		cfg.Server.CLIUserID = "local_user"
	}
}
