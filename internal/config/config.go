package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Assistant AssistantConfig
	Recording RecordingConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	// Addr 由 Port 推导得到。
	Addr string
}

// AssistantConfig 描述模拟助手的回复节奏。
type AssistantConfig struct {
	Persona string `env:"ASSISTANT_PERSONA" envDefault:"assistant"`
	// Seed 为 0 时使用当前时间作为随机种子。
	Seed            uint64        `env:"ASSISTANT_SEED"`
	MinDelay        time.Duration `env:"ASSISTANT_MIN_DELAY" envDefault:"1s"`
	MaxDelay        time.Duration `env:"ASSISTANT_MAX_DELAY" envDefault:"3s"`
	CardProbability float64       `env:"ASSISTANT_CARD_PROBABILITY" envDefault:"0.3"`
}

// RecordingConfig 描述按住录音手势的参数。
type RecordingConfig struct {
	CancelThreshold float64       `env:"RECORDING_CANCEL_THRESHOLD" envDefault:"50"`
	TickInterval    time.Duration `env:"RECORDING_TICK_INTERVAL" envDefault:"1s"`
	// DenyMicrophone 模拟用户拒绝麦克风权限。
	DenyMicrophone bool `env:"RECORDING_DENY_MICROPHONE" envDefault:"false"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	addr, err := resolveAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveAddr 解析服务器监听地址。
func resolveAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

func (c *Config) validate() error {
	a := c.Assistant
	switch {
	case a.MinDelay < 0:
		return errors.New("ASSISTANT_MIN_DELAY must not be negative")
	case a.MaxDelay < a.MinDelay:
		return fmt.Errorf("ASSISTANT_MAX_DELAY %s is below ASSISTANT_MIN_DELAY %s", a.MaxDelay, a.MinDelay)
	case a.CardProbability < 0 || a.CardProbability > 1:
		return fmt.Errorf("ASSISTANT_CARD_PROBABILITY must be within [0,1], got %v", a.CardProbability)
	}

	r := c.Recording
	switch {
	case r.CancelThreshold <= 0:
		return fmt.Errorf("RECORDING_CANCEL_THRESHOLD must be positive, got %v", r.CancelThreshold)
	case r.TickInterval <= 0:
		return fmt.Errorf("RECORDING_TICK_INTERVAL must be positive, got %s", r.TickInterval)
	}
	return nil
}
