package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// AppConfig 汇总运行服务所需的基础配置，全部来自环境变量。
type AppConfig struct {
	ListenAddr        string `env:"LISTEN_ADDR"`
	Port              string `env:"PORT" envDefault:"8080"`
	DatabasePath      string `env:"DATABASE_PATH" envDefault:"hibana.db"`
	SessionSecret     string `env:"SESSION_SECRET" envDefault:"hibana-dev-secret"`
	GinMode           string `env:"GIN_MODE" envDefault:"release"`
	BootstrapUserName string `env:"BOOTSTRAP_USER_NAME"`
	BootstrapPassword string `env:"BOOTSTRAP_USER_PASSWORD"`
}

// Load 解析环境变量配置，并为缺失项提供安全的默认值。
func Load() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}

	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = fmt.Sprintf(":%s", cfg.Port)
	}

	return cfg, nil
}
