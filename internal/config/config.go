package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Analysis AnalysisConfig
	Ark      ArkConfig
	Chat     ChatConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	addr, err := listenAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	Addr           string
}

// StoreConfig 描述会话存储配置。
type StoreConfig struct {
	Driver      string `env:"STORE_DRIVER" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"onboard.db"`
	AutoMigrate bool   `env:"STORE_AUTO_MIGRATE" envDefault:"true"`
}

// AnalysisConfig 描述网站分析服务配置。
type AnalysisConfig struct {
	BaseURL      string        `env:"ANALYSIS_BASE_URL"`
	Token        string        `env:"ANALYSIS_TOKEN"`
	Timeout      time.Duration `env:"ANALYSIS_TIMEOUT" envDefault:"20s"`
	ProbeTimeout time.Duration `env:"WEBSITE_PROBE_TIMEOUT" envDefault:"10s"`
	Rate         float64       `env:"ANALYSIS_RATE" envDefault:"2"`
	Burst        int           `env:"ANALYSIS_BURST" envDefault:"4"`
}

// Enabled 表示是否配置了远程分析服务。
func (c AnalysisConfig) Enabled() bool {
	return strings.TrimSpace(c.BaseURL) != ""
}

// ArkConfig 描述大模型相关配置，仅在未配置远程分析服务时使用。
type ArkConfig struct {
	APIKey      string   `env:"ARK_API_KEY"`
	AccessKey   string   `env:"ARK_ACCESS_KEY"`
	SecretKey   string   `env:"ARK_SECRET_KEY"`
	Model       string   `env:"ARK_MODEL"`
	BaseURL     string   `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region      string   `env:"ARK_REGION" envDefault:"cn-beijing"`
	Temperature *float64 `env:"ARK_TEMPERATURE"`
	MaxTokens   *int     `env:"ARK_MAX_TOKENS"`
}

// ChatConfig 控制对话节奏与会话回收。
type ChatConfig struct {
	MessageDelay   time.Duration `env:"CHAT_MESSAGE_DELAY" envDefault:"800ms"`
	SessionIdleTTL time.Duration `env:"CHAT_SESSION_IDLE_TTL" envDefault:"30m"`
	SweepInterval  time.Duration `env:"CHAT_SWEEP_INTERVAL" envDefault:"1m"`
}

// LogConfig 描述日志配置。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_MODEL with ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER value %q", c.Store.Driver)
	}

	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("invalid ANALYSIS_TIMEOUT value %s", c.Analysis.Timeout)
	}
	if c.Analysis.ProbeTimeout <= 0 {
		return fmt.Errorf("invalid WEBSITE_PROBE_TIMEOUT value %s", c.Analysis.ProbeTimeout)
	}
	if c.Chat.MessageDelay < 0 {
		return fmt.Errorf("invalid CHAT_MESSAGE_DELAY value %s", c.Chat.MessageDelay)
	}
	return nil
}

// listenAddr 解析服务器监听地址。
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	return ":" + port, nil
}
