package log

import (
	"os"
	"strconv"
	"strings"
)

// 日志环境变量
const (
	EnvLevel     = "NODEGATE_LOG_LEVEL"
	EnvFormat    = "NODEGATE_LOG_FORMAT"
	EnvOutput    = "NODEGATE_LOG_OUTPUT"
	EnvAddSource = "NODEGATE_LOG_ADD_SOURCE"
	// EnvMode 取 development 时强制 debug 级别与源码位置
	EnvMode = "NODEGATE_ENV"
)

// Config 日志配置
// 进程日志，与连接器写入 logFile 的事件流相互独立
type Config struct {
	// Level debug, info, warn, error
	Level string `yaml:"level"`
	// Format console, text, json
	Format string `yaml:"format"`
	// Output stdout, stderr, file:/path/to/log
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"addSource"`
}

// NewConfigFromEnv 从环境变量创建配置
func NewConfigFromEnv() *Config {
	cfg := &Config{
		Level:     envOr(EnvLevel, "info"),
		Format:    envOr(EnvFormat, "console"),
		Output:    envOr(EnvOutput, "stdout"),
		AddSource: getEnvBool(EnvAddSource, false),
	}

	if strings.EqualFold(os.Getenv(EnvMode), "development") {
		cfg.Level = "debug"
		cfg.AddSource = true
	}
	return cfg
}

// outputPath file: 输出目标的文件路径，其他目标返回空串
func (c *Config) outputPath() string {
	path, ok := strings.CutPrefix(c.Output, "file:")
	if !ok {
		return ""
	}
	return path
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}
