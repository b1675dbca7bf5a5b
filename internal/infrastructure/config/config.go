package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath 配置文件路径环境变量名
	EnvConfigPath = "NODEGATE_CONFIG"
	// EnvHTTPPort 明文监听端口环境变量名
	EnvHTTPPort = "NODEGATE_HTTP_PORT"
	// EnvHTTPSPort 加密监听端口环境变量名
	EnvHTTPSPort = "NODEGATE_HTTPS_PORT"
	// DefaultConfigPath 默认配置文件路径
	DefaultConfigPath = "config.yaml"
)

// Config 应用配置
type Config struct {
	Connector ConnectorConfig `yaml:"connector"`
	Node      NodeConfig      `yaml:"node"`
	Database  DatabaseConfig  `yaml:"database"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// ConnectorConfig HTTP 连接器配置
// 启动后不可变：连接器在 Start 时复制一份快照
type ConnectorConfig struct {
	HTTPPort   int  `yaml:"httpPort"`
	HTTPSPort  int  `yaml:"httpsPort"`
	StartHTTP  bool `yaml:"startHttp"`
	StartHTTPS bool `yaml:"startHttps"`

	// SSLKeystore PKCS#12 文件，或包含 cert.pem/key.pem 的目录
	SSLKeystore  string `yaml:"sslKeystore"`
	SSLKeyPasswd string `yaml:"sslKeyPasswd"`

	EnableFileAccess bool   `yaml:"enableFileAccess"`
	FileDirectory    string `yaml:"fileDirectory"`

	// MaxSessionTimeoutMS 默认值 30*60*60*1000（约 30 小时），保持原数值
	MinSessionTimeoutMS     int64 `yaml:"minSessionTimeoutMs"`
	MaxSessionTimeoutMS     int64 `yaml:"maxSessionTimeoutMs"`
	DefaultSessionTimeoutMS int64 `yaml:"defaultSessionTimeoutMs"`

	MinPersistentTimeoutMS     int64 `yaml:"minPersistentTimeoutMs"`
	MaxPersistentTimeoutMS     int64 `yaml:"maxPersistentTimeoutMs"`
	DefaultPersistentTimeoutMS int64 `yaml:"defaultPersistentTimeoutMs"`

	PrintSecExceptions bool  `yaml:"printSecExceptions"`
	SocketTimeoutMS    int64 `yaml:"socketTimeoutMs"`

	CrossOriginResourceDomain string `yaml:"crossOriginResourceDomain"`
	CrossOriginResourceMaxAge int    `yaml:"crossOriginResourceMaxAge"`
	EnableCORS                bool   `yaml:"enableCORS"`

	PreferLocalServices bool   `yaml:"preferLocalServices"`
	LogFile             string `yaml:"logFile"`

	HandlerAttachTimeoutMS int64 `yaml:"handlerAttachTimeoutMs"`
	SessionSweepIntervalMS int64 `yaml:"sessionSweepIntervalMs"`
	ShutdownTimeoutMS      int64 `yaml:"shutdownTimeoutMs"`

	// MaxRequestBodyBytes 单个请求体上限，超出返回 413
	MaxRequestBodyBytes int64 `yaml:"maxRequestBodyBytes"`

	// Advertise 通过 mDNS 在局域网广播已启动的监听器
	Advertise bool `yaml:"advertise"`
	// EnableMCP 在明文监听器上开放 /mcp/sse 管理端点
	EnableMCP bool `yaml:"enableMcp"`
}

// NodeConfig 本地节点配置
type NodeConfig struct {
	// ID 节点 ID，留空时启动时生成
	ID string `yaml:"id"`
	// Agents 启动时注册的 agent（密码以 bcrypt 哈希存储）
	Agents []AgentConfig `yaml:"agents"`
}

// AgentConfig agent 配置
type AgentConfig struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Passphrase string `yaml:"passphrase"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Path sqlite 文件路径，留空表示 <data dir>/nodegate.db
	Path string `yaml:"path"`
}

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	ReadBufferSize  int `yaml:"readBufferSize"`
	WriteBufferSize int `yaml:"writeBufferSize"`
}

// NewConfig 创建配置（默认值 + 环境变量覆盖）
func NewConfig() *Config {
	cfg := &Config{
		Connector: DefaultConnectorConfig(),
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	cfg.applyEnv()
	return cfg
}

// DefaultConnectorConfig 连接器默认配置
func DefaultConnectorConfig() ConnectorConfig {
	return ConnectorConfig{
		HTTPPort:   8080,
		HTTPSPort:  8090,
		StartHTTP:  true,
		StartHTTPS: false,

		SSLKeystore:  "keys/ssl",
		SSLKeyPasswd: "123456",

		EnableFileAccess: false,
		FileDirectory:    "./htdocs",

		MinSessionTimeoutMS:     30 * 1000,
		MaxSessionTimeoutMS:     30 * 60 * 60 * 1000,
		DefaultSessionTimeoutMS: 10 * 60 * 60 * 1000,

		MinPersistentTimeoutMS:     60 * 60 * 1000,
		MaxPersistentTimeoutMS:     60 * 60 * 1000,
		DefaultPersistentTimeoutMS: 60 * 60 * 24 * 1000,

		PrintSecExceptions: false,
		SocketTimeoutMS:    60 * 1000,

		CrossOriginResourceDomain: "",
		CrossOriginResourceMaxAge: 60,
		EnableCORS:                false,

		PreferLocalServices: true,
		LogFile:             "log/httpConnector.log",

		HandlerAttachTimeoutMS: 10 * 1000,
		SessionSweepIntervalMS: 10 * 1000,
		ShutdownTimeoutMS:      5 * 1000,

		MaxRequestBodyBytes: 4 << 20,
	}
}

// Load 从 yaml 文件加载配置，文件不存在时使用默认值
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// 环境变量优先级高于文件
	cfg.applyEnv()

	if err := cfg.Connector.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv 按 NODEGATE_CONFIG 加载配置
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	return Load(path)
}

// applyEnv 应用环境变量覆盖
func (c *Config) applyEnv() {
	if port, ok := envPort(EnvHTTPPort); ok {
		c.Connector.HTTPPort = port
	}
	if port, ok := envPort(EnvHTTPSPort); ok {
		c.Connector.HTTPSPort = port
	}
}

func envPort(key string) (int, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return port, true
}

// Validate 校验超时上下界、后台周期与请求体上限
func (c ConnectorConfig) Validate() error {
	for _, d := range []struct {
		key string
		v   int64
	}{
		{"sessionSweepIntervalMs", c.SessionSweepIntervalMS},
		{"handlerAttachTimeoutMs", c.HandlerAttachTimeoutMS},
		{"shutdownTimeoutMs", c.ShutdownTimeoutMS},
		{"maxRequestBodyBytes", c.MaxRequestBodyBytes},
	} {
		if d.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", d.key, d.v)
		}
	}
	if c.MinSessionTimeoutMS > c.MaxSessionTimeoutMS {
		return fmt.Errorf("minSessionTimeoutMs (%d) exceeds maxSessionTimeoutMs (%d)",
			c.MinSessionTimeoutMS, c.MaxSessionTimeoutMS)
	}
	if c.MinPersistentTimeoutMS > c.MaxPersistentTimeoutMS {
		return fmt.Errorf("minPersistentTimeoutMs (%d) exceeds maxPersistentTimeoutMs (%d)",
			c.MinPersistentTimeoutMS, c.MaxPersistentTimeoutMS)
	}
	return nil
}

// SocketTimeout 单连接空闲超时
func (c ConnectorConfig) SocketTimeout() time.Duration {
	return time.Duration(c.SocketTimeoutMS) * time.Millisecond
}

// HandlerAttachTimeout 等待监听器处理器就绪的上限
func (c ConnectorConfig) HandlerAttachTimeout() time.Duration {
	return time.Duration(c.HandlerAttachTimeoutMS) * time.Millisecond
}

// SessionSweepInterval 过期会话清理间隔
func (c ConnectorConfig) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepIntervalMS) * time.Millisecond
}

// ShutdownTimeout 优雅关闭等待上限
func (c ConnectorConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// NewConnectorConfig 提供连接器配置
func NewConnectorConfig(cfg *Config) *ConnectorConfig {
	return &cfg.Connector
}

// NewNodeConfig 提供节点配置
func NewNodeConfig(cfg *Config) *NodeConfig {
	return &cfg.Node
}

// NewDatabaseConfig 提供数据库配置
func NewDatabaseConfig(cfg *Config) *DatabaseConfig {
	return &cfg.Database
}

// NewWebSocketConfig 提供 WebSocket 配置
func NewWebSocketConfig(cfg *Config) *WebSocketConfig {
	return &cfg.WebSocket
}
