package config

import (
	"os"
	"path/filepath"
	"sync"
)

const (
	// EnvDataDir 数据目录环境变量名
	EnvDataDir = "NODEGATE_DATA_DIR"
	// DefaultDataDirName 默认数据目录名
	DefaultDataDirName = ".nodegate"
	// DefaultDatabaseName 默认 sqlite 文件名
	DefaultDatabaseName = "nodegate.db"
)

var (
	dataDirOnce sync.Once
	dataDirPath string
)

// GetDataDir 获取节点数据根目录
// 优先读取 NODEGATE_DATA_DIR，默认 ~/.nodegate/
func GetDataDir() string {
	dataDirOnce.Do(func() {
		if dir := os.Getenv(EnvDataDir); dir != "" {
			dataDirPath = dir
			return
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			dataDirPath = DefaultDataDirName
			return
		}
		dataDirPath = filepath.Join(homeDir, DefaultDataDirName)
	})
	return dataDirPath
}

// ResetDataDir 重置数据目录缓存（仅用于测试）
func ResetDataDir() {
	dataDirOnce = sync.Once{}
	dataDirPath = ""
}

// DatabasePath 返回持久会话数据库路径
func (c *DatabaseConfig) DatabasePath() string {
	if c != nil && c.Path != "" {
		return c.Path
	}
	return filepath.Join(GetDataDir(), DefaultDatabaseName)
}
