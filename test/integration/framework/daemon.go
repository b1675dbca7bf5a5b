//go:build integration
// +build integration

// TestDaemon 管理独立 nodegate 节点进程的启动与关闭
package framework

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// TestAgent 节点启动时注册的 agent
type TestAgent struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Passphrase string `yaml:"passphrase"`
}

// DefaultAgents adam 与 eve 两个测试 agent
var DefaultAgents = []TestAgent{
	{ID: "adam", Name: "Adam", Passphrase: "adam-secret"},
	{ID: "eve", Name: "Eve", Passphrase: "eve-secret"},
}

// TestDaemon 测试节点进程
type TestDaemon struct {
	Name     string // 节点 ID
	HTTPPort int    // 明文端口
	DataDir  string // 数据目录（隔离）

	agents    []TestAgent
	connector map[string]any

	cmd     *exec.Cmd
	baseURL string
}

// DaemonOption 节点配置选项
type DaemonOption func(*TestDaemon)

// WithAgents 替换默认 agent
func WithAgents(agents ...TestAgent) DaemonOption {
	return func(d *TestDaemon) { d.agents = agents }
}

// WithConnector 覆盖连接器配置项（yaml 键名）
func WithConnector(key string, value any) DaemonOption {
	return func(d *TestDaemon) { d.connector[key] = value }
}

// NewTestDaemon 创建测试节点，分配空闲端口与隔离的数据目录
func NewTestDaemon(binaryPath, name string, opts ...DaemonOption) (*TestDaemon, error) {
	httpPort, err := getFreePort()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate HTTP port: %w", err)
	}

	dataDir, err := os.MkdirTemp("", fmt.Sprintf("nodegate-test-%s-", name))
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return NewTestDaemonWithConfig(binaryPath, name, dataDir, httpPort, opts...)
}

// NewTestDaemonWithConfig 使用指定数据目录与端口创建节点（用于重启场景）
func NewTestDaemonWithConfig(binaryPath, name, dataDir string, httpPort int, opts ...DaemonOption) (*TestDaemon, error) {
	d := &TestDaemon{
		Name:      name,
		HTTPPort:  httpPort,
		DataDir:   dataDir,
		agents:    DefaultAgents,
		connector: map[string]any{},
		baseURL:   fmt.Sprintf("http://localhost:%d", httpPort),
	}
	for _, opt := range opts {
		opt(d)
	}

	configPath, err := d.writeConfig()
	if err != nil {
		return nil, err
	}

	d.cmd = exec.Command(binaryPath)
	d.cmd.Dir = dataDir
	d.cmd.Env = append(os.Environ(),
		fmt.Sprintf("NODEGATE_DATA_DIR=%s", dataDir),
		fmt.Sprintf("NODEGATE_CONFIG=%s", configPath),
		fmt.Sprintf("NODEGATE_HTTP_PORT=%d", httpPort),
		"GIN_MODE=test",
	)
	d.cmd.Stdout = os.Stdout
	d.cmd.Stderr = os.Stderr

	return d, nil
}

// writeConfig 在数据目录写入节点配置
func (d *TestDaemon) writeConfig() (string, error) {
	connector := map[string]any{
		"startHttp":          true,
		"startHttps":         false,
		"printSecExceptions": true,
	}
	for k, v := range d.connector {
		connector[k] = v
	}

	doc := map[string]any{
		"connector": connector,
		"node": map[string]any{
			"id":     d.Name,
			"agents": d.agents,
		},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(d.DataDir, "config.yaml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}

// Start 启动节点并等待就绪
func (d *TestDaemon) Start() error {
	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start node %s: %w", d.Name, err)
	}
	return d.waitForReady(30 * time.Second)
}

// Run 启动节点并等待进程自行退出，返回退出码
func (d *TestDaemon) Run(timeout time.Duration) (int, error) {
	if err := d.cmd.Start(); err != nil {
		return -1, fmt.Errorf("failed to start node %s: %w", d.Name, err)
	}

	done := make(chan error, 1)
	go func() { done <- d.cmd.Wait() }()

	select {
	case <-done:
		return d.cmd.ProcessState.ExitCode(), nil
	case <-time.After(timeout):
		_ = d.cmd.Process.Kill()
		<-done
		return -1, fmt.Errorf("node %s did not exit within %v", d.Name, timeout)
	}
}

// Stop 停止节点并清理数据目录
func (d *TestDaemon) Stop() error {
	return d.StopWithCleanup(true)
}

// StopWithCleanup 停止节点，可选择是否清理数据目录
func (d *TestDaemon) StopWithCleanup(cleanup bool) error {
	if d.cmd.Process != nil && d.cmd.ProcessState == nil {
		_ = d.cmd.Process.Signal(os.Interrupt)

		done := make(chan error, 1)
		go func() {
			done <- d.cmd.Wait()
		}()

		select {
		case <-done:
		case <-time.After(10 * time.Second):
			_ = d.cmd.Process.Kill()
			<-done
		}
	}

	if cleanup {
		return os.RemoveAll(d.DataDir)
	}
	return nil
}

// BaseURL 返回 HTTP 基础 URL
func (d *TestDaemon) BaseURL() string {
	return d.baseURL
}

// waitForReady 等待节点 health 端点就绪
func (d *TestDaemon) waitForReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}

	for time.Now().Before(deadline) {
		resp, err := client.Get(d.baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(200 * time.Millisecond)
	}

	return fmt.Errorf("node %s failed to become ready within %v", d.Name, timeout)
}

// getFreePort 获取一个空闲的 TCP 端口
func getFreePort() (int, error) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}
