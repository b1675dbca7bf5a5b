package singleton

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"syscall"
	"time"
)

// HealthCheckTimeout 健康检查超时时间
const HealthCheckTimeout = 2 * time.Second

// ErrPortBusy 端口被其他进程占用，且不是健康的节点
var ErrPortBusy = errors.New("port is in use and no healthy node answers on it")

// Instance 已在端口上运行的节点
type Instance struct {
	NodeID   string `json:"node_id"`
	Protocol string `json:"protocol"`
}

// CheckPort 启动前检查明文端口
// 端口空闲返回 nil, nil；已有节点在运行返回其信息，调用方应退出；
// 端口被其他进程占用返回 ErrPortBusy
func CheckPort(host string, port int) (*Instance, error) {
	if port == 0 {
		return nil, nil
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	l, err := net.Listen("tcp", addr)
	if err == nil {
		_ = l.Close()
		return nil, nil
	}
	if !isAddrInUse(err) {
		return nil, fmt.Errorf("failed to probe %s: %w", addr, err)
	}

	probeHost := host
	if probeHost == "" || probeHost == "0.0.0.0" || probeHost == "::" {
		probeHost = "localhost"
	}
	inst, ok := runningInstance(net.JoinHostPort(probeHost, strconv.Itoa(port)))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPortBusy, addr)
	}
	return inst, nil
}

// isAddrInUse 检查错误是否是地址已在使用
func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if !errors.As(err, &opErr) {
		return false
	}
	var sysErr *os.SyscallError
	if !errors.As(opErr.Err, &sysErr) {
		return false
	}

	// Windows: WSAEADDRINUSE (10048)
	// Linux/Unix: EADDRINUSE
	var errno syscall.Errno
	if errors.As(sysErr.Err, &errno) {
		return errno == 10048 || errno == syscall.EADDRINUSE
	}
	return false
}

// runningInstance 通过 /health 确认端口上是节点并取出节点 ID
func runningInstance(hostPort string) (*Instance, bool) {
	client := &http.Client{
		Timeout: HealthCheckTimeout,
	}

	resp, err := client.Get("http://" + hostPort + "/health")
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var inst Instance
	if err := json.NewDecoder(resp.Body).Decode(&inst); err != nil || inst.NodeID == "" {
		return nil, false
	}
	return &inst, true
}
