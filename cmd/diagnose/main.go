package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nodegate/backend/internal/client"
	"github.com/nodegate/backend/internal/infrastructure/p2p"
	"github.com/nodegate/backend/internal/infrastructure/storage"
)

func usage() {
	fmt.Println("用法:")
	fmt.Println("  diagnose --discover [秒数]                                  - 发现局域网内的连接器")
	fmt.Println("  diagnose --db <数据库路径>                                   - 列出持久会话")
	fmt.Println("  diagnose --call <地址> <agent> <密码> <服务> <方法> [参数...] - 调用一次服务方法")
	fmt.Println("")
	fmt.Println("示例:")
	fmt.Println("  diagnose --discover 3")
	fmt.Println("  diagnose --db ~/.nodegate/nodegate.db")
	fmt.Println("  diagnose --call http://127.0.0.1:8080 adam adamspass nodegate.testing.EnvelopeService getEnvelopeString")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "--discover":
		timeout := 3 * time.Second
		if len(os.Args) > 2 {
			secs, err := strconv.Atoi(os.Args[2])
			if err != nil || secs <= 0 {
				fmt.Println("错误: 秒数必须是正整数")
				os.Exit(1)
			}
			timeout = time.Duration(secs) * time.Second
		}
		discover(timeout)
	case "--db":
		if len(os.Args) < 3 {
			fmt.Println("错误: 请提供数据库路径")
			os.Exit(1)
		}
		listSessions(os.Args[2])
	case "--call":
		if len(os.Args) < 7 {
			fmt.Println("错误: 参数不足")
			usage()
		}
		params := make([]any, 0, len(os.Args)-7)
		for _, p := range os.Args[7:] {
			params = append(params, p)
		}
		call(os.Args[2], os.Args[3], os.Args[4], os.Args[5], os.Args[6], params)
	default:
		usage()
	}
}

func discover(timeout time.Duration) {
	fmt.Printf("发现连接器（等待 %s）\n", timeout)
	fmt.Println(strings.Repeat("=", 80))

	found, err := p2p.NewMDNSDiscovery().DiscoverConnectors(context.Background(), timeout)
	if err != nil {
		log.Fatalf("发现失败: %v", err)
	}
	if len(found) == 0 {
		fmt.Println("❌ 未发现任何连接器")
		return
	}
	for i, c := range found {
		fmt.Printf("[%d] 节点 %s\n", i+1, c.NodeID)
		fmt.Printf("    地址: %s\n", c.URL())
		if c.Version != "" {
			fmt.Printf("    版本: %s\n", c.Version)
		}
	}
	fmt.Printf("\n✅ 共发现 %d 个监听器\n", len(found))
}

func listSessions(dbPath string) {
	fmt.Printf("数据库: %s\n", dbPath)
	fmt.Println(strings.Repeat("=", 80))

	db, err := storage.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("无法打开数据库: %v", err)
	}
	defer db.Close()

	sessions, err := storage.NewSessionRepository(db).LoadAll(context.Background())
	if err != nil {
		log.Fatalf("无法读取会话: %v", err)
	}
	if len(sessions) == 0 {
		fmt.Println("没有持久会话")
		return
	}

	now := time.Now()
	for i, s := range sessions {
		status := "✅ 有效"
		if s.Expired(now) {
			status = "❌ 已过期"
		}
		fmt.Printf("[%d] %s  agent=%s  超时=%dms  最后访问=%s  %s\n",
			i+1, s.ID, s.AgentID, s.TimeoutMS, s.LastAccess.Format(time.RFC3339), status)
	}
}

func call(baseURL, agentID, passphrase, service, method string, params []any) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := client.New(baseURL, agentID, passphrase)
	result, err := c.Invoke(ctx, service, method, params...)
	if err != nil {
		fmt.Printf("❌ 调用失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Disconnect(ctx) }()

	fmt.Printf("✅ 结果: %v\n", result)
}
