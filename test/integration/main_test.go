//go:build integration
// +build integration

package integration

import (
	"fmt"
	"os"
	"testing"

	"github.com/nodegate/backend/test/integration/framework"
)

func TestMain(m *testing.M) {
	fmt.Println("=== Building nodegate binary ===")
	if err := framework.BuildDaemon(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to build node: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("=== Binary built at: %s ===\n", framework.BinaryPath)

	code := m.Run()

	framework.Cleanup()

	os.Exit(code)
}
