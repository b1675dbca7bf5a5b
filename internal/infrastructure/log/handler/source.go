package handler

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// source 调用位置，只保留文件名
func source(pc uintptr) string {
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}
