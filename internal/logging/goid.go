package logging

import (
	"runtime"
	"strconv"
	"strings"
)

// GoroutineID 当前 goroutine 的 ID（从栈信息解析，仅用于日志与线程亲和判断）
func GoroutineID() int {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	fields := strings.Fields(string(buf))
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return id
}
