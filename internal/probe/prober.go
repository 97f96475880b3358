package probe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Prober 抽象系统的套接字列举工具，便于测试中以假数据替换。
type Prober interface {
	Probe(ctx context.Context) ([]string, error)
}

// LsofProber 通过 lsof 列出处于 LISTEN 状态的 TCP 套接字。
type LsofProber struct {
	Timeout time.Duration
}

// Probe 执行 lsof 并按行返回其标准输出。
// -n/-P 禁用主机名与端口名解析，stderr 丢弃到空设备。
// 工具无法启动或异常退出时返回错误，由调用方降级为空结果。
func (p LsofProber) Probe(ctx context.Context) ([]string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "lsof", "-iTCP", "-sTCP:LISTEN", "-n", "-P")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.Discard

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run lsof: %w", err)
	}
	return strings.Split(stdout.String(), "\n"), nil
}
