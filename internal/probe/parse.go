package probe

import (
	"strconv"
	"strings"

	"github.com/sageships/DevPorts/internal/models"
)

// lsof 输出至少包含 9 列：COMMAND PID USER FD TYPE DEVICE SIZE/OFF NODE NAME。
const (
	minFields    = 9
	commandField = 0
	pidField     = 1
	addressField = 8
)

// Parse 将 lsof 的原始输出行转换为结构化监听记录。
// 列数不足、PID 或端口无法解析的行被直接跳过，不会使整批失败；
// 输出顺序与输入行顺序一致。
func Parse(lines []string) []models.ListenerRecord {
	var records []models.ListenerRecord
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < minFields {
			continue
		}
		// 表头行的 PID 列是字面量 "PID"，在这里被自然过滤掉。
		pid, err := strconv.Atoi(fields[pidField])
		if err != nil {
			continue
		}
		addr := fields[addressField]
		colon := strings.LastIndexByte(addr, ':')
		if colon < 0 {
			continue
		}
		port, err := strconv.Atoi(addr[colon+1:])
		if err != nil || port < 1 || port > 65535 {
			continue
		}
		records = append(records, models.ListenerRecord{
			Port:        port,
			Pid:         pid,
			ProcessName: fields[commandField],
		})
	}
	return records
}
