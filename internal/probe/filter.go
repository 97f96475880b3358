package probe

import (
	"sort"

	"github.com/sageships/DevPorts/internal/models"
)

// InitProcessName 是系统初始进程，无论配置如何都会被排除。
const InitProcessName = "launchd"

// Policy 描述一次过滤所使用的端口允许集与进程排除集。
type Policy struct {
	AllowedPorts  map[int]struct{}
	ExcludedNames map[string]struct{}
}

// NewPolicy 由配置中的切片构建 Policy。
func NewPolicy(ports []int, names []string) Policy {
	p := Policy{
		AllowedPorts:  make(map[int]struct{}, len(ports)),
		ExcludedNames: make(map[string]struct{}, len(names)),
	}
	for _, port := range ports {
		p.AllowedPorts[port] = struct{}{}
	}
	for _, name := range names {
		p.ExcludedNames[name] = struct{}{}
	}
	return p
}

// Filter 应用允许/排除规则并按端口去重。
// 同一端口只保留扫描顺序中首个出现的记录，结果按端口升序排序。
func Filter(records []models.ListenerRecord, policy Policy) []models.ListenerRecord {
	seen := make(map[int]struct{}, len(records))
	var out []models.ListenerRecord
	for _, r := range records {
		if r.ProcessName == InitProcessName {
			continue
		}
		if _, excluded := policy.ExcludedNames[r.ProcessName]; excluded {
			continue
		}
		if _, allowed := policy.AllowedPorts[r.Port]; !allowed {
			continue
		}
		if _, dup := seen[r.Port]; dup {
			continue
		}
		seen[r.Port] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}
