package scanner

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/sageships/DevPorts/internal/classify"
	"github.com/sageships/DevPorts/internal/models"
	"github.com/sageships/DevPorts/internal/probe"
	"github.com/sageships/DevPorts/internal/realtime"
	"github.com/sageships/DevPorts/internal/store"
)

// Manager 驱动周期与手动触发的扫描，持有最近一次发布的结果集，
// 并承载 kill/open 等改变系统状态的动作。
type Manager struct {
	prober          probe.Prober
	policy          probe.Policy
	store           *store.Store
	broker          *realtime.Broker
	killRescanDelay time.Duration
	resolveName     func(pid int, fallback string) string

	mu      sync.RWMutex
	current []models.ListenerRecord
	closed  bool

	wg           sync.WaitGroup
	stopCh       chan struct{}
	shutdownOnce sync.Once
}

// NewManager 创建 Manager，killRescanDelay 非正时使用一秒。
func NewManager(prober probe.Prober, policy probe.Policy, st *store.Store, broker *realtime.Broker, killRescanDelay time.Duration) *Manager {
	if killRescanDelay <= 0 {
		killRescanDelay = time.Second
	}
	return &Manager{
		prober:          prober,
		policy:          policy,
		store:           st,
		broker:          broker,
		killRescanDelay: killRescanDelay,
		resolveName:     resolveProcessName,
		stopCh:          make(chan struct{}),
	}
}

// Rescan 异步触发一轮完整扫描后立即返回。
// 并发触发的扫描互不取消也不排队，最后完成者覆盖结果集。
func (m *Manager) Rescan() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.runScan()
	}()
}

func (m *Manager) runScan() {
	lines, err := m.prober.Probe(context.Background())
	if err != nil {
		// 探测失败降级为空结果集，界面呈现为"没有服务在运行"。
		log.Printf("[scanner] probe failed: %v", err)
		lines = nil
	}

	records := probe.Filter(probe.Parse(lines), m.policy)
	for i := range records {
		records[i].ProcessName = m.resolveName(records[i].Pid, records[i].ProcessName)
	}

	m.mu.Lock()
	m.current = records
	m.mu.Unlock()

	m.broker.Publish(realtime.Event{
		Type:    realtime.EventScanCompleted,
		Payload: map[string]interface{}{"count": len(records)},
	})
}

// Listeners 返回附带展示名称与图标的当前结果集。
// 分类与自定义名称在读取时合并，改名后无需等待下一轮扫描。
func (m *Manager) Listeners() []models.Listener {
	m.mu.RLock()
	records := make([]models.ListenerRecord, len(m.current))
	copy(records, m.current)
	m.mu.RUnlock()

	listeners := make([]models.Listener, 0, len(records))
	for _, r := range records {
		result := classify.Process(r.ProcessName)
		l := models.Listener{
			Port:        r.Port,
			Pid:         r.Pid,
			ProcessName: r.ProcessName,
			DisplayName: result.Label,
			Icon:        result.Icon,
		}
		if name, ok := m.store.OverrideName(r.Port); ok {
			l.DisplayName = name
			l.Overridden = true
		}
		listeners = append(listeners, l)
	}
	return listeners
}

// KillListener 向监听该端口的进程发送 SIGKILL。
// 端口不在当前结果集时返回 false；进程已退出导致的投递失败被忽略。
// 发信号后延迟重新扫描，给系统释放套接字留出时间。
func (m *Manager) KillListener(port int) bool {
	record, ok := m.lookup(port)
	if !ok {
		return false
	}

	if err := syscall.Kill(record.Pid, syscall.SIGKILL); err != nil {
		log.Printf("[scanner] kill pid=%d err=%v", record.Pid, err)
	}
	m.broker.Publish(realtime.Event{
		Type:    realtime.EventListenerKilled,
		Port:    port,
		Payload: map[string]interface{}{"pid": record.Pid},
	})

	time.AfterFunc(m.killRescanDelay, m.Rescan)
	return true
}

// OpenListener 使用系统默认处理程序打开该端口的本地回环地址。
// 不校验端口上是否真的运行着 HTTP 服务。
func (m *Manager) OpenListener(port int) {
	url := fmt.Sprintf("http://localhost:%d", port)
	if err := browser.OpenURL(url); err != nil {
		log.Printf("[scanner] open %s err=%v", url, err)
	}
	m.broker.Publish(realtime.Event{
		Type: realtime.EventListenerOpened,
		Port: port,
	})
}

// StartTicker 启动周期刷新任务。
func (m *Manager) StartTicker(interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.runScan()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Close 停止周期任务并等待在途扫描完成。
func (m *Manager) Close() {
	m.shutdownOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.stopCh)
	})
	m.wg.Wait()
}

func (m *Manager) lookup(port int) (models.ListenerRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.current {
		if r.Port == port {
			return r, true
		}
	}
	return models.ListenerRecord{}, false
}

// resolveProcessName 尝试用完整进程名替换 lsof 截断过的名称。
// 进程已退出或读取失败时保留原名。
func resolveProcessName(pid int, fallback string) string {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return fallback
	}
	name, err := proc.Name()
	if err != nil || strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
