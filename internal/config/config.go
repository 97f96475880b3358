package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 汇总 devportsd 运行时所需的全部配置。
type Config struct {
	Addr                 string
	AdminUser            string
	AdminPassword        string
	SessionKey           []byte
	CSRFKey              []byte
	DBPath               string
	RefreshInterval      time.Duration
	ProbeTimeout         time.Duration
	KillRescanDelay      time.Duration
	AllowedPorts         []int
	ExcludedProcessNames []string
}

// 常见开发服务器使用的端口，可通过 DEVPORTS_ALLOWED_PORTS 覆盖。
var defaultAllowedPorts = []int{
	1313,
	3000, 3001, 3002, 3003, 3004, 3005,
	4000, 4200, 4321,
	5000, 5173, 5174, 5175,
	6006,
	8000, 8080, 8081, 8787, 8888,
	9000,
}

// 默认排除的 macOS 系统服务，它们会占用 AirPlay 等常见端口。
var defaultExcludedProcesses = []string{
	"ControlCe",
	"rapportd",
	"sharingd",
	"AirPlayXPCHelper",
}

// Load 从环境变量构建配置，并提供合理的默认值。
func Load() (*Config, error) {
	cfg := &Config{
		Addr:                 getenv("DEVPORTS_HTTP_ADDR", "127.0.0.1:4680"),
		AdminUser:            getenv("DEVPORTS_ADMIN_USER", "admin"),
		AdminPassword:        getenv("DEVPORTS_ADMIN_PASS", "devports123"),
		SessionKey:           []byte(getenv("DEVPORTS_SESSION_KEY", "0123456789abcdef0123456789abcdef")),
		CSRFKey:              []byte(getenv("DEVPORTS_CSRF_KEY", "abcdef0123456789abcdef0123456789")),
		DBPath:               getenv("DEVPORTS_DB_PATH", "data/devports.db"),
		RefreshInterval:      durationEnv("DEVPORTS_REFRESH_INTERVAL", 5*time.Second),
		ProbeTimeout:         durationEnv("DEVPORTS_PROBE_TIMEOUT", 10*time.Second),
		KillRescanDelay:      durationEnv("DEVPORTS_KILL_RESCAN_DELAY", time.Second),
		AllowedPorts:         portsEnv("DEVPORTS_ALLOWED_PORTS", defaultAllowedPorts),
		ExcludedProcessNames: listEnv("DEVPORTS_EXCLUDED_PROCESSES", defaultExcludedProcesses),
	}

	if len(cfg.SessionKey) < 32 {
		return nil, fmt.Errorf("session key must be at least 32 bytes, got %d", len(cfg.SessionKey))
	}
	if len(cfg.CSRFKey) < 32 {
		return nil, fmt.Errorf("csrf key must be at least 32 bytes, got %d", len(cfg.CSRFKey))
	}
	if cfg.AdminUser == "" || cfg.AdminPassword == "" {
		return nil, fmt.Errorf("admin credentials must not be empty")
	}
	if cfg.RefreshInterval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive")
	}
	if len(cfg.AllowedPorts) == 0 {
		return nil, fmt.Errorf("allowed port list must not be empty")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

// portsEnv 解析逗号分隔的端口列表，非法项被忽略；
// 全部非法时退回默认值。
func portsEnv(key string, fallback []int) []int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	var ports []int
	for _, item := range strings.Split(val, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(item))
		if err != nil || n < 1 || n > 65535 {
			continue
		}
		ports = append(ports, n)
	}
	if len(ports) == 0 {
		return fallback
	}
	return ports
}

func listEnv(key string, fallback []string) []string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(val, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
