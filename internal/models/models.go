package models

import "time"

// User 表示已认证的账户信息。
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ListenerRecord 表示单次扫描中解析出的一个原始监听套接字。
// 每轮扫描整体重建，Pid 仅在扫描瞬间有效。
type ListenerRecord struct {
	Port        int    `json:"port"`
	Pid         int    `json:"pid"`
	ProcessName string `json:"processName"`
}

// Listener 是合并分类结果与自定义名称之后的展示条目。
type Listener struct {
	Port        int    `json:"port"`
	Pid         int    `json:"pid"`
	ProcessName string `json:"processName"`
	DisplayName string `json:"displayName"`
	Icon        string `json:"icon"`
	Overridden  bool   `json:"overridden"`
}
