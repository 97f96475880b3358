package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"golang.org/x/crypto/bcrypt"

	"github.com/sageships/DevPorts/internal/models"
)

// Store 封装对 SQLite 数据库的持久化访问，并在内存中
// 持有端口到自定义名称的映射。
type Store struct {
	DB *sql.DB

	mu        sync.RWMutex
	overrides map[int]string
}

// New 根据给定的 SQLite 文件路径初始化 Store。
// 自定义名称在此一次性装载，装载失败以空映射启动。
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite 更适合单写入，这里保持简单配置。

	s := &Store{DB: db, overrides: make(map[int]string)}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	s.loadOverrides()
	return s, nil
}

// Close 释放数据库资源。
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS overrides (
			port TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, stmt := range schema {
		if _, err := s.DB.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// loadOverrides 从数据库装载自定义名称。
// 键无法解析为合法端口的行被静默丢弃；查询失败只记录日志，
// 本会话退化为纯内存映射。
func (s *Store) loadOverrides() {
	rows, err := s.DB.Query(`SELECT port, name FROM overrides`)
	if err != nil {
		log.Printf("[store] load overrides: %v", err)
		return
	}
	defer rows.Close()

	loaded := make(map[int]string)
	for rows.Next() {
		var key, name string
		if err := rows.Scan(&key, &name); err != nil {
			continue
		}
		port, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || port < 1 || port > 65535 {
			continue
		}
		if name == "" {
			continue
		}
		loaded[port] = name
	}
	if err := rows.Err(); err != nil {
		log.Printf("[store] load overrides: %v", err)
		return
	}

	s.mu.Lock()
	s.overrides = loaded
	s.mu.Unlock()
}

// OverrideName 返回端口的自定义名称，不存在时第二个返回值为 false。
func (s *Store) OverrideName(port int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.overrides[port]
	return name, ok
}

// Overrides 返回当前全部自定义名称的副本。
func (s *Store) Overrides() map[int]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]string, len(s.overrides))
	for port, name := range s.overrides {
		out[port] = name
	}
	return out
}

// SetOverrideName 更新或清除端口的自定义名称并同步写库。
// 空名称等价于删除；写库失败只记录日志，内存中的修改仍然生效。
func (s *Store) SetOverrideName(ctx context.Context, port int, name string) {
	name = strings.TrimSpace(name)

	s.mu.Lock()
	if name == "" {
		delete(s.overrides, port)
	} else {
		s.overrides[port] = name
	}
	s.mu.Unlock()

	key := strconv.Itoa(port)
	var err error
	if name == "" {
		_, err = s.DB.ExecContext(ctx, `DELETE FROM overrides WHERE port = ?`, key)
	} else {
		_, err = s.DB.ExecContext(ctx,
			`INSERT INTO overrides (port, name) VALUES (?, ?)
			ON CONFLICT(port) DO UPDATE SET name = excluded.name, updated_at = CURRENT_TIMESTAMP`,
			key, name,
		)
	}
	if err != nil {
		log.Printf("[store] persist override port=%d err=%v", port, err)
	}
}

// EnsureAdmin 根据给定凭证创建或更新管理员账号，确保其存在。
func (s *Store) EnsureAdmin(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var existingID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&existingID)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (username, password_hash) VALUES (?, ?)`, username, string(hash)); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
	} else if err == nil {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = ?, created_at = CURRENT_TIMESTAMP WHERE id = ?`, string(hash), existingID); err != nil {
			return fmt.Errorf("update admin: %w", err)
		}
	} else {
		return err
	}

	return tx.Commit()
}

// Authenticate 校验登录凭证，成功时返回用户信息。
func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.DB.QueryRowContext(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("invalid credentials")
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errors.New("invalid credentials")
	}
	return &user, nil
}
