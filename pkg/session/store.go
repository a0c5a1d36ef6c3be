package session

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fwpanel/fwctl/pkg/config"
	"github.com/fwpanel/fwctl/pkg/utils"
	_ "modernc.org/sqlite"
)

// tokenKey 令牌的固定存储键
const tokenKey = "token"

// TokenStore 令牌持久化接口，令牌不记录过期时间
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// NewStore 根据配置创建令牌存储
func NewStore(cfg config.SessionConfig) (TokenStore, error) {
	switch cfg.Store {
	case "", "file":
		return NewFileStore(cfg.Path), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("不支持的令牌存储类型: %s", cfg.Store)
	}
}

// FileStore 基于文件的令牌存储，文件权限0600
type FileStore struct {
	path  string
	files *utils.FileUtils
}

// NewFileStore 创建文件令牌存储
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:  path,
		files: utils.NewFileUtils("session"),
	}
}

// Load 读取令牌，文件不存在时返回空字符串
func (s *FileStore) Load() (string, error) {
	return s.files.ReadFileTrimmed(s.path)
}

// Save 写入令牌
func (s *FileStore) Save(token string) error {
	return s.files.WriteFileAtomic(s.path, []byte(token+"\n"), 0600)
}

// Clear 删除令牌文件
func (s *FileStore) Clear() error {
	return s.files.RemoveFileIfExists(s.path)
}

// SQLiteStore 基于SQLite键值表的令牌存储
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore 打开或创建SQLite令牌存储
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := utils.NewFileUtils("session").EnsureDirectory(filepath.Dir(path), 0700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开会话数据库失败: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("创建会话表失败: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load 读取令牌，不存在时返回空字符串
func (s *SQLiteStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var token string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, tokenKey).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("读取令牌失败: %w", err)
	}
	return token, nil
}

// Save 写入令牌
func (s *SQLiteStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, tokenKey, token)
	if err != nil {
		return fmt.Errorf("保存令牌失败: %w", err)
	}
	return nil
}

// Clear 删除令牌
func (s *SQLiteStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, tokenKey); err != nil {
		return fmt.Errorf("清除令牌失败: %w", err)
	}
	return nil
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
