package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fwpanel/fwctl/pkg/logger"
	"github.com/sirupsen/logrus"
)

// FileUtils 文件操作工具
type FileUtils struct {
	logger *logrus.Entry
}

// NewFileUtils 创建文件操作工具实例
func NewFileUtils(component string) *FileUtils {
	return &FileUtils{
		logger: logger.GetComponentLogger(component),
	}
}

// EnsureDirectory 确保目录存在，如果不存在则创建
func (f *FileUtils) EnsureDirectory(dirPath string, perm os.FileMode) error {
	if err := os.MkdirAll(dirPath, perm); err != nil {
		logger.LogError(err, "创建目录失败", logrus.Fields{
			"directory": dirPath,
			"perm":      perm,
		})
		return fmt.Errorf("创建目录失败: %w", err)
	}
	return nil
}

// WriteFileAtomic 原子写入文件：先写临时文件再重命名，避免留下半截内容
func (f *FileUtils) WriteFileAtomic(filePath string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filePath)
	if err := f.EnsureDirectory(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}

	if err := os.Rename(tmpName, filePath); err != nil {
		logger.LogError(err, "写入文件失败", logrus.Fields{
			"file_path": filePath,
		})
		return fmt.Errorf("写入文件失败: %w", err)
	}

	f.logger.WithFields(logrus.Fields{
		"file_path": filePath,
		"size":      len(data),
	}).Debug("文件写入成功")

	return nil
}

// ReadFileTrimmed 读取文件并去掉首尾空白，文件不存在时返回空字符串
func (f *FileUtils) ReadFileTrimmed(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// FileExists 检查文件是否存在
func (f *FileUtils) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}

// RemoveFileIfExists 如果文件存在则删除
func (f *FileUtils) RemoveFileIfExists(filePath string) error {
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		logger.LogError(err, "删除文件失败", logrus.Fields{
			"file_path": filePath,
		})
		return fmt.Errorf("删除文件失败: %w", err)
	}

	f.logger.WithField("file_path", filePath).Debug("文件已删除")
	return nil
}
