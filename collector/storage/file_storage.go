package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio/v2"

	"v2scrape/internal/shared/logger"
)

const (
	ProtocolSubdir = "protocols"
	CountrySubdir  = "countries"
)

// FileStorage 把分类后的配置写入 <root>/protocols 和 <root>/countries 下的纯文本文件。
type FileStorage struct {
	root string
	mu   sync.Mutex
}

// NewFileStorage 创建一个新的 FileStorage 实例。
func NewFileStorage(root string) *FileStorage {
	return &FileStorage{root: root}
}

func (fs *FileStorage) Root() string        { return fs.root }
func (fs *FileStorage) ProtocolDir() string { return filepath.Join(fs.root, ProtocolSubdir) }
func (fs *FileStorage) CountryDir() string  { return filepath.Join(fs.root, CountrySubdir) }

// Reset 删除并重建两个输出子目录，上一次运行留下的分类文件不会残留。
func (fs *FileStorage) Reset() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	l := logger.WithComponent("Collector/Storage")
	for _, dir := range []string{fs.ProtocolDir(), fs.CountryDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	l.Debug().Str("root", fs.root).Msg("Output directories reset.")
	return nil
}

// Save 将一个类别的链接写入 <dir>/<category>.txt。
// 链接去重后排序，每行一条并以换行结尾，通过 renameio 原子替换。
// 集合为空时不写文件，返回空路径。
func (fs *FileStorage) Save(dir, category string, links []string) (string, int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	l := logger.WithComponent("Collector/Storage")

	unique := make(map[string]struct{}, len(links))
	for _, link := range links {
		if link = strings.TrimSpace(link); link != "" {
			unique[link] = struct{}{}
		}
	}
	if len(unique) == 0 {
		return "", 0, nil
	}

	sorted := make([]string, 0, len(unique))
	for link := range unique {
		sorted = append(sorted, link)
	}
	sort.Strings(sorted)

	var sb strings.Builder
	for _, link := range sorted {
		sb.WriteString(link)
		sb.WriteString("\n")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName(category))

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0644))
	if err != nil {
		return "", 0, fmt.Errorf("create pending file %s: %w", path, err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			l.Debug().Err(err).Str("path", path).Msg("cleanup pending file")
		}
	}()

	if _, err := pendingFile.WriteString(sb.String()); err != nil {
		return "", 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return "", 0, fmt.Errorf("atomically replace %s: %w", path, err)
	}

	l.Debug().Str("path", path).Int("count", len(sorted)).Msg("Saved category file.")
	return path, len(sorted), nil
}

// FileName 返回类别对应的文件名，路径分隔符会被替换掉。
func FileName(category string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "\x00", "")
	return r.Replace(category) + ".txt"
}
