package storage

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bl4ck0w1/shadowscan/pkg/models"
)

// LocalStorage keeps JSON snapshots of finished scans under
// <baseDir>/results/<domain>/.
type LocalStorage struct {
	baseDir     string
	logger      *logrus.Logger
	mu          sync.RWMutex
	compression bool
	retention   time.Duration
}

func NewLocalStorage(baseDir string, compression bool, retention time.Duration, logger *logrus.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "results"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &LocalStorage{
		baseDir:     baseDir,
		logger:      logger,
		compression: compression,
		retention:   retention,
	}, nil
}

// SaveResult writes result atomically and returns the final path.
func (ls *LocalStorage) SaveResult(result *models.ScanResult) (string, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	resultDir := filepath.Join(ls.baseDir, "results", safeName(result.Summary.Domain))
	if err := os.MkdirAll(resultDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create result directory: %w", err)
	}

	stamp := result.Summary.EndTime
	if stamp.IsZero() {
		stamp = time.Now()
	}
	base := "scan_" + stamp.Format("20060102_150405")
	finalPath := filepath.Join(resultDir, base+".json")
	for n := 2; pathTaken(finalPath); n++ {
		finalPath = filepath.Join(resultDir, fmt.Sprintf("%s_%d.json", base, n))
	}

	if err := writeAtomic(resultDir, finalPath, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}); err != nil {
		return "", err
	}

	savedPath := finalPath
	if ls.compression {
		if err := compressFile(finalPath); err != nil {
			ls.logger.Warnf("Failed to compress result file: %v", err)
		} else {
			_ = os.Remove(finalPath)
			savedPath = finalPath + ".gz"
		}
	}

	ls.logger.Infof("Result saved to %s", savedPath)
	if ls.retention > 0 {
		ls.prune(time.Now().Add(-ls.retention))
	}
	return savedPath, nil
}

// LoadResult reads a snapshot, transparently decompressing .gz files.
func (ls *LocalStorage) LoadResult(path string) (*models.ScanResult, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return readResultFile(path)
}

// ListResults returns the snapshots for domain, newest first. An empty domain
// lists every domain.
func (ls *LocalStorage) ListResults(domain string) ([]*models.ScanResult, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	root := filepath.Join(ls.baseDir, "results")
	if domain != "" {
		root = filepath.Join(root, safeName(domain))
	}
	results := make([]*models.ScanResult, 0, 16)

	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		name := strings.ToLower(info.Name())
		if !(strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz")) {
			return nil
		}
		r, err := readResultFile(path)
		if err != nil {
			ls.logger.Warnf("Failed to parse result %s: %v", path, err)
			return nil
		}
		results = append(results, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk results directory: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Summary.EndTime.After(results[j].Summary.EndTime)
	})
	return results, nil
}

func (ls *LocalStorage) GetStorageStats() (map[string]interface{}, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	var size int64
	files := 0
	err := filepath.Walk(filepath.Join(ls.baseDir, "results"), func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
			files++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("calculate dir size: %w", err)
	}

	return map[string]interface{}{
		"total_size_bytes":    size,
		"total_size_human":    fmt.Sprintf("%.2f MB", float64(size)/1024.0/1024.0),
		"result_files":        files,
		"compression_enabled": ls.compression,
		"retention_period":    ls.retention.String(),
	}, nil
}

// pathTaken reports whether path or its compressed form exists.
func pathTaken(path string) bool {
	for _, p := range []string{path, path + ".gz"} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

func (ls *LocalStorage) prune(cutoff time.Time) {
	root := filepath.Join(ls.baseDir, "results")
	err := filepath.Walk(root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !info.IsDir() && info.ModTime().Before(cutoff) {
			if err := os.Remove(p); err != nil {
				ls.logger.Warnf("Failed to remove old file %s: %v", p, err)
			} else {
				ls.logger.Infof("Removed old file: %s", p)
			}
		}
		return nil
	})
	if err != nil {
		ls.logger.Warnf("Failed to prune %s: %v", root, err)
	}
}

// WriteFileAtomic writes through a temp file in the target directory and
// renames it into place.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return writeAtomic(dir, path, write)
}

func writeAtomic(dir, finalPath string, write func(io.Writer) error) error {
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(finalPath)+"_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := write(tmpFile); err != nil {
		tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), finalPath); err != nil {
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

func readResultFile(path string) (*models.ScanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gzr.Close()
		r = gzr
	}

	var result models.ScanResult
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &result, nil
}

func compressFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for compress: %w", err)
	}
	defer in.Close()

	return writeAtomic(filepath.Dir(path), path+".gz", func(w io.Writer) error {
		gzw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
		if err != nil {
			return fmt.Errorf("gzip writer: %w", err)
		}
		if _, err := io.Copy(gzw, in); err != nil {
			gzw.Close()
			return fmt.Errorf("gzip copy: %w", err)
		}
		return gzw.Close()
	})
}

func safeName(domain string) string {
	if domain == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, domain)
}
