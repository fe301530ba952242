// Package storage manages the PDF sources the pipeline ingests from:
// a local directory tree with organized archiving and backups, and an
// Azure Blob Storage container.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/teilomillet/researchgpt/rag"
)

// FileInfo describes a stored PDF.
type FileInfo struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Stats summarizes the contents of a local store.
type Stats struct {
	TotalFiles  int
	TotalBytes  int64
	BackupFiles int
	BackupBytes int64
}

// LocalStore keeps PDFs under a root directory. Incoming files land in
// the root, Organize files them into year/month subdirectories, and
// removed or replaced files are kept as timestamped backups when backups
// are enabled.
type LocalStore struct {
	root        string
	backup      bool
	maxFileSize int64
	logger      rag.Logger
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithBackups toggles backup copies on delete and replace.
func WithBackups(enabled bool) LocalOption {
	return func(s *LocalStore) { s.backup = enabled }
}

// WithMaxFileSize caps the size of added files in bytes. Zero disables
// the check.
func WithMaxFileSize(n int64) LocalOption {
	return func(s *LocalStore) { s.maxFileSize = n }
}

// NewLocalStore creates the store rooted at dir, creating the directory
// if needed.
func NewLocalStore(dir string, opts ...LocalOption) (*LocalStore, error) {
	s := &LocalStore{
		root:   dir,
		backup: true,
		logger: rag.GlobalLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if s.backup {
		if err := os.MkdirAll(s.backupDir(), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create backup directory: %w", err)
		}
	}
	return s, nil
}

// Root returns the store's root directory.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) backupDir() string { return filepath.Join(s.root, "backups") }

// Add copies the file at src into the store. With organize the file is
// filed under the current year/month subdirectory; without it the file
// lands in the store root. A name collision gets a _N suffix rather than
// replacing the existing file. Returns the stored path.
func (s *LocalStore) Add(src string, organize bool) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", src, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", src)
	}
	if s.maxFileSize > 0 && info.Size() > s.maxFileSize {
		return "", fmt.Errorf("file %s exceeds size limit: %d > %d bytes", src, info.Size(), s.maxFileSize)
	}
	if !strings.EqualFold(filepath.Ext(src), ".pdf") {
		return "", fmt.Errorf("unsupported file type %q, expected .pdf", filepath.Ext(src))
	}

	dir := s.root
	if organize {
		dir = filepath.Join(s.root, time.Now().Format("2006"), time.Now().Format("01"))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	dst := filepath.Join(dir, filepath.Base(src))
	dst = s.dedupe(dst)

	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	s.logger.Info("stored pdf", "src", src, "dst", dst, "size", info.Size())
	return dst, nil
}

// dedupe returns path, or path with a _N suffix if path already exists.
func (s *LocalStore) dedupe(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// List returns every PDF in the store, walking the organized tree.
// Backups are not included.
func (s *LocalStore) List() ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path == s.backupDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}
		files = append(files, FileInfo{
			Name:    info.Name(),
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list storage: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Find locates a stored PDF by file name.
func (s *LocalStore) Find(name string) (FileInfo, error) {
	files, err := s.List()
	if err != nil {
		return FileInfo{}, err
	}
	for _, f := range files {
		if f.Name == name {
			return f, nil
		}
	}
	return FileInfo{}, fmt.Errorf("pdf %q not found in storage", name)
}

// Delete removes a stored PDF by name. With backups enabled the file is
// moved into the backup directory under a timestamped name instead of
// being unlinked.
func (s *LocalStore) Delete(name string) error {
	f, err := s.Find(name)
	if err != nil {
		return err
	}
	if s.backup {
		backup := filepath.Join(s.backupDir(), backupName(f.Name))
		if err := os.Rename(f.Path, backup); err != nil {
			return fmt.Errorf("failed to back up %s: %w", f.Path, err)
		}
		s.logger.Info("moved pdf to backup", "name", name, "backup", backup)
		return nil
	}
	if err := os.Remove(f.Path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", f.Path, err)
	}
	s.logger.Info("deleted pdf", "name", name)
	return nil
}

func backupName(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%s%s", base, time.Now().Format("20060102_150405"), ext)
}

// CleanupBackups removes backups older than maxAge and returns how many
// were removed.
func (s *LocalStore) CleanupBackups(maxAge time.Duration) (int, error) {
	if !s.backup {
		return 0, nil
	}
	entries, err := os.ReadDir(s.backupDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read backup directory: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.backupDir(), e.Name())
			if err := os.Remove(path); err != nil {
				s.logger.Warn("failed to remove old backup", "path", path, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("cleaned up backups", "removed", removed, "max_age", maxAge)
	}
	return removed, nil
}

// Stats reports file counts and byte totals for the store and its
// backups.
func (s *LocalStore) Stats() (Stats, error) {
	var st Stats
	files, err := s.List()
	if err != nil {
		return st, err
	}
	st.TotalFiles = len(files)
	for _, f := range files {
		st.TotalBytes += f.Size
	}
	entries, err := os.ReadDir(s.backupDir())
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("failed to read backup directory: %w", err)
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.IsDir() {
			continue
		}
		st.BackupFiles++
		st.BackupBytes += info.Size()
	}
	return st, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}
