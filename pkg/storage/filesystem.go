package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage keeps reports on disk and hands out signed download links.
type LocalStorage struct {
	baseDir      string
	signer       *SignedURLSigner
	downloadPath string
}

// NewLocalStorage ensures the base directory exists. downloadPath is the route that serves
// signed tokens, e.g. "/api/v1/conflicts/reports/download".
func NewLocalStorage(baseDir string, signer *SignedURLSigner, downloadPath string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./exports"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create exports directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, signer: signer, downloadPath: downloadPath}, nil
}

// Put writes data under name and returns the stored name.
func (s *LocalStorage) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return name, nil
}

// Link returns a signed download URL for name.
func (s *LocalStorage) Link(_ context.Context, name string) (string, time.Time, error) {
	if s.signer == nil {
		return "", time.Time{}, fmt.Errorf("download signing not configured")
	}
	token, expiresAt, err := s.signer.Generate(name)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.downloadPath + "?token=" + url.QueryEscape(token), expiresAt, nil
}

// OpenSigned validates token and opens the referenced report.
func (s *LocalStorage) OpenSigned(token string) (*os.File, string, error) {
	if s.signer == nil {
		return nil, "", fmt.Errorf("download signing not configured")
	}
	name, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", err
	}
	path, err := s.resolve(name)
	if err != nil {
		return nil, "", err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open export file: %w", err)
	}
	return file, filepath.Base(name), nil
}

// CleanupOlderThan removes reports older than ttl and returns their names.
func (s *LocalStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			rel = path
		}
		deleted = append(deleted, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup exports: %w", err)
	}
	return deleted, nil
}

// resolve maps name into the base directory and rejects escapes.
func (s *LocalStorage) resolve(name string) (string, error) {
	clean := filepath.Clean("/" + name)
	path := filepath.Join(s.baseDir, clean)
	base := filepath.Clean(s.baseDir)
	if path != base && !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid export name %q", name)
	}
	return path, nil
}
