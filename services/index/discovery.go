package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docsignal/docsignal/db/kvdb"
)

func (s *Service) discoverModifiedFiles(rootPath string, excludeFolders []string) ([]FileInfo, error) {
	var modifiedFiles []FileInfo
	excludeSet := make(map[string]struct{}, len(excludeFolders))
	for _, folder := range excludeFolders {
		excludeSet[folder] = struct{}{}
	}
	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.logger.Error("could not walk through file or directory", "err", err.Error())
			if !errors.Is(err, os.ErrPermission) {
				return err
			}
			return nil
		}

		// Skip dot-directories, except the root itself
		if info.IsDir() && strings.HasPrefix(info.Name(), ".") && path != rootPath {
			return filepath.SkipDir
		}

		if info.IsDir() {
			if _, excluded := excludeSet[path]; excluded {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		if s.shouldFileBeIndexed(path, info.ModTime()) {
			modifiedFiles = append(modifiedFiles, FileInfo{
				Path:    path,
				Name:    info.Name(),
				Size:    info.Size(),
				ModTime: info.ModTime(),
				IsText:  isTextFile(path),
			})
		}

		return nil
	})

	return modifiedFiles, err
}

func (s *Service) shouldFileBeIndexed(path string, fileModTime time.Time) bool {

	record, err := s.getFileRecord(path)
	if err != nil {
		var notFoundErr *kvdb.NotFoundError
		var invalidKeyErr *kvdb.InvalidKeyError

		switch {
		// Never seen before, index it
		case errors.As(err, &notFoundErr):
			return true
		case errors.As(err, &invalidKeyErr):
			s.logger.Error("invalid key for file path", "key", path, "err", err.Error())
			return true
		default:
			s.logger.Error("failed to get file record", "path", path, "err", err.Error())
			return true
		}
	}

	return fileModTime.After(record.LastIndexed)
}

// getDeletedPaths returns stored record paths whose file no longer exists on
// disk, so the index and record store can be cleaned up before a build.
func (s *Service) getDeletedPaths() ([]string, error) {
	allKeys, err := s.records.GetAllKeys(kvdb.FilesBucket)
	if err != nil {
		s.logger.Error("failed to get all keys from database", "err", err.Error())
		return nil, fmt.Errorf("failed to get all keys from database: %w", err)
	}

	var deletedPaths []string
	for _, key := range allKeys {
		if _, err := os.Stat(key); os.IsNotExist(err) {
			deletedPaths = append(deletedPaths, key)
		}
	}

	return deletedPaths, nil
}
