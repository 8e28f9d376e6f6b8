package index

import (
	"errors"
	"fmt"

	"github.com/docsignal/docsignal/db/kvdb"
)

// RecordStore is the key-value persistence the index service needs.
type RecordStore interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	GetAllKeys(bucket string) ([]string, error)
	DeleteAll(bucket string) error
}

func (s *Service) setFileRecord(path string, record kvdb.FileRecord) error {
	if path == "" {
		s.logger.Error("file path cannot be empty")
		return fmt.Errorf("file path cannot be empty")
	}

	value, err := record.Encode()
	if err != nil {
		s.logger.Error("failed to encode file record", "path", path, "err", err.Error())
		return err
	}

	if err := s.records.Set(kvdb.FilesBucket, path, value); err != nil {
		s.logger.Error("failed to store file record", "path", path, "err", err.Error())
		return err
	}

	return nil
}

func (s *Service) getFileRecord(path string) (*kvdb.FileRecord, error) {
	value, err := s.records.Get(kvdb.FilesBucket, path)
	if err != nil {
		return nil, err
	}

	record, err := kvdb.DecodeFileRecord(value)
	if err != nil {
		s.logger.Error("failed to decode file record", "path", path, "err", err.Error())
		return nil, err
	}

	return &record, nil
}

// AllRecords loads every stored file record, keyed by path. The tree
// endpoint builds its snapshot from this map.
func (s *Service) AllRecords() (map[string]kvdb.FileRecord, error) {
	keys, err := s.records.GetAllKeys(kvdb.FilesBucket)
	if err != nil {
		s.logger.Error("failed to list file records", "err", err.Error())
		return nil, fmt.Errorf("failed to list file records: %w", err)
	}

	all := make(map[string]kvdb.FileRecord, len(keys))
	for _, key := range keys {
		record, err := s.getFileRecord(key)
		if err != nil {
			if errors.Is(err, kvdb.ErrNotFound) {
				continue
			}
			return nil, err
		}
		all[key] = *record
	}

	return all, nil
}
