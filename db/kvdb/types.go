package kvdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound   = errors.New("key not found")
	ErrInvalidKey = errors.New("invalid key")
)

type InvalidKeyError struct {
	Key    string
	Reason string
}

type NotFoundError struct {
	Key string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid key %s: %s", e.Key, e.Reason)
}

func (e *InvalidKeyError) Is(target error) bool {
	return target == ErrInvalidKey
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("key not found: %s", e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// FileRecord is the stored per-file state: the backend's last-known status
// plus the extracted character count. A nil CharCount means extraction never
// measured the file (binary or unread), which is distinct from zero.
type FileRecord struct {
	Status      string    `json:"status"`
	CharCount   *int64    `json:"char_count"`
	Tier        string    `json:"tier"`
	Error       string    `json:"error,omitempty"`
	LastIndexed time.Time `json:"last_indexed"`
}

func (r FileRecord) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal file record: %w", err)
	}
	return string(data), nil
}

func DecodeFileRecord(value string) (FileRecord, error) {
	var record FileRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return FileRecord{}, fmt.Errorf("failed to unmarshal file record: %w", err)
	}
	return record, nil
}
