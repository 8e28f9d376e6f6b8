package index

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/docsignal/docsignal/db/searchdb"
)

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".go": true, ".js": true,
	".py": true, ".java": true, ".cpp": true, ".c": true,
	".html": true, ".css": true, ".json": true, ".xml": true,
	".yaml": true, ".yml": true, ".ini": true, ".conf": true,
	".csv": true, ".tsv": true, ".sql": true, ".cs": true,
	".log": true, ".toml": true, ".rs": true, ".rb": true,
}

func isTextFile(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}

// extractDocument reads a file into an indexable document and measures its
// character count. Binary files get a nil count and are indexed by name
// only; empty text files report a count of zero.
func extractDocument(fileInfo FileInfo) (*searchdb.Document, *int64, error) {
	doc := &searchdb.Document{
		ID:      fileInfo.Path,
		Path:    fileInfo.Path,
		Name:    fileInfo.Name,
		Size:    fileInfo.Size,
		ModTime: fileInfo.ModTime,
	}

	if !fileInfo.IsText {
		return doc, nil, nil
	}

	content, err := readTextFile(fileInfo.Path)
	if err != nil {
		return nil, nil, err
	}
	doc.Content = content
	charCount := int64(utf8.RuneCountInString(content))

	return doc, &charCount, nil
}

func readTextFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	// Cap reads to keep very large files from exhausting memory
	const maxFileSize = 10 * 1024 * 1024

	stat, err := file.Stat()
	if err != nil {
		return "", err
	}

	if stat.Size() > maxFileSize {
		buffer := make([]byte, maxFileSize)
		n, err := file.Read(buffer)
		if err != nil && err != io.EOF {
			return "", err
		}
		return string(buffer[:n]), nil
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}

	return string(content), nil
}
