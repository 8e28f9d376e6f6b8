package searchdb

import "time"

// Document is indexed keyed by its path, so deletions and re-indexing of the
// same file replace the previous entry instead of accumulating duplicates.
type Document struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	Name    string    `json:"name"`
	Content string    `json:"content"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// TermHit is one file matching a single search term.
type TermHit struct {
	Path    string  `json:"path"`
	Name    string  `json:"name"`
	Score   float64 `json:"score"`
	Count   int     `json:"count"`
	Snippet string  `json:"snippet,omitempty"`
}

// TermResult is everything one term matched.
type TermResult struct {
	Term  string    `json:"term"`
	Hits  []TermHit `json:"hits"`
	Total uint64    `json:"total"`
}
