package search

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/docsignal/docsignal/db/kvdb"
	"github.com/docsignal/docsignal/db/searchdb"
	"github.com/docsignal/docsignal/logger"
	"github.com/docsignal/docsignal/services/progress"
	"github.com/docsignal/docsignal/services/readiness"
	"github.com/docsignal/docsignal/services/rerun"
)

const defaultResultsPerTerm = 500

// Searcher represents the search database operations the service needs.
type Searcher interface {
	SearchTerm(term string, limit int) (*searchdb.TermResult, error)
}

// RecordStore gives the service access to stored file records for the
// keyword-analysis writeback after a search.
type RecordStore interface {
	Get(bucket string, key string) (string, error)
	Set(bucket string, key string, value string) error
	GetAllKeys(bucket string) ([]string, error)
}

// FileMatch is one file's combined result across all searched terms.
type FileMatch struct {
	Path       string            `json:"path"`
	Name       string            `json:"name"`
	Score      float64           `json:"score"`
	TermCounts map[string]int    `json:"term_counts"`
	Snippets   map[string]string `json:"snippets,omitempty"`
}

// Result is the outcome of one search run.
type Result struct {
	Terms   []string    `json:"terms"`
	Matches []FileMatch `json:"matches"`
}

// Service executes comma-separated term searches and retains the latest
// match map for tree rendering. The rerun coordinator owns the search
// session; this service feeds it queries and replays on its behalf.
type Service struct {
	logger      logger.Logger
	searcher    Searcher
	records     RecordStore
	coordinator *rerun.Coordinator

	mu      sync.Mutex
	matched map[string]struct{}
}

func New(logger logger.Logger, searcher Searcher, records RecordStore, coordinator *rerun.Coordinator) *Service {
	return &Service{
		logger:      logger,
		searcher:    searcher,
		records:     records,
		coordinator: coordinator,
		matched:     make(map[string]struct{}),
	}
}

// ParseTerms normalizes a comma-separated query: terms are trimmed,
// lowercased and deduplicated, empty terms dropped. Order is preserved.
func ParseTerms(terms string) []string {
	var parsed []string
	seen := make(map[string]struct{})
	for _, term := range strings.Split(terms, ",") {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if _, duplicate := seen[term]; duplicate {
			continue
		}
		seen[term] = struct{}{}
		parsed = append(parsed, term)
	}
	return parsed
}

// Run executes a search. Non-empty queries register a search session with
// the rerun coordinator; an empty query clears the session and the match
// map, matching the clear-search semantics of the UI.
func (s *Service) Run(terms string) (*Result, error) {
	parsed := ParseTerms(terms)
	if len(parsed) == 0 {
		s.Clear()
		return &Result{}, nil
	}

	s.coordinator.SetQuery(strings.Join(parsed, ","))

	merged := make(map[string]*FileMatch)
	for _, term := range parsed {
		termResult, err := s.searcher.SearchTerm(term, defaultResultsPerTerm)
		if err != nil {
			s.logger.Error("search failed", "term", term, "err", err.Error())
			return nil, fmt.Errorf("search failed: %w", err)
		}

		for _, hit := range termResult.Hits {
			match, ok := merged[hit.Path]
			if !ok {
				match = &FileMatch{
					Path:       hit.Path,
					Name:       hit.Name,
					TermCounts: make(map[string]int),
					Snippets:   make(map[string]string),
				}
				merged[hit.Path] = match
			}
			match.TermCounts[term] = hit.Count
			if hit.Snippet != "" {
				match.Snippets[term] = hit.Snippet
			}
			if hit.Score > match.Score {
				match.Score = hit.Score
			}
		}
	}

	matches := make([]FileMatch, 0, len(merged))
	matchedPaths := make(map[string]struct{}, len(merged))
	for path, match := range merged {
		matches = append(matches, *match)
		matchedPaths[path] = struct{}{}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Path < matches[j].Path
	})

	s.mu.Lock()
	s.matched = matchedPaths
	s.mu.Unlock()

	s.writeBackAnalysis(matchedPaths)

	return &Result{Terms: parsed, Matches: matches}, nil
}

// Rerun replays the active session's terms; the rerun coordinator invokes
// this when an indexing tier completes. Replaying identical terms does not
// start a new session, so the coordinator's memory is preserved.
func (s *Service) Rerun(tier progress.Tier, terms string) {
	s.logger.Info("replaying search after tier completion", "tier", string(tier), "terms", terms)
	if _, err := s.Run(terms); err != nil {
		s.logger.Error("search replay failed", "tier", string(tier), "err", err.Error())
	}
}

// Clear drops the session and the match map (empty query or full wipe).
func (s *Service) Clear() {
	s.coordinator.Clear()
	s.mu.Lock()
	s.matched = make(map[string]struct{})
	s.mu.Unlock()
}

// SearchState exposes what tree rendering needs: the matched path set and
// whether a search session is active. The session is read from the
// coordinator at call time rather than cached, so a search submitted
// between polls is never missed.
func (s *Service) SearchState() (map[string]struct{}, bool) {
	active := s.coordinator.CurrentSession().Active

	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make(map[string]struct{}, len(s.matched))
	for path := range s.matched {
		matched[path] = struct{}{}
	}
	return matched, active
}

// writeBackAnalysis persists search outcomes onto file records: matched
// files become contains_keywords, previously searched indexable files that
// no longer match become no_keywords. Records still processing, failed or
// unsupported are left alone.
func (s *Service) writeBackAnalysis(matchedPaths map[string]struct{}) {
	keys, err := s.records.GetAllKeys(kvdb.FilesBucket)
	if err != nil {
		s.logger.Error("failed to list file records for analysis writeback", "err", err.Error())
		return
	}

	for _, path := range keys {
		value, err := s.records.Get(kvdb.FilesBucket, path)
		if err != nil {
			if errors.Is(err, kvdb.ErrNotFound) {
				continue
			}
			s.logger.Error("failed to read file record", "path", path, "err", err.Error())
			continue
		}
		record, err := kvdb.DecodeFileRecord(value)
		if err != nil {
			s.logger.Error("failed to decode file record", "path", path, "err", err.Error())
			continue
		}

		switch readiness.FileStatus(record.Status) {
		case readiness.StatusNotChecked, readiness.StatusContainsKeywords, readiness.StatusNoKeywords:
		default:
			continue
		}

		status := readiness.StatusNoKeywords
		if _, matched := matchedPaths[path]; matched {
			status = readiness.StatusContainsKeywords
		}
		if record.Status == string(status) {
			continue
		}

		record.Status = string(status)
		encoded, err := record.Encode()
		if err != nil {
			s.logger.Error("failed to encode file record", "path", path, "err", err.Error())
			continue
		}
		if err := s.records.Set(kvdb.FilesBucket, path, encoded); err != nil {
			s.logger.Error("failed to update file record", "path", path, "err", err.Error())
		}
	}
}
