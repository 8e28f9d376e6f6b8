package search

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docsignal/docsignal/db/kvdb"
	"github.com/docsignal/docsignal/db/searchdb"
	"github.com/docsignal/docsignal/logger"
	"github.com/docsignal/docsignal/services/progress"
	"github.com/docsignal/docsignal/services/readiness"
	"github.com/docsignal/docsignal/services/rerun"
)

func newTestLogger() logger.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeSearcher struct {
	results map[string]*searchdb.TermResult
	err     error
}

func (f *fakeSearcher) SearchTerm(term string, _ int) (*searchdb.TermResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	result, ok := f.results[term]
	if !ok {
		return &searchdb.TermResult{Term: term}, nil
	}
	return result, nil
}

type fakeRecords struct {
	values map[string]string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{values: make(map[string]string)}
}

func (f *fakeRecords) Get(_ string, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", &kvdb.NotFoundError{Key: key}
	}
	return value, nil
}

func (f *fakeRecords) Set(_ string, key string, value string) error {
	f.values[key] = value
	return nil
}

func (f *fakeRecords) GetAllKeys(_ string) ([]string, error) {
	keys := make([]string, 0, len(f.values))
	for key := range f.values {
		keys = append(keys, key)
	}
	return keys, nil
}

func (f *fakeRecords) put(t *testing.T, path string, status readiness.FileStatus, charCount *int64) {
	t.Helper()
	record := kvdb.FileRecord{
		Status:      string(status),
		CharCount:   charCount,
		Tier:        string(progress.TierFast),
		LastIndexed: time.Now(),
	}
	encoded, err := record.Encode()
	require.NoError(t, err)
	f.values[path] = encoded
}

func (f *fakeRecords) status(t *testing.T, path string) readiness.FileStatus {
	t.Helper()
	record, err := kvdb.DecodeFileRecord(f.values[path])
	require.NoError(t, err)
	return readiness.FileStatus(record.Status)
}

func newTestService(searcher Searcher, records RecordStore) (*Service, *rerun.Coordinator) {
	var service *Service
	coordinator := rerun.New(newTestLogger(), func(tier progress.Tier, terms string) {
		service.Rerun(tier, terms)
	})
	service = New(newTestLogger(), searcher, records, coordinator)
	return service, coordinator
}

var parseTermsTestCases = []struct {
	name     string
	input    string
	expected []string
}{
	{
		name:     "SingleTerm",
		input:    "invoice",
		expected: []string{"invoice"},
	},
	{
		name:     "TrimsAndLowercases",
		input:    " Invoice , CONTRACT ",
		expected: []string{"invoice", "contract"},
	},
	{
		name:     "DropsEmptyTerms",
		input:    "invoice,,   ,contract",
		expected: []string{"invoice", "contract"},
	},
	{
		name:     "DeduplicatesPreservingOrder",
		input:    "contract,invoice,Contract",
		expected: []string{"contract", "invoice"},
	},
	{
		name:     "AllBlankIsEmpty",
		input:    " , , ",
		expected: nil,
	},
	{
		name:     "EmptyStringIsEmpty",
		input:    "",
		expected: nil,
	},
}

func TestParseTerms(t *testing.T) {
	assert := require.New(t)
	for _, testCase := range parseTermsTestCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(testCase.expected, ParseTerms(testCase.input), testCase.name)
		})
	}
}

func TestRunMergesResultsAcrossTerms(t *testing.T) {
	assert := require.New(t)

	searcher := &fakeSearcher{results: map[string]*searchdb.TermResult{
		"invoice": {
			Term: "invoice",
			Hits: []searchdb.TermHit{
				{Path: "/docs/a.txt", Name: "a.txt", Score: 2.5, Count: 3, Snippet: "...invoice..."},
				{Path: "/docs/b.txt", Name: "b.txt", Score: 1.0, Count: 1},
			},
		},
		"contract": {
			Term: "contract",
			Hits: []searchdb.TermHit{
				{Path: "/docs/a.txt", Name: "a.txt", Score: 0.8, Count: 2, Snippet: "...contract..."},
			},
		},
	}}
	service, _ := newTestService(searcher, newFakeRecords())

	result, err := service.Run("Invoice, contract")
	assert.NoError(err)
	assert.Equal([]string{"invoice", "contract"}, result.Terms)
	assert.Len(result.Matches, 2)

	// Highest combined score first
	first := result.Matches[0]
	assert.Equal("/docs/a.txt", first.Path)
	assert.Equal(2.5, first.Score, "per-file score is the max across terms")
	assert.Equal(map[string]int{"invoice": 3, "contract": 2}, first.TermCounts)
	assert.Equal("...invoice...", first.Snippets["invoice"])
	assert.Equal("...contract...", first.Snippets["contract"])

	assert.Equal("/docs/b.txt", result.Matches[1].Path)
}

func TestRunRegistersSearchSession(t *testing.T) {
	assert := require.New(t)

	service, coordinator := newTestService(&fakeSearcher{}, newFakeRecords())

	_, err := service.Run(" Invoice ,contract")
	assert.NoError(err)

	session := coordinator.CurrentSession()
	assert.True(session.Active)
	assert.Equal("invoice,contract", session.Terms)

	matched, searchPerformed := service.SearchState()
	assert.True(searchPerformed)
	assert.Empty(matched)
}

func TestEmptyQueryClearsSearch(t *testing.T) {
	assert := require.New(t)

	searcher := &fakeSearcher{results: map[string]*searchdb.TermResult{
		"invoice": {
			Term: "invoice",
			Hits: []searchdb.TermHit{{Path: "/docs/a.txt", Name: "a.txt", Score: 1, Count: 1}},
		},
	}}
	service, coordinator := newTestService(searcher, newFakeRecords())

	_, err := service.Run("invoice")
	assert.NoError(err)
	matched, searchPerformed := service.SearchState()
	assert.True(searchPerformed)
	assert.Contains(matched, "/docs/a.txt")

	result, err := service.Run("  ")
	assert.NoError(err)
	assert.Empty(result.Matches)

	assert.False(coordinator.CurrentSession().Active)
	matched, searchPerformed = service.SearchState()
	assert.False(searchPerformed)
	assert.Empty(matched)
}

func TestRunPropagatesSearchErrors(t *testing.T) {
	assert := require.New(t)

	service, _ := newTestService(&fakeSearcher{err: errors.New("index closed")}, newFakeRecords())

	_, err := service.Run("invoice")
	assert.Error(err)
}

func TestWriteBackAnalysis(t *testing.T) {
	assert := require.New(t)

	count := int64(100)
	records := newFakeRecords()
	records.put(t, "/docs/hit.txt", readiness.StatusNotChecked, &count)
	records.put(t, "/docs/miss.txt", readiness.StatusNotChecked, &count)
	records.put(t, "/docs/was-hit.txt", readiness.StatusContainsKeywords, &count)
	records.put(t, "/docs/broken.pdf", readiness.StatusError, nil)
	records.put(t, "/docs/image.iso", readiness.StatusUnsupported, nil)
	records.put(t, "/docs/pending.txt", readiness.StatusProcessing, nil)

	searcher := &fakeSearcher{results: map[string]*searchdb.TermResult{
		"invoice": {
			Term: "invoice",
			Hits: []searchdb.TermHit{{Path: "/docs/hit.txt", Name: "hit.txt", Score: 1, Count: 1}},
		},
	}}
	service, _ := newTestService(searcher, records)

	_, err := service.Run("invoice")
	assert.NoError(err)

	assert.Equal(readiness.StatusContainsKeywords, records.status(t, "/docs/hit.txt"))
	assert.Equal(readiness.StatusNoKeywords, records.status(t, "/docs/miss.txt"))
	assert.Equal(readiness.StatusNoKeywords, records.status(t, "/docs/was-hit.txt"),
		"a previous match that no longer matches is downgraded")

	// Non-indexable and in-flight records are never rewritten by a search
	assert.Equal(readiness.StatusError, records.status(t, "/docs/broken.pdf"))
	assert.Equal(readiness.StatusUnsupported, records.status(t, "/docs/image.iso"))
	assert.Equal(readiness.StatusProcessing, records.status(t, "/docs/pending.txt"))
}

func TestTierCompletionReplaysActiveSearch(t *testing.T) {
	assert := require.New(t)

	searcher := &fakeSearcher{results: map[string]*searchdb.TermResult{}}
	service, coordinator := newTestService(searcher, newFakeRecords())

	_, err := service.Run("invoice")
	assert.NoError(err)

	// Newly indexed content starts matching between polls
	searcher.results["invoice"] = &searchdb.TermResult{
		Term: "invoice",
		Hits: []searchdb.TermHit{{Path: "/docs/late.txt", Name: "late.txt", Score: 1, Count: 1}},
	}

	coordinator.OnTierTransition(progress.Transition{
		Tier: progress.TierFast, Previous: progress.TierRunning, New: progress.TierCompleted,
	})

	matched, searchPerformed := service.SearchState()
	assert.True(searchPerformed, "replaying identical terms keeps the session active")
	assert.Contains(matched, "/docs/late.txt")

	// The replay must not re-arm the tier it was triggered by
	coordinator.OnTierTransition(progress.Transition{
		Tier: progress.TierFast, Previous: progress.TierRunning, New: progress.TierCompleted,
	})
	matched, _ = service.SearchState()
	assert.Len(matched, 1)
}
