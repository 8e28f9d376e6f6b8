// Common test helpers
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/docsignal/docsignal/config"
	"github.com/docsignal/docsignal/db/kvdb"
	"github.com/docsignal/docsignal/db/searchdb"
	"github.com/docsignal/docsignal/logger"
	"github.com/docsignal/docsignal/services/index"
	"github.com/docsignal/docsignal/services/progress"
	"github.com/docsignal/docsignal/services/rerun"
	"github.com/docsignal/docsignal/services/search"
	"github.com/docsignal/docsignal/validation"
)

var defaultTestRequestHeaders = map[string]string{"Content-Type": "application/json"}

var testFiles = map[string]string{
	"file1.txt":              "This is test content for file1",
	"file2.go":               "package main\n\nfunc main() {\n\tprint(\"Hello\")\n}",
	"subdir/file3.md":        "# Test Markdown\n\nThis is a test markdown file",
	"subdir/file4.json":      `{"key": "value", "number": 42}`,
	"subdir/nested/file5.py": "def hello():\n    print('Hello World')",
}

type testCase struct {
	name           string
	requestHeaders map[string]string
	requestBody    map[string]any
	queryParams    map[string]string
	expectedStatus int
}

func newTestLogger() logger.Logger {

	opts := &slog.HandlerOptions{
		Level: slog.LevelError,
	}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}

func setupTestServer(t *testing.T, assert *require.Assertions) (*gin.Engine, string) {

	tempDir := t.TempDir()
	documentsDir := filepath.Join(tempDir, "documents")

	t.Setenv("ENV", "test")
	t.Setenv("KVDB_PATH", filepath.Join(tempDir, "kvdb", "records.db"))
	t.Setenv("STORAGE_PATH", tempDir)
	t.Setenv("INDEX_PATH", "search.bleve")

	cfg, err := config.Load("test")
	assert.NoError(err, "could not load config")

	for relPath, content := range testFiles {
		fullPath := filepath.Join(documentsDir, relPath)
		err := os.MkdirAll(filepath.Dir(fullPath), 0755)
		assert.NoError(err, "could not create test sub-directory")
		err = os.WriteFile(fullPath, []byte(content), 0644)
		assert.NoError(err, "could not write test file")
	}

	testLogger := newTestLogger()

	searchDB, err := searchdb.New(testLogger, cfg)
	assert.NoError(err, "could not create search database")

	kvDB, err := kvdb.New(testLogger, cfg)
	assert.NoError(err, "could not create kv database")
	validator, err := validation.New(testLogger)
	assert.NoError(err, "could not create validator")

	ctx, cancel := context.WithCancel(context.Background())
	indexService := index.New(ctx, testLogger, searchDB, kvDB)

	var searchService *search.Service
	coordinator := rerun.New(testLogger, func(tier progress.Tier, terms string) {
		searchService.Rerun(tier, terms)
	})
	searchService = search.New(testLogger, searchDB, kvDB, coordinator)

	tracker := progress.New(testLogger, indexService, coordinator.OnTierTransition, progress.Config{
		PollInterval:    50 * time.Millisecond,
		MaxPollAttempts: 40,
	})

	gin.SetMode(gin.TestMode)
	router := gin.New()

	SetupIndex(ctx, router, testLogger, indexService, tracker, searchService, validator)
	SetupSearch(router, testLogger, searchService, validator)
	SetupTree(router, testLogger, indexService, searchService)

	t.Cleanup(func() {
		tracker.Stop(true)
		cancel()
		assert.NoError(searchDB.Close(), "could not close search database")
		assert.NoError(kvDB.Close(), "could not close kv database")
	})

	return router, documentsDir
}

func makeTestHTTPRequest(router *gin.Engine, assert *require.Assertions, method string, endpoint string, headers map[string]string, requestBodyMap map[string]any, queryParams map[string]string) *httptest.ResponseRecorder {

	var err error
	w := httptest.NewRecorder()

	if len(queryParams) > 0 {
		endpoint = endpoint + "?"
		for key, value := range queryParams {
			if endpoint[len(endpoint)-1] != '?' {
				endpoint = endpoint + "&"
			}
			endpoint = endpoint + key + "=" + value
		}
	}
	var jsonBody []byte
	var req *http.Request
	if requestBodyMap != nil {
		jsonBody, err = json.Marshal(requestBodyMap)
		assert.NoError(err)
	}

	if len(jsonBody) > 0 {
		req, err = http.NewRequest(method, endpoint, bytes.NewBuffer(jsonBody))
	} else {
		req, err = http.NewRequest(method, endpoint, nil)
	}
	assert.NoError(err)

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	router.ServeHTTP(w, req)

	return w
}

// waitForIndexCompletion polls the status endpoint until the tracked session
// reports completion.
func waitForIndexCompletion(t *testing.T, assert *require.Assertions, router *gin.Engine) {
	t.Helper()

	assert.Eventually(func() bool {
		w := makeTestHTTPRequest(router, assert, http.MethodGet, "/index/status", nil, nil, nil)
		if w.Code != http.StatusOK {
			return false
		}
		var statusResponse struct {
			Data progress.Snapshot `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &statusResponse); err != nil {
			return false
		}
		return statusResponse.Data.Overall == progress.OverallCompleted
	}, 10*time.Second, 100*time.Millisecond, "timed out waiting for index creation")
}
