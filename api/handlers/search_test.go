package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var searchHandlerTestCases = []testCase{
	{
		name:           "NoTerms",
		queryParams:    map[string]string{},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "BlankTerms",
		queryParams:    map[string]string{"terms": "%20%20"},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "TermsTooLong",
		queryParams:    map[string]string{"terms": strings.Repeat("a", 1001)},
		expectedStatus: http.StatusNotAcceptable,
	},
	{
		name:           "SingleTermMatch",
		queryParams:    map[string]string{"terms": "markdown"},
		expectedStatus: http.StatusOK,
	},
	{
		name:           "MultipleTerms",
		queryParams:    map[string]string{"terms": "markdown,hello"},
		expectedStatus: http.StatusOK,
	},
	{
		name:           "NoMatches",
		queryParams:    map[string]string{"terms": "nonexistentterm"},
		expectedStatus: http.StatusOK,
	},
}

func TestHandleSearch(t *testing.T) {
	assert := require.New(t)
	router, documentsDir := setupTestServer(t, assert)

	w := makeTestHTTPRequest(router, assert, http.MethodPost, "/index", defaultTestRequestHeaders,
		map[string]any{"path": documentsDir}, nil)
	assert.Equal(http.StatusAccepted, w.Code, "index creation should succeed before running search tests")
	waitForIndexCompletion(t, assert, router)

	for _, testCase := range searchHandlerTestCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert := require.New(t)
			w := makeTestHTTPRequest(router, assert, http.MethodGet, "/search", testCase.requestHeaders, nil, testCase.queryParams)
			responseBytes := w.Body.Bytes()
			assert.Equal(testCase.expectedStatus, w.Code, fmt.Sprintf("response gotten was %s", string(responseBytes)))

			if testCase.expectedStatus != http.StatusOK {
				return
			}

			var searchResponse struct {
				Data SearchResponse `json:"data"`
			}
			assert.NoError(json.Unmarshal(responseBytes, &searchResponse))

			switch testCase.name {
			case "SingleTermMatch":
				assert.Equal([]string{"markdown"}, searchResponse.Data.Terms)
				assert.True(containsPath(searchResponse.Data, documentsDir+"/subdir/file3.md"),
					"markdown file should match")
			case "MultipleTerms":
				assert.Equal([]string{"markdown", "hello"}, searchResponse.Data.Terms)
				assert.True(containsPath(searchResponse.Data, documentsDir+"/subdir/file3.md"))
				assert.True(containsPath(searchResponse.Data, documentsDir+"/subdir/nested/file5.py"))
			case "NoMatches":
				assert.Empty(searchResponse.Data.Matches)
			}
		})
	}
}

func TestHandleClearSearch(t *testing.T) {
	assert := require.New(t)
	router, documentsDir := setupTestServer(t, assert)

	w := makeTestHTTPRequest(router, assert, http.MethodPost, "/index", defaultTestRequestHeaders,
		map[string]any{"path": documentsDir}, nil)
	assert.Equal(http.StatusAccepted, w.Code)
	waitForIndexCompletion(t, assert, router)

	w = makeTestHTTPRequest(router, assert, http.MethodGet, "/search", nil, nil,
		map[string]string{"terms": "markdown"})
	assert.Equal(http.StatusOK, w.Code)

	w = makeTestHTTPRequest(router, assert, http.MethodDelete, "/search", nil, nil, nil)
	assert.Equal(http.StatusNoContent, w.Code)

	// With the session cleared the tree falls back to pre-search colors
	w = makeTestHTTPRequest(router, assert, http.MethodGet, "/tree", nil, nil, nil)
	assert.Equal(http.StatusOK, w.Code)
	var treeResponse struct {
		Data TreeFolder `json:"data"`
	}
	assert.NoError(json.Unmarshal(w.Body.Bytes(), &treeResponse))
	assert.Equal("gray", string(treeResponse.Data.Indicator))
}

func containsPath(response SearchResponse, path string) bool {
	for _, match := range response.Matches {
		if match.Path == path {
			return true
		}
	}
	return false
}
