package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docsignal/docsignal/logger"
	"github.com/docsignal/docsignal/services/index"
	"github.com/docsignal/docsignal/services/readiness"
	"github.com/docsignal/docsignal/services/search"
)

type TreeFile struct {
	Name      string              `json:"name"`
	Path      string              `json:"path"`
	Status    readiness.FileStatus `json:"status"`
	CharCount *int64              `json:"char_count"`
	Indicator readiness.Indicator `json:"indicator"`
	Priority  int                 `json:"priority"`
}

type TreeFolder struct {
	Name      string              `json:"name"`
	Indicator readiness.Indicator `json:"indicator"`
	Priority  int                 `json:"priority"`
	Expanded  bool                `json:"expanded"`
	Folders   []TreeFolder        `json:"folders"`
	Files     []TreeFile          `json:"files"`
}

func SetupTree(router *gin.Engine, logger logger.Logger, indexService *index.Service, searchService *search.Service) {
	router.GET("/tree", handleTree(indexService, searchService, logger))
}

// handleTree returns the document tree with derived indicators. Children are
// ordered by indicator priority so matches float to the top.
func handleTree(indexService *index.Service, searchService *search.Service, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := indexService.AllRecords()
		if err != nil {
			logger.Error("could not load file records", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		treeRecords := make(map[string]readiness.Record, len(records))
		for path, record := range records {
			treeRecords[path] = readiness.Record{
				Status:    readiness.FileStatus(record.Status),
				CharCount: record.CharCount,
			}
		}

		matched, searchPerformed := searchService.SearchState()
		snapshot := readiness.NewSnapshot(readiness.BuildTree(treeRecords), matched, searchPerformed)

		writeResponse(c, serializeFolder(snapshot, snapshot.Root, ""), http.StatusOK, nil)
	}
}

func serializeFolder(snapshot *readiness.Snapshot, folder *readiness.FolderNode, name string) TreeFolder {
	indicator := snapshot.FolderIndicator(folder)
	serialized := TreeFolder{
		Name:      name,
		Indicator: indicator,
		Priority:  readiness.SortPriority(indicator),
		Expanded:  folder.Expanded,
		Folders:   []TreeFolder{},
		Files:     []TreeFile{},
	}

	fileByPath := make(map[string]*readiness.FileNode, len(folder.Files))
	for _, file := range folder.Files {
		fileByPath[file.Path] = file
	}

	for _, entry := range snapshot.SortedEntries(folder) {
		if entry.IsDir {
			serialized.Folders = append(serialized.Folders,
				serializeFolder(snapshot, folder.Subfolders[entry.Name], entry.Name))
			continue
		}
		file := fileByPath[entry.Path]
		serialized.Files = append(serialized.Files, TreeFile{
			Name:      file.Name,
			Path:      file.Path,
			Status:    file.Status,
			CharCount: file.CharCount,
			Indicator: entry.Indicator,
			Priority:  entry.Priority,
		})
	}

	return serialized
}
