package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docsignal/docsignal/logger"
	"github.com/docsignal/docsignal/services/index"
	"github.com/docsignal/docsignal/services/progress"
	"github.com/docsignal/docsignal/services/search"
	"github.com/docsignal/docsignal/validation"
)

type IndexRequest struct {
	Path           string   `json:"path" validate:"required,valid_path"`
	ExcludeFolders []string `json:"exclude_folders"`
}

type IndexResponse struct {
	RequestID string `json:"request_id"`
}

func SetupIndex(ctx context.Context, router *gin.Engine, logger logger.Logger, indexService *index.Service,
	tracker *progress.Tracker, searchService *search.Service, validator *validation.Validator) {
	router.POST("/index", handleCreateIndex(ctx, indexService, tracker, logger, validator))
	router.GET("/index/status", handleIndexStatus(tracker))
	router.DELETE("/documents", handleDeleteDocuments(indexService, tracker, searchService, logger))
}

func handleCreateIndex(ctx context.Context, indexService *index.Service, tracker *progress.Tracker,
	logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := IndexRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected body from index request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate index request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		requestID := uuid.New().String()
		if err := indexService.Build(request.Path, request.ExcludeFolders, requestID); err != nil {
			logger.Warn("could not start index build", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusConflict, []string{err.Error()})
			return
		}

		// The tracking session outlives this request, so it runs on the
		// server context, not the request context.
		if err := tracker.StartSession(ctx); err != nil {
			logger.Warn("could not start progress tracking session", "err", err.Error())
		}

		writeResponse(c, IndexResponse{RequestID: requestID}, http.StatusAccepted, nil)
	}
}

func handleIndexStatus(tracker *progress.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeResponse(c, tracker.CurrentSnapshot(), http.StatusOK, nil)
	}
}

// handleDeleteDocuments is the destructive full wipe: indexed documents,
// file records, cumulative elapsed time, the search session and the rerun
// memory all go.
func handleDeleteDocuments(indexService *index.Service, tracker *progress.Tracker,
	searchService *search.Service, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := indexService.ClearAll(); err != nil {
			logger.Error("could not delete all documents", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		tracker.Reset()
		searchService.Clear()

		writeResponse(c, nil, http.StatusNoContent, nil)
	}
}
