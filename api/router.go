package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docsignal/docsignal/api/handlers"
	"github.com/docsignal/docsignal/logger"
	"github.com/docsignal/docsignal/services/index"
	"github.com/docsignal/docsignal/services/progress"
	"github.com/docsignal/docsignal/services/search"
	"github.com/docsignal/docsignal/validation"
)

func setupRoutes(ctx context.Context, router *gin.Engine, logger logger.Logger, validator *validation.Validator,
	indexService *index.Service, searchService *search.Service, tracker *progress.Tracker) {
	router.GET("/health", health())

	handlers.SetupIndex(ctx, router, logger, indexService, tracker, searchService, validator)
	handlers.SetupSearch(router, logger, searchService, validator)
	handlers.SetupTree(router, logger, indexService, searchService)
}

func health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	}
}

func newRouter() *gin.Engine {
	router := gin.Default()
	router.UseRawPath = true
	router.Use(_CORSMiddleware())
	router.Use(gin.Recovery())

	return router
}
