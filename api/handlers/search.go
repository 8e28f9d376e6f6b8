package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docsignal/docsignal/logger"
	"github.com/docsignal/docsignal/services/search"
	"github.com/docsignal/docsignal/validation"
)

type SearchRequest struct {
	Terms string `form:"terms" json:"terms" validate:"required,valid_terms,min=1,max=1000"`
}

type SearchResponse struct {
	Terms   []string           `json:"terms"`
	Matches []search.FileMatch `json:"matches"`
}

func SetupSearch(router *gin.Engine, logger logger.Logger, service *search.Service, validator *validation.Validator) {
	router.GET("/search", handleSearch(service, logger, validator))
	router.DELETE("/search", handleClearSearch(service))
}

func handleSearch(service *search.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := SearchRequest{}
		if err := c.ShouldBindQuery(&request); err != nil {
			logger.Warn("could not extract expected params from search request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate search request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		result, err := service.Run(request.Terms)
		if err != nil {
			logger.Error("search failed", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, SearchResponse{Terms: result.Terms, Matches: result.Matches}, http.StatusOK, nil)
	}
}

// handleClearSearch ends the search session; indicators fall back to their
// pre-search colors and the rerun memory is cleared.
func handleClearSearch(service *search.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		service.Clear()
		writeResponse(c, nil, http.StatusNoContent, nil)
	}
}
