package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

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

type server struct {
	router     *gin.Engine
	httpServer *http.Server
	kvdb       kvdb.DB
	searchdb   searchdb.DB
	validator  *validation.Validator
	logger     logger.Logger
	cfg        *config.Config

	indexService  *index.Service
	searchService *search.Service
	coordinator   *rerun.Coordinator
	tracker       *progress.Tracker
}

func Run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)

	defer cancel()

	s := &server{
		logger: logger.New(),
		cfg:    cfg,
	}
	if err := s.setupDependencies(ctx); err != nil {
		return err
	}
	s.setupRouter(ctx)
	s.setupHTTPServer()
	s.setupGracefulShutdown(ctx)

	return nil
}

func (s *server) setupDependencies(ctx context.Context) error {
	var err error
	s.kvdb, err = kvdb.New(s.logger, s.cfg)
	if err != nil {
		s.logger.Error("error creating kvDB", "err", err.Error())
		return err
	}
	s.searchdb, err = searchdb.New(s.logger, s.cfg)
	if err != nil {
		s.logger.Error("error creating searchDB", "err", err.Error())
		return err
	}
	s.validator, err = validation.New(s.logger)
	if err != nil {
		s.logger.Error("error creating validator", "err", err.Error())
		return err
	}

	s.indexService = index.New(ctx, s.logger, s.searchdb, s.kvdb)

	// The coordinator fires before searchService is assigned only if a tier
	// completes before any build is requested, which cannot happen.
	s.coordinator = rerun.New(s.logger, func(tier progress.Tier, terms string) {
		s.searchService.Rerun(tier, terms)
	})
	s.searchService = search.New(s.logger, s.searchdb, s.kvdb, s.coordinator)

	s.tracker = progress.New(s.logger, s.indexService, s.coordinator.OnTierTransition, progress.Config{
		PollInterval:    s.cfg.GetPollInterval(),
		MaxPollAttempts: s.cfg.GetMaxPollAttempts(),
	})

	return nil
}

func (s *server) setupRouter(ctx context.Context) {
	router := newRouter()

	router.Use(loggingMiddleware(s.logger))

	setupRoutes(ctx, router, s.logger, s.validator, s.indexService, s.searchService, s.tracker)

	s.router = router
}

func (s *server) setupHTTPServer() {

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.cfg.GetPort()),
		Handler: s.router.Handler(),
	}
	s.httpServer = httpServer
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
}

func (s *server) setupGracefulShutdown(ctx context.Context) {

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		s.logger.Info("starting to shut down http server")
		shutdownCtx := context.Background()
		shutdownCtx, cancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer cancel()
		s.tracker.Stop(true)
		s.kvdb.Close()
		s.searchdb.Close()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error shutting down http server", "err", err)
			return
		}
		s.logger.Info("shut down http server successfully")
	}()

	wg.Wait()
}
