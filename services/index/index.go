package index

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docsignal/docsignal/db/kvdb"
	"github.com/docsignal/docsignal/db/searchdb"
	"github.com/docsignal/docsignal/logger"
	"github.com/docsignal/docsignal/services/progress"
	"github.com/docsignal/docsignal/services/readiness"
)

// Indexer represents the search database operations needed for index building
type Indexer interface {
	BuildIndex(documents []searchdb.Document) error
	DeleteDocuments(documentIDs []string) error
}

const (
	ProgressStatusStep1    = 10
	ProgressStatusComplete = 100
	ProgressStatusFailed   = -1

	maxConcurrentBatches = 8
	maxIndexBuildingTime = 2 * time.Hour
)

// Service builds the search index in three priority groups and reports
// their statuses as one batch, implementing progress.StatusSource.
type Service struct {
	logger  logger.Logger
	indexer Indexer
	records RecordStore
	buildC  chan buildRequest

	mu           sync.Mutex
	groups       map[progress.Tier]progress.TierStatus
	overall      progress.OverallStatus
	currentGroup progress.Tier
}

type buildRequest struct {
	rootPath       string
	excludeFolders []string
	requestID      string
}

func New(ctx context.Context, logger logger.Logger, indexer Indexer, records RecordStore) *Service {
	groups := make(map[progress.Tier]progress.TierStatus, 3)
	for _, tier := range progress.Tiers() {
		groups[tier] = progress.TierPending
	}

	indexService := &Service{
		logger:  logger,
		indexer: indexer,
		records: records,
		buildC:  make(chan buildRequest),
		groups:  groups,
		overall: progress.OverallIdle,
	}

	go indexService.buildLoop(ctx)
	return indexService
}

// Build queues an incremental index build. Only one build runs at a time.
func (s *Service) Build(rootPath string, excludeFolders []string, requestID string) error {

	s.setRequestStatus(requestID, 0)

	select {
	case s.buildC <- buildRequest{rootPath: rootPath, excludeFolders: excludeFolders, requestID: requestID}:
		return nil
	default:
		s.logger.Warn("request to index while indexing is already in progress")
		return errors.New("indexing already in progress")
	}
}

// IndexStatus reports every group's status atomically in one batch.
func (s *Service) IndexStatus(_ context.Context) (progress.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groupStatus := make(map[progress.Tier]progress.TierStatus, len(s.groups))
	for tier, status := range s.groups {
		groupStatus[tier] = status
	}

	return progress.Report{
		Status:       s.overall,
		GroupStatus:  groupStatus,
		CurrentGroup: s.currentGroup,
	}, nil
}

// GetStatus retrieves the stored progress percentage for a build request
func (s *Service) GetStatus(requestID string) (int, error) {
	value, err := s.records.Get(kvdb.RequestsBucket, requestID)
	if err != nil {
		return 0, fmt.Errorf("request not found: %w", err)
	}

	status, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid status value: %w", err)
	}

	return status, nil
}

// ClearAll removes every indexed document and stored record and returns the
// group state machine to pending. Backs the destructive delete-all path.
func (s *Service) ClearAll() error {
	paths, err := s.records.GetAllKeys(kvdb.FilesBucket)
	if err != nil {
		return fmt.Errorf("failed to list indexed files: %w", err)
	}

	if len(paths) > 0 {
		if err := s.indexer.DeleteDocuments(paths); err != nil {
			s.logger.Error("failed to delete documents from search index", "err", err.Error())
			return fmt.Errorf("failed to delete documents from search index: %w", err)
		}
	}

	if err := s.records.DeleteAll(kvdb.FilesBucket); err != nil {
		return fmt.Errorf("failed to clear file records: %w", err)
	}
	if err := s.records.DeleteAll(kvdb.RequestsBucket); err != nil {
		return fmt.Errorf("failed to clear request records: %w", err)
	}

	s.mu.Lock()
	for _, tier := range progress.Tiers() {
		s.groups[tier] = progress.TierPending
	}
	s.overall = progress.OverallIdle
	s.currentGroup = ""
	s.mu.Unlock()

	s.logger.Info("cleared all documents and records", "count", len(paths))
	return nil
}

func (s *Service) buildLoop(ctx context.Context) {
	for {
		select {
		case req := <-s.buildC:
			buildCtx, cancel := context.WithTimeout(ctx, maxIndexBuildingTime)
			s.buildIndex(buildCtx, req)
			cancel()
		case <-ctx.Done():
			s.logger.Info("index service stopped", "reason", ctx.Err())
			return
		}
	}
}

func (s *Service) buildIndex(ctx context.Context, req buildRequest) {
	s.mu.Lock()
	for _, tier := range progress.Tiers() {
		s.groups[tier] = progress.TierPending
	}
	s.overall = progress.OverallRunning
	s.currentGroup = ""
	s.mu.Unlock()

	files, err := s.discoverModifiedFiles(req.rootPath, req.excludeFolders)
	if err != nil {
		s.failBuild(req.requestID, err)
		return
	}
	s.logger.Info("discovered modified files", "num_of_files", len(files))
	s.setRequestStatus(req.requestID, ProgressStatusStep1)

	deletedPaths, err := s.getDeletedPaths()
	if err != nil {
		s.failBuild(req.requestID, err)
		return
	}
	if err := s.removeDeletedFiles(deletedPaths); err != nil {
		s.failBuild(req.requestID, err)
		return
	}

	buildStart := time.Now().UTC()
	tiers := splitByTier(files)

	// Every discovered file is visible as processing before its group runs.
	for tier, tierFiles := range tiers {
		for _, file := range tierFiles {
			s.setFileRecord(file.Path, kvdb.FileRecord{
				Status: string(readiness.StatusProcessing),
				Tier:   string(tier),
			})
		}
	}

	done := 0
	for _, tier := range progress.Tiers() {
		s.setGroupStatus(tier, progress.TierRunning)

		if err := s.buildTier(ctx, tier, tiers[tier], buildStart); err != nil {
			s.logger.Error("failed to build index group", "request_id", req.requestID,
				"group", string(tier), "err", err.Error())
			s.setGroupStatus(tier, progress.TierError)
			s.failBuild(req.requestID, err)
			return
		}

		s.setGroupStatus(tier, progress.TierCompleted)
		done += len(tiers[tier])
		s.setRequestStatus(req.requestID,
			getProgressPercentage(done, len(files), ProgressStatusStep1, ProgressStatusComplete))
	}

	s.mu.Lock()
	s.overall = progress.OverallCompleted
	s.currentGroup = ""
	s.mu.Unlock()
	s.setRequestStatus(req.requestID, ProgressStatusComplete)
	s.logger.Info("finished building index", "request_id", req.requestID, "files", len(files))
}

// buildTier extracts and indexes one group's files, a bounded number of
// batches in flight at a time.
func (s *Service) buildTier(ctx context.Context, tier progress.Tier, files []FileInfo, buildStart time.Time) error {
	if len(files) == 0 {
		return nil
	}

	s.logger.Info("building index group", "group", string(tier), "files", len(files))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentBatches)

	for start := 0; start < len(files); start += searchdb.IndexingBatchSize {
		batch := files[start:min(start+searchdb.IndexingBatchSize, len(files))]
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			return s.buildBatch(tier, batch, buildStart)
		})
	}

	return group.Wait()
}

func (s *Service) buildBatch(tier progress.Tier, files []FileInfo, buildStart time.Time) error {
	var documents []searchdb.Document
	var extracted []struct {
		path      string
		charCount *int64
		isText    bool
	}

	for _, file := range files {
		doc, charCount, err := extractDocument(file)
		if err != nil {
			s.logger.Error("error processing file", "path", file.Path, "err", err.Error())
			s.setFileRecord(file.Path, kvdb.FileRecord{
				Status:      string(readiness.StatusError),
				Tier:        string(tier),
				Error:       err.Error(),
				LastIndexed: buildStart,
			})
			continue
		}
		documents = append(documents, *doc)
		extracted = append(extracted, struct {
			path      string
			charCount *int64
			isText    bool
		}{path: file.Path, charCount: charCount, isText: file.IsText})
	}

	if len(documents) == 0 {
		return nil
	}

	if err := s.indexer.BuildIndex(documents); err != nil {
		s.logger.Error("failed to build index for batch", "group", string(tier), "err", err.Error())
		return err
	}

	for _, file := range extracted {
		status := readiness.StatusNotChecked
		if !file.isText {
			status = readiness.StatusUnsupported
		}
		s.setFileRecord(file.path, kvdb.FileRecord{
			Status:      string(status),
			CharCount:   file.charCount,
			Tier:        string(tier),
			LastIndexed: buildStart,
		})
	}

	return nil
}

func (s *Service) removeDeletedFiles(deletedPaths []string) error {
	if len(deletedPaths) == 0 {
		return nil
	}
	s.logger.Info("removing deleted files from index", "deleted_files", len(deletedPaths))
	if err := s.indexer.DeleteDocuments(deletedPaths); err != nil {
		s.logger.Error("failed to delete documents from search index", "err", err.Error())
		return fmt.Errorf("failed to delete documents from search index: %w", err)
	}

	for _, path := range deletedPaths {
		if err := s.records.Delete(kvdb.FilesBucket, path); err != nil {
			s.logger.Error("failed to delete file record", "path", path, "err", err.Error())
		}
	}
	return nil
}

func (s *Service) setGroupStatus(tier progress.Tier, status progress.TierStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[tier] = status
	if status == progress.TierRunning {
		s.currentGroup = tier
	}
	if status == progress.TierError {
		s.overall = progress.OverallError
	}
}

func (s *Service) failBuild(requestID string, err error) {
	s.mu.Lock()
	s.overall = progress.OverallError
	s.mu.Unlock()
	s.setRequestStatus(requestID, ProgressStatusFailed)
	s.logger.Error("failed to build index", "request_id", requestID, "err", err.Error())
}

func (s *Service) setRequestStatus(requestID string, status int) {
	if err := s.records.Set(kvdb.RequestsBucket, requestID, strconv.Itoa(status)); err != nil {
		s.logger.Error("failed to update request status", "request_id", requestID, "err", err.Error())
	}
}

func getProgressPercentage(done int, total int, initial int, final int) int {
	if done == 0 || total == 0 {
		return initial
	}

	if done >= total {
		return final
	}

	progress := float64(done) / float64(total)
	result := float64(initial) + progress*float64(final-initial)

	return int(result)
}
