package searchdb

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/docsignal/docsignal/config"
	"github.com/docsignal/docsignal/logger"
)

// IndexingBatchSize is the number of documents indexed per bleve batch.
const IndexingBatchSize = 100

const snippetContext = 100

const (
	indexFieldContent = "content"
	indexFieldName    = "name"
	indexFieldPath    = "path"
	indexFieldSize    = "size"
)

type BleveDB struct {
	indexPath string
	logger    logger.Logger
	index     bleve.Index
}

func New(logger logger.Logger, cfg *config.Config) (*BleveDB, error) {
	mapping := createIndexMapping()
	indexPath := filepath.Join(cfg.GetStoragePath(), cfg.GetIndexPath())
	index, err := bleve.New(indexPath, mapping)
	if err != nil {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Error("could not open index", "err", err.Error())
			return nil, err
		}
	}
	return &BleveDB{indexPath: indexPath, logger: logger, index: index}, nil
}

func createIndexMapping() mapping.IndexMapping {

	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Path field - not analyzed (exact match)
	pathFieldMapping := bleve.NewTextFieldMapping()
	pathFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt(indexFieldPath, pathFieldMapping)

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(indexFieldName, nameFieldMapping)

	// Content is indexed for searching but not stored; snippets are read
	// back from the file on disk using match locations.
	contentFieldMapping := bleve.NewTextFieldMapping()
	contentFieldMapping.Analyzer = standard.Name
	contentFieldMapping.Store = false
	contentFieldMapping.Index = true
	docMapping.AddFieldMappingsAt(indexFieldContent, contentFieldMapping)

	sizeFieldMapping := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt(indexFieldSize, sizeFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

func (b *BleveDB) BuildIndex(documents []Document) error {

	batch := b.index.NewBatch()

	for i, doc := range documents {

		if err := batch.Index(doc.ID, doc); err != nil {
			b.logger.Error("could not index document", "err", err.Error())
			return err
		}

		if (i+1)%IndexingBatchSize == 0 {
			if err := b.index.Batch(batch); err != nil {
				return err
			}
			batch = b.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			b.logger.Error("could not index document", "err", err.Error())
			return err
		}
	}

	return nil
}

func (b *BleveDB) DeleteDocuments(documentIDs []string) error {
	batch := b.index.NewBatch()

	for i, docID := range documentIDs {
		batch.Delete(docID)

		if (i+1)%IndexingBatchSize == 0 {
			if err := b.index.Batch(batch); err != nil {
				return err
			}
			batch = b.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			b.logger.Error("could not delete documents", "err", err.Error())
			return err
		}
	}

	return nil
}

// SearchTerm runs a single already-normalized term against the index and
// returns every matching file with its occurrence count and a snippet around
// the first content match.
func (b *BleveDB) SearchTerm(term string, limit int) (*TermResult, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return &TermResult{Term: term}, nil
	}

	searchQuery := buildTermQuery(term)
	searchRequest := bleve.NewSearchRequestOptions(searchQuery, limit, 0, false)
	searchRequest.Fields = []string{indexFieldPath, indexFieldName, indexFieldSize}
	searchRequest.IncludeLocations = true

	searchResult, err := b.index.Search(searchRequest)
	if err != nil {
		b.logger.Error("term search failed", "term", term, "err", err.Error())
		return nil, fmt.Errorf("search failed for term %q: %w", term, err)
	}

	hits := make([]TermHit, len(searchResult.Hits))
	for i, hit := range searchResult.Hits {
		termHit := TermHit{
			Score: hit.Score,
			Count: countLocations(hit.Locations),
		}
		if path, ok := hit.Fields[indexFieldPath].(string); ok {
			termHit.Path = path
		}
		if name, ok := hit.Fields[indexFieldName].(string); ok {
			termHit.Name = name
		}
		termHit.Snippet = b.extractSnippet(termHit.Path, hit.Locations)
		hits[i] = termHit
	}

	return &TermResult{
		Term:  term,
		Hits:  hits,
		Total: searchResult.Total,
	}, nil
}

func buildTermQuery(term string) query.Query {
	const (
		boostForContent  = 3.0
		boostForFileName = 2.0
		boostForPath     = 1.0
	)

	disjunctQuery := bleve.NewDisjunctionQuery()

	contentQuery := bleve.NewMatchQuery(term)
	contentQuery.SetField(indexFieldContent)
	contentQuery.SetBoost(boostForContent)
	disjunctQuery.AddQuery(contentQuery)

	nameQuery := bleve.NewMatchQuery(term)
	nameQuery.SetField(indexFieldName)
	nameQuery.SetBoost(boostForFileName)
	disjunctQuery.AddQuery(nameQuery)

	pathQuery := bleve.NewMatchQuery(term)
	pathQuery.SetField(indexFieldPath)
	pathQuery.SetBoost(boostForPath)
	disjunctQuery.AddQuery(pathQuery)

	return disjunctQuery
}

func countLocations(locations search.FieldTermLocationMap) int {
	count := 0
	for _, termLocations := range locations {
		for _, positions := range termLocations {
			count += len(positions)
		}
	}
	return count
}

func (b *BleveDB) GetDocCount() (uint64, error) {
	return b.index.DocCount()
}

func (b *BleveDB) Close() error {

	if b.index != nil {
		if err := b.index.Close(); err != nil {
			b.logger.Error("could not close search index", "err", err.Error())
			return err
		}
	}
	return nil
}

func (b *BleveDB) extractSnippet(filePath string, locations search.FieldTermLocationMap) string {
	contentLocations, hasContentMatch := locations[indexFieldContent]
	if !hasContentMatch || len(contentLocations) == 0 {
		return ""
	}

	snippet, err := b.readSnippetFromLocation(filePath, contentLocations)
	if err != nil {
		b.logger.Warn("failed to extract snippet from file", "path", filePath, "err", err.Error())
		return ""
	}

	return snippet
}

func (b *BleveDB) readSnippetFromLocation(filePath string, termLocations search.TermLocationMap) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return "", err
	}
	fileSize := fileInfo.Size()

	var matchStart, matchEnd uint64
	found := false

	for _, locations := range termLocations {
		if len(locations) > 0 && locations[0] != nil {
			matchStart = locations[0].Start
			matchEnd = locations[0].End
			found = true
			break
		}
	}

	if !found || matchStart >= uint64(fileSize) {
		return "", nil
	}
	if matchEnd > uint64(fileSize) {
		matchEnd = uint64(fileSize)
	}

	snippetStart := max(0, int64(matchStart)-int64(snippetContext))
	snippetEnd := min(fileSize, int64(matchEnd)+int64(snippetContext))
	bufferSize := snippetEnd - snippetStart
	if bufferSize <= 0 {
		return "", nil
	}

	buffer := make([]byte, bufferSize)
	if _, err := file.ReadAt(buffer, snippetStart); err != nil && err != io.EOF {
		return "", err
	}

	return formatSnippet(string(buffer), snippetStart, snippetEnd, fileSize), nil
}

func formatSnippet(snippet string, snippetStart int64, snippetEnd int64, fileSize int64) string {
	snippet = strings.TrimSpace(snippet)
	if snippetStart > 0 {
		snippet = "..." + snippet
	}
	if snippetEnd < fileSize {
		snippet = snippet + "..."
	}

	return snippet
}
