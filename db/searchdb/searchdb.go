package searchdb

type DB interface {
	BuildIndex(documents []Document) error
	DeleteDocuments(documentIDs []string) error
	SearchTerm(term string, limit int) (*TermResult, error)
	GetDocCount() (uint64, error)
	Close() error
}
