package kvdb

const (
	// FilesBucket holds one FileRecord per discovered file path.
	FilesBucket = "files"
	// RequestsBucket holds build progress keyed by request ID.
	RequestsBucket = "requests"
)

type DB interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	GetAllKeys(bucket string) ([]string, error)
	DeleteAll(bucket string) error
	Close() error
}
