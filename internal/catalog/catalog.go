package catalog

// Catalog defines the record mirror operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type Catalog interface {
	Upsert(r Row) error
	Delete(path string) error
	Get(path string) (*Row, error)
	List(limit, offset int, tag string) ([]Row, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Records() ([]Row, error)
	Fingerprints() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies Catalog at compile time.
var _ Catalog = (*DB)(nil)
