package storage

// NewJSONRepository opens the file-backed datastore rooted at dir and
// returns it as a Repository.
func NewJSONRepository(dir string, opts ...Option) (Repository, error) {
	return NewStorage(dir, opts...)
}
