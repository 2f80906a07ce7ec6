package xmp

import "github.com/starford/mediatag/internal/apperr"

// ResolveFunc maps a caller-facing path to the path the underlying store
// understands.
type ResolveFunc func(path string) (string, error)

// Rooted returns a Store that resolves every path before opening it, so
// callers can address files relative to a library root.
func Rooted(s Store, resolve ResolveFunc) Store {
	return &rooted{store: s, resolve: resolve}
}

type rooted struct {
	store   Store
	resolve ResolveFunc
}

func (r *rooted) Open(path string, mode OpenMode) (Handle, error) {
	abs, err := r.resolve(path)
	if err != nil {
		return nil, &apperr.OpenError{Path: path, Reason: "invalid path", Err: err}
	}
	return r.store.Open(abs, mode)
}
