// Package storage defines the media library file-system abstraction.
package storage

import "github.com/starford/mediatag/internal/models"

// Provider is the interface for media library file operations.
type Provider interface {
	// Root returns the absolute library root.
	Root() string
	// Resolve maps a library-relative path to an absolute one, rejecting
	// paths that escape the root.
	Resolve(rel string) (string, error)
	// Rel maps an absolute path inside the library to a relative one.
	Rel(abs string) (string, error)
	// Accepts reports whether a file name has a media extension.
	Accepts(name string) bool
	// List returns every media file under dir (relative to the root).
	List(dir string) ([]models.MediaFile, error)
	// Stat returns the listing entry for one media file.
	Stat(rel string) (models.MediaFile, error)
}
