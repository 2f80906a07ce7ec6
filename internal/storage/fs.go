package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/starford/mediatag/internal/checksum"
	"github.com/starford/mediatag/internal/models"
)

// SidecarExt is the extension of XMP sidecar files.
const SidecarExt = ".xmp"

// DefaultExtensions lists the image and video formats scanned by default.
var DefaultExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".tif", ".tiff", ".heic", ".heif",
	".dng", ".cr2", ".nef", ".arw",
	".mp4", ".mov", ".m4v", ".mkv", ".avi",
}

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to library directory
	exts map[string]struct{}
}

// Option configures an FS.
type Option func(*FS)

// WithExtensions overrides the accepted media extensions.
func WithExtensions(exts []string) Option {
	return func(f *FS) {
		f.exts = make(map[string]struct{}, len(exts))
		for _, e := range exts {
			e = strings.ToLower(e)
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			f.exts[e] = struct{}{}
		}
	}
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...Option) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{root: abs}
	WithExtensions(DefaultExtensions)(f)
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute library root.
func (f *FS) Root() string { return f.root }

// Resolve resolves a relative path against the library root and rejects
// any result that escapes it (directory traversal).
func (f *FS) Resolve(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes library root: %s", rel)
	}
	return abs, nil
}

// Rel returns the slash-separated path of abs relative to the root.
func (f *FS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return "", fmt.Errorf("storage: rel: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path outside library root: %s", abs)
	}
	return filepath.ToSlash(rel), nil
}

// Accepts reports whether name carries one of the configured extensions.
func (f *FS) Accepts(name string) bool {
	_, ok := f.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

// List walks dir (relative to root) and returns an entry for every media
// file. Hidden files and directories are skipped; unreadable subtrees are
// skipped rather than aborting the walk.
func (f *FS) List(dir string) ([]models.MediaFile, error) {
	base, err := f.Resolve(dir)
	if err != nil {
		return nil, err
	}
	var out []models.MediaFile
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == base {
				return walkErr
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p != base && isHidden(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !f.Accepts(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := f.Rel(p)
		if err != nil {
			return nil
		}
		out = append(out, f.entry(rel, p, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	slices.SortFunc(out, func(a, b models.MediaFile) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// Stat returns the listing entry for a single media file.
func (f *FS) Stat(rel string) (models.MediaFile, error) {
	abs, err := f.Resolve(rel)
	if err != nil {
		return models.MediaFile{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return models.MediaFile{}, fmt.Errorf("storage: stat %s: %w", rel, err)
	}
	if info.IsDir() {
		return models.MediaFile{}, fmt.Errorf("storage: %s is a directory", rel)
	}
	return f.entry(filepath.ToSlash(filepath.Clean(rel)), abs, info), nil
}

func (f *FS) entry(rel, abs string, info fs.FileInfo) models.MediaFile {
	var sidecarMod time.Time
	if si, err := os.Stat(SidecarPath(abs)); err == nil {
		sidecarMod = si.ModTime()
	}
	return models.MediaFile{
		Path:        rel,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		Fingerprint: checksum.Fingerprint(info.Size(), info.ModTime(), sidecarMod),
	}
}

// SidecarPath returns the XMP sidecar kept next to a media file
// ("photo.jpg" -> "photo.jpg.xmp"). An .xmp file is its own sidecar.
func SidecarPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), SidecarExt) {
		return path
	}
	return path + SidecarExt
}

// IsSidecar reports whether path names an XMP sidecar file.
func IsSidecar(path string) bool {
	return strings.EqualFold(filepath.Ext(path), SidecarExt)
}

// WriteFileAtomic atomically replaces path with data.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	return WriteAtomic(path, perm, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
}

// WriteAtomic atomically writes path: tmp file → fill → fsync → rename.
// The original file is untouched if any step fails.
func WriteAtomic(path string, perm fs.FileMode, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".mediatag-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := fill(tmp); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil && !errors.Is(err, errors.ErrUnsupported) {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
