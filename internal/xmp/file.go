package xmp

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/starford/mediatag/internal/apperr"
	"github.com/starford/mediatag/internal/storage"
)

// WriteMode selects where FileStore flushes updated packets.
type WriteMode int

const (
	// WriteEmbedded rewrites the packet inside the media file when the new
	// packet fits in the old one's space, and falls back to the sidecar.
	WriteEmbedded WriteMode = iota
	// WriteSidecar never modifies media files.
	WriteSidecar
)

// ParseWriteMode maps a config value to a WriteMode.
func ParseWriteMode(s string) (WriteMode, error) {
	switch s {
	case "", "embedded":
		return WriteEmbedded, nil
	case "sidecar":
		return WriteSidecar, nil
	}
	return WriteEmbedded, fmt.Errorf("xmp: unknown write mode %q", s)
}

// FileStore is the file-backed Store. A sidecar ("photo.jpg.xmp") takes
// precedence over the packet embedded in the media file.
type FileStore struct {
	writeMode WriteMode
	padding   int
}

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithWriteMode sets where updates are flushed.
func WithWriteMode(m WriteMode) FileOption {
	return func(s *FileStore) { s.writeMode = m }
}

// WithPadding sets the whitespace reserved in newly written packets.
func WithPadding(n int) FileOption {
	return func(s *FileStore) {
		if n >= 0 {
			s.padding = n
		}
	}
}

// NewFileStore creates a FileStore.
func NewFileStore(opts ...FileOption) *FileStore {
	s := &FileStore{writeMode: WriteEmbedded, padding: DefaultPadding}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Store = (*FileStore)(nil)

type source int

const (
	sourceNone source = iota
	sourceSidecar
	sourceEmbedded
)

type fileHandle struct {
	store   *FileStore
	path    string
	mode    OpenMode
	packet  *Packet
	source  source
	region  region
	size    int64
	modTime time.Time
	perm    fs.FileMode
	dirty   bool
	closed  bool
}

// Open opens the metadata container of the file at path.
func (s *FileStore) Open(path string, mode OpenMode) (Handle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &apperr.OpenError{Path: path, Reason: "cannot open file", Err: err}
	}
	if info.IsDir() {
		return nil, &apperr.OpenError{Path: path, Reason: "is a directory"}
	}
	h := &fileHandle{
		store:   s,
		path:    path,
		mode:    mode,
		size:    info.Size(),
		modTime: info.ModTime(),
		perm:    info.Mode().Perm(),
	}

	data, err := os.ReadFile(storage.SidecarPath(path))
	switch {
	case err == nil:
		pkt, perr := ParsePacket(data)
		if perr != nil {
			return nil, &apperr.OpenError{Path: path, Reason: "invalid sidecar packet", Err: perr}
		}
		h.packet, h.source = pkt, sourceSidecar
		return h, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, &apperr.OpenError{Path: path, Reason: "cannot read sidecar", Err: err}
	}

	pkt, reg, found, err := readEmbedded(path, info.Size())
	if err != nil {
		return nil, &apperr.OpenError{Path: path, Reason: "cannot read file", Err: err}
	}
	switch {
	case found && pkt == nil:
		return nil, &apperr.OpenError{Path: path, Reason: "invalid embedded packet"}
	case found:
		h.packet, h.source, h.region = pkt, sourceEmbedded, reg
	case mode == ModeReadOnly:
		return nil, &apperr.OpenError{Path: path, Reason: "cannot read metadata", Err: apperr.ErrNoMetadata}
	default:
		h.packet, h.source = NewPacket(), sourceNone
	}
	return h, nil
}

// readEmbedded returns found=true with a nil packet when a packet exists but
// does not parse.
func readEmbedded(path string, size int64) (*Packet, region, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, region{}, false, err
	}
	defer f.Close()

	reg, found, err := locatePacket(f, size)
	if err != nil || !found {
		return nil, region{}, false, err
	}
	raw, err := readRegion(f, reg)
	if err != nil {
		return nil, region{}, false, err
	}
	pkt, err := ParsePacket(raw)
	if err != nil {
		return nil, reg, true, nil
	}
	return pkt, reg, true, nil
}

func (h *fileHandle) Property(schema, name string) (string, bool) {
	return h.packet.Property(schema, name)
}

func (h *fileHandle) ArrayItem(schema, name string, index int) (string, bool) {
	return h.packet.ArrayItem(schema, name, index)
}

func (h *fileHandle) writable(name string) error {
	if h.closed {
		return &apperr.SerializeError{Path: h.path, Property: name, Err: errors.New("handle closed")}
	}
	if h.mode != ModeUpdate {
		return &apperr.SerializeError{Path: h.path, Property: name, Err: apperr.ErrReadOnly}
	}
	return nil
}

func (h *fileHandle) SetProperty(schema, name, value string, _ PropFlags) error {
	if err := h.writable(name); err != nil {
		return err
	}
	if err := h.packet.SetProperty(schema, name, value); err != nil {
		return &apperr.SerializeError{Path: h.path, Property: name, Err: err}
	}
	h.dirty = true
	return nil
}

func (h *fileHandle) AppendArrayItem(schema, name string, arrayFlags PropFlags, value string) error {
	if err := h.writable(name); err != nil {
		return err
	}
	if err := h.packet.AppendArrayItem(schema, name, arrayFlags, value); err != nil {
		return &apperr.SerializeError{Path: h.path, Property: name, Err: err}
	}
	h.dirty = true
	return nil
}

func (h *fileHandle) DeleteProperty(schema, name string) error {
	if err := h.writable(name); err != nil {
		return err
	}
	h.packet.DeleteProperty(schema, name)
	h.dirty = true
	return nil
}

func (h *fileHandle) Close(flags CloseFlags) error {
	if h.closed {
		return &apperr.CloseError{Path: h.path, Err: errors.New("handle already closed")}
	}
	h.closed = true
	if h.mode != ModeUpdate || !h.dirty || flags&CloseDiscard != 0 || flags&CloseSafeUpdate == 0 {
		return nil
	}
	if err := h.flush(); err != nil {
		return &apperr.CloseError{Path: h.path, Err: err}
	}
	return nil
}

func (h *fileHandle) flush() error {
	if h.source == sourceEmbedded && h.store.writeMode == WriteEmbedded {
		if data, ok := h.packet.MarshalSized(int(h.region.n)); ok {
			return h.rewriteEmbedded(data)
		}
	}
	perm := fs.FileMode(0o644)
	if h.source == sourceSidecar {
		if info, err := os.Stat(storage.SidecarPath(h.path)); err == nil {
			perm = info.Mode().Perm()
		}
	}
	return storage.WriteFileAtomic(storage.SidecarPath(h.path), h.packet.Marshal(h.store.padding), perm)
}

// rewriteEmbedded replaces the packet bytes in a copy of the media file and
// renames it over the original. The file must be unchanged since Open.
func (h *fileHandle) rewriteEmbedded(data []byte) error {
	f, err := os.Open(h.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() != h.size || !info.ModTime().Equal(h.modTime) {
		return fmt.Errorf("file changed since open: %w", apperr.ErrConflict)
	}

	tail := h.region.off + h.region.n
	return storage.WriteAtomic(h.path, h.perm, func(w io.Writer) error {
		if _, err := io.Copy(w, io.NewSectionReader(f, 0, h.region.off)); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		_, err := io.Copy(w, io.NewSectionReader(f, tail, h.size-tail))
		return err
	})
}
