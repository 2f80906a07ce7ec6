package xmp

import (
	"errors"
	"sync"

	"github.com/starford/mediatag/internal/apperr"
)

// MemStore is an in-memory Store. Each handle works on a private copy of
// the packet; a CloseSafeUpdate publishes it.
type MemStore struct {
	mu      sync.Mutex
	packets map[string]*Packet
	opens   int
	closes  int
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{packets: make(map[string]*Packet)}
}

var _ Store = (*MemStore)(nil)

// Put installs a packet for path, replacing any existing one.
func (s *MemStore) Put(path string, p *Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets[path] = p.Clone()
}

// Packet returns a copy of the stored packet for path.
func (s *MemStore) Packet(path string) (*Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packets[path]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Remove forgets path.
func (s *MemStore) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.packets, path)
}

// OpenHandles returns the number of handles opened but not yet closed.
func (s *MemStore) OpenHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens - s.closes
}

// Open opens path. Unknown paths fail in read-only mode and start empty in
// update mode.
func (s *MemStore) Open(path string, mode OpenMode) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packets[path]
	switch {
	case ok:
		p = p.Clone()
	case mode == ModeReadOnly:
		return nil, &apperr.OpenError{Path: path, Reason: "cannot read metadata", Err: apperr.ErrNoMetadata}
	default:
		p = NewPacket()
	}
	s.opens++
	return &memHandle{store: s, path: path, mode: mode, packet: p}, nil
}

type memHandle struct {
	store  *MemStore
	path   string
	mode   OpenMode
	packet *Packet
	dirty  bool
	closed bool
}

func (h *memHandle) Property(schema, name string) (string, bool) {
	return h.packet.Property(schema, name)
}

func (h *memHandle) ArrayItem(schema, name string, index int) (string, bool) {
	return h.packet.ArrayItem(schema, name, index)
}

func (h *memHandle) check(name string) error {
	if h.closed {
		return &apperr.SerializeError{Path: h.path, Property: name, Err: errors.New("handle closed")}
	}
	if h.mode != ModeUpdate {
		return &apperr.SerializeError{Path: h.path, Property: name, Err: apperr.ErrReadOnly}
	}
	return nil
}

func (h *memHandle) SetProperty(schema, name, value string, _ PropFlags) error {
	if err := h.check(name); err != nil {
		return err
	}
	if err := h.packet.SetProperty(schema, name, value); err != nil {
		return &apperr.SerializeError{Path: h.path, Property: name, Err: err}
	}
	h.dirty = true
	return nil
}

func (h *memHandle) AppendArrayItem(schema, name string, arrayFlags PropFlags, value string) error {
	if err := h.check(name); err != nil {
		return err
	}
	if err := h.packet.AppendArrayItem(schema, name, arrayFlags, value); err != nil {
		return &apperr.SerializeError{Path: h.path, Property: name, Err: err}
	}
	h.dirty = true
	return nil
}

func (h *memHandle) DeleteProperty(schema, name string) error {
	if err := h.check(name); err != nil {
		return err
	}
	h.packet.DeleteProperty(schema, name)
	h.dirty = true
	return nil
}

func (h *memHandle) Close(flags CloseFlags) error {
	if h.closed {
		return &apperr.CloseError{Path: h.path, Err: errors.New("handle already closed")}
	}
	h.closed = true
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.closes++
	if h.mode == ModeUpdate && h.dirty && flags&CloseSafeUpdate != 0 && flags&CloseDiscard == 0 {
		h.store.packets[h.path] = h.packet
	}
	return nil
}
