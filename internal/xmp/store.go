// Package xmp provides access to the XMP metadata container of media files.
//
// The Store interface is the contract the record layer depends on. Two
// implementations are provided: FileStore, which reads packets embedded in
// media files or kept in sidecar files, and MemStore, an in-memory double.
package xmp

import "iter"

// Schema namespace URIs. They must match exactly for other tools to see the
// same properties.
const (
	SchemaExif = "http://ns.adobe.com/exif/1.0/"
	SchemaDC   = "http://purl.org/dc/elements/1.1/"
	SchemaXMP  = "http://ns.adobe.com/xap/1.0/"

	nsRDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsMeta = "adobe:ns:meta/"
	nsXML  = "http://www.w3.org/XML/1998/namespace"
)

// Property names used by the record layer.
const (
	PropCreateDate       = "xmp:CreateDate"
	PropDateTimeOriginal = "exif:DateTimeOriginal"
	PropCreated          = "dc:created"
	PropSubject          = "dc:subject"
)

// OpenMode selects how a container is opened.
type OpenMode int

const (
	// ModeReadOnly opens only the metadata section; writes are rejected.
	ModeReadOnly OpenMode = iota
	// ModeUpdate allows writes, flushed on Close with CloseSafeUpdate.
	ModeUpdate
)

func (m OpenMode) String() string {
	if m == ModeUpdate {
		return "update"
	}
	return "read-only"
}

// PropFlags describe the shape of a property value.
type PropFlags uint32

const (
	ValueIsArray PropFlags = 1 << iota
	ArrayIsOrdered
	ArrayIsUnordered
)

// CloseFlags control what Close does with pending changes.
type CloseFlags uint32

const (
	// CloseSafeUpdate flushes pending changes atomically.
	CloseSafeUpdate CloseFlags = 1 << iota
	// CloseDiscard drops pending changes.
	CloseDiscard
)

// Store opens metadata containers by file path.
type Store interface {
	Open(path string, mode OpenMode) (Handle, error)
}

// Handle is one open metadata container. Close must be called exactly once
// for every successful Open.
type Handle interface {
	// Property returns a simple property value.
	Property(schema, name string) (string, bool)
	// ArrayItem returns the item at a one-based index of an array property.
	// A missing item signals the end of the array.
	ArrayItem(schema, name string, index int) (string, bool)
	SetProperty(schema, name, value string, flags PropFlags) error
	// AppendArrayItem appends value to an array property, creating it with
	// arrayFlags when absent.
	AppendArrayItem(schema, name string, arrayFlags PropFlags, value string) error
	DeleteProperty(schema, name string) error
	Close(flags CloseFlags) error
}

// ArrayReader is anything that serves one-based array items.
type ArrayReader interface {
	ArrayItem(schema, name string, index int) (string, bool)
}

// ArrayItems yields the items of an array property in index order, stopping
// at the first index with no value.
func ArrayItems(h ArrayReader, schema, name string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := 1; ; i++ {
			v, ok := h.ArrayItem(schema, name, i)
			if !ok || !yield(v) {
				return
			}
		}
	}
}
