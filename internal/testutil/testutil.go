// Package testutil provides shared test helpers for setting up libraries and catalogs.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/mediatag/internal/catalog"
	"github.com/starford/mediatag/internal/storage"
	"github.com/starford/mediatag/internal/xmp"
)

// TestDB creates a temporary catalog database that is automatically cleaned up.
func TestDB(t *testing.T) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "mediatag-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary creates a temporary library directory and a catalog source
// reading it through a FileStore.
func TestLibrary(t *testing.T) (string, catalog.Source) {
	t.Helper()
	root := t.TempDir()
	lib, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, catalog.Source{
		Store:   xmp.Rooted(xmp.NewFileStore(), lib.Resolve),
		Lib:     lib,
		Workers: 2,
	}
}

// WriteMedia writes a fake media file under root. When date or tags are
// given they are embedded as an XMP packet with room for in-place updates;
// otherwise the file carries no metadata.
func WriteMedia(t *testing.T, root, rel, date string, tags ...string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	data := []byte("\xff\xd8\xff\xe1FAKE")
	if date != "" || len(tags) > 0 {
		pkt := xmp.NewPacket()
		if date != "" {
			_ = pkt.SetProperty(xmp.SchemaXMP, xmp.PropCreateDate, date)
		}
		for _, tag := range tags {
			_ = pkt.AppendArrayItem(xmp.SchemaDC, xmp.PropSubject, xmp.ValueIsArray|xmp.ArrayIsUnordered, tag)
		}
		data = append(data, pkt.Marshal(xmp.DefaultPadding)...)
	}
	data = append(data, "IMAGEDATA\xff\xd9"...)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}
