package catalog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/starford/mediatag/internal/storage"
	"github.com/starford/mediatag/internal/xmp"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// writeMedia writes a fake media file whose embedded packet carries tags.
// A nil tag list writes a file without metadata.
func writeMedia(t *testing.T, root, rel string, tags ...string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	data := []byte("HEADER")
	if tags != nil {
		pkt := xmp.NewPacket()
		_ = pkt.SetProperty(xmp.SchemaXMP, xmp.PropCreateDate, "2021-05-01T08:00:00Z")
		for _, tag := range tags {
			_ = pkt.AppendArrayItem(xmp.SchemaDC, xmp.PropSubject, xmp.ValueIsArray|xmp.ArrayIsUnordered, tag)
		}
		data = append(data, pkt.Marshal(256)...)
	}
	if err := os.WriteFile(p, append(data, "TRAILER"...), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testSource(t *testing.T) (string, Source) {
	t.Helper()
	root := t.TempDir()
	lib, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, Source{Store: xmp.Rooted(xmp.NewFileStore(), lib.Resolve), Lib: lib, Workers: 2}
}

func TestSync(t *testing.T) {
	root, src := testSource(t)
	db := testDB(t)
	writeMedia(t, root, "a.jpg", "x")
	writeMedia(t, root, "sub/b.png", "y", "z")
	writeMedia(t, root, "plain.jpg")

	var events []string
	cb := func(kind, path string) { events = append(events, kind+":"+path) }

	st, err := Sync(context.Background(), db, src, quietLogger(), cb)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if st.Indexed != 2 || st.Failed != 1 || st.Removed != 0 {
		t.Errorf("stats = %+v", st)
	}
	slices.Sort(events)
	if !slices.Equal(events, []string{"created:a.jpg", "created:sub/b.png"}) {
		t.Errorf("events = %v", events)
	}
	row, err := db.Get("sub/b.png")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(row.Tags, []string{"y", "z"}) || row.Date == nil {
		t.Errorf("row = %+v", row)
	}

	// Second pass: nothing changed.
	events = nil
	st, _ = Sync(context.Background(), db, src, quietLogger(), cb)
	if st.Indexed != 0 || st.Unchanged != 2 || len(events) != 0 {
		t.Errorf("idle stats = %+v events = %v", st, events)
	}

	// Remove one file, change another.
	_ = os.Remove(filepath.Join(root, "a.jpg"))
	writeMedia(t, root, "sub/b.png", "y", "z", "new")
	future := time.Now().Add(2 * time.Second)
	_ = os.Chtimes(filepath.Join(root, "sub", "b.png"), future, future)
	events = nil
	st, _ = Sync(context.Background(), db, src, quietLogger(), cb)
	if st.Indexed != 1 || st.Removed != 1 {
		t.Errorf("stats = %+v", st)
	}
	slices.Sort(events)
	if !slices.Equal(events, []string{"deleted:a.jpg", "updated:sub/b.png"}) {
		t.Errorf("events = %v", events)
	}
}

func TestSync_DropsFileThatLostMetadata(t *testing.T) {
	root, src := testSource(t)
	db := testDB(t)
	writeMedia(t, root, "a.jpg", "x")
	_, _ = Sync(context.Background(), db, src, quietLogger(), nil)

	writeMedia(t, root, "a.jpg")
	future := time.Now().Add(2 * time.Second)
	_ = os.Chtimes(filepath.Join(root, "a.jpg"), future, future)
	st, _ := Sync(context.Background(), db, src, quietLogger(), nil)
	if st.Removed != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRefresh(t *testing.T) {
	root, src := testSource(t)
	db := testDB(t)
	writeMedia(t, root, "a.jpg", "x")

	kind, err := Refresh(db, src, "a.jpg")
	if err != nil || kind != "created" {
		t.Fatalf("Refresh = %q, %v", kind, err)
	}
	if kind, _ := Refresh(db, src, "a.jpg"); kind != "" {
		t.Errorf("unchanged file reported %q", kind)
	}

	// A sidecar changes the fingerprint and takes precedence.
	side := xmp.NewPacket()
	_ = side.AppendArrayItem(xmp.SchemaDC, xmp.PropSubject, xmp.ValueIsArray, "from-sidecar")
	if err := os.WriteFile(filepath.Join(root, "a.jpg.xmp"), side.Marshal(0), 0o644); err != nil {
		t.Fatal(err)
	}
	if kind, _ := Refresh(db, src, "a.jpg"); kind != "updated" {
		t.Errorf("sidecar change reported %q", kind)
	}
	row, _ := db.Get("a.jpg")
	if !slices.Equal(row.Tags, []string{"from-sidecar"}) {
		t.Errorf("tags = %v", row.Tags)
	}

	_ = os.Remove(filepath.Join(root, "a.jpg"))
	if kind, _ := Refresh(db, src, "a.jpg"); kind != "deleted" {
		t.Errorf("removed file reported %q", kind)
	}
	if kind, _ := Refresh(db, src, "a.jpg"); kind != "" {
		t.Errorf("unknown file reported %q", kind)
	}
}
