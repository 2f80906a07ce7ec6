package record

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/starford/mediatag/internal/apperr"
	"github.com/starford/mediatag/internal/dates"
	"github.com/starford/mediatag/internal/xmp"
)

func seed(s *xmp.MemStore, path string, props map[string]string, tags ...string) {
	p := xmp.NewPacket()
	schemas := map[string]string{
		xmp.PropCreateDate:       xmp.SchemaXMP,
		xmp.PropDateTimeOriginal: xmp.SchemaExif,
		xmp.PropCreated:          xmp.SchemaDC,
	}
	for name, v := range props {
		_ = p.SetProperty(schemas[name], name, v)
	}
	for _, tag := range tags {
		_ = p.AppendArrayItem(xmp.SchemaDC, xmp.PropSubject, xmp.ValueIsArray|xmp.ArrayIsUnordered, tag)
	}
	s.Put(path, p)
}

// probeStore serves a fixed index->value map for dc:subject and records
// which indices were requested.
type probeStore struct {
	items  map[int]string
	probed []int
	closed int
}

func (s *probeStore) Open(string, xmp.OpenMode) (xmp.Handle, error) { return s, nil }
func (s *probeStore) Property(string, string) (string, bool)       { return "", false }
func (s *probeStore) ArrayItem(_, _ string, i int) (string, bool) {
	s.probed = append(s.probed, i)
	v, ok := s.items[i]
	return v, ok
}
func (s *probeStore) SetProperty(string, string, string, xmp.PropFlags) error { return nil }
func (s *probeStore) AppendArrayItem(string, string, xmp.PropFlags, string) error {
	return nil
}
func (s *probeStore) DeleteProperty(string, string) error { return nil }
func (s *probeStore) Close(xmp.CloseFlags) error {
	s.closed++
	return nil
}

// failStore wraps a MemStore and fails writes to one property.
type failStore struct {
	*xmp.MemStore
	failProp  string
	failClose bool
	closes    []xmp.CloseFlags
}

type failHandle struct {
	xmp.Handle
	s *failStore
}

func (s *failStore) Open(path string, mode xmp.OpenMode) (xmp.Handle, error) {
	h, err := s.MemStore.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return &failHandle{Handle: h, s: s}, nil
}

func (h *failHandle) SetProperty(schema, name, value string, flags xmp.PropFlags) error {
	if name == h.s.failProp {
		return &apperr.SerializeError{Property: name, Err: errors.New("boom")}
	}
	return h.Handle.SetProperty(schema, name, value, flags)
}

func (h *failHandle) AppendArrayItem(schema, name string, f xmp.PropFlags, value string) error {
	if name == h.s.failProp {
		return &apperr.SerializeError{Property: name, Err: errors.New("boom")}
	}
	return h.Handle.AppendArrayItem(schema, name, f, value)
}

func (h *failHandle) Close(flags xmp.CloseFlags) error {
	h.s.closes = append(h.s.closes, flags)
	err := h.Handle.Close(flags)
	if h.s.failClose {
		return &apperr.CloseError{Err: errors.New("disk full")}
	}
	return err
}

func TestRead_ResolvesLastParsedDate(t *testing.T) {
	s := xmp.NewMemStore()
	seed(s, "a.jpg", map[string]string{
		xmp.PropCreateDate:       "2022-01-01T00:00:00+00:00",
		xmp.PropDateTimeOriginal: "2023-06-15T10:20:30+02:00",
		xmp.PropCreated:          "garbage",
	}, "x")

	rec, err := Read(s, "a.jpg")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := time.Date(2023, 6, 15, 8, 20, 30, 0, time.UTC)
	if rec.Date == nil || !rec.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", rec.Date, want)
	}
	if s.OpenHandles() != 0 {
		t.Error("handle leaked")
	}

	first, _ := ReadWith(s, "a.jpg", dates.Resolver{Precedence: dates.FirstWins})
	if first.Date == nil || first.Date.Year() != 2022 {
		t.Errorf("FirstWins Date = %v", first.Date)
	}
}

func TestRead_MissingFieldsAreEmpty(t *testing.T) {
	s := xmp.NewMemStore()
	seed(s, "a.jpg", nil)
	rec, err := Read(s, "a.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Date != nil || len(rec.Tags()) != 0 {
		t.Errorf("rec = %+v", rec)
	}
}

func TestRead_OpenError(t *testing.T) {
	_, err := Read(xmp.NewMemStore(), "nope.jpg")
	var oe *apperr.OpenError
	if !errors.As(err, &oe) {
		t.Errorf("err = %v, want OpenError", err)
	}
}

func TestRead_ArrayTermination(t *testing.T) {
	ps := &probeStore{items: map[int]string{1: "a", 2: "b", 3: "c", 5: "orphan"}}
	rec, err := Read(ps, "x")
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.Tags(); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("tags = %v", got)
	}
	if !slices.Equal(ps.probed, []int{1, 2, 3, 4}) {
		t.Errorf("probed = %v", ps.probed)
	}
	if ps.closed != 1 {
		t.Errorf("closed = %d, want 1", ps.closed)
	}

	empty := &probeStore{items: map[int]string{2: "b"}}
	rec, _ = Read(empty, "x")
	if len(rec.Tags()) != 0 {
		t.Errorf("tags = %v, want none", rec.Tags())
	}
}

func TestRead_KeepsDuplicates(t *testing.T) {
	s := xmp.NewMemStore()
	seed(s, "a.jpg", nil, "x", "y", "x")
	rec, _ := Read(s, "a.jpg")
	if !slices.Equal(rec.Tags(), []string{"x", "y", "x"}) {
		t.Errorf("tags = %v", rec.Tags())
	}
}

func TestWriteTags_RoundTrip(t *testing.T) {
	s := xmp.NewMemStore()
	seed(s, "a.jpg", nil, "old1", "old2", "old3", "old4")

	rec := New("a.jpg", "a", "b", "c")
	if err := rec.WriteTags(s); err != nil {
		t.Fatalf("WriteTags: %v", err)
	}
	got, err := Read(s, "a.jpg")
	if err != nil {
		t.Fatal(err)
	}
	tags := got.Tags()
	slices.Sort(tags)
	if !slices.Equal(tags, []string{"a", "b", "c"}) {
		t.Errorf("tags = %v", tags)
	}
	if s.OpenHandles() != 0 {
		t.Error("handle leaked")
	}
}

func TestWriteTags_EmptyClears(t *testing.T) {
	s := xmp.NewMemStore()
	seed(s, "a.jpg", nil, "old")
	if err := New("a.jpg").WriteTags(s); err != nil {
		t.Fatal(err)
	}
	got, _ := Read(s, "a.jpg")
	if len(got.Tags()) != 0 {
		t.Errorf("tags = %v", got.Tags())
	}
}

func TestWriteCreatedDate(t *testing.T) {
	s := xmp.NewMemStore()
	seed(s, "a.jpg", map[string]string{xmp.PropCreated: "1999"})

	rec := New("a.jpg")
	if err := rec.WriteCreatedDate(s); err != nil {
		t.Fatal(err)
	}
	p, _ := s.Packet("a.jpg")
	if v, _ := p.Property(xmp.SchemaDC, xmp.PropCreated); v != "1999" {
		t.Errorf("absent date must not clear fields, got %q", v)
	}

	d := time.Date(2020, 2, 3, 4, 5, 6, 0, time.FixedZone("", -5*3600))
	rec.SetDate(&d)
	if err := rec.WriteCreatedDate(s); err != nil {
		t.Fatal(err)
	}
	p, _ = s.Packet("a.jpg")
	for _, f := range dateFields {
		if v, _ := p.Property(f.schema, f.name); v != "2020-02-03T04:05:06-05:00" {
			t.Errorf("%s = %q", f.name, v)
		}
	}
	back, _ := Read(s, "a.jpg")
	if back.Date == nil || !back.Date.Equal(d) {
		t.Errorf("read back %v", back.Date)
	}
}

func TestWriteAll_StopsAfterTagFailure(t *testing.T) {
	fs := &failStore{MemStore: xmp.NewMemStore(), failProp: xmp.PropSubject}
	seed(fs.MemStore, "a.jpg", map[string]string{xmp.PropCreated: "1999"}, "keep")

	d := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := New("a.jpg", "new")
	rec.SetDate(&d)
	err := rec.WriteAll(fs)
	var se *apperr.SerializeError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want SerializeError", err)
	}
	if len(fs.closes) != 1 || fs.closes[0] != xmp.CloseDiscard {
		t.Errorf("closes = %v, want one discard", fs.closes)
	}
	back, _ := Read(fs.MemStore, "a.jpg")
	if back.Date == nil || back.Date.Year() != 1999 {
		t.Errorf("date step must not run: %v", back.Date)
	}
	if !slices.Equal(back.Tags(), []string{"keep"}) {
		t.Errorf("failed tag write should be discarded: %v", back.Tags())
	}
}

func TestWriteAll_DateFailureKeepsTags(t *testing.T) {
	fs := &failStore{MemStore: xmp.NewMemStore(), failProp: xmp.PropDateTimeOriginal}
	seed(fs.MemStore, "a.jpg", nil, "old")

	d := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := New("a.jpg", "new")
	rec.SetDate(&d)
	if err := rec.WriteAll(fs); err == nil {
		t.Fatal("expected error")
	}
	back, _ := Read(fs.MemStore, "a.jpg")
	if !slices.Equal(back.Tags(), []string{"new"}) {
		t.Errorf("tags = %v, want the committed first step", back.Tags())
	}
	if back.Date != nil {
		t.Errorf("date = %v, want untouched", back.Date)
	}
}

func TestWriteTags_CloseError(t *testing.T) {
	fs := &failStore{MemStore: xmp.NewMemStore(), failClose: true}
	seed(fs.MemStore, "a.jpg", nil)
	err := New("a.jpg", "x").WriteTags(fs)
	var ce *apperr.CloseError
	if !errors.As(err, &ce) {
		t.Errorf("err = %v, want CloseError", err)
	}
	if fs.MemStore.OpenHandles() != 0 {
		t.Error("handle leaked")
	}
}

func TestRemoveTag(t *testing.T) {
	rec := New("a", "x", "y", "x")
	if err := rec.RemoveTag("x"); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(rec.Tags(), []string{"y", "x"}) {
		t.Errorf("tags = %v", rec.Tags())
	}

	rec = New("a", "x", "y")
	err := rec.RemoveTag("z")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
	if !slices.Equal(rec.Tags(), []string{"x", "y"}) {
		t.Errorf("tags changed: %v", rec.Tags())
	}
}

func TestMutators(t *testing.T) {
	rec := New("a")
	rec.AddTag("x")
	rec.AddTag("x")
	if !slices.Equal(rec.Tags(), []string{"x", "x"}) {
		t.Errorf("AddTag should allow duplicates: %v", rec.Tags())
	}
	in := []string{"p", "q"}
	rec.SetTags(in)
	in[0] = "mutated"
	if !slices.Equal(rec.Tags(), []string{"p", "q"}) {
		t.Errorf("SetTags should copy: %v", rec.Tags())
	}

	d := time.Now()
	rec.SetDate(&d)
	c := rec.Clone()
	c.AddTag("r")
	*c.Date = c.Date.Add(time.Hour)
	if len(rec.Tags()) != 2 || !rec.Date.Equal(d) {
		t.Error("Clone shares state")
	}
	if !rec.HasTag("p") || rec.HasTag("r") {
		t.Error("HasTag")
	}
}
