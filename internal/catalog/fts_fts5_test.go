//go:build sqlite_fts5

package catalog

import "testing"

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records_fts`).Scan(&count); err != nil {
		t.Fatalf("records_fts table missing: %v", err)
	}
}

func TestFTS5_SearchByTag(t *testing.T) {
	db := testDB(t)
	if err := db.Upsert(Row{Path: "fts.jpg", Tags: []string{"lighthouse", "coast"}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	results, err := db.Search("lighthouse", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "fts.jpg" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(Row{Path: "gone.jpg", Tags: []string{"vanishing"}})
	_ = db.Delete("gone.jpg")

	results, _ := db.Search("vanishing", 10)
	if len(results) != 0 {
		t.Errorf("deleted record still in FTS index: %+v", results)
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(Row{Path: "evo.jpg", Tags: []string{"original"}})
	_ = db.Upsert(Row{Path: "evo.jpg", Tags: []string{"replacement"}})

	if results, _ := db.Search("original", 10); len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	if results, _ := db.Search("replacement", 10); len(results) != 1 {
		t.Errorf("FTS not updated: %+v", results)
	}
}
