package index

import "testing"

func TestAnalyze(t *testing.T) {
	doc := Document{ID: "d1", Fields: map[string]string{
		"contents": "banana slugs and banana bread",
		"title":    "Slugs",
		"tweetid":  "42",
	}}
	a := Analyze(7, doc, Options{TermVectorFields: []string{"contents"}, SecondaryIDField: "tweetid"})

	if a.Doc.Handle != 7 || a.Doc.SecondaryID != 42 {
		t.Errorf("stored doc = %+v", a.Doc)
	}
	if a.Doc.Lengths["contents"] != 4 {
		t.Errorf("contents length = %d, want 4", a.Doc.Lengths["contents"])
	}
	vec := a.Doc.Vectors["contents"]
	if vec["banana"] != 2 || vec["slug"] != 1 || vec["bread"] != 1 {
		t.Errorf("vector = %v", vec)
	}
	if _, ok := a.Doc.Vectors["title"]; ok {
		t.Error("title should not keep a term vector")
	}
	p := a.Postings[Key("contents", "banana")]
	if p == nil || p.Frequency != 2 || len(p.Positions) != 2 {
		t.Fatalf("banana posting = %+v", p)
	}
	if a.Postings[Key("title", "slug")] == nil {
		t.Error("title postings missing")
	}
}

func TestMemoryIndex(t *testing.T) {
	m := NewMemoryIndex()
	opts := Options{TermVectorFields: []string{"contents"}}
	m.Add(Analyze(2, Document{ID: "b", Fields: map[string]string{"contents": "santa cruz banana"}}, opts))
	m.Add(Analyze(1, Document{ID: "a", Fields: map[string]string{"contents": "banana banana slug"}}, opts))

	list := m.Search(Key("contents", "banana"))
	if len(list) != 2 || list[0].Handle != 1 || list[1].Handle != 2 {
		t.Fatalf("postings = %+v", list)
	}
	df, ttf := m.Stats(Key("contents", "banana"))
	if df != 2 || ttf != 3 {
		t.Errorf("stats = %d/%d, want 2/3", df, ttf)
	}
	if doc, ok := m.Doc("a"); !ok || doc.Fields["contents"] != "banana banana slug" {
		t.Errorf("Doc(a) = %+v, %v", doc, ok)
	}

	entries, docs := m.Snapshot()
	if len(docs) != 2 || docs[0].ID != "a" {
		t.Errorf("docs = %+v", docs)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Term >= entries[i].Term {
			t.Errorf("entries not sorted at %d", i)
		}
	}
	if m.Size() == 0 || m.DocCount() != 2 {
		t.Errorf("size=%d docs=%d", m.Size(), m.DocCount())
	}
	m.Reset()
	if m.DocCount() != 0 || m.Search(Key("contents", "banana")) != nil {
		t.Error("reset did not clear index")
	}
}

func TestKey(t *testing.T) {
	field, term := SplitKey(Key("contents", "banana"))
	if field != "contents" || term != "banana" {
		t.Errorf("SplitKey = %q %q", field, term)
	}
}
