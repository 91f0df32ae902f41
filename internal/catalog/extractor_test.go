package catalog

import "testing"

const atomCatalog = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>StoryWeaver catalog</title>
  <id>urn:storyweaver:catalog</id>
  <entry>
    <id>urn:storyweaver:book:9001</id>
    <title>The Brave Fox!</title>
    <link rel="alternate" href="https://storyweaver.org.in/stories/482-the-brave-fox"/>
  </entry>
  <entry>
    <id>urn:storyweaver:SW-12345</id>
    <title>Ammu’s Puppy</title>
  </entry>
  <entry>
    <id></id>
  </entry>
  <entry>
    <id>urn:storyweaver:book:9002</id>
    <title>Another Fox</title>
    <link rel="alternate" href="https://storyweaver.org.in/stories/482-another-fox"/>
  </entry>
</feed>`

func TestExtract_AtomFeed(t *testing.T) {
	entries, err := NewExtractor().Extract([]byte(atomCatalog))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}

	if entries[0].RemoteID != "482" || entries[0].CandidateSlug != "482-the-brave-fox" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[0].Title != "The Brave Fox!" {
		t.Errorf("unexpected title %q", entries[0].Title)
	}
	if entries[1].RemoteID != "SW-12345" || entries[1].CandidateSlug != "12345-ammus-puppy" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

func TestExtract_FallsBackToBlockScan(t *testing.T) {
	doc := `<catalog>
  <item><title>Café Olé</title><guid>tag:example.org,2020:story/77</guid></item>
  <item><title></title><guid></guid></item>
</catalog>`

	entries, err := NewExtractor().Extract([]byte(doc))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %+v", entries)
	}
	if entries[0].RemoteID != "77" || entries[0].CandidateSlug != "77-cafe-ole" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestExtract_IsRepeatable(t *testing.T) {
	e := NewExtractor()
	first, err := e.Extract([]byte(atomCatalog))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	second, err := e.Extract([]byte(atomCatalog))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("re-extraction changed the result: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("entry %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}
