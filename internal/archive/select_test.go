package archive

import (
	"strings"
	"testing"
)

func TestSelectContent_PrefersStoryOverStub(t *testing.T) {
	members := []Member{
		{Name: "attribution.txt", Size: 40, Head: []byte("Title: The Brave Fox")},
		{Name: "story.txt", Size: 2000, Head: []byte("Once upon a time")},
	}
	got, ok := SelectContent(members, 200)
	if !ok || got.Name != "story.txt" {
		t.Fatalf("expected story.txt, got %+v", got)
	}
}

func TestSelectContent_LongStubLosesToShorterStory(t *testing.T) {
	members := []Member{
		{Name: "meta.txt", Size: 5000, Head: []byte("\xef\xbb\xbf  Title: Long stub")},
		{Name: "story.TXT", Size: 900, Head: []byte("It was raining")},
	}
	got, ok := SelectContent(members, 200)
	if !ok || got.Name != "story.TXT" {
		t.Fatalf("expected story.TXT, got %+v", got)
	}
}

func TestSelectContent_FallsBackToLongestCandidate(t *testing.T) {
	members := []Member{
		{Name: "a.txt", Size: 10, Head: []byte("Title: a")},
		{Name: "b.txt", Size: 50, Head: []byte("short")},
		{Name: "c.pdf", Size: 9000},
	}
	got, ok := SelectContent(members, 200)
	if !ok || got.Name != "b.txt" {
		t.Fatalf("expected b.txt, got %+v", got)
	}

	if _, ok := SelectContent([]Member{{Name: "c.pdf", Size: 10}}, 200); ok {
		t.Fatalf("expected no content candidate")
	}
}

func TestSelectAsset_PicksLargestDocument(t *testing.T) {
	members := []Member{
		{Name: "small.pdf", Size: 10},
		{Name: "big.PDF", Size: 100},
		{Name: "story.txt", Size: 1000},
	}
	got, ok := SelectAsset(members)
	if !ok || !strings.EqualFold(got.Name, "big.pdf") {
		t.Fatalf("expected big.PDF, got %+v", got)
	}
}
