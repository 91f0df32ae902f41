package catalog

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"The Brave Fox!":              "the-brave-fox",
		"  Hello,  World -- Again!  ": "hello-world-again",
		"Ünïcödé Tale":                "unicode-tale",
		"---":                         "",
		"Chapter 2: The Return":       "chapter-2-the-return",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCandidateSlug(t *testing.T) {
	cases := []struct {
		id, title, want string
	}{
		{"SW-12345", "Ammu's Puppy", "12345-ammus-puppy"},
		{"482", "", "482"},
		{"", "Only A Title", "only-a-title"},
		{"SW-1-2", "x", "2-x"},
	}
	for _, tc := range cases {
		if got := CandidateSlug(tc.id, tc.title); got != tc.want {
			t.Errorf("CandidateSlug(%q, %q) = %q, want %q", tc.id, tc.title, got, tc.want)
		}
	}
}
