package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9\s-]+`)
	slugGaps     = regexp.MustCompile(`[\s-]+`)
	digitRun     = regexp.MustCompile(`\d+`)
)

// Slugify turns a title into a URL slug: "Ammu's Puppy!" -> "ammus-puppy"
func Slugify(title string) string {
	folded := foldDiacritics(title)
	s := strings.ToLower(folded)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = slugGaps.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NumericID returns the last run of digits in an identifier ("SW-12345" -> "12345")
func NumericID(remoteID string) string {
	runs := digitRun.FindAllString(remoteID, -1)
	if len(runs) == 0 {
		return ""
	}
	return runs[len(runs)-1]
}

// CandidateSlug prefixes the slugified title with the numeric part of the id.
// Either part may be missing.
func CandidateSlug(remoteID, title string) string {
	n := NumericID(remoteID)
	s := Slugify(title)
	switch {
	case n == "":
		return s
	case s == "":
		return n
	default:
		return n + "-" + s
	}
}
