package locale

import (
	"regexp"
	"strings"

	"storyweaver/harvester/internal/domain"
)

var numericOnly = regexp.MustCompile(`^\d+([-_]\d+)*$`)

// IsDescriptive reports whether a slug already carries words, e.g. "482-the-brave-fox".
// Bare ids such as "482" or "482-17" are not descriptive.
func IsDescriptive(slug string) bool {
	if !strings.ContainsAny(slug, "-_") {
		return false
	}
	return !numericOnly.MatchString(slug)
}

// SelectCanonical picks the slug of the target-language edition.
// A descriptive original slug is taken as canonical without looking at the variants.
// ok is false when no variant matches; such items complete with no target.
func SelectCanonical(meta *domain.RemoteMetadata, originalSlug, target string) (string, bool) {
	if IsDescriptive(originalSlug) {
		return originalSlug, true
	}
	if meta == nil || target == "" {
		return "", false
	}

	for _, v := range meta.Variants {
		if v.Slug != "" && v.Language == target {
			return v.Slug, true
		}
	}

	lowerTarget := strings.ToLower(target)
	for _, v := range meta.Variants {
		if v.Slug != "" && strings.Contains(strings.ToLower(v.Language), lowerTarget) {
			return v.Slug, true
		}
	}
	return "", false
}
