package domain

// CatalogEntry is a discovery seed extracted from the remote catalog feed
type CatalogEntry struct {
	RemoteID      string `json:"remote_id"`      // Stable external identifier, e.g. "SW-12345"
	Title         string `json:"title"`          // Title as published in the feed
	CandidateSlug string `json:"candidate_slug"` // Best-effort slug guess derived from the title
}

// SlugCache maps remote ids to slugs confirmed by a known mapping or by probing.
// Entries are only ever added.
type SlugCache map[string]string

func (c SlugCache) Lookup(remoteID string) (string, bool) {
	if c == nil {
		return "", false
	}
	slug, ok := c[remoteID]
	return slug, ok && slug != ""
}

// Merge copies entries from other that are not already present
func (c SlugCache) Merge(other SlugCache) {
	for id, slug := range other {
		if _, exists := c[id]; !exists && slug != "" {
			c[id] = slug
		}
	}
}
